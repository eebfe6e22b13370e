package view

import (
	"sort"

	"github.com/shopspring/decimal"

	"marketsync/models"
)

// CandlePoint is the charting library's candle shape.
type CandlePoint struct {
	Time  int64           `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// CandleSeries renders klines ascending by open time. Gaps between candles
// are left unfilled; the chart handles rendering them.
func CandleSeries(klines []models.Kline) []CandlePoint {
	points := make([]CandlePoint, 0, len(klines))
	for _, k := range klines {
		points = append(points, CandlePoint{
			Time:  k.OpenTime,
			Open:  k.Open,
			High:  k.High,
			Low:   k.Low,
			Close: k.Close,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time < points[j].Time })
	return points
}
