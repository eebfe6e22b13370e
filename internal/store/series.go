package store

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"marketsync/models"
)

// series is the candle sequence for one (symbol, interval) pair, ascending by
// open time. Only the newest candle is mutable; an interval boundary crossing
// seals it and opens a fresh candle at the incoming price.
type series struct {
	interval time.Duration
	limit    int
	klines   []models.Kline
}

func newSeries(interval time.Duration, limit int) *series {
	return &series{interval: interval, limit: limit}
}

// seed replaces the series with a REST window. Every candle except the
// newest is marked closed.
func (s *series) seed(klines []models.Kline) {
	s.klines = append(s.klines[:0], klines...)
	sort.Slice(s.klines, func(i, j int) bool { return s.klines[i].OpenTime < s.klines[j].OpenTime })
	for i := range s.klines {
		if i < len(s.klines)-1 {
			s.klines[i].Closed = true
		}
	}
	s.trim()
}

// tick folds one trade into the series. ts is epoch milliseconds.
func (s *series) tick(price, qty decimal.Decimal, ts int64) {
	intervalMs := s.interval.Milliseconds()
	if intervalMs <= 0 {
		return
	}
	boundary := ts - ts%intervalMs

	if n := len(s.klines); n > 0 {
		last := &s.klines[n-1]
		if ts < last.OpenTime {
			// late tick for an already sealed candle, drop it
			return
		}
		if boundary == last.OpenTime {
			if price.GreaterThan(last.High) {
				last.High = price
			}
			if price.LessThan(last.Low) {
				last.Low = price
			}
			last.Close = price
			last.Volume = last.Volume.Add(qty)
			return
		}
		last.Closed = true
	}

	s.klines = append(s.klines, models.Kline{
		OpenTime:  boundary,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    qty,
		CloseTime: boundary + intervalMs - 1,
	})
	s.trim()
}

func (s *series) trim() {
	if s.limit > 0 && len(s.klines) > s.limit {
		s.klines = append(s.klines[:0], s.klines[len(s.klines)-s.limit:]...)
	}
}

// snapshot copies the series ascending by open time.
func (s *series) snapshot() []models.Kline {
	out := make([]models.Kline, len(s.klines))
	copy(out, s.klines)
	return out
}
