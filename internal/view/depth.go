package view

import (
	"sort"

	"github.com/shopspring/decimal"

	"marketsync/models"
)

// DepthLevel is one row of a depth chart: a price level plus the running sum
// of quantity from the top of the book.
type DepthLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// Depth is the render-ready shape for a depth chart widget.
type Depth struct {
	Symbol string       `json:"symbol"`
	Bids   []DepthLevel `json:"bids"`
	Asks   []DepthLevel `json:"asks"`
}

// CumulativeDepth computes running quantity sums with bids descending and
// asks ascending by price. Cumulative quantity is non-decreasing as price
// moves away from the top of the book.
func CumulativeDepth(ob models.OrderBook) Depth {
	bids := make([]models.Level, len(ob.Bids))
	copy(bids, ob.Bids)
	asks := make([]models.Level, len(ob.Asks))
	copy(asks, ob.Asks)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })

	return Depth{
		Symbol: ob.Symbol,
		Bids:   accumulate(bids),
		Asks:   accumulate(asks),
	}
}

func accumulate(levels []models.Level) []DepthLevel {
	out := make([]DepthLevel, 0, len(levels))
	running := decimal.Zero
	for _, lvl := range levels {
		running = running.Add(lvl.Quantity)
		out = append(out, DepthLevel{
			Price:      lvl.Price,
			Quantity:   lvl.Quantity,
			Cumulative: running,
		})
	}
	return out
}
