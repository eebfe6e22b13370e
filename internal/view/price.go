package view

import (
	"errors"

	"github.com/shopspring/decimal"

	"marketsync/models"
)

// ErrEmptyBook is returned by derived metrics when a book side has no
// entries. Callers render a placeholder instead of a value.
var ErrEmptyBook = errors.New("order book side is empty")

var two = decimal.NewFromInt(2)

// MidPrice returns (best bid + best ask) / 2.
func MidPrice(ob models.OrderBook) (decimal.Decimal, error) {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return decimal.Zero, ErrEmptyBook
	}
	return ob.Bids[0].Price.Add(ob.Asks[0].Price).Div(two), nil
}

// Spread returns best ask minus best bid.
func Spread(ob models.OrderBook) (decimal.Decimal, error) {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return decimal.Zero, ErrEmptyBook
	}
	return ob.Asks[0].Price.Sub(ob.Bids[0].Price), nil
}
