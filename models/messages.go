package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Envelope is the wire framing for every stream message: a topic string and
// an opaque payload routed by topic kind.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// SubscribeRequest is the upstream control frame for subscribe/unsubscribe.
type SubscribeRequest struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// DepthUpdate mirrors the orderbook topic payload. A message with
// FirstUpdateID == 0 is a full snapshot, otherwise an incremental delta
// covering the id range [FirstUpdateID, LastUpdateID]. Price levels arrive
// as [price, quantity] string pairs.
type DepthUpdate struct {
	Symbol        string     `json:"symbol"`
	FirstUpdateID int64      `json:"firstUpdateId"`
	LastUpdateID  int64      `json:"lastUpdateId"`
	Bids          [][]string `json:"bids"`
	Asks          [][]string `json:"asks"`
}

// Snapshot reports whether the update replaces the book wholesale.
func (d DepthUpdate) Snapshot() bool { return d.FirstUpdateID == 0 }

// DepthSnapshot is the REST order book snapshot response.
type DepthSnapshot struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// TickerUpdate is the ticker topic payload.
type TickerUpdate struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Volume    string `json:"volume"`
	Change24h string `json:"change24h"`
}

// ParseLevels converts [price, quantity] string pairs into levels. Pairs with
// fewer than two fields or unparseable numbers are rejected.
func ParseLevels(raw [][]string) ([]Level, error) {
	levels := make([]Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level must have price and quantity, got %v", pair)
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", pair[0], err)
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q: %w", pair[1], err)
		}
		levels = append(levels, Level{Price: price, Quantity: qty})
	}
	return levels, nil
}
