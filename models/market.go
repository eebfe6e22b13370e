package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level represents a single price level in an order book.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBook represents the canonical book state for one symbol.
// Bids are ordered descending by price, asks ascending.
type OrderBook struct {
	Symbol       string    `json:"symbol"`
	LastUpdateID int64     `json:"lastUpdateId"`
	Bids         []Level   `json:"bids"`
	Asks         []Level   `json:"asks"`
	Timestamp    time.Time `json:"timestamp"`
}

// Trade is a single executed trade as delivered by the stream or the
// recent-trades endpoint. Immutable once received.
type Trade struct {
	ID           int64           `json:"id"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Time         int64           `json:"time"`
	IsBuyerMaker bool            `json:"isBuyerMaker"`
}

// Kline is one candle for a (symbol, interval) pair, keyed by OpenTime.
// The most recent candle stays open and mutable until CloseTime passes.
type Kline struct {
	OpenTime  int64           `json:"openTime"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	CloseTime int64           `json:"closeTime"`
	Closed    bool            `json:"closed"`
}

// Ticker carries the 24h rolling stats for a symbol.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Change24h float64         `json:"change24h"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Signal is a trading signal produced by the backend analysis service.
type Signal struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt int64           `json:"createdAt"`
	Favorite  bool            `json:"favorite"`
	Notified  bool            `json:"notified"`
}

// SignalPatch is a partial update for a signal. Nil fields are left untouched.
type SignalPatch struct {
	Favorite *bool `json:"favorite,omitempty"`
	Notified *bool `json:"notified,omitempty"`
}

// CandlestickPattern describes a detected chart pattern for a symbol.
type CandlestickPattern struct {
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe"`
	Name       string  `json:"name"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Time       int64   `json:"time"`
}

// MarketData is the aggregate returned by GET /market/data.
type MarketData struct {
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Change24h float64         `json:"change24h"`
}
