package models

import (
	"fmt"
	"strings"
)

// TopicKind identifies the class of data carried on a stream topic.
type TopicKind string

const (
	TopicTicker    TopicKind = "ticker"
	TopicOrderbook TopicKind = "orderbook"
	TopicTrades    TopicKind = "trades"
	TopicSignals   TopicKind = "signals"
)

// Topic is a (kind, symbol) pair. The signals topic is global and carries no
// symbol.
type Topic struct {
	Kind   TopicKind
	Symbol string
}

func (t Topic) String() string {
	if t.Symbol == "" {
		return string(t.Kind)
	}
	return fmt.Sprintf("%s:%s", t.Kind, t.Symbol)
}

// ParseTopic parses "kind:SYMBOL" (or bare "signals") into a Topic.
func ParseTopic(s string) (Topic, error) {
	kind, symbol, found := strings.Cut(s, ":")
	t := Topic{Kind: TopicKind(kind), Symbol: symbol}
	switch t.Kind {
	case TopicSignals:
		if found {
			return Topic{}, fmt.Errorf("signals topic takes no symbol: %q", s)
		}
	case TopicTicker, TopicOrderbook, TopicTrades:
		if symbol == "" {
			return Topic{}, fmt.Errorf("topic %q requires a symbol", s)
		}
	default:
		return Topic{}, fmt.Errorf("unknown topic kind in %q", s)
	}
	return t, nil
}

// OrderbookTopic builds the orderbook topic string for a symbol.
func OrderbookTopic(symbol string) string {
	return Topic{Kind: TopicOrderbook, Symbol: symbol}.String()
}

// TradesTopic builds the trades topic string for a symbol.
func TradesTopic(symbol string) string {
	return Topic{Kind: TopicTrades, Symbol: symbol}.String()
}

// TickerTopic builds the ticker topic string for a symbol.
func TickerTopic(symbol string) string {
	return Topic{Kind: TopicTicker, Symbol: symbol}.String()
}
