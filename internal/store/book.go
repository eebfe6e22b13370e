package store

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketsync/models"
)

// BookState tracks where a symbol's order book sits in its sync lifecycle.
type BookState int

const (
	BookEmpty BookState = iota
	BookSnapshotLoaded
	BookSynced
	BookDesynced
)

func (s BookState) String() string {
	switch s {
	case BookSnapshotLoaded:
		return "snapshot_loaded"
	case BookSynced:
		return "synced"
	case BookDesynced:
		return "desynced"
	default:
		return "empty"
	}
}

// DeltaOutcome classifies what applying an incremental update did.
type DeltaOutcome int

const (
	// DeltaApplied: the update covered the expected next id and was merged.
	DeltaApplied DeltaOutcome = iota
	// DeltaDuplicate: the update is entirely behind the book; no-op.
	DeltaDuplicate
	// DeltaGap: ids are missing between the book and the update; the book is
	// now desynced and needs a fresh snapshot.
	DeltaGap
	// DeltaDiscarded: the book is awaiting a snapshot (empty or desynced);
	// the update was dropped.
	DeltaDiscarded
)

func (o DeltaOutcome) String() string {
	switch o {
	case DeltaApplied:
		return "applied"
	case DeltaDuplicate:
		return "duplicate"
	case DeltaGap:
		return "gap"
	default:
		return "discarded"
	}
}

// book holds one symbol's price levels keyed by canonical price string.
type book struct {
	symbol       string
	state        BookState
	lastUpdateID int64
	bids         map[string]models.Level
	asks         map[string]models.Level
	updatedAt    time.Time
}

func newBook(symbol string) *book {
	return &book{
		symbol: symbol,
		state:  BookEmpty,
		bids:   make(map[string]models.Level),
		asks:   make(map[string]models.Level),
	}
}

// priceKey renders a decimal without trailing fraction zeros so equal prices
// always collide on the same level.
func priceKey(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// applySnapshot replaces the book wholesale and records the snapshot's
// update id.
func (b *book) applySnapshot(ob models.OrderBook) {
	b.bids = make(map[string]models.Level, len(ob.Bids))
	b.asks = make(map[string]models.Level, len(ob.Asks))
	for _, lvl := range ob.Bids {
		if lvl.Quantity.IsPositive() {
			b.bids[priceKey(lvl.Price)] = lvl
		}
	}
	for _, lvl := range ob.Asks {
		if lvl.Quantity.IsPositive() {
			b.asks[priceKey(lvl.Price)] = lvl
		}
	}
	b.lastUpdateID = ob.LastUpdateID
	b.state = BookSnapshotLoaded
	b.updatedAt = ob.Timestamp
	if b.updatedAt.IsZero() {
		b.updatedAt = time.Now().UTC()
	}
}

// applyDelta merges an incremental update covering [firstID, lastID].
// A zero quantity removes the level, anything else upserts it. The delta is
// applied only when its id range overlaps the expected next id.
func (b *book) applyDelta(firstID, lastID int64, bids, asks []models.Level) DeltaOutcome {
	if b.state == BookEmpty || b.state == BookDesynced {
		return DeltaDiscarded
	}
	if lastID <= b.lastUpdateID {
		return DeltaDuplicate
	}
	if firstID > b.lastUpdateID+1 {
		b.state = BookDesynced
		return DeltaGap
	}

	applySide(b.bids, bids)
	applySide(b.asks, asks)
	b.lastUpdateID = lastID
	b.state = BookSynced
	b.updatedAt = time.Now().UTC()
	return DeltaApplied
}

func applySide(side map[string]models.Level, levels []models.Level) {
	for _, lvl := range levels {
		key := priceKey(lvl.Price)
		if lvl.Quantity.IsZero() || lvl.Quantity.IsNegative() {
			delete(side, key)
			continue
		}
		side[key] = lvl
	}
}

// snapshot renders the book with bids descending and asks ascending by price.
func (b *book) snapshot() models.OrderBook {
	bids := make([]models.Level, 0, len(b.bids))
	for _, lvl := range b.bids {
		bids = append(bids, lvl)
	}
	asks := make([]models.Level, 0, len(b.asks))
	for _, lvl := range b.asks {
		asks = append(asks, lvl)
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })

	return models.OrderBook{
		Symbol:       b.symbol,
		LastUpdateID: b.lastUpdateID,
		Bids:         bids,
		Asks:         asks,
		Timestamp:    b.updatedAt,
	}
}
