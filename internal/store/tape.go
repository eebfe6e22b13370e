package store

import "marketsync/models"

// tape is a bounded most-recent-first trade sequence. Appending beyond
// capacity evicts the oldest trade; trades already present (by id) are
// rejected.
type tape struct {
	trades   []models.Trade
	capacity int
}

func newTape(capacity int) *tape {
	return &tape{capacity: capacity}
}

// seed replaces the tape contents with a REST snapshot window, newest first,
// truncated to capacity.
func (t *tape) seed(trades []models.Trade) {
	if len(trades) > t.capacity {
		trades = trades[:t.capacity]
	}
	t.trades = append(t.trades[:0], trades...)
}

// add prepends a trade unless its id is already present. Returns false for
// duplicates.
func (t *tape) add(tr models.Trade) bool {
	for _, existing := range t.trades {
		if existing.ID == tr.ID {
			return false
		}
	}
	t.trades = append(t.trades, models.Trade{})
	copy(t.trades[1:], t.trades)
	t.trades[0] = tr
	if len(t.trades) > t.capacity {
		t.trades = t.trades[:t.capacity]
	}
	return true
}

// snapshot copies the current window, newest first.
func (t *tape) snapshot() []models.Trade {
	out := make([]models.Trade, len(t.trades))
	copy(out, t.trades)
	return out
}
