package store

import (
	"testing"

	"marketsync/models"
)

func trade(id int64) models.Trade {
	return models.Trade{ID: id, Price: dec("100"), Quantity: dec("1"), Time: id * 1000}
}

func TestTapeAddPrependsNewest(t *testing.T) {
	tp := newTape(5)
	tp.add(trade(1))
	tp.add(trade(2))
	tp.add(trade(3))

	got := tp.snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != 3 || got[2].ID != 1 {
		t.Fatalf("tape not newest first: %+v", got)
	}
}

func TestTapeEvictsOldestAtCapacity(t *testing.T) {
	tp := newTape(3)
	for id := int64(1); id <= 5; id++ {
		tp.add(trade(id))
	}
	got := tp.snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != 5 || got[2].ID != 3 {
		t.Fatalf("expected ids [5 4 3], got %+v", got)
	}
}

func TestTapeRejectsDuplicateIDs(t *testing.T) {
	tp := newTape(5)
	if !tp.add(trade(1)) {
		t.Fatalf("first add rejected")
	}
	if tp.add(trade(1)) {
		t.Fatalf("duplicate id accepted")
	}
	if len(tp.snapshot()) != 1 {
		t.Fatalf("duplicate changed the window")
	}
}

func TestTapeSeedTruncatesToCapacity(t *testing.T) {
	tp := newTape(2)
	tp.seed([]models.Trade{trade(9), trade(8), trade(7)})
	got := tp.snapshot()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != 9 || got[1].ID != 8 {
		t.Fatalf("seed kept wrong trades: %+v", got)
	}
}
