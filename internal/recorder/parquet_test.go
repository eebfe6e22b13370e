package recorder

import (
	"testing"

	"github.com/shopspring/decimal"

	"marketsync/models"
)

func lvl(price, qty string) models.Level {
	return models.Level{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestFlattenBook(t *testing.T) {
	ob := models.OrderBook{
		Symbol:       "BTCUSDT",
		LastUpdateID: 42,
		Bids:         []models.Level{lvl("100", "2"), lvl("99", "1")},
		Asks:         []models.Level{lvl("101", "3")},
	}

	records := flattenBook(ob, 1700000000000)
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}

	first := records[0]
	if first.Side != "bid" || first.Level != 1 || first.Price != 100 {
		t.Fatalf("first record = %+v", first)
	}
	if records[1].Level != 2 {
		t.Fatalf("second bid level = %d", records[1].Level)
	}
	ask := records[2]
	if ask.Side != "ask" || ask.Level != 1 || ask.Price != 101 {
		t.Fatalf("ask record = %+v", ask)
	}
	for _, r := range records {
		if r.Symbol != "BTCUSDT" || r.LastUpdateID != 42 || r.Timestamp != 1700000000000 {
			t.Fatalf("record metadata wrong: %+v", r)
		}
	}
}

func TestFlattenBookEmpty(t *testing.T) {
	if records := flattenBook(models.OrderBook{Symbol: "BTCUSDT"}, 1); len(records) != 0 {
		t.Fatalf("records = %+v", records)
	}
}

func TestEncodeParquet(t *testing.T) {
	records := flattenBook(models.OrderBook{
		Symbol:       "BTCUSDT",
		LastUpdateID: 1,
		Bids:         []models.Level{lvl("100", "2")},
		Asks:         []models.Level{lvl("101", "3")},
	}, 1700000000000)

	payload, err := encodeParquet(records)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(payload) == 0 {
		t.Fatalf("empty parquet payload")
	}
	// parquet files end with the PAR1 magic
	if string(payload[len(payload)-4:]) != "PAR1" {
		t.Fatalf("missing parquet magic footer")
	}
}
