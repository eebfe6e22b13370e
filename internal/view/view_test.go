package view

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"marketsync/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lvl(price, qty string) models.Level {
	return models.Level{Price: dec(price), Quantity: dec(qty)}
}

func sampleBook() models.OrderBook {
	return models.OrderBook{
		Symbol:       "BTCUSDT",
		LastUpdateID: 10,
		Bids:         []models.Level{lvl("100", "2"), lvl("99", "1"), lvl("98", "4")},
		Asks:         []models.Level{lvl("101", "3"), lvl("102", "1"), lvl("103", "2")},
	}
}

func TestCumulativeDepth(t *testing.T) {
	depth := CumulativeDepth(sampleBook())

	if depth.Symbol != "BTCUSDT" {
		t.Fatalf("symbol = %q", depth.Symbol)
	}
	wantBids := []string{"2", "3", "7"}
	for i, want := range wantBids {
		if depth.Bids[i].Cumulative.String() != want {
			t.Fatalf("bid cumulative[%d] = %s, want %s", i, depth.Bids[i].Cumulative, want)
		}
	}
	wantAsks := []string{"3", "4", "6"}
	for i, want := range wantAsks {
		if depth.Asks[i].Cumulative.String() != want {
			t.Fatalf("ask cumulative[%d] = %s, want %s", i, depth.Asks[i].Cumulative, want)
		}
	}
}

func TestCumulativeDepthSortsUnorderedInput(t *testing.T) {
	ob := models.OrderBook{
		Symbol: "BTCUSDT",
		Bids:   []models.Level{lvl("98", "4"), lvl("100", "2"), lvl("99", "1")},
		Asks:   []models.Level{lvl("103", "2"), lvl("101", "3"), lvl("102", "1")},
	}
	depth := CumulativeDepth(ob)

	if !depth.Bids[0].Price.Equal(dec("100")) {
		t.Fatalf("best bid = %s", depth.Bids[0].Price)
	}
	if !depth.Asks[0].Price.Equal(dec("101")) {
		t.Fatalf("best ask = %s", depth.Asks[0].Price)
	}
	for i := 1; i < len(depth.Bids); i++ {
		if depth.Bids[i].Cumulative.LessThan(depth.Bids[i-1].Cumulative) {
			t.Fatalf("bid cumulative not monotonic: %+v", depth.Bids)
		}
	}
}

func TestCumulativeDepthEmptyBook(t *testing.T) {
	depth := CumulativeDepth(models.OrderBook{Symbol: "BTCUSDT"})
	if len(depth.Bids) != 0 || len(depth.Asks) != 0 {
		t.Fatalf("depth = %+v", depth)
	}
}

func TestMidPriceAndSpread(t *testing.T) {
	ob := sampleBook()
	mid, err := MidPrice(ob)
	if err != nil {
		t.Fatalf("mid: %v", err)
	}
	if !mid.Equal(dec("100.5")) {
		t.Fatalf("mid = %s, want 100.5", mid)
	}

	spread, err := Spread(ob)
	if err != nil {
		t.Fatalf("spread: %v", err)
	}
	if !spread.Equal(dec("1")) {
		t.Fatalf("spread = %s, want 1", spread)
	}
}

func TestMidPriceEmptySide(t *testing.T) {
	cases := []models.OrderBook{
		{Symbol: "BTCUSDT"},
		{Symbol: "BTCUSDT", Bids: []models.Level{lvl("100", "1")}},
		{Symbol: "BTCUSDT", Asks: []models.Level{lvl("101", "1")}},
	}
	for _, ob := range cases {
		if _, err := MidPrice(ob); !errors.Is(err, ErrEmptyBook) {
			t.Errorf("MidPrice(%+v): err = %v, want ErrEmptyBook", ob, err)
		}
		if _, err := Spread(ob); !errors.Is(err, ErrEmptyBook) {
			t.Errorf("Spread(%+v): err = %v, want ErrEmptyBook", ob, err)
		}
	}
}

func TestCandleSeries(t *testing.T) {
	points := CandleSeries([]models.Kline{
		{OpenTime: 120000, Open: dec("2"), High: dec("3"), Low: dec("1"), Close: dec("2")},
		{OpenTime: 60000, Open: dec("1"), High: dec("2"), Low: dec("1"), Close: dec("2")},
	})
	if len(points) != 2 {
		t.Fatalf("len = %d", len(points))
	}
	if points[0].Time != 60000 || points[1].Time != 120000 {
		t.Fatalf("points not ascending: %+v", points)
	}
	if !points[0].Close.Equal(dec("2")) {
		t.Fatalf("close = %s", points[0].Close)
	}
}

func TestCandleSeriesEmpty(t *testing.T) {
	if points := CandleSeries(nil); len(points) != 0 {
		t.Fatalf("points = %+v", points)
	}
}
