package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketsync/config"
	"marketsync/models"
)

func testClient(baseURL string) *Client {
	return NewClient(config.RestConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         100,
		},
	})
}

func TestFetchOrderBookSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/orderbook" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "BTCUSDT" || r.URL.Query().Get("limit") != "50" {
			t.Errorf("query = %v", r.URL.Query())
		}
		json.NewEncoder(w).Encode(models.DepthSnapshot{
			LastUpdateID: 5,
			Bids:         [][]string{{"100", "2"}},
			Asks:         [][]string{{"101", "3"}},
		})
	}))
	defer srv.Close()

	ob, err := testClient(srv.URL).FetchOrderBookSnapshot(context.Background(), "BTCUSDT", 50)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if ob.Symbol != "BTCUSDT" || ob.LastUpdateID != 5 {
		t.Fatalf("snapshot = %+v", ob)
	}
	if len(ob.Bids) != 1 || len(ob.Asks) != 1 {
		t.Fatalf("levels = %+v / %+v", ob.Bids, ob.Asks)
	}
	if ob.Bids[0].Price.String() != "100" {
		t.Fatalf("bid price = %s", ob.Bids[0].Price)
	}
}

func TestFetchReturnsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchOrderBookSnapshot(context.Background(), "BTCUSDT", 50)
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %T: %v", err, err)
	}
	if he.Status != http.StatusBadGateway {
		t.Fatalf("status = %d", he.Status)
	}
	if !IsHTTPStatus(err, http.StatusBadGateway) {
		t.Fatalf("IsHTTPStatus mismatch")
	}
}

func TestFetchReturnsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lastUpdateId": "not-a-number"`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchOrderBookSnapshot(context.Background(), "BTCUSDT", 50)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %T: %v", err, err)
	}
}

func TestFetchReturnsDecodeErrorForBadLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.DepthSnapshot{
			LastUpdateID: 5,
			Bids:         [][]string{{"not-a-price", "2"}},
		})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchOrderBookSnapshot(context.Background(), "BTCUSDT", 50)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %T: %v", err, err)
	}
}

func TestFetchReturnsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testClient(srv.URL).FetchOrderBookSnapshot(context.Background(), "BTCUSDT", 50)
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
}

func TestFetchRecentTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/trades" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"id":2,"price":"101","quantity":"1","time":2000},{"id":1,"price":"100","quantity":"1","time":1000}]`))
	}))
	defer srv.Close()

	trades, err := testClient(srv.URL).FetchRecentTrades(context.Background(), "BTCUSDT", 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(trades) != 2 || trades[0].ID != 2 {
		t.Fatalf("trades = %+v", trades)
	}
}

func TestFetchKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("interval") != "1m" {
			t.Errorf("query = %v", r.URL.Query())
		}
		w.Write([]byte(`[{"openTime":60000,"open":"100","high":"105","low":"99","close":"101","volume":"10","closeTime":119999,"closed":true}]`))
	}))
	defer srv.Close()

	klines, err := testClient(srv.URL).FetchKlines(context.Background(), "BTCUSDT", "1m", 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(klines) != 1 || klines[0].OpenTime != 60000 || !klines[0].Closed {
		t.Fatalf("klines = %+v", klines)
	}
}

func TestUpdateSignalSendsPatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/api/signals/sig-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var patch models.SignalPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if patch.Favorite == nil || !*patch.Favorite {
			t.Errorf("patch = %+v", patch)
		}
		w.Write([]byte(`{"id":"sig-1","symbol":"BTCUSDT","favorite":true}`))
	}))
	defer srv.Close()

	fav := true
	sig, err := testClient(srv.URL).UpdateSignal(context.Background(), "sig-1", models.SignalPatch{Favorite: &fav})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sig.ID != "sig-1" || !sig.Favorite {
		t.Fatalf("signal = %+v", sig)
	}
}

func TestFetchTicker24h(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/ticker24h" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbols") != "BTCUSDT,ETHUSDT" {
			t.Errorf("query = %v", r.URL.Query())
		}
		w.Write([]byte(`[{"symbol":"BTCUSDT","price":"100","volume":"10","change24h":1.5},{"symbol":"ETHUSDT","price":"50","volume":"20","change24h":-0.5}]`))
	}))
	defer srv.Close()

	tickers, err := testClient(srv.URL).FetchTicker24h(context.Background(), "BTCUSDT", "ETHUSDT")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tickers) != 2 || tickers[0].Symbol != "BTCUSDT" || tickers[1].Change24h != -0.5 {
		t.Fatalf("tickers = %+v", tickers)
	}
}

func TestFetchSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["BTCUSDT","ETHUSDT"]`))
	}))
	defer srv.Close()

	symbols, err := testClient(srv.URL).FetchSymbols(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "BTCUSDT" {
		t.Fatalf("symbols = %v", symbols)
	}
}
