package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"marketsync/config"
	"marketsync/internal/socket"
	"marketsync/internal/store"
	"marketsync/internal/subscription"
	"marketsync/models"
)

type noopSender struct{}

func (noopSender) Send(topic, action string) error { return nil }

func testServer() (*Server, *store.Store) {
	gin.SetMode(gin.TestMode)
	st := store.NewStore(config.MarketConfig{
		DepthLimit:    50,
		TradeCapacity: 10,
		KlineLimit:    100,
		ResyncBuffer:  4,
	})
	srv := NewServer(config.DashboardConfig{Enabled: true, Address: ":0"}, st, subscription.NewRegistry(noopSender{}), nil)
	return srv, st
}

func lvl(price, qty string) models.Level {
	return models.Level{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func TestNewServerDisabled(t *testing.T) {
	if srv := NewServer(config.DashboardConfig{Enabled: false}, nil, nil, nil); srv != nil {
		t.Fatalf("disabled dashboard should return nil server")
	}
}

func TestGetStatus(t *testing.T) {
	srv, _ := testServer()
	w := doRequest(t, srv, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["state"] != socket.Disconnected.String() {
		t.Fatalf("state = %v", resp["state"])
	}
	if resp["connected"] != false {
		t.Fatalf("connected = %v", resp["connected"])
	}
}

func TestGetOrderBookUnknownSymbol(t *testing.T) {
	srv, _ := testServer()
	w := doRequest(t, srv, http.MethodGet, "/api/orderbook/BTCUSDT", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetDepth(t *testing.T) {
	srv, st := testServer()
	st.ApplySnapshot(models.OrderBook{
		Symbol:       "BTCUSDT",
		LastUpdateID: 5,
		Bids:         []models.Level{lvl("100", "2")},
		Asks:         []models.Level{lvl("101", "3")},
	})

	w := doRequest(t, srv, http.MethodGet, "/api/depth/BTCUSDT", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["midPrice"] != "100.5" {
		t.Fatalf("midPrice = %v", resp["midPrice"])
	}
	if resp["spread"] != "1" {
		t.Fatalf("spread = %v", resp["spread"])
	}
}

func TestGetDepthEmptySideRendersPlaceholder(t *testing.T) {
	srv, st := testServer()
	st.ApplySnapshot(models.OrderBook{
		Symbol:       "BTCUSDT",
		LastUpdateID: 5,
		Bids:         []models.Level{lvl("100", "2")},
	})

	w := doRequest(t, srv, http.MethodGet, "/api/depth/BTCUSDT", "")
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["midPrice"] != "N/A" || resp["spread"] != "N/A" {
		t.Fatalf("placeholders missing: mid=%v spread=%v", resp["midPrice"], resp["spread"])
	}
}

func TestGetTradesAlwaysReturnsArray(t *testing.T) {
	srv, _ := testServer()
	w := doRequest(t, srv, http.MethodGet, "/api/trades/BTCUSDT", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Fatalf("body = %q, want empty array", body)
	}
}

func TestGetTickerNotFound(t *testing.T) {
	srv, _ := testServer()
	w := doRequest(t, srv, http.MethodGet, "/api/ticker/BTCUSDT", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPatchSignal(t *testing.T) {
	srv, st := testServer()
	st.SeedSignals([]models.Signal{{ID: "sig-1", Symbol: "BTCUSDT", Side: "long"}})

	w := doRequest(t, srv, http.MethodPatch, "/api/signals/sig-1", `{"favorite":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var sig models.Signal
	if err := json.Unmarshal(w.Body.Bytes(), &sig); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sig.Favorite {
		t.Fatalf("signal = %+v", sig)
	}

	w = doRequest(t, srv, http.MethodPatch, "/api/signals/missing", `{"favorite":true}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}

	w = doRequest(t, srv, http.MethodPatch, "/api/signals/sig-1", `{"favorite":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetKlinesDefaultsInterval(t *testing.T) {
	srv, st := testServer()
	if err := st.SeedKlines("BTCUSDT", "1m", []models.Kline{
		{OpenTime: 60000, Open: decimal.NewFromInt(1), High: decimal.NewFromInt(1), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(1)},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := doRequest(t, srv, http.MethodGet, "/api/klines/BTCUSDT", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var points []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &points); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("points = %+v", points)
	}
}
