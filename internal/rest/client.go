package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"marketsync/config"
	"marketsync/logger"
	"marketsync/models"
)

// Client is the REST snapshot fetcher. Every call hits the network; staleness
// is the market store's concern, not the fetcher's. Failures come back as
// *NetworkError, *HTTPError or *DecodeError and are never retried silently.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient builds a fetcher against the configured REST base URL.
func NewClient(cfg config.RestConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
	}

	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = rps
	}

	return &Client{
		base: cfg.BaseURL,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &NetworkError{URL: path, Err: err}
	}

	reqURL := c.base + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return &NetworkError{URL: reqURL, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	log := c.log.WithComponent("rest_client")
	logger.LogPerformanceEntry(log.WithFields(logger.Fields{"path": path}), "rest_client", "api_request", time.Since(start), nil)

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return &HTTPError{URL: reqURL, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{URL: reqURL, Err: err}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// FetchSymbols returns the list of tradable symbols.
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	if err := c.get(ctx, "/market/symbols", nil, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

// FetchOrderBookSnapshot fetches the current book for a symbol at the given
// depth and converts it into the canonical order book shape.
func (c *Client) FetchOrderBookSnapshot(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(depth))

	var snap models.DepthSnapshot
	if err := c.get(ctx, "/market/orderbook", q, &snap); err != nil {
		return nil, err
	}

	bids, err := models.ParseLevels(snap.Bids)
	if err != nil {
		return nil, &DecodeError{URL: "/market/orderbook", Err: err}
	}
	asks, err := models.ParseLevels(snap.Asks)
	if err != nil {
		return nil, &DecodeError{URL: "/market/orderbook", Err: err}
	}

	return &models.OrderBook{
		Symbol:       symbol,
		LastUpdateID: snap.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// FetchRecentTrades fetches the latest trades for a symbol, newest first.
func (c *Client) FetchRecentTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(limit))

	var trades []models.Trade
	if err := c.get(ctx, "/market/trades", q, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// FetchKlines fetches the candle series for a (symbol, interval) pair.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var klines []models.Kline
	if err := c.get(ctx, "/market/klines", q, &klines); err != nil {
		return nil, err
	}
	return klines, nil
}

// FetchTicker24h fetches 24h rolling tickers. With no symbols the server
// returns every tradable symbol.
func (c *Client) FetchTicker24h(ctx context.Context, symbols ...string) ([]models.Ticker, error) {
	q := url.Values{}
	if len(symbols) > 0 {
		q.Set("symbols", strings.Join(symbols, ","))
	}

	var tickers []models.Ticker
	if err := c.get(ctx, "/market/ticker24h", q, &tickers); err != nil {
		return nil, err
	}
	return tickers, nil
}

// FetchMarketData fetches the aggregate price/volume/change view used by the
// ticker widgets.
func (c *Client) FetchMarketData(ctx context.Context, symbol, timeframe string) (*models.MarketData, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	if timeframe != "" {
		q.Set("timeframe", timeframe)
	}

	var data models.MarketData
	if err := c.get(ctx, "/market/data", q, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// FetchSignals fetches the current signal list.
func (c *Client) FetchSignals(ctx context.Context) ([]models.Signal, error) {
	var signals []models.Signal
	if err := c.get(ctx, "/api/signals", nil, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// UpdateSignal applies a partial update to a signal upstream and returns the
// updated record.
func (c *Client) UpdateSignal(ctx context.Context, id string, patch models.SignalPatch) (*models.Signal, error) {
	var updated models.Signal
	if err := c.do(ctx, http.MethodPatch, "/api/signals/"+url.PathEscape(id), nil, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// FetchPatterns fetches detected candlestick patterns for a symbol.
func (c *Client) FetchPatterns(ctx context.Context, symbol, timeframe string) ([]models.CandlestickPattern, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	if timeframe != "" {
		q.Set("timeframe", timeframe)
	}

	var patterns []models.CandlestickPattern
	if err := c.get(ctx, "/api/patterns", q, &patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}
