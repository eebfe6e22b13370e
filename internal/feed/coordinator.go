package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketsync/config"
	"marketsync/internal/metrics"
	"marketsync/internal/rest"
	"marketsync/internal/socket"
	"marketsync/internal/store"
	"marketsync/internal/subscription"
	"marketsync/logger"
	"marketsync/models"
)

// Coordinator wires the socket manager, subscription registry, REST fetcher
// and market store together: inbound frames are routed by topic kind into the
// store, first subscribers get their slice primed with a REST snapshot, and
// desynced order books are refreshed from REST, one fetch in flight per
// symbol.
type Coordinator struct {
	config *config.Config
	sock   *socket.Manager
	reg    *subscription.Registry
	rest   *rest.Client
	store  *store.Store

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// NewCoordinator creates the coordinator. The store and socket manager are
// process-wide singletons owned by the caller.
func NewCoordinator(cfg *config.Config, sock *socket.Manager, reg *subscription.Registry, restClient *rest.Client, st *store.Store) *Coordinator {
	return &Coordinator{
		config: cfg,
		sock:   sock,
		reg:    reg,
		rest:   restClient,
		store:  st,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

// Start hooks the dispatcher into the transport, connects it and launches the
// resync worker.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("feed_coordinator")

	c.sock.OnMessage(c.dispatch)
	c.sock.OnReconnect(c.reg.Replay)
	c.sock.OnStateChange(func(state socket.State) {
		log.WithFields(logger.Fields{"state": state.String()}).Info("transport state changed")
	})
	c.sock.Connect(ctx)

	c.wg.Add(1)
	go c.resyncWorker()

	log.Info("feed coordinator started")
	return nil
}

// Stop disconnects the transport and waits for the resync worker.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.sock.Disconnect()
	c.wg.Wait()
	c.log.WithComponent("feed_coordinator").Info("feed coordinator stopped")
}

// dispatch routes one inbound frame into the store, then fans it out to the
// topic's subscribers. Handlers must stay non-blocking: a slow callback here
// delays every other topic.
func (c *Coordinator) dispatch(env models.Envelope) {
	log := c.log.WithComponent("feed_coordinator").WithFields(logger.Fields{"topic": env.Topic})

	topic, err := models.ParseTopic(env.Topic)
	if err != nil {
		metrics.IncFramesDropped()
		log.WithError(err).Warn("dropping frame with unknown topic")
		return
	}

	switch topic.Kind {
	case models.TopicOrderbook:
		c.handleDepth(topic.Symbol, env.Payload, log)
	case models.TopicTrades:
		c.handleTrade(topic.Symbol, env.Payload, log)
	case models.TopicTicker:
		c.handleTicker(topic.Symbol, env.Payload, log)
	case models.TopicSignals:
		c.handleSignal(env.Payload, log)
	}

	c.reg.Dispatch(env)
}

func (c *Coordinator) handleDepth(symbol string, payload []byte, log *logger.Entry) {
	var update models.DepthUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		metrics.IncFramesDropped()
		log.WithError(err).Warn("failed to decode depth update")
		return
	}
	bids, err := models.ParseLevels(update.Bids)
	if err != nil {
		metrics.IncFramesDropped()
		log.WithError(err).Warn("failed to parse bid levels")
		return
	}
	asks, err := models.ParseLevels(update.Asks)
	if err != nil {
		metrics.IncFramesDropped()
		log.WithError(err).Warn("failed to parse ask levels")
		return
	}

	if update.Snapshot() {
		c.store.ApplySnapshot(models.OrderBook{
			Symbol:       symbol,
			LastUpdateID: update.LastUpdateID,
			Bids:         bids,
			Asks:         asks,
			Timestamp:    time.Now().UTC(),
		})
		return
	}
	c.store.ApplyDelta(symbol, update.FirstUpdateID, update.LastUpdateID, bids, asks)
}

func (c *Coordinator) handleTrade(symbol string, payload []byte, log *logger.Entry) {
	var trade models.Trade
	if err := json.Unmarshal(payload, &trade); err != nil {
		metrics.IncFramesDropped()
		log.WithError(err).Warn("failed to decode trade")
		return
	}
	if c.store.AddTrade(symbol, trade) {
		c.store.ApplyTick(symbol, trade.Price, trade.Quantity, trade.Time)
	}
}

func (c *Coordinator) handleTicker(symbol string, payload []byte, log *logger.Entry) {
	var update models.TickerUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		metrics.IncFramesDropped()
		log.WithError(err).Warn("failed to decode ticker")
		return
	}
	price, err := decimal.NewFromString(update.Price)
	if err != nil {
		metrics.IncFramesDropped()
		log.WithError(err).Warn("failed to parse ticker price")
		return
	}
	volume, err := decimal.NewFromString(update.Volume)
	if err != nil {
		volume = decimal.Zero
	}
	change, _ := strconv.ParseFloat(update.Change24h, 64)

	c.store.SetTicker(models.Ticker{
		Symbol:    symbol,
		Price:     price,
		Volume:    volume,
		Change24h: change,
		UpdatedAt: time.Now().UTC(),
	})
}

func (c *Coordinator) handleSignal(payload []byte, log *logger.Entry) {
	var sig models.Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		metrics.IncFramesDropped()
		log.WithError(err).Warn("failed to decode signal")
		return
	}
	c.store.UpsertSignal(sig)
}

// SubscribeOrderBook registers a widget callback on the orderbook topic and
// primes the store with a REST snapshot.
func (c *Coordinator) SubscribeOrderBook(symbol string, cb subscription.Callback) (func(), error) {
	release, err := c.reg.Subscribe(models.OrderbookTopic(symbol), cb)
	if err != nil {
		return nil, err
	}
	c.primeAsync(func(ctx context.Context) error {
		ob, err := c.rest.FetchOrderBookSnapshot(ctx, symbol, c.config.Market.DepthLimit)
		if err != nil {
			return err
		}
		c.store.ApplySnapshot(*ob)
		return nil
	}, "orderbook_snapshot", symbol)
	return release, nil
}

// SubscribeTrades registers a callback on the trades topic and seeds the
// trade tape.
func (c *Coordinator) SubscribeTrades(symbol string, cb subscription.Callback) (func(), error) {
	release, err := c.reg.Subscribe(models.TradesTopic(symbol), cb)
	if err != nil {
		return nil, err
	}
	c.primeAsync(func(ctx context.Context) error {
		trades, err := c.rest.FetchRecentTrades(ctx, symbol, c.config.Market.TradeCapacity)
		if err != nil {
			return err
		}
		c.store.SeedTrades(symbol, trades)
		return nil
	}, "recent_trades", symbol)
	return release, nil
}

// SubscribeKlines seeds the candle series for an interval and registers a
// callback on the trades topic, whose events keep the open candle moving.
func (c *Coordinator) SubscribeKlines(symbol, interval string, cb subscription.Callback) (func(), error) {
	if _, err := config.ParseInterval(interval); err != nil {
		return nil, err
	}
	release, err := c.reg.Subscribe(models.TradesTopic(symbol), cb)
	if err != nil {
		return nil, err
	}
	c.primeAsync(func(ctx context.Context) error {
		klines, err := c.rest.FetchKlines(ctx, symbol, interval, c.config.Market.KlineLimit)
		if err != nil {
			return err
		}
		return c.store.SeedKlines(symbol, interval, klines)
	}, "klines", symbol)
	return release, nil
}

// SubscribeTicker registers a callback on the ticker topic and seeds the 24h
// stats.
func (c *Coordinator) SubscribeTicker(symbol string, cb subscription.Callback) (func(), error) {
	release, err := c.reg.Subscribe(models.TickerTopic(symbol), cb)
	if err != nil {
		return nil, err
	}
	c.primeAsync(func(ctx context.Context) error {
		tickers, err := c.rest.FetchTicker24h(ctx, symbol)
		if err != nil {
			return err
		}
		for _, t := range tickers {
			c.store.SetTicker(t)
		}
		return nil
	}, "ticker24h", symbol)
	return release, nil
}

// SubscribeSignals registers a callback on the global signals topic and
// seeds the signal list.
func (c *Coordinator) SubscribeSignals(cb subscription.Callback) (func(), error) {
	release, err := c.reg.Subscribe(string(models.TopicSignals), cb)
	if err != nil {
		return nil, err
	}
	c.primeAsync(func(ctx context.Context) error {
		signals, err := c.rest.FetchSignals(ctx)
		if err != nil {
			return err
		}
		c.store.SeedSignals(signals)
		return nil
	}, "signals", "")
	return release, nil
}

// primeAsync runs one snapshot fetch off the dispatch path. Failures are
// logged and counted; the widget keeps rendering last-known-good state and
// the user retries by refreshing.
func (c *Coordinator) primeAsync(fetch func(context.Context) error, resource, symbol string) {
	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fetch(ctx); err != nil {
			metrics.IncFetchErrors()
			c.log.WithComponent("feed_coordinator").WithFields(logger.Fields{
				"resource": resource,
				"symbol":   symbol,
			}).WithError(err).Warn("snapshot fetch failed")
		}
	}()
}

// resyncWorker services order book gap recoveries: one snapshot fetch per
// desynced symbol, retried on the next gap if the fetch fails.
func (c *Coordinator) resyncWorker() {
	defer c.wg.Done()
	log := c.log.WithComponent("feed_coordinator").WithFields(logger.Fields{"worker": "resync"})

	for {
		select {
		case <-c.ctx.Done():
			return
		case symbol := <-c.store.ResyncRequests():
			metrics.IncResyncs()
			log.WithFields(logger.Fields{"symbol": symbol}).Info("resyncing order book")

			ob, err := c.rest.FetchOrderBookSnapshot(c.ctx, symbol, c.config.Market.DepthLimit)
			if err != nil {
				metrics.IncFetchErrors()
				c.store.AbandonResync(symbol)
				log.WithFields(logger.Fields{"symbol": symbol}).WithError(err).Warn("resync snapshot fetch failed")
				continue
			}
			c.store.ApplySnapshot(*ob)
			log.WithFields(logger.Fields{
				"symbol":         symbol,
				"last_update_id": ob.LastUpdateID,
			}).Info("order book resynced")
		}
	}
}

// ConnectionState exposes the transport state for status reporting.
func (c *Coordinator) ConnectionState() socket.State {
	return c.sock.State()
}
