package store

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketsync/config"
	"marketsync/internal/metrics"
	"marketsync/logger"
	"marketsync/models"
)

// Store is the normalized market store: the single process-wide holder of
// canonical per-symbol state (order book, trade tape, kline series, ticker)
// plus the global signal list. Incremental deltas from the stream and
// snapshots from REST are merged here with defined semantics; every consumer
// observes the same version of each symbol's state.
type Store struct {
	mu sync.RWMutex

	books   map[string]*book
	trades  map[string]*tape
	klines  map[string]map[string]*series
	tickers map[string]models.Ticker

	signals   []models.Signal
	signalIDs map[string]int

	resyncCh      chan string
	resyncPending map[string]bool

	tradeCap   int
	klineLimit int

	log *logger.Log
}

// NewStore builds an empty store bounded by the market configuration.
func NewStore(cfg config.MarketConfig) *Store {
	return &Store{
		books:         make(map[string]*book),
		trades:        make(map[string]*tape),
		klines:        make(map[string]map[string]*series),
		tickers:       make(map[string]models.Ticker),
		signalIDs:     make(map[string]int),
		resyncCh:      make(chan string, cfg.ResyncBuffer),
		resyncPending: make(map[string]bool),
		tradeCap:      cfg.TradeCapacity,
		klineLimit:    cfg.KlineLimit,
		log:           logger.GetLogger(),
	}
}

// ResyncRequests exposes the symbols whose books detected a sequence gap and
// need a fresh REST snapshot. Consumed by the feed coordinator.
func (s *Store) ResyncRequests() <-chan string {
	return s.resyncCh
}

// ApplySnapshot replaces a symbol's book wholesale and clears any pending
// resync for it. Always moves the book to SnapshotLoaded.
func (s *Store) ApplySnapshot(ob models.OrderBook) {
	s.mu.Lock()
	b, ok := s.books[ob.Symbol]
	if !ok {
		b = newBook(ob.Symbol)
		s.books[ob.Symbol] = b
	}
	b.applySnapshot(ob)
	s.resyncPending[ob.Symbol] = false
	s.mu.Unlock()

	s.log.WithComponent("market_store").WithFields(logger.Fields{
		"symbol":         ob.Symbol,
		"last_update_id": ob.LastUpdateID,
		"bids":           len(ob.Bids),
		"asks":           len(ob.Asks),
	}).Debug("order book snapshot applied")
}

// ApplyDelta merges an incremental book update. On a sequence gap the book
// transitions to Desynced and exactly one resync request is emitted; further
// deltas for that symbol are discarded until the fresh snapshot lands.
func (s *Store) ApplyDelta(symbol string, firstID, lastID int64, bids, asks []models.Level) DeltaOutcome {
	s.mu.Lock()
	b, ok := s.books[symbol]
	if !ok {
		b = newBook(symbol)
		s.books[symbol] = b
	}
	outcome := b.applyDelta(firstID, lastID, bids, asks)

	requestResync := false
	if outcome == DeltaGap || outcome == DeltaDiscarded {
		if !s.resyncPending[symbol] {
			s.resyncPending[symbol] = true
			requestResync = true
		}
	}
	s.mu.Unlock()

	switch outcome {
	case DeltaApplied:
		metrics.IncDeltasApplied()
	case DeltaDuplicate:
		metrics.IncDeltasDuplicate()
	case DeltaGap:
		metrics.IncDesyncs()
		s.log.WithComponent("market_store").WithFields(logger.Fields{
			"symbol":          symbol,
			"first_update_id": firstID,
			"last_update_id":  lastID,
		}).Warn("order book sequence gap detected")
	}

	if requestResync {
		select {
		case s.resyncCh <- symbol:
		default:
			// channel full; drop the pending flag so a later delta retries
			s.mu.Lock()
			s.resyncPending[symbol] = false
			s.mu.Unlock()
			s.log.WithComponent("market_store").WithFields(logger.Fields{"symbol": symbol}).Warn("resync channel full, dropping request")
		}
	}
	return outcome
}

// AbandonResync clears the pending flag after a failed snapshot fetch so the
// next delta can trigger a new attempt. The book stays desynced.
func (s *Store) AbandonResync(symbol string) {
	s.mu.Lock()
	s.resyncPending[symbol] = false
	s.mu.Unlock()
}

// OrderBook returns the sorted book for a symbol.
func (s *Store) OrderBook(symbol string) (models.OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[symbol]
	if !ok {
		return models.OrderBook{}, false
	}
	return b.snapshot(), true
}

// BookState reports the sync lifecycle state for a symbol's book.
func (s *Store) BookState(symbol string) BookState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.books[symbol]; ok {
		return b.state
	}
	return BookEmpty
}

// SeedTrades loads the initial trade window for a symbol, newest first.
func (s *Store) SeedTrades(symbol string, trades []models.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[symbol]
	if !ok {
		t = newTape(s.tradeCap)
		s.trades[symbol] = t
	}
	t.seed(trades)
}

// AddTrade appends a streamed trade unless its id is already in the window.
func (s *Store) AddTrade(symbol string, trade models.Trade) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[symbol]
	if !ok {
		t = newTape(s.tradeCap)
		s.trades[symbol] = t
	}
	return t.add(trade)
}

// Trades returns the bounded trade window for a symbol, newest first.
func (s *Store) Trades(symbol string) []models.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.trades[symbol]; ok {
		return t.snapshot()
	}
	return nil
}

// SeedKlines loads the initial candle series for a (symbol, interval) pair.
func (s *Store) SeedKlines(symbol, interval string, klines []models.Kline) error {
	dur, err := config.ParseInterval(interval)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seriesLocked(symbol, interval, dur).seed(klines)
	return nil
}

// ApplyTick folds a trade into every registered candle series for the
// symbol. Series are created by SeedKlines; a tick for an unseeded symbol is
// a no-op.
func (s *Store) ApplyTick(symbol string, price, qty decimal.Decimal, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ser := range s.klines[symbol] {
		ser.tick(price, qty, ts)
	}
}

// Klines returns the candle series for a (symbol, interval) pair, ascending
// by open time.
func (s *Store) Klines(symbol, interval string) []models.Kline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byInterval, ok := s.klines[symbol]; ok {
		if ser, ok := byInterval[interval]; ok {
			return ser.snapshot()
		}
	}
	return nil
}

func (s *Store) seriesLocked(symbol, interval string, dur time.Duration) *series {
	byInterval, ok := s.klines[symbol]
	if !ok {
		byInterval = make(map[string]*series)
		s.klines[symbol] = byInterval
	}
	ser, ok := byInterval[interval]
	if !ok {
		ser = newSeries(dur, s.klineLimit)
		byInterval[interval] = ser
	}
	return ser
}

// SetTicker stores the latest 24h ticker for a symbol.
func (s *Store) SetTicker(t models.Ticker) {
	s.mu.Lock()
	s.tickers[t.Symbol] = t
	s.mu.Unlock()
}

// Ticker returns the last ticker seen for a symbol.
func (s *Store) Ticker(symbol string) (models.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickers[symbol]
	return t, ok
}

// SeedSignals replaces the signal list from a REST fetch.
func (s *Store) SeedSignals(signals []models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals[:0], signals...)
	s.signalIDs = make(map[string]int, len(signals))
	for i, sig := range s.signals {
		s.signalIDs[sig.ID] = i
	}
}

// UpsertSignal prepends a newly streamed signal, or replaces the stored copy
// when the id is already known.
func (s *Store) UpsertSignal(sig models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.signalIDs[sig.ID]; ok {
		s.signals[i] = sig
		return
	}
	s.signals = append([]models.Signal{sig}, s.signals...)
	s.signalIDs = make(map[string]int, len(s.signals))
	for i, existing := range s.signals {
		s.signalIDs[existing.ID] = i
	}
}

// PatchSignal applies a partial update to a stored signal.
func (s *Store) PatchSignal(id string, patch models.SignalPatch) (models.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.signalIDs[id]
	if !ok {
		return models.Signal{}, false
	}
	if patch.Favorite != nil {
		s.signals[i].Favorite = *patch.Favorite
	}
	if patch.Notified != nil {
		s.signals[i].Notified = *patch.Notified
	}
	return s.signals[i], true
}

// Signals returns a copy of the signal list, newest first.
func (s *Store) Signals() []models.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Signal, len(s.signals))
	copy(out, s.signals)
	return out
}

// Symbols lists every symbol with any tracked state, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	set := make(map[string]struct{})
	for sym := range s.books {
		set[sym] = struct{}{}
	}
	for sym := range s.trades {
		set[sym] = struct{}{}
	}
	for sym := range s.tickers {
		set[sym] = struct{}{}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Stats summarises store contents for the status endpoint.
type Stats struct {
	Books    int               `json:"books"`
	Desynced int               `json:"desynced"`
	Tapes    int               `json:"tapes"`
	Signals  int               `json:"signals"`
	States   map[string]string `json:"states"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{
		Books:   len(s.books),
		Tapes:   len(s.trades),
		Signals: len(s.signals),
		States:  make(map[string]string, len(s.books)),
	}
	for sym, b := range s.books {
		stats.States[sym] = b.state.String()
		if b.state == BookDesynced {
			stats.Desynced++
		}
	}
	return stats
}
