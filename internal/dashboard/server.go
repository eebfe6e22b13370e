package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketsync/config"
	"marketsync/internal/feed"
	"marketsync/internal/metrics"
	"marketsync/internal/socket"
	"marketsync/internal/store"
	"marketsync/internal/subscription"
	"marketsync/internal/view"
	"marketsync/logger"
	"marketsync/models"
)

// Server hosts the JSON API the dashboard widgets read: connection status,
// render-ready order book depth, trade tape, candle series, tickers and
// signals.
type Server struct {
	cfg        config.DashboardConfig
	store      *store.Store
	reg        *subscription.Registry
	coord      *feed.Coordinator
	log        *logger.Log
	httpServer *http.Server
}

// NewServer constructs the dashboard server when the feature is enabled.
// When disabled the returned server is nil and Run becomes a no-op.
func NewServer(cfg config.DashboardConfig, st *store.Store, reg *subscription.Registry, coord *feed.Coordinator) *Server {
	if !cfg.Enabled {
		return nil
	}
	return &Server{
		cfg:   cfg,
		store: st,
		reg:   reg,
		coord: coord,
		log:   logger.GetLogger(),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	if config.IsProductionLike(config.AppEnvironment()) {
		gin.SetMode(gin.ReleaseMode)
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.buildRouter(),
	}

	log := s.log.WithComponent("dashboard")
	log.WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.GET("/status", s.getStatus)
	api.GET("/orderbook/:symbol", s.getOrderBook)
	api.GET("/depth/:symbol", s.getDepth)
	api.GET("/trades/:symbol", s.getTrades)
	api.GET("/klines/:symbol", s.getKlines)
	api.GET("/ticker/:symbol", s.getTicker)
	api.GET("/signals", s.getSignals)
	api.PATCH("/signals/:id", s.patchSignal)

	return router
}

// getStatus reports connection state, per-topic refcounts, store stats and
// the stream counters. The UI's offline indicator keys off "connected".
func (s *Server) getStatus(c *gin.Context) {
	state := socket.Disconnected
	if s.coord != nil {
		state = s.coord.ConnectionState()
	}
	c.JSON(http.StatusOK, gin.H{
		"state":         state.String(),
		"connected":     state == socket.Connected,
		"subscriptions": s.reg.Refcounts(),
		"store":         s.store.Stats(),
		"metrics":       metrics.Read(),
	})
}

func (s *Server) getOrderBook(c *gin.Context) {
	symbol := c.Param("symbol")
	ob, ok := s.store.OrderBook(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderBook": ob,
		"state":     s.store.BookState(symbol).String(),
	})
}

// getDepth returns the cumulative depth view. Mid price and spread come back
// as "N/A" while either side of the book is empty.
func (s *Server) getDepth(c *gin.Context) {
	symbol := c.Param("symbol")
	ob, ok := s.store.OrderBook(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}

	resp := gin.H{"depth": view.CumulativeDepth(ob)}
	if mid, err := view.MidPrice(ob); err == nil {
		resp["midPrice"] = mid
	} else {
		resp["midPrice"] = "N/A"
	}
	if spread, err := view.Spread(ob); err == nil {
		resp["spread"] = spread
	} else {
		resp["spread"] = "N/A"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getTrades(c *gin.Context) {
	trades := s.store.Trades(c.Param("symbol"))
	if trades == nil {
		trades = []models.Trade{}
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) getKlines(c *gin.Context) {
	interval := c.DefaultQuery("interval", "1m")
	klines := s.store.Klines(c.Param("symbol"), interval)
	c.JSON(http.StatusOK, view.CandleSeries(klines))
}

func (s *Server) getTicker(c *gin.Context) {
	ticker, ok := s.store.Ticker(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ticker for symbol"})
		return
	}
	c.JSON(http.StatusOK, ticker)
}

func (s *Server) getSignals(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Signals())
}

func (s *Server) patchSignal(c *gin.Context) {
	var patch models.SignalPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patch body"})
		return
	}
	sig, ok := s.store.PatchSignal(c.Param("id"), patch)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown signal"})
		return
	}
	c.JSON(http.StatusOK, sig)
}
