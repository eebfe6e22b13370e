package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketsync/config"
	"marketsync/internal/dashboard"
	"marketsync/internal/feed"
	"marketsync/internal/metrics"
	"marketsync/internal/recorder"
	"marketsync/internal/rest"
	"marketsync/internal/socket"
	"marketsync/internal/store"
	"marketsync/internal/subscription"
	"marketsync/logger"
	"marketsync/models"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Marketsync.Name,
		"version": cfg.Marketsync.Version,
		"env":     config.AppEnvironment(),
	}).Info("starting marketsync")

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.StartReporter(ctx, log, 30*time.Second)

	marketStore := store.NewStore(cfg.Market)
	sock := socket.NewManager(cfg.Stream)
	registry := subscription.NewRegistry(sock)
	restClient := rest.NewClient(cfg.Rest)

	coordinator := feed.NewCoordinator(cfg, sock, registry, restClient, marketStore)
	if err := coordinator.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start feed coordinator")
		os.Exit(1)
	}

	// Keep the configured symbols live so the dashboard always has fresh
	// books, tapes and candles to serve.
	releases := make([]func(), 0, len(cfg.Market.Symbols)*3)
	noop := func(models.Envelope) {}
	for _, symbol := range cfg.Market.Symbols {
		if release, err := coordinator.SubscribeOrderBook(symbol, noop); err == nil {
			releases = append(releases, release)
		} else {
			log.WithFields(logger.Fields{"symbol": symbol}).WithError(err).Warn("orderbook subscription failed")
		}
		if release, err := coordinator.SubscribeTrades(symbol, noop); err == nil {
			releases = append(releases, release)
		} else {
			log.WithFields(logger.Fields{"symbol": symbol}).WithError(err).Warn("trades subscription failed")
		}
		if release, err := coordinator.SubscribeTicker(symbol, noop); err == nil {
			releases = append(releases, release)
		} else {
			log.WithFields(logger.Fields{"symbol": symbol}).WithError(err).Warn("ticker subscription failed")
		}
		for _, interval := range cfg.Market.Intervals {
			if release, err := coordinator.SubscribeKlines(symbol, interval, noop); err == nil {
				releases = append(releases, release)
			} else {
				log.WithFields(logger.Fields{"symbol": symbol, "interval": interval}).WithError(err).Warn("klines subscription failed")
			}
		}
	}
	if release, err := coordinator.SubscribeSignals(noop); err == nil {
		releases = append(releases, release)
	} else {
		log.WithError(err).Warn("signals subscription failed")
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.NewRecorder(cfg, marketStore)
		if err != nil {
			log.WithError(err).Error("failed to create recorder")
			os.Exit(1)
		}
		if err := rec.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start recorder")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("recorder disabled; order book samples will not be persisted")
	}

	dash := dashboard.NewServer(cfg.Dashboard, marketStore, registry, coordinator)
	if dash != nil {
		go func() {
			if err := dash.Run(ctx); err != nil {
				log.WithError(err).Error("dashboard server failed")
			}
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	for _, release := range releases {
		release()
	}

	if rec != nil {
		log.Info("stopping recorder")
		rec.Stop()
	}

	log.Info("stopping feed coordinator")
	coordinator.Stop()

	log.Info("marketsync stopped")
}
