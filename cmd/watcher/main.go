package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sentinelfi/pioneerwatch/internal/analyzer"
	"github.com/sentinelfi/pioneerwatch/internal/cache"
	"github.com/sentinelfi/pioneerwatch/internal/config"
	"github.com/sentinelfi/pioneerwatch/internal/database"
	"github.com/sentinelfi/pioneerwatch/internal/ingest"
	"github.com/sentinelfi/pioneerwatch/internal/logging"
	"github.com/sentinelfi/pioneerwatch/internal/patterns"
	"github.com/sentinelfi/pioneerwatch/internal/registry"
	"github.com/sentinelfi/pioneerwatch/internal/services"
	"github.com/sentinelfi/pioneerwatch/internal/telemetry"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogrusLogger(cfg.LogLevel)
	stdLogger := logging.NewStandardLogger(cfg.LogLevel)
	stdLogger.LogStartup("pioneerwatch", "1.0.0")

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Telemetry shutdown failed")
		}
	}()

	wallets := database.NewWalletRepository(db.Pool)
	pioneerRepo := database.NewPioneerRepository(db.Pool)
	protocolRepo := database.NewProtocolRepository(db.Pool)
	signalRepo := database.NewSignalRepository(db.Pool)

	dedup := cache.NewTransactionDedup(redisClient.Client, cfg.Watcher.HistoryWindow())

	lockTimeout := parseDuration(cfg.Watcher.LockTimeout, 5*time.Second)
	persistTimeout := parseDuration(cfg.Watcher.PersistTimeout, 5*time.Second)
	retry := services.RetryPolicy{
		MaxAttempts: cfg.Watcher.MaxRetries,
		Backoff:     parseDuration(cfg.Watcher.RetryBackoff, 200*time.Millisecond),
	}

	pioneers := services.NewPioneerService(pioneerRepo, wallets, logger, services.PioneerServiceOptions{
		LockTimeout:  lockTimeout,
		WriteTimeout: persistTimeout,
		HistoryCap:   cfg.Watcher.PioneerHistoryCap,
		Retry:        retry,
	})
	protocols := services.NewSharedProtocolService(protocolRepo, logger, services.SharedProtocolOptions{
		LockTimeout:  lockTimeout,
		WriteTimeout: persistTimeout,
		Retry:        retry,
	})
	signals := services.NewSignalGenerator(signalRepo, pioneers, logger, persistTimeout, retry)
	signals.SetNotifyFloor(cfg.Notifications.MinConfidence)
	notifier := services.NewNotificationService(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)

	protoRegistry := registry.NewDefaultProtocolRegistry()
	watcher := services.NewWatcher(
		analyzer.NewClassifier(protoRegistry, logger),
		analyzer.NewPioneerDetector(protoRegistry, protocolRepo),
		patterns.NewMatcher(cfg.Watcher.HistoryWindow(), logger),
		pioneers,
		protocols,
		signals,
		notifier,
		dedup,
		logger,
		cfg.Feed.ChainID,
		cfg.Watcher.EventBufferSize,
	)

	if metrics, err := telemetry.NewPipelineMetrics(telemetry.Meter()); err != nil {
		logger.WithError(err).Warn("Pipeline metrics unavailable")
	} else {
		watcher.SetMetrics(metrics)
	}

	watcher.Start(ctx)

	monitored, err := wallets.ListMonitored(ctx)
	if err != nil {
		log.Fatalf("Failed to load monitored wallets: %v", err)
	}
	for _, addr := range monitored {
		watcher.Track(addr)
	}
	logger.WithField("wallets", len(monitored)).Info("Watcher started")

	feed := ingest.NewFeed(cfg.Feed.WSURL, cfg.Feed.ChainID, watcher, logger)
	feed.Start(ctx)

	<-ctx.Done()
	stdLogger.LogShutdown("pioneerwatch", "signal received")

	feed.Stop()
	watcher.Stop()
	logger.Info("Watcher exited")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
