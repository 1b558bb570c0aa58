package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dchatlabs/dualledger/service/chain"
	"github.com/dchatlabs/dualledger/service/config"
	"github.com/dchatlabs/dualledger/service/db"
	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/metrics"
	"github.com/dchatlabs/dualledger/service/nats"
	"github.com/dchatlabs/dualledger/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Start metrics HTTP server
	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Connect to Postgres for transaction history
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	// Connect to NATS for receipt event publishing
	publisher, err := nats.NewPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// Initialize chain clients and confirmation trackers. Every receipt
	// the trackers finalize is persisted and published.
	chatClient := chain.NewChatClient(cfg.ChatChainURL, nil, cfg.MaxRetries, metricsCollector, logger)
	currencyClient := chain.NewCurrencyClient(cfg.CurrencyChainURL, nil, cfg.MaxRetries, metricsCollector, logger)
	chatTracker := ledger.NewTracker(chatClient, "chat", ledger.NewReceiptCache(), metricsCollector, logger)
	currencyTracker := ledger.NewTracker(currencyClient, "currency", ledger.NewReceiptCache(), metricsCollector, logger)

	observer := ledger.Observers(
		db.NewReceiptObserver(store, logger),
		nats.NewReceiptObserver(publisher, metricsCollector, logger),
	)
	chatTracker.SetObserver(observer)
	currencyTracker.SetObserver(observer)

	logger.Info("initialized chain clients",
		"chat_chain_url", cfg.ChatChainURL,
		"currency_chain_url", cfg.CurrencyChainURL,
		"confirmation_blocks", cfg.ConfirmationBlocks,
	)

	// Initialize Temporal worker
	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Chat:              chatClient,
		Currency:          currencyClient,
		ChatTracker:       chatTracker,
		CurrencyTracker:   currencyTracker,
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
