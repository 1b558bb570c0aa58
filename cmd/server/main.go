package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dchatlabs/dualledger/service/devnet"
	"github.com/dchatlabs/dualledger/service/metrics"
)

// main runs the devnet: both in-memory chains, the bridge surface, and
// the JSON-RPC endpoint behind a single HTTP listener.
func main() {
	logger := setupLogger(getEnv("LOG_LEVEL", "info"))

	addr := getEnv("SERVER_ADDR", ":8545")
	threshold := getEnvInt64("CONFIRMATION_BLOCKS", 6)
	blockInterval := getEnvDuration("BLOCK_INTERVAL", 0)

	metricsCollector := metrics.NewMetrics(nil)
	server := devnet.New(addr, threshold, metricsCollector, logger)

	// Optional automatic block production. With BLOCK_INTERVAL unset
	// blocks only advance via POST /devnet/advance_block.
	stopBlocks := make(chan struct{})
	if blockInterval > 0 {
		go func() {
			ticker := time.NewTicker(blockInterval)
			defer ticker.Stop()
			for {
				select {
				case <-stopBlocks:
					return
				case <-ticker.C:
					server.AdvanceBlock(1)
				}
			}
		}()
		logger.Info("automatic block production enabled", "interval", blockInterval)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		close(stopBlocks)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down cleanly", "error", err)
			os.Exit(1)
		}
		logger.Info("shutdown complete")
	}
}

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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
