package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Chain endpoints
	ChatChainURL     string
	CurrencyChainURL string
	BridgeURL        string
	RPCURL           string

	// WSURL is the optional websocket endpoint for streaming receipt
	// delivery. Accepted and carried for clients that subscribe over
	// websockets; nothing in this repo dials it.
	WSURL string

	// Confirmation tracking
	ConfirmationBlocks  int64
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	MaxRetries          int

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is missing
// or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Chain endpoints
	cfg.ChatChainURL = os.Getenv("CHAT_CHAIN_URL")
	if cfg.ChatChainURL == "" {
		errs = append(errs, fmt.Errorf("CHAT_CHAIN_URL is required"))
	}

	cfg.CurrencyChainURL = os.Getenv("CURRENCY_CHAIN_URL")
	if cfg.CurrencyChainURL == "" {
		errs = append(errs, fmt.Errorf("CURRENCY_CHAIN_URL is required"))
	}

	// The bridge and RPC surfaces default to the chat-chain host, which is
	// where the devnet serves them.
	cfg.BridgeURL = getEnvOrDefault("BRIDGE_URL", cfg.ChatChainURL)
	cfg.RPCURL = getEnvOrDefault("RPC_URL", cfg.ChatChainURL+"/rpc")
	cfg.WSURL = os.Getenv("WS_URL")

	// Confirmation tracking
	blocks, err := parseInt("CONFIRMATION_BLOCKS", "6")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmationBlocks = blocks
	}

	timeout, err := parseDuration("CONFIRMATION_TIMEOUT", "300s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmationTimeout = timeout
	}

	interval, err := parseDuration("POLL_INTERVAL", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollInterval = interval
	}

	retries, err := parseInt("MAX_RETRIES", "3")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MaxRetries = int(retries)
	}

	// Validate tracking parameters
	if cfg.ConfirmationBlocks < 0 {
		errs = append(errs, fmt.Errorf("CONFIRMATION_BLOCKS cannot be negative"))
	}
	if cfg.PollInterval > cfg.ConfirmationTimeout {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL (%v) cannot be greater than CONFIRMATION_TIMEOUT (%v)",
			cfg.PollInterval, cfg.ConfirmationTimeout))
	}

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "dualledger-atomic-ops")

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ChatChainURL == "" {
		errs = append(errs, fmt.Errorf("ChatChainURL is required"))
	}

	if c.CurrencyChainURL == "" {
		errs = append(errs, fmt.Errorf("CurrencyChainURL is required"))
	}

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.ConfirmationBlocks < 0 {
		errs = append(errs, fmt.Errorf("ConfirmationBlocks cannot be negative"))
	}

	if c.PollInterval > c.ConfirmationTimeout {
		errs = append(errs, fmt.Errorf("PollInterval cannot be greater than ConfirmationTimeout"))
	}

	if c.PollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 100ms"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key, defaultValue string) (int64, error) {
	value := getEnvOrDefault(key, defaultValue)
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return n, nil
}
