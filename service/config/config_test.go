package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	os.Setenv("CHAT_CHAIN_URL", "http://localhost:8545")
	os.Setenv("CURRENCY_CHAIN_URL", "http://localhost:8546")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "http://localhost:8545", cfg.ChatChainURL)
	assert.Equal(t, "http://localhost:8546", cfg.CurrencyChainURL)
	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, int64(6), cfg.ConfirmationBlocks)
	assert.Equal(t, 300*time.Second, cfg.ConfirmationTimeout)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.MaxRetries)

	// Bridge and RPC default onto the chat-chain host
	assert.Equal(t, "http://localhost:8545", cfg.BridgeURL)
	assert.Equal(t, "http://localhost:8545/rpc", cfg.RPCURL)

	// The websocket endpoint is optional and empty unless set
	assert.Empty(t, cfg.WSURL)
}

func TestLoad_WebsocketURL(t *testing.T) {
	os.Setenv("CHAT_CHAIN_URL", "http://localhost:8545")
	os.Setenv("CURRENCY_CHAIN_URL", "http://localhost:8546")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("WS_URL", "ws://localhost:8545/ws")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8545/ws", cfg.WSURL)
}

func TestLoad_MissingChainURLs(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "CHAT_CHAIN_URL is required")
	assert.Contains(t, err.Error(), "CURRENCY_CHAIN_URL is required")
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	os.Setenv("CHAT_CHAIN_URL", "http://localhost:8545")
	os.Setenv("CURRENCY_CHAIN_URL", "http://localhost:8546")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_InvalidTimeout(t *testing.T) {
	os.Setenv("CHAT_CHAIN_URL", "http://localhost:8545")
	os.Setenv("CURRENCY_CHAIN_URL", "http://localhost:8546")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("CONFIRMATION_TIMEOUT", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_IntervalGreaterThanTimeout(t *testing.T) {
	os.Setenv("CHAT_CHAIN_URL", "http://localhost:8545")
	os.Setenv("CURRENCY_CHAIN_URL", "http://localhost:8546")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("CONFIRMATION_TIMEOUT", "5s")
	os.Setenv("POLL_INTERVAL", "30s")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "cannot be greater than")
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("CHAT_CHAIN_URL", "http://chat.internal:9000")
	os.Setenv("CURRENCY_CHAIN_URL", "http://currency.internal:9001")
	os.Setenv("BRIDGE_URL", "http://bridge.internal:9002")
	os.Setenv("RPC_URL", "http://rpc.internal:9003/rpc")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("CONFIRMATION_BLOCKS", "12")
	os.Setenv("CONFIRMATION_TIMEOUT", "600s")
	os.Setenv("POLL_INTERVAL", "1s")
	os.Setenv("MAX_RETRIES", "5")
	os.Setenv("NATS_URL", "nats://nats.internal:4222")
	os.Setenv("TEMPORAL_HOST", "temporal.internal:7233")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://bridge.internal:9002", cfg.BridgeURL)
	assert.Equal(t, "http://rpc.internal:9003/rpc", cfg.RPCURL)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(12), cfg.ConfirmationBlocks)
	assert.Equal(t, 600*time.Second, cfg.ConfirmationTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.internal:7233", cfg.TemporalHost)
}

func TestLoad_InvalidConfirmationBlocks(t *testing.T) {
	os.Setenv("CHAT_CHAIN_URL", "http://localhost:8545")
	os.Setenv("CURRENCY_CHAIN_URL", "http://localhost:8546")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("CONFIRMATION_BLOCKS", "six")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid integer")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		ChatChainURL:        "http://localhost:8545",
		CurrencyChainURL:    "http://localhost:8546",
		DatabaseURL:         "postgres://localhost/test",
		TemporalHost:        "localhost:7233",
		TemporalNamespace:   "default",
		TemporalTaskQueue:   "dualledger-atomic-ops",
		ConfirmationBlocks:  6,
		ConfirmationTimeout: 300 * time.Second,
		PollInterval:        2 * time.Second,
	}
	require.NoError(t, cfg.Validate())

	cfg.PollInterval = time.Millisecond
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 100ms")
}

func cleanupEnv() {
	vars := []string{
		"CHAT_CHAIN_URL", "CURRENCY_CHAIN_URL", "BRIDGE_URL", "RPC_URL", "WS_URL",
		"DATABASE_URL", "SERVER_ADDR", "LOG_LEVEL",
		"CONFIRMATION_BLOCKS", "CONFIRMATION_TIMEOUT", "POLL_INTERVAL", "MAX_RETRIES",
		"NATS_URL", "TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
