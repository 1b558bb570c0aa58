// Package client is the high-level entry point for applications using the
// dual-ledger system. It wires the chain gateways, confirmation trackers,
// and cross-chain coordinator behind one facade: every submit method
// blocks until its transaction reaches a terminal outcome.
package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dchatlabs/dualledger/service/bridge"
	"github.com/dchatlabs/dualledger/service/chain"
	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/metrics"
)

// Config contains the client's connection and tracking settings.
type Config struct {
	// ChatChainURL and CurrencyChainURL are the chain REST endpoints.
	ChatChainURL     string
	CurrencyChainURL string

	// HTTPClient is shared by both chain clients. Defaults to a client
	// with a 30s timeout.
	HTTPClient *http.Client

	// MaxRetries bounds submission retries for transient failures.
	MaxRetries int

	// ConfirmationThreshold is the confirmation count at which a
	// successful transaction counts as final. Defaults to 6.
	ConfirmationThreshold int64

	// ConfirmationTimeout bounds how long Await methods poll before
	// giving up. Defaults to 5 minutes.
	ConfirmationTimeout time.Duration

	// PollInterval is the delay between receipt polls. Defaults to 2s.
	PollInterval time.Duration

	// Observer, when set, is notified of every finalized receipt.
	Observer ledger.ReceiptObserver

	// Metrics may be nil.
	Metrics *metrics.Metrics

	Logger *slog.Logger
}

// TxResult is the terminal outcome of a single-chain operation.
type TxResult struct {
	TxID    string
	Receipt *ledger.Receipt
}

// Client coordinates submissions and confirmation tracking across the
// chat and currency chains.
type Client struct {
	chat     *chain.ChatClient
	currency *chain.CurrencyClient

	chatTracker     *ledger.Tracker
	currencyTracker *ledger.Tracker
	coordinator     *bridge.Coordinator

	threshold int64
	timeout   time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a client from the given config.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ConfirmationThreshold <= 0 {
		cfg.ConfirmationThreshold = 6
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = ledger.DefaultAwaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = ledger.DefaultPollInterval
	}

	chat := chain.NewChatClient(cfg.ChatChainURL, cfg.HTTPClient, cfg.MaxRetries, cfg.Metrics, cfg.Logger)
	currency := chain.NewCurrencyClient(cfg.CurrencyChainURL, cfg.HTTPClient, cfg.MaxRetries, cfg.Metrics, cfg.Logger)

	chatTracker := ledger.NewTracker(chat, "chat", ledger.NewReceiptCache(), cfg.Metrics, cfg.Logger)
	currencyTracker := ledger.NewTracker(currency, "currency", ledger.NewReceiptCache(), cfg.Metrics, cfg.Logger)
	if cfg.Observer != nil {
		chatTracker.SetObserver(cfg.Observer)
		currencyTracker.SetObserver(cfg.Observer)
	}

	coordinator := bridge.NewCoordinator(chat, currency, chatTracker, currencyTracker, bridge.CoordinatorConfig{
		ConfirmationThreshold: cfg.ConfirmationThreshold,
		ConfirmationTimeout:   cfg.ConfirmationTimeout,
		PollInterval:          cfg.PollInterval,
	}, cfg.Metrics, cfg.Logger)

	return &Client{
		chat:            chat,
		currency:        currency,
		chatTracker:     chatTracker,
		currencyTracker: currencyTracker,
		coordinator:     coordinator,
		threshold:       cfg.ConfirmationThreshold,
		timeout:         cfg.ConfirmationTimeout,
		interval:        cfg.PollInterval,
		logger:          cfg.Logger,
	}
}

// Chat exposes the underlying chat-chain client for raw access.
func (c *Client) Chat() *chain.ChatClient { return c.chat }

// Currency exposes the underlying currency-chain client for raw access.
func (c *Client) Currency() *chain.CurrencyClient { return c.currency }

// ChatTracker exposes the chat-chain confirmation tracker.
func (c *Client) ChatTracker() *ledger.Tracker { return c.chatTracker }

// CurrencyTracker exposes the currency-chain confirmation tracker.
func (c *Client) CurrencyTracker() *ledger.Tracker { return c.currencyTracker }

// awaitOptions builds the tracker options from the client defaults.
func (c *Client) awaitOptions() ledger.AwaitOptions {
	return ledger.AwaitOptions{
		Threshold: c.threshold,
		Timeout:   c.timeout,
		Interval:  c.interval,
	}
}

// await finishes a submission: the error taxonomy of Tracker.Await passes
// through untouched so callers can distinguish failure from timeout.
func (c *Client) await(ctx context.Context, tracker *ledger.Tracker, txID string, err error) (*TxResult, error) {
	if err != nil {
		return nil, err
	}
	receipt, err := tracker.Await(ctx, txID, c.awaitOptions())
	if err != nil {
		return &TxResult{TxID: txID}, err
	}
	return &TxResult{TxID: txID, Receipt: receipt}, nil
}

// RegisterUser registers an identity on the chat chain and waits for
// confirmation.
func (c *Client) RegisterUser(ctx context.Context, userID, username, publicKey string) (*TxResult, error) {
	txID, err := c.chat.RegisterUser(ctx, userID, username, publicKey)
	return c.await(ctx, c.chatTracker, txID, err)
}

// SendDirectMessage records a direct message on the chat chain and waits
// for confirmation. The message id is generated for the caller.
func (c *Client) SendDirectMessage(ctx context.Context, sender, recipient, contentHash string, payloadSize int) (*TxResult, error) {
	messageID := uuid.New().String()
	txID, err := c.chat.SendDirectMessage(ctx, sender, recipient, messageID, contentHash, payloadSize)
	return c.await(ctx, c.chatTracker, txID, err)
}

// CreateChannel creates a channel on the chat chain and waits for
// confirmation. No creation fee is charged; use CreateChannelWithFee for
// the fee-gated path.
func (c *Client) CreateChannel(ctx context.Context, owner, name string) (*TxResult, error) {
	channelID := uuid.New().String()
	txID, err := c.chat.CreateChannel(ctx, owner, channelID, name)
	return c.await(ctx, c.chatTracker, txID, err)
}

// PostToChannel records a channel message on the chat chain and waits for
// confirmation.
func (c *Client) PostToChannel(ctx context.Context, sender, channelID, contentHash string, payloadSize int) (*TxResult, error) {
	messageID := uuid.New().String()
	txID, err := c.chat.PostToChannel(ctx, sender, channelID, messageID, contentHash, payloadSize)
	return c.await(ctx, c.chatTracker, txID, err)
}

// Reputation returns a user's reputation score from the chat chain.
func (c *Client) Reputation(ctx context.Context, userID string) (int64, error) {
	return c.chat.Reputation(ctx, userID)
}

// CreateWallet provisions a wallet on the currency chain. Wallet creation
// is synchronous and needs no confirmation tracking.
func (c *Client) CreateWallet(ctx context.Context, userID string, initialBalance int64) (*chain.Wallet, error) {
	return c.currency.CreateWallet(ctx, userID, initialBalance)
}

// Balance returns a wallet's spendable balance.
func (c *Client) Balance(ctx context.Context, userID string) (int64, error) {
	return c.currency.Balance(ctx, userID)
}

// Transfer moves funds between wallets and waits for confirmation.
func (c *Client) Transfer(ctx context.Context, from, to string, amount int64) (*TxResult, error) {
	txID, err := c.currency.Transfer(ctx, from, to, amount)
	return c.await(ctx, c.currencyTracker, txID, err)
}

// Stake locks funds for the given duration and waits for confirmation.
func (c *Client) Stake(ctx context.Context, userID string, amount int64, lockDuration time.Duration) (*TxResult, error) {
	txID, err := c.currency.Stake(ctx, userID, amount, lockDuration)
	return c.await(ctx, c.currencyTracker, txID, err)
}

// Unstake releases staked funds and waits for confirmation.
func (c *Client) Unstake(ctx context.Context, userID string, amount int64) (*TxResult, error) {
	txID, err := c.currency.Unstake(ctx, userID, amount)
	return c.await(ctx, c.currencyTracker, txID, err)
}

// ClaimRewards claims pending rewards and waits for confirmation.
func (c *Client) ClaimRewards(ctx context.Context, userID string) (*TxResult, error) {
	txID, err := c.currency.ClaimRewards(ctx, userID)
	return c.await(ctx, c.currencyTracker, txID, err)
}

// RegisterUserWithStake runs the two-legged registration: identity on the
// chat chain, stake on the currency chain. The returned record carries the
// terminal cross-chain status; a *bridge.AtomicError reports rollback or
// failure.
func (c *Client) RegisterUserWithStake(ctx context.Context, userID, publicKey string, stakeAmount int64) (*bridge.Transaction, error) {
	return c.coordinator.RegisterUserWithStake(ctx, userID, publicKey, stakeAmount)
}

// CreateChannelWithFee runs the two-legged channel creation: fee on the
// currency chain, channel on the chat chain.
func (c *Client) CreateChannelWithFee(ctx context.Context, owner, channelName string, creationFee int64) (*bridge.Transaction, error) {
	return c.coordinator.CreateChannelWithFee(ctx, owner, channelName, creationFee)
}

// AtomicStatus returns the current record of a cross-chain operation.
func (c *Client) AtomicStatus(ctx context.Context, id string) (*bridge.Transaction, error) {
	return c.coordinator.Status(ctx, id)
}

// AtomicTransactions returns all cross-chain operations for a user.
func (c *Client) AtomicTransactions(ctx context.Context, userID string) ([]*bridge.Transaction, error) {
	return c.coordinator.UserTransactions(ctx, userID)
}

// AwaitAtomic blocks until a cross-chain operation reaches a terminal
// status.
func (c *Client) AwaitAtomic(ctx context.Context, id string) (*bridge.Transaction, error) {
	return c.coordinator.Await(ctx, id, c.timeout, c.interval)
}

// ChatTransactions returns a user's chat-chain transaction history.
func (c *Client) ChatTransactions(ctx context.Context, userID string) ([]*chain.Transaction, error) {
	return c.chat.UserTransactions(ctx, userID)
}

// CurrencyTransactions returns a user's currency-chain transaction history.
func (c *Client) CurrencyTransactions(ctx context.Context, userID string) ([]*chain.Transaction, error) {
	return c.currency.UserTransactions(ctx, userID)
}
