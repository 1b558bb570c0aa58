// Package temporal runs cross-chain atomic operations as durable
// workflows. Each leg is an activity; Temporal persists progress so a
// crashed worker resumes mid-operation instead of losing track of an
// in-flight registration or channel creation.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/dchatlabs/dualledger/service/chain"
	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/metrics"
)

const (
	// treasuryAccount receives channel creation fees.
	treasuryAccount = "treasury"

	// stakeLockDuration is how long registration stakes are locked.
	stakeLockDuration = 30 * 24 * time.Hour
)

// Error types carried on non-retryable application errors so workflows
// can tell a terminal on-chain failure from a confirmation timeout.
const (
	ErrTypeTransactionFailed   = "TransactionFailed"
	ErrTypeConfirmationTimeout = "ConfirmationTimeout"
)

// ChatChainInterface is the chat-chain surface the activities need.
type ChatChainInterface interface {
	RegisterUser(ctx context.Context, userID, username, publicKey string) (string, error)
	CreateChannel(ctx context.Context, owner, channelID, name string) (string, error)
	RevokeUser(ctx context.Context, userID, reason string) (string, error)
}

// CurrencyChainInterface is the currency-chain surface the activities need.
type CurrencyChainInterface interface {
	CreateWallet(ctx context.Context, userID string, initialBalance int64) (*chain.Wallet, error)
	Stake(ctx context.Context, userID string, amount int64, lockDuration time.Duration) (string, error)
	Transfer(ctx context.Context, from, to string, amount int64) (string, error)
}

// TrackerInterface awaits transaction finality on one chain.
type TrackerInterface interface {
	Await(ctx context.Context, txID string, opts ledger.AwaitOptions) (*ledger.Receipt, error)
}

// Activities holds dependencies for atomic-operation activities.
type Activities struct {
	chat            ChatChainInterface
	currency        CurrencyChainInterface
	chatTracker     TrackerInterface
	currencyTracker TrackerInterface
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// NewActivities creates an Activities instance with the given dependencies.
// metrics may be nil.
func NewActivities(
	chat ChatChainInterface,
	currency CurrencyChainInterface,
	chatTracker TrackerInterface,
	currencyTracker TrackerInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		chat:            chat,
		currency:        currency,
		chatTracker:     chatTracker,
		currencyTracker: currencyTracker,
		metrics:         m,
		logger:          logger,
	}
}

// CreateWalletInput contains parameters for creating a wallet.
type CreateWalletInput struct {
	UserID         string `json:"user_id"`
	InitialBalance int64  `json:"initial_balance"`
}

// CreateWalletResult contains the created wallet's state.
type CreateWalletResult struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// CreateWallet provisions a wallet on the currency chain. Wallet creation
// is synchronous on the chain and needs no confirmation tracking.
func (a *Activities) CreateWallet(ctx context.Context, input CreateWalletInput) (*CreateWalletResult, error) {
	wallet, err := a.currency.CreateWallet(ctx, input.UserID, input.InitialBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet for %s: %w", input.UserID, err)
	}
	a.logger.InfoContext(ctx, "wallet created",
		"user_id", input.UserID,
		"balance", wallet.Balance,
	)
	return &CreateWalletResult{UserID: wallet.UserID, Balance: wallet.Balance}, nil
}

// SubmitResult carries the transaction id a submission was accepted under.
type SubmitResult struct {
	TxID string `json:"tx_id"`
}

// SubmitRegisterUserInput contains parameters for the registration leg.
type SubmitRegisterUserInput struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
}

// SubmitRegisterUser submits the identity leg to the chat chain.
func (a *Activities) SubmitRegisterUser(ctx context.Context, input SubmitRegisterUserInput) (*SubmitResult, error) {
	txID, err := a.chat.RegisterUser(ctx, input.UserID, input.Username, input.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to submit registration for %s: %w", input.UserID, err)
	}
	return &SubmitResult{TxID: txID}, nil
}

// SubmitStakeInput contains parameters for the stake leg.
type SubmitStakeInput struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// SubmitStake submits the stake leg to the currency chain.
func (a *Activities) SubmitStake(ctx context.Context, input SubmitStakeInput) (*SubmitResult, error) {
	txID, err := a.currency.Stake(ctx, input.UserID, input.Amount, stakeLockDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to submit stake for %s: %w", input.UserID, err)
	}
	return &SubmitResult{TxID: txID}, nil
}

// SubmitCreateChannelInput contains parameters for the channel leg.
type SubmitCreateChannelInput struct {
	Owner     string `json:"owner"`
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
}

// SubmitCreateChannel submits the channel creation leg to the chat chain.
func (a *Activities) SubmitCreateChannel(ctx context.Context, input SubmitCreateChannelInput) (*SubmitResult, error) {
	txID, err := a.chat.CreateChannel(ctx, input.Owner, input.ChannelID, input.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to submit channel creation for %s: %w", input.Owner, err)
	}
	return &SubmitResult{TxID: txID}, nil
}

// SubmitFeeTransferInput contains parameters for the fee leg.
type SubmitFeeTransferInput struct {
	From   string `json:"from"`
	Amount int64  `json:"amount"`
}

// SubmitFeeTransfer submits the creation-fee payment to the treasury.
func (a *Activities) SubmitFeeTransfer(ctx context.Context, input SubmitFeeTransferInput) (*SubmitResult, error) {
	txID, err := a.currency.Transfer(ctx, input.From, treasuryAccount, input.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to submit fee transfer for %s: %w", input.From, err)
	}
	return &SubmitResult{TxID: txID}, nil
}

// SubmitRevokeUserInput contains parameters for the registration compensation.
type SubmitRevokeUserInput struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// SubmitRevokeUser submits the compensating revocation to the chat chain.
func (a *Activities) SubmitRevokeUser(ctx context.Context, input SubmitRevokeUserInput) (*SubmitResult, error) {
	txID, err := a.chat.RevokeUser(ctx, input.UserID, input.Reason)
	if err != nil {
		return nil, fmt.Errorf("failed to submit revocation for %s: %w", input.UserID, err)
	}
	return &SubmitResult{TxID: txID}, nil
}

// SubmitRefundInput contains parameters for the fee compensation.
type SubmitRefundInput struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// SubmitRefund submits the compensating refund from the treasury.
func (a *Activities) SubmitRefund(ctx context.Context, input SubmitRefundInput) (*SubmitResult, error) {
	txID, err := a.currency.Transfer(ctx, treasuryAccount, input.To, input.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to submit refund for %s: %w", input.To, err)
	}
	return &SubmitResult{TxID: txID}, nil
}

// AwaitConfirmationInput contains parameters for confirmation tracking.
type AwaitConfirmationInput struct {
	Chain     string        `json:"chain"` // "chat" or "currency"
	TxID      string        `json:"tx_id"`
	Threshold int64         `json:"threshold"`
	Timeout   time.Duration `json:"timeout"`
	Interval  time.Duration `json:"interval"`
}

// AwaitConfirmationResult contains the finalized receipt summary.
type AwaitConfirmationResult struct {
	TxID          string `json:"tx_id"`
	BlockHeight   int64  `json:"block_height"`
	Confirmations int64  `json:"confirmations"`
}

// AwaitConfirmation blocks until the transaction reaches its terminal
// outcome. Terminal on-chain failures and confirmation timeouts come back
// as non-retryable application errors; anything else is left retryable so
// Temporal re-runs the await, which resumes from the receipt cache.
func (a *Activities) AwaitConfirmation(ctx context.Context, input AwaitConfirmationInput) (*AwaitConfirmationResult, error) {
	tracker := a.chatTracker
	if input.Chain == "currency" {
		tracker = a.currencyTracker
	}

	// Heartbeat while waiting so Temporal knows the activity is alive.
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, "awaiting confirmation")
			}
		}
	}()

	receipt, err := tracker.Await(ctx, input.TxID, ledger.AwaitOptions{
		Threshold: input.Threshold,
		Timeout:   input.Timeout,
		Interval:  input.Interval,
	})
	if err != nil {
		var txFailed *ledger.TxFailedError
		if errors.As(err, &txFailed) {
			return nil, temporal.NewNonRetryableApplicationError(
				txFailed.Error(), ErrTypeTransactionFailed, err)
		}
		var timedOut *ledger.TimeoutError
		if errors.As(err, &timedOut) {
			return nil, temporal.NewNonRetryableApplicationError(
				timedOut.Error(), ErrTypeConfirmationTimeout, err)
		}
		return nil, fmt.Errorf("confirmation tracking failed for %s: %w", input.TxID, err)
	}

	return &AwaitConfirmationResult{
		TxID:          receipt.TxID,
		BlockHeight:   receipt.BlockHeight,
		Confirmations: receipt.Confirmations,
	}, nil
}
