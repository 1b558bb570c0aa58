package chain

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/metrics"
)

// CurrencyClient talks to the currency chain: wallets, transfers, staking,
// and rewards. It implements ledger.Gateway with the same
// confirmation-count receipt policy as the chat chain.
type CurrencyClient struct {
	restCore
}

// NewCurrencyClient creates a currency-chain client for the given base URL.
func NewCurrencyClient(baseURL string, httpClient *http.Client, maxRetries int, m *metrics.Metrics, logger *slog.Logger) *CurrencyClient {
	return &CurrencyClient{
		restCore: newRestCore(baseURL, "currency", httpClient, maxRetries, m, logger),
	}
}

// Submit sends one currency-chain operation. The op names the endpoint:
// transfer, stake, unstake, claim_rewards.
func (c *CurrencyClient) Submit(ctx context.Context, op string, params any) (string, error) {
	tx, err := c.submit(ctx, "/currency/"+op, params)
	if err != nil {
		return "", err
	}
	return tx.ID, nil
}

// FetchReceipt returns the current receipt for a currency-chain
// transaction, or (nil, nil) while the chain has not indexed it.
func (c *CurrencyClient) FetchReceipt(ctx context.Context, txID string) (*ledger.Receipt, error) {
	tx, err := c.fetchTransaction(ctx, "/currency/transaction/"+url.PathEscape(txID))
	if err != nil || tx == nil {
		return nil, err
	}
	return receiptFromTransaction(tx), nil
}

// CreateWallet creates a wallet with an initial balance. Wallet creation
// is synchronous on the currency chain and returns the wallet record, not
// a transaction.
func (c *CurrencyClient) CreateWallet(ctx context.Context, userID string, initialBalance int64) (*Wallet, error) {
	var out struct {
		Wallet Wallet `json:"wallet"`
	}
	err := c.postJSON(ctx, "/currency/create_wallet", map[string]any{
		"user_id":         userID,
		"initial_balance": initialBalance,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet for %s: %w", userID, err)
	}
	return &out.Wallet, nil
}

// GetWallet returns the wallet record for a user.
func (c *CurrencyClient) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	var w Wallet
	if err := c.getJSON(ctx, "/currency/wallet/"+url.PathEscape(userID), &w); err != nil {
		return nil, fmt.Errorf("failed to get wallet for %s: %w", userID, err)
	}
	return &w, nil
}

// Balance returns a user's liquid balance.
func (c *CurrencyClient) Balance(ctx context.Context, userID string) (int64, error) {
	w, err := c.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// Transfer submits a token transfer and returns its transaction id.
func (c *CurrencyClient) Transfer(ctx context.Context, from, to string, amount int64) (string, error) {
	return c.Submit(ctx, "transfer", map[string]any{
		"from":      from,
		"to":        to,
		"amount":    amount,
		"timestamp": time.Now().Unix(),
	})
}

// Stake locks tokens for the given duration and returns the transaction id.
func (c *CurrencyClient) Stake(ctx context.Context, userID string, amount int64, lockDuration time.Duration) (string, error) {
	return c.Submit(ctx, "stake", map[string]any{
		"user_id":               userID,
		"amount":                amount,
		"lock_duration_seconds": int64(lockDuration.Seconds()),
		"timestamp":             time.Now().Unix(),
	})
}

// Unstake releases previously staked tokens. Used both directly and as the
// compensating transaction for a stake leg.
func (c *CurrencyClient) Unstake(ctx context.Context, userID string, amount int64) (string, error) {
	return c.Submit(ctx, "unstake", map[string]any{
		"user_id":   userID,
		"amount":    amount,
		"timestamp": time.Now().Unix(),
	})
}

// ClaimRewards submits a rewards claim and returns the transaction id.
func (c *CurrencyClient) ClaimRewards(ctx context.Context, userID string) (string, error) {
	return c.Submit(ctx, "claim_rewards", map[string]any{
		"user_id":   userID,
		"timestamp": time.Now().Unix(),
	})
}

// Transaction looks up one currency-chain transaction by id. Returns
// (nil, nil) when the chain does not know the id.
func (c *CurrencyClient) Transaction(ctx context.Context, txID string) (*Transaction, error) {
	return c.fetchTransaction(ctx, "/currency/transaction/"+url.PathEscape(txID))
}

// UserTransactions returns a user's currency-chain transaction history.
func (c *CurrencyClient) UserTransactions(ctx context.Context, userID string) ([]*Transaction, error) {
	var out []*Transaction
	if err := c.getJSON(ctx, "/currency/transactions/"+url.PathEscape(userID), &out); err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", userID, err)
	}
	return out, nil
}
