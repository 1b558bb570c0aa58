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

// ChatClient talks to the chat chain: identity, messaging, and channel
// operations. It implements ledger.Gateway; receipt lookups map the chain's
// transaction record onto the common receipt shape, so the chat chain is a
// confirmation-count ledger from the tracker's point of view.
type ChatClient struct {
	restCore
}

// NewChatClient creates a chat-chain client for the given base URL.
func NewChatClient(baseURL string, httpClient *http.Client, maxRetries int, m *metrics.Metrics, logger *slog.Logger) *ChatClient {
	return &ChatClient{
		restCore: newRestCore(baseURL, "chat", httpClient, maxRetries, m, logger),
	}
}

// Submit sends one chat-chain operation. The op names the endpoint:
// register_user, send_message, create_channel, post_message, revoke_user.
func (c *ChatClient) Submit(ctx context.Context, op string, params any) (string, error) {
	tx, err := c.submit(ctx, "/chat/"+op, params)
	if err != nil {
		return "", err
	}
	return tx.ID, nil
}

// FetchReceipt returns the current receipt for a chat-chain transaction,
// or (nil, nil) while the chain has not indexed it.
func (c *ChatClient) FetchReceipt(ctx context.Context, txID string) (*ledger.Receipt, error) {
	tx, err := c.fetchTransaction(ctx, "/chat/transaction/"+url.PathEscape(txID))
	if err != nil || tx == nil {
		return nil, err
	}
	return receiptFromTransaction(tx), nil
}

// RegisterUser submits a user-registration transaction and returns its id.
func (c *ChatClient) RegisterUser(ctx context.Context, userID, username, publicKey string) (string, error) {
	return c.Submit(ctx, "register_user", map[string]any{
		"user_id":    userID,
		"username":   username,
		"public_key": publicKey,
		"timestamp":  time.Now().Unix(),
	})
}

// SendDirectMessage submits a direct-message transaction.
func (c *ChatClient) SendDirectMessage(ctx context.Context, sender, recipient, messageID, contentHash string, payloadSize int) (string, error) {
	return c.Submit(ctx, "send_message", map[string]any{
		"sender":       sender,
		"recipient":    recipient,
		"message_id":   messageID,
		"content_hash": contentHash,
		"payload_size": payloadSize,
		"timestamp":    time.Now().Unix(),
	})
}

// CreateChannel submits a channel-creation transaction.
func (c *ChatClient) CreateChannel(ctx context.Context, owner, channelID, name string) (string, error) {
	return c.Submit(ctx, "create_channel", map[string]any{
		"owner":      owner,
		"channel_id": channelID,
		"name":       name,
		"timestamp":  time.Now().Unix(),
	})
}

// PostToChannel submits a channel-post transaction.
func (c *ChatClient) PostToChannel(ctx context.Context, sender, channelID, messageID, contentHash string, payloadSize int) (string, error) {
	return c.Submit(ctx, "post_message", map[string]any{
		"sender":       sender,
		"channel_id":   channelID,
		"message_id":   messageID,
		"content_hash": contentHash,
		"payload_size": payloadSize,
		"timestamp":    time.Now().Unix(),
	})
}

// RevokeUser submits the compensating transaction for a registration,
// releasing the identity again. Used by the cross-chain coordinator when
// the paired currency leg fails.
func (c *ChatClient) RevokeUser(ctx context.Context, userID, reason string) (string, error) {
	return c.Submit(ctx, "revoke_user", map[string]any{
		"user_id":   userID,
		"reason":    reason,
		"timestamp": time.Now().Unix(),
	})
}

// Reputation returns a user's reputation score.
func (c *ChatClient) Reputation(ctx context.Context, userID string) (int64, error) {
	var out struct {
		Reputation int64 `json:"reputation"`
	}
	if err := c.getJSON(ctx, "/chat/reputation/"+url.PathEscape(userID), &out); err != nil {
		return 0, fmt.Errorf("failed to get reputation for %s: %w", userID, err)
	}
	return out.Reputation, nil
}

// Transaction looks up one chat-chain transaction by id. Returns
// (nil, nil) when the chain does not know the id.
func (c *ChatClient) Transaction(ctx context.Context, txID string) (*Transaction, error) {
	return c.fetchTransaction(ctx, "/chat/transaction/"+url.PathEscape(txID))
}

// UserTransactions returns a user's chat-chain transaction history.
func (c *ChatClient) UserTransactions(ctx context.Context, userID string) ([]*Transaction, error) {
	var out []*Transaction
	if err := c.getJSON(ctx, "/chat/transactions/"+url.PathEscape(userID), &out); err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", userID, err)
	}
	return out, nil
}
