package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/metrics"
)

// Client is the HTTP client for the bridge service, which runs the
// two-phase protocol server-side. The client only submits the operation
// and polls the bridge-reported status; compensation happens in the
// bridge.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a bridge service client. httpClient may be nil, in
// which case a client with a 30s timeout is used.
func NewClient(baseURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// RegisterUserWithStake asks the bridge to register an identity on the chat
// chain and lock a stake on the currency chain atomically. The returned
// record is usually still pending; follow up with AwaitAtomicCompletion.
func (c *Client) RegisterUserWithStake(ctx context.Context, userID, publicKey string, stakeAmount int64) (*Transaction, error) {
	return c.post(ctx, "/register_user_with_stake", map[string]any{
		"user_id":      userID,
		"public_key":   publicKey,
		"stake_amount": stakeAmount,
	})
}

// CreateChannelWithFee asks the bridge to create a channel on the chat
// chain and collect the creation fee on the currency chain atomically.
func (c *Client) CreateChannelWithFee(ctx context.Context, owner, channelName string, creationFee int64) (*Transaction, error) {
	return c.post(ctx, "/create_channel_with_fee", map[string]any{
		"owner":        owner,
		"channel_name": channelName,
		"creation_fee": creationFee,
	})
}

// Status returns the bridge-reported record for a cross-chain id, or
// (nil, nil) when the bridge does not know the id yet.
func (c *Client) Status(ctx context.Context, id string) (*Transaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.doRequest(req, "/status")
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	defer resp.Body.Close()

	var tx Transaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &tx, nil
}

// UserTransactions returns all cross-chain transactions the bridge has
// recorded for a user.
func (c *Client) UserTransactions(ctx context.Context, userID string) ([]*Transaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user_transactions/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.doRequest(req, "/user_transactions")
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	defer resp.Body.Close()

	var txs []*Transaction
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return txs, nil
}

// Await polls the bridge until the transaction reaches a terminal status.
func (c *Client) Await(ctx context.Context, id string, timeout, interval time.Duration) (*Transaction, error) {
	return AwaitAtomicCompletion(ctx, c, id, timeout, interval)
}

// post submits an operation body and decodes the returned record.
func (c *Client) post(ctx context.Context, path string, body any) (*Transaction, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doRequest(req, path)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &ledger.RPCError{Method: path, Message: "not found"}
	}
	defer resp.Body.Close()

	var tx Transaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	c.logger.DebugContext(ctx, "bridge operation submitted",
		"path", path,
		"bridge_tx_id", tx.ID,
		"status", tx.Status,
	)
	return &tx, nil
}

// doRequest issues the request and classifies the outcome: transient for
// connection failures and 5xx, nil response for 404, RPCError for other
// rejections.
func (c *Client) doRequest(req *http.Request, label string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordRPCCall(label, "error", "bridge", duration)
		}
		return nil, &ledger.TransientError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		if c.metrics != nil {
			c.metrics.RecordRPCCall(label, "not_found", "bridge", duration)
		}
		resp.Body.Close()
		return nil, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		if c.metrics != nil {
			c.metrics.RecordRPCCall(label, "error", "bridge", duration)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &ledger.TransientError{
			Err: fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, string(raw)),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		if c.metrics != nil {
			c.metrics.RecordRPCCall(label, "rejected", "bridge", duration)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &ledger.RPCError{
			Method:  label,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	if c.metrics != nil {
		c.metrics.RecordRPCCall(label, "success", "bridge", duration)
	}
	return resp, nil
}
