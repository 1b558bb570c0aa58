// Package rpc implements the generic JSON-RPC ledger gateway. It speaks the
// dchat_* submission methods plus eth_getTransactionReceipt and
// eth_blockNumber for chain introspection.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/metrics"
)

const chainLabel = "rpc"

// Client is a JSON-RPC 2.0 client for a dchat ledger node. It implements
// ledger.Gateway. A single Client may be shared across goroutines; each
// call is independent and carries its own request id.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
	metrics    *metrics.Metrics
	nextID     atomic.Int64
}

// NewClient creates a JSON-RPC client. httpClient may be nil, in which case
// a client with a 30s timeout is used. maxRetries bounds submission retries
// for transient failures; metrics may be nil.
func NewClient(rpcURL string, httpClient *http.Client, maxRetries int, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		rpcURL:     rpcURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		logger:     logger,
		metrics:    m,
	}
}

// request is the JSON-RPC 2.0 request envelope.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int64  `json:"id"`
}

// response is the JSON-RPC 2.0 response envelope.
type response struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorBody   `json:"error"`
}

type rpcErrorBody struct {
	Message string `json:"message"`
}

// receiptResult is the wire shape of an eth_getTransactionReceipt result.
// Timestamps come back as RFC 3339 when present.
type receiptResult struct {
	TxID        string `json:"tx_id"`
	TxHash      string `json:"tx_hash"`
	Success     bool   `json:"success"`
	BlockHeight int64  `json:"block_height,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Submit sends a dchat operation to the node and returns the transaction id
// it was accepted under. Transient failures are retried with exponential
// backoff up to the configured attempt budget; a well-formed RPC error is
// surfaced immediately and never retried.
func (c *Client) Submit(ctx context.Context, op string, params any) (string, error) {
	method := "dchat_" + op

	var lastErr error
	for attempt := range c.maxRetries {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			c.logger.WarnContext(ctx, "retrying submission after transient error",
				"method", method,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", lastErr,
			)
			if c.metrics != nil {
				c.metrics.RecordSubmissionRetry(chainLabel, "transient")
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		var result struct {
			TxID string `json:"tx_id"`
		}
		err := c.call(ctx, method, []any{params}, &result)
		if err == nil {
			c.logger.DebugContext(ctx, "transaction submitted",
				"method", method,
				"tx_id", result.TxID,
			)
			return result.TxID, nil
		}
		if !ledger.IsTransient(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("submission failed after %d attempts: %w", c.maxRetries, lastErr)
}

// FetchReceipt looks up the receipt for a transaction id. A null result
// means the node has not indexed the transaction yet and is reported as
// (nil, nil).
func (c *Client) FetchReceipt(ctx context.Context, txID string) (*ledger.Receipt, error) {
	var result json.RawMessage
	if err := c.call(ctx, "eth_getTransactionReceipt", []any{txID}, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var wire receiptResult
	if err := json.Unmarshal(result, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}

	receipt := &ledger.Receipt{
		TxID:        wire.TxID,
		TxHash:      wire.TxHash,
		Success:     wire.Success,
		BlockHeight: wire.BlockHeight,
		BlockHash:   wire.BlockHash,
		Error:       wire.Error,
	}
	if wire.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, wire.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid receipt timestamp %q: %w", wire.Timestamp, err)
		}
		receipt.Timestamp = &ts
	}
	return receipt, nil
}

// BlockNumber returns the node's current block height. The node reports it
// hex-encoded with a 0x prefix.
func (c *Client) BlockNumber(ctx context.Context) (int64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	var height int64
	if _, err := fmt.Sscanf(result, "0x%x", &height); err != nil {
		return 0, fmt.Errorf("invalid block number %q: %w", result, err)
	}
	return height, nil
}

// call performs one JSON-RPC exchange and decodes the result into out.
// Network failures and 5xx responses come back as TransientError; error
// envelopes come back as RPCError.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, "error", chainLabel, duration)
		}
		return &ledger.TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, "error", chainLabel, duration)
		}
		raw, _ := io.ReadAll(resp.Body)
		return &ledger.TransientError{
			Err: fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(raw)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, "error", chainLabel, duration)
		}
		raw, _ := io.ReadAll(resp.Body)
		return &ledger.RPCError{
			Method:  method,
			Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var envelope response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, "error", chainLabel, duration)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Error != nil {
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, "rpc_error", chainLabel, duration)
		}
		return &ledger.RPCError{Method: method, Message: envelope.Error.Message}
	}

	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, "success", chainLabel, duration)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return nil
}
