// Package chain implements REST clients for the chat and currency chains.
// Both clients share one HTTP core and implement ledger.Gateway, so the
// confirmation tracker and the cross-chain coordinator can treat "which
// chain" as a capability rather than a concrete type.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/metrics"
)

// restCore is the HTTP plumbing shared by the chat and currency clients:
// request issuance, transient/fatal error classification, submission
// retries with backoff, and metrics.
type restCore struct {
	baseURL    string
	chain      string // metrics/log label: "chat" or "currency"
	httpClient *http.Client
	maxRetries int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func newRestCore(baseURL, chain string, httpClient *http.Client, maxRetries int, m *metrics.Metrics, logger *slog.Logger) restCore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return restCore{
		baseURL:    baseURL,
		chain:      chain,
		httpClient: httpClient,
		maxRetries: maxRetries,
		metrics:    m,
		logger:     logger,
	}
}

// errNotFound marks a 404 so callers can translate it into "still pending"
// on receipt lookups and "no such resource" elsewhere.
type errNotFound struct{ path string }

func (e *errNotFound) Error() string { return fmt.Sprintf("not found: %s", e.path) }

// postJSON issues one POST and decodes the response into out. Connection
// failures and 5xx responses are TransientError; other non-2xx responses
// are RPCError.
func (c *restCore) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

// getJSON issues one GET and decodes the response into out.
func (c *restCore) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, path, out)
}

func (c *restCore) do(req *http.Request, path string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordRPCCall(path, "error", c.chain, duration)
		}
		return &ledger.TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		if c.metrics != nil {
			c.metrics.RecordRPCCall(path, "not_found", c.chain, duration)
		}
		return &errNotFound{path: path}
	case resp.StatusCode >= http.StatusInternalServerError:
		if c.metrics != nil {
			c.metrics.RecordRPCCall(path, "error", c.chain, duration)
		}
		raw, _ := io.ReadAll(resp.Body)
		return &ledger.TransientError{
			Err: fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(raw)),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		if c.metrics != nil {
			c.metrics.RecordRPCCall(path, "rejected", c.chain, duration)
		}
		return &ledger.RPCError{Method: path, Message: parseErrorBody(resp)}
	}

	if c.metrics != nil {
		c.metrics.RecordRPCCall(path, "success", c.chain, duration)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// submit posts an operation body and retries transient failures with
// exponential backoff. Ledger rejections are never retried.
func (c *restCore) submit(ctx context.Context, path string, body any) (*Transaction, error) {
	var lastErr error
	for attempt := range c.maxRetries {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			c.logger.WarnContext(ctx, "retrying submission after transient error",
				"chain", c.chain,
				"path", path,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", lastErr,
			)
			if c.metrics != nil {
				c.metrics.RecordSubmissionRetry(c.chain, "transient")
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		var tx Transaction
		err := c.postJSON(ctx, path, body, &tx)
		if err == nil {
			c.logger.DebugContext(ctx, "transaction submitted",
				"chain", c.chain,
				"path", path,
				"tx_id", tx.ID,
			)
			return &tx, nil
		}
		if !ledger.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("submission failed after %d attempts: %w", c.maxRetries, lastErr)
}

// fetchTransaction looks up a transaction record; 404 comes back as
// (nil, nil) because the chain may not have indexed it yet.
func (c *restCore) fetchTransaction(ctx context.Context, path string) (*Transaction, error) {
	var tx Transaction
	err := c.getJSON(ctx, path, &tx)
	if err != nil {
		var nf *errNotFound
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// parseErrorBody extracts the error string from a JSON error response,
// falling back to the raw body.
func parseErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))
	}
	return errResp.Error
}
