package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchatlabs/dualledger/service/ledger"
)

type rpcHandler func(method string, params []any) (any, *string)

// newRPCServer runs a minimal JSON-RPC endpoint backed by fn. fn returns
// the result value, or a non-nil error message for an error envelope.
func newRPCServer(t *testing.T, fn rpcHandler) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string `json:"jsonrpc"`
			Method  string `json:"method"`
			Params  []any  `json:"params"`
			ID      int64  `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "2.0", req.JSONRPC)

		result, errMsg := fn(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if errMsg != nil {
			resp["error"] = map[string]any{"code": -32000, "message": *errMsg}
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestSubmit_PrependsMethodPrefix(t *testing.T) {
	var gotMethod string
	server := newRPCServer(t, func(method string, params []any) (any, *string) {
		gotMethod = method
		return map[string]string{"tx_id": "tx-77"}, nil
	})
	defer server.Close()

	c := NewClient(server.URL, nil, 3, nil, nil)
	txID, err := c.Submit(context.Background(), "register_user", map[string]any{"user_id": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "tx-77", txID)
	assert.Equal(t, "dchat_register_user", gotMethod)
}

func TestSubmit_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	msg := "unknown method"
	server := newRPCServer(t, func(method string, params []any) (any, *string) {
		calls.Add(1)
		return nil, &msg
	})
	defer server.Close()

	c := NewClient(server.URL, nil, 3, nil, nil)
	_, err := c.Submit(context.Background(), "bogus_op", nil)

	var rpcErr *ledger.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "dchat_bogus_op", rpcErr.Method)
	assert.Equal(t, "unknown method", rpcErr.Message)
	assert.Equal(t, int64(1), calls.Load())
}

func TestSubmit_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, 1, nil, nil)
	_, err := c.Submit(context.Background(), "send_direct_message", nil)
	require.Error(t, err)
	assert.True(t, ledger.IsTransient(err))
}

func TestFetchReceipt_NullResultMeansPending(t *testing.T) {
	server := newRPCServer(t, func(method string, params []any) (any, *string) {
		require.Equal(t, "eth_getTransactionReceipt", method)
		return nil, nil
	})
	defer server.Close()

	c := NewClient(server.URL, nil, 3, nil, nil)
	r, err := c.FetchReceipt(context.Background(), "tx-unknown")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestFetchReceipt_DecodesReceipt(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	server := newRPCServer(t, func(method string, params []any) (any, *string) {
		require.Len(t, params, 1)
		assert.Equal(t, "tx-9", params[0])
		return map[string]any{
			"tx_id":        "tx-9",
			"tx_hash":      "0xdeadbeef",
			"success":      true,
			"block_height": 42,
			"block_hash":   "0xblock",
			"timestamp":    ts.Format(time.RFC3339),
		}, nil
	})
	defer server.Close()

	c := NewClient(server.URL, nil, 3, nil, nil)
	r, err := c.FetchReceipt(context.Background(), "tx-9")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "tx-9", r.TxID)
	assert.Equal(t, "0xdeadbeef", r.TxHash)
	assert.True(t, r.Success)
	assert.Equal(t, int64(42), r.BlockHeight)
	require.NotNil(t, r.Timestamp)
	assert.True(t, ts.Equal(*r.Timestamp))
}

func TestFetchReceipt_FailedTransaction(t *testing.T) {
	server := newRPCServer(t, func(method string, params []any) (any, *string) {
		return map[string]any{
			"tx_id":   "tx-10",
			"success": false,
			"error":   "execution reverted",
		}, nil
	})
	defer server.Close()

	c := NewClient(server.URL, nil, 3, nil, nil)
	r, err := c.FetchReceipt(context.Background(), "tx-10")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.Terminal())
	assert.Equal(t, ledger.StatusFailed, r.Status())
}

func TestBlockNumber(t *testing.T) {
	server := newRPCServer(t, func(method string, params []any) (any, *string) {
		require.Equal(t, "eth_blockNumber", method)
		return "0x2a", nil
	})
	defer server.Close()

	c := NewClient(server.URL, nil, 3, nil, nil)
	height, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), height)
}

func TestTrackerOverRPCGateway(t *testing.T) {
	var polls atomic.Int64
	server := newRPCServer(t, func(method string, params []any) (any, *string) {
		if method != "eth_getTransactionReceipt" {
			msg := "unknown method"
			return nil, &msg
		}
		if polls.Add(1) < 3 {
			return nil, nil
		}
		return map[string]any{"tx_id": "tx-1", "success": true}, nil
	})
	defer server.Close()

	c := NewClient(server.URL, nil, 3, nil, nil)
	tracker := ledger.NewTracker(c, "rpc", nil, nil, slog.New(slog.DiscardHandler))

	// Threshold zero: success alone is terminal on the generic path.
	r, err := tracker.Await(context.Background(), "tx-1", ledger.AwaitOptions{
		Timeout:  time.Second,
		Interval: time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, int64(3), polls.Load())
}
