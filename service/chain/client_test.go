package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchatlabs/dualledger/service/ledger"
)

func TestChatClient_SubmitRegisterUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/register_user", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["user_id"])
		assert.Equal(t, "pk-alice", body["public_key"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Transaction{
			ID:     "tx-abc",
			TxType: ChatTxRegisterUser,
			Sender: "alice",
			Status: TxStatusPending,
		})
	}))
	defer server.Close()

	c := NewChatClient(server.URL, nil, 3, nil, nil)
	txID, err := c.RegisterUser(context.Background(), "alice", "alice", "pk-alice")
	require.NoError(t, err)
	assert.Equal(t, "tx-abc", txID)
}

func TestChatClient_SubmitRejectedNotRetried(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "user already registered"})
	}))
	defer server.Close()

	c := NewChatClient(server.URL, nil, 3, nil, nil)
	_, err := c.RegisterUser(context.Background(), "alice", "alice", "pk-alice")

	var rpcErr *ledger.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "user already registered")
	assert.Equal(t, int64(1), requests.Load())
}

func TestChatClient_SubmitServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	// A single attempt makes the transient classification visible without
	// sitting through the retry backoff.
	c := NewChatClient(server.URL, nil, 1, nil, nil)
	_, err := c.SendDirectMessage(context.Background(), "alice", "bob", "msg-1", "hash", 128)
	require.Error(t, err)
	assert.True(t, ledger.IsTransient(err))
}

func TestChatClient_FetchReceiptNotIndexed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewChatClient(server.URL, nil, 3, nil, nil)
	r, err := c.FetchReceipt(context.Background(), "tx-unknown")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestChatClient_FetchReceiptMapsStatuses(t *testing.T) {
	transactions := map[string]Transaction{
		"tx-pending":   {ID: "tx-pending", Status: TxStatusPending, Confirmations: 0},
		"tx-confirmed": {ID: "tx-confirmed", Status: TxStatusConfirmed, Confirmations: 4, BlockHeight: 12},
		"tx-failed":    {ID: "tx-failed", Status: TxStatusFailed, Error: "identity revoked"},
		"tx-bare-fail": {ID: "tx-bare-fail", Status: TxStatusFailed},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/chat/transaction/"):]
		tx, ok := transactions[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(tx)
	}))
	defer server.Close()

	c := NewChatClient(server.URL, nil, 3, nil, nil)
	ctx := context.Background()

	r, err := c.FetchReceipt(ctx, "tx-pending")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.False(t, r.Terminal())

	r, err = c.FetchReceipt(ctx, "tx-confirmed")
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, int64(4), r.Confirmations)
	assert.Equal(t, int64(12), r.BlockHeight)

	r, err = c.FetchReceipt(ctx, "tx-failed")
	require.NoError(t, err)
	assert.Equal(t, "identity revoked", r.Error)
	assert.False(t, r.Success)

	// A failed transaction with no reason still yields a terminal receipt.
	r, err = c.FetchReceipt(ctx, "tx-bare-fail")
	require.NoError(t, err)
	assert.True(t, r.Terminal())
	assert.NotEmpty(t, r.Error)
}

func TestCurrencyClient_CreateWallet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/currency/create_wallet", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"wallet": Wallet{UserID: "bob", Balance: 1000},
		})
	}))
	defer server.Close()

	c := NewCurrencyClient(server.URL, nil, 3, nil, nil)
	w, err := c.CreateWallet(context.Background(), "bob", 1000)
	require.NoError(t, err)
	assert.Equal(t, "bob", w.UserID)
	assert.Equal(t, int64(1000), w.Balance)
}

func TestCurrencyClient_StakeParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/currency/stake", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bob", body["user_id"])
		assert.Equal(t, float64(500), body["amount"])
		assert.Equal(t, float64(3600), body["lock_duration_seconds"])

		json.NewEncoder(w).Encode(Transaction{ID: "tx-stake", TxType: CurrencyTxStake})
	}))
	defer server.Close()

	c := NewCurrencyClient(server.URL, nil, 3, nil, nil)
	txID, err := c.Stake(context.Background(), "bob", 500, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "tx-stake", txID)
}

func TestCurrencyClient_BalanceAndWalletErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/currency/wallet/bob" {
			json.NewEncoder(w).Encode(Wallet{UserID: "bob", Balance: 250, Staked: 100})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewCurrencyClient(server.URL, nil, 3, nil, nil)
	balance, err := c.Balance(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance)

	_, err = c.Balance(context.Background(), "nobody")
	require.Error(t, err)
}

func TestCurrencyClient_UserTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/currency/transactions/bob", r.URL.Path)
		json.NewEncoder(w).Encode([]*Transaction{
			{ID: "tx-1", TxType: CurrencyTxPayment, Sender: "bob"},
			{ID: "tx-2", TxType: CurrencyTxStake, Sender: "bob"},
		})
	}))
	defer server.Close()

	c := NewCurrencyClient(server.URL, nil, 3, nil, nil)
	txs, err := c.UserTransactions(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, CurrencyTxPayment, txs[0].TxType)
}
