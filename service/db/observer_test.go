package db

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchatlabs/dualledger/service/ledger"
)

func TestReceiptObserver_PersistsFinalizedReceipt(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)

	ctx := context.Background()
	observer := NewReceiptObserver(ts.Store, slog.New(slog.DiscardHandler))

	observer.ReceiptFinalized(ctx, "chat", &ledger.Receipt{
		TxID:          "tx-obs-1",
		TxHash:        "0xabc",
		Success:       true,
		BlockHeight:   42,
		Confirmations: 6,
	})

	txn, err := ts.GetTransaction(ctx, "chat", "tx-obs-1")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, string(ledger.StatusConfirmed), txn.Status)
	assert.Equal(t, int64(42), txn.BlockHeight)
	assert.Equal(t, int64(6), txn.Confirmations)
	require.NotNil(t, txn.TxHash)
	assert.Equal(t, "0xabc", *txn.TxHash)
	require.NotNil(t, txn.FinalizedAt)
}

func TestReceiptObserver_RecordsFailures(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)

	ctx := context.Background()
	observer := NewReceiptObserver(ts.Store, slog.New(slog.DiscardHandler))

	observer.ReceiptFinalized(ctx, "currency", &ledger.Receipt{
		TxID:  "tx-obs-2",
		Error: "insufficient balance",
	})

	txn, err := ts.GetTransaction(ctx, "currency", "tx-obs-2")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, string(ledger.StatusFailed), txn.Status)
	assert.Equal(t, "insufficient balance", txn.Error)
}
