package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/dchatlabs/dualledger/service/ledger"
)

// ReceiptObserver records every finalized receipt as a transaction row.
// Write failures are logged and dropped: persistence must never change
// the outcome of confirmation tracking.
type ReceiptObserver struct {
	store  *Store
	logger *slog.Logger
}

// NewReceiptObserver creates an observer that persists finalized receipts.
func NewReceiptObserver(store *Store, logger *slog.Logger) *ReceiptObserver {
	return &ReceiptObserver{store: store, logger: logger}
}

// ReceiptFinalized implements ledger.ReceiptObserver.
func (o *ReceiptObserver) ReceiptFinalized(ctx context.Context, chain string, r *ledger.Receipt) {
	params := UpsertTransactionParams{
		Chain:         chain,
		TxID:          r.TxID,
		Status:        string(r.Status()),
		BlockHeight:   r.BlockHeight,
		Confirmations: r.Confirmations,
		Error:         r.Error,
	}
	if r.TxHash != "" {
		hash := r.TxHash
		params.TxHash = &hash
	}
	now := time.Now().UTC()
	params.FinalizedAt = &now

	if _, err := o.store.UpsertTransaction(ctx, params); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist receipt",
			"chain", chain,
			"tx_id", r.TxID,
			"error", err,
		)
	}
}
