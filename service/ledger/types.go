package ledger

import (
	"context"
	"time"
)

// TransactionStatus is the lifecycle status of a single submitted transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "Pending"
	StatusConfirmed TransactionStatus = "Confirmed"
	StatusFailed    TransactionStatus = "Failed"
	StatusTimedOut  TransactionStatus = "TimedOut"
)

// Terminal reports whether the status admits no further transitions.
// Pending is the only non-terminal status.
func (s TransactionStatus) Terminal() bool {
	return s != StatusPending
}

// Receipt is the observed outcome of a submitted transaction on one ledger.
// A receipt is terminal once Success is true or Error is non-empty; the two
// are mutually exclusive. Non-terminal receipts may be replaced by later
// observations; terminal receipts never change.
type Receipt struct {
	TxID          string     `json:"tx_id"`
	TxHash        string     `json:"tx_hash,omitempty"`
	Success       bool       `json:"success"`
	BlockHeight   int64      `json:"block_height,omitempty"`
	BlockHash     string     `json:"block_hash,omitempty"`
	Confirmations int64      `json:"confirmations,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Terminal reports whether the receipt records a final outcome.
func (r *Receipt) Terminal() bool {
	return r.Success || r.Error != ""
}

// Status maps the receipt onto the transaction status enum.
func (r *Receipt) Status() TransactionStatus {
	switch {
	case r.Success:
		return StatusConfirmed
	case r.Error != "":
		return StatusFailed
	default:
		return StatusPending
	}
}

// Gateway is the capability a ledger backend must expose for submission and
// receipt lookup. Implementations exist per backend (generic JSON-RPC, chat
// chain, currency chain); the Tracker is written against this interface so
// the wait loop is not duplicated per chain.
//
// FetchReceipt returns (nil, nil) when the ledger has not indexed the
// transaction yet; callers treat that as still pending, not as failure.
type Gateway interface {
	// Submit sends one operation to the ledger and returns the transaction
	// id the ledger will track it under. Implementations retry transient
	// failures with backoff up to their configured attempt budget; they
	// never retry a well-formed RPC error.
	Submit(ctx context.Context, op string, params any) (string, error)

	// FetchReceipt looks up the current receipt for a previously accepted
	// transaction id.
	FetchReceipt(ctx context.Context, txID string) (*Receipt, error)
}
