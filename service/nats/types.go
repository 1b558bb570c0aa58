package nats

import (
	"time"

	"github.com/dchatlabs/dualledger/service/ledger"
)

// ReceiptEvent represents a finalized transaction receipt published to NATS.
// This is published to the subject "receipts.{chain}.{tx_id}" in JetStream.
type ReceiptEvent struct {
	// Transaction identifiers
	Chain  string `json:"chain"`
	TxID   string `json:"tx_id"`
	TxHash string `json:"tx_hash,omitempty"`

	// Outcome
	Status        string `json:"status"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	BlockHeight   int64  `json:"block_height,omitempty"`
	BlockHash     string `json:"block_hash,omitempty"`
	Confirmations int64  `json:"confirmations"`

	// Timing information
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
}

// FromReceipt converts a ledger receipt to a ReceiptEvent for publishing.
func FromReceipt(chain string, r *ledger.Receipt) *ReceiptEvent {
	return &ReceiptEvent{
		Chain:         chain,
		TxID:          r.TxID,
		TxHash:        r.TxHash,
		Status:        string(r.Status()),
		Success:       r.Success,
		Error:         r.Error,
		BlockHeight:   r.BlockHeight,
		BlockHash:     r.BlockHash,
		Confirmations: r.Confirmations,
		Timestamp:     r.Timestamp,
		PublishedAt:   time.Now().UTC(),
	}
}
