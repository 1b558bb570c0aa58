// Package bridge coordinates atomic two-ledger operations: either through
// the bridge service (which sequences the legs server-side) or through the
// client-driven Coordinator, which submits both legs itself and issues
// compensating transactions on partial failure.
package bridge

import (
	"context"
	"fmt"
)

// CrossChainStatus is the joint status of a two-legged operation.
type CrossChainStatus string

const (
	// StatusPending means neither leg has confirmed yet.
	StatusPending CrossChainStatus = "pending"
	// StatusChatChainConfirmed means the chat leg confirmed and the
	// currency leg is still outstanding.
	StatusChatChainConfirmed CrossChainStatus = "chat_chain_confirmed"
	// StatusCurrencyChainConfirmed means the currency leg confirmed and
	// the chat leg is still outstanding.
	StatusCurrencyChainConfirmed CrossChainStatus = "currency_chain_confirmed"
	// StatusAtomicSuccess means both legs individually confirmed.
	StatusAtomicSuccess CrossChainStatus = "atomic_success"
	// StatusRolledBack means one leg succeeded, the other definitively
	// failed, and the compensating reversal of the succeeded leg has
	// confirmed.
	StatusRolledBack CrossChainStatus = "rolled_back"
	// StatusFailed means the operation failed without a surviving leg, or
	// compensation itself could not be confirmed.
	StatusFailed CrossChainStatus = "failed"
)

// Terminal reports whether no further transition can occur.
func (s CrossChainStatus) Terminal() bool {
	switch s {
	case StatusAtomicSuccess, StatusRolledBack, StatusFailed:
		return true
	}
	return false
}

// Cross-chain operation names.
const (
	OpRegisterUserWithStake = "register_user_with_stake"
	OpCreateChannelWithFee  = "create_channel_with_fee"
)

// Transaction is the record of one cross-chain operation. Exactly one
// coordinator drives a given id to terminal; FinalizedAt is set once, on
// the terminal transition. Timestamps are Unix seconds on the wire.
type Transaction struct {
	ID              string           `json:"id"`
	Operation       string           `json:"operation"`
	UserID          string           `json:"user_id"`
	ChatChainTx     string           `json:"chat_chain_tx,omitempty"`
	CurrencyChainTx string           `json:"currency_chain_tx,omitempty"`
	Status          CrossChainStatus `json:"status"`
	Error           string           `json:"error,omitempty"`
	CreatedAt       int64            `json:"created_at"`
	FinalizedAt     *int64           `json:"finalized_at,omitempty"`
}

// AtomicError reports a cross-chain operation that reached a terminal
// failure. Status distinguishes "one leg happened and was reverted"
// (rolled_back) from "nothing happened" (failed).
type AtomicError struct {
	ID     string
	Status CrossChainStatus
	Reason string
}

func (e *AtomicError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cross-chain transaction %s terminated with status %s: %s", e.ID, e.Status, e.Reason)
	}
	return fmt.Sprintf("cross-chain transaction %s terminated with status %s", e.ID, e.Status)
}

// StatusSource is anything that can report the current record for a
// cross-chain id: the bridge service client or the local coordinator.
// A (nil, nil) return means the id is not (yet) known.
type StatusSource interface {
	Status(ctx context.Context, id string) (*Transaction, error)
}
