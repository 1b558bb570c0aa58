package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/dchatlabs/dualledger/service/ledger"
)

// DefaultAtomicTimeout bounds an atomic-completion wait when the caller
// does not supply one.
const DefaultAtomicTimeout = 60 * time.Second

// AwaitAtomicCompletion polls src until the cross-chain transaction reaches
// a terminal status. It returns the record on atomic_success, an
// AtomicError on rolled_back or failed, and a ledger.TimeoutError past the
// deadline. Intermediate statuses never cause a return; transient lookup
// errors are ridden out until the deadline.
func AwaitAtomicCompletion(ctx context.Context, src StatusSource, id string, timeout, interval time.Duration) (*Transaction, error) {
	if timeout <= 0 {
		timeout = DefaultAtomicTimeout
	}
	if interval <= 0 {
		interval = time.Second
	}

	var (
		last          *Transaction
		lastTransient error
	)
	start := time.Now()

	err := ledger.Poll(ctx, interval, timeout, func(ctx context.Context) (bool, error) {
		tx, err := src.Status(ctx, id)
		if err != nil {
			if ledger.IsTransient(err) {
				lastTransient = err
				return false, nil
			}
			return false, err
		}
		if tx == nil {
			// The bridge may not have indexed the transaction yet.
			return false, nil
		}
		last = tx
		return tx.Status.Terminal(), nil
	})

	if err != nil {
		if errors.Is(err, ledger.ErrDeadlineExceeded) {
			return nil, &ledger.TimeoutError{TxID: id, Waited: time.Since(start), LastErr: lastTransient}
		}
		return nil, err
	}

	if last.Status != StatusAtomicSuccess {
		return nil, &AtomicError{ID: id, Status: last.Status, Reason: last.Error}
	}
	return last, nil
}
