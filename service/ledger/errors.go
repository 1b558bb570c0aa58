package ledger

import (
	"errors"
	"fmt"
	"time"
)

// TransientError wraps a failure that is worth retrying: connection resets,
// timeouts, HTTP 5xx. The submission path retries these with backoff; the
// polling path swallows them and keeps waiting until the deadline.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RPCError is a well-formed error response from a ledger endpoint (invalid
// params, unknown method, rejected transaction). Never retried.
type RPCError struct {
	Method  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error from %s: %s", e.Method, e.Message)
}

// TxFailedError means the ledger executed the transaction and reported
// failure. Terminal; the caller may resubmit under a fresh id but the
// tracker never does so itself.
type TxFailedError struct {
	TxID   string
	Reason string
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.TxID, e.Reason)
}

// TimeoutError means no terminal receipt arrived before the deadline.
// Distinct from failure: the transaction may still land, and the caller
// decides whether to keep polling or give up.
type TimeoutError struct {
	TxID    string
	Waited  time.Duration
	LastErr error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("transaction %s not confirmed after %s (last error: %v)", e.TxID, e.Waited, e.LastErr)
	}
	return fmt.Sprintf("transaction %s not confirmed after %s", e.TxID, e.Waited)
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }
