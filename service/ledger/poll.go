package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrDeadlineExceeded is returned by Poll when the wait budget runs out
// before fn reports done. Callers wrap it into a TimeoutError with the
// transaction context attached.
var ErrDeadlineExceeded = errors.New("poll deadline exceeded")

// PollFunc is one poll attempt. Returning done stops the loop successfully;
// returning a non-nil error aborts it immediately. Transient conditions the
// caller wants to ride out must be swallowed inside fn.
type PollFunc func(ctx context.Context) (done bool, err error)

// Poll invokes fn at a fixed interval until it reports done, returns an
// error, the timeout elapses, or ctx is canceled. The first attempt runs
// immediately, so a condition that already holds costs no sleep. Elapsed
// time is measured with the monotonic clock, and the deadline is checked
// on both sides of the sleep so the loop overshoots by at most one
// interval.
func Poll(ctx context.Context, interval, timeout time.Duration, fn PollFunc) error {
	if interval <= 0 {
		interval = time.Second
	}
	start := time.Now()
	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Since(start) >= timeout {
			return ErrDeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		if time.Since(start) >= timeout {
			return ErrDeadlineExceeded
		}
	}
}
