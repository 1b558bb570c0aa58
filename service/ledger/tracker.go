package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dchatlabs/dualledger/service/metrics"
)

const (
	// DefaultAwaitTimeout bounds a confirmation wait when the caller does
	// not supply one.
	DefaultAwaitTimeout = 300 * time.Second

	// DefaultPollInterval is how often the tracker re-checks a pending
	// transaction.
	DefaultPollInterval = 2 * time.Second
)

// AwaitOptions tunes one confirmation wait.
type AwaitOptions struct {
	// Threshold is the confirmation count a successful receipt must reach
	// before it counts as final. Zero means success alone is terminal,
	// which is the policy for the generic JSON-RPC receipt path; the
	// confirmation-count ledgers (chat, currency) pass their configured
	// block threshold.
	Threshold int64

	// Timeout is the wall-clock budget for the whole wait.
	Timeout time.Duration

	// Interval is the sleep between polls.
	Interval time.Duration
}

// ReceiptObserver is notified when a tracker observes a terminal receipt.
// Used to fan confirmation events out to NATS without coupling the wait
// loop to a broker.
type ReceiptObserver interface {
	ReceiptFinalized(ctx context.Context, chain string, r *Receipt)
}

// Tracker drives one ledger's transactions from submission to a terminal
// outcome by polling the gateway. It never retries the submission itself;
// it only re-polls for the outcome of an already-accepted transaction id.
// Concurrent Await calls for different ids are safe; the cache is the only
// shared state.
type Tracker struct {
	gw       Gateway
	chain    string
	cache    *ReceiptCache
	observer ReceiptObserver
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewTracker creates a tracker for one ledger backend. The chain label is
// used for logging, metrics, and published events. Cache may be shared
// across trackers; metrics and observer may be nil.
func NewTracker(gw Gateway, chain string, cache *ReceiptCache, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	if cache == nil {
		cache = NewReceiptCache()
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Tracker{
		gw:      gw,
		chain:   chain,
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
}

// SetObserver attaches a terminal-receipt observer.
func (t *Tracker) SetObserver(o ReceiptObserver) { t.observer = o }

// Cache exposes the tracker's receipt cache.
func (t *Tracker) Cache() *ReceiptCache { return t.cache }

// Await blocks until the transaction reaches a terminal outcome or the
// deadline passes. It returns the confirmed receipt, a TxFailedError when
// the ledger reports an error, or a TimeoutError past the deadline. A
// cached terminal receipt that already satisfies the threshold is returned
// without any network call. The ctx cancels the wait early without
// consuming the full timeout.
func (t *Tracker) Await(ctx context.Context, txID string, opts AwaitOptions) (*Receipt, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAwaitTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}

	if cached := t.cache.Get(txID); cached != nil && t.satisfied(cached, opts.Threshold) {
		if t.metrics != nil {
			t.metrics.RecordCacheHit(t.chain)
		}
		t.logger.DebugContext(ctx, "returning cached terminal receipt",
			"chain", t.chain,
			"tx_id", txID,
		)
		return t.resolve(cached)
	}
	if t.metrics != nil {
		t.metrics.RecordCacheMiss(t.chain)
	}

	var (
		last          *Receipt
		lastTransient error
	)
	start := time.Now()

	err := Poll(ctx, opts.Interval, opts.Timeout, func(ctx context.Context) (bool, error) {
		if t.metrics != nil {
			t.metrics.RecordPoll(t.chain)
		}
		r, err := t.gw.FetchReceipt(ctx, txID)
		if err != nil {
			// A single failed poll must not abort the wait; the deadline
			// bounds how long we ride out transient trouble.
			if IsTransient(err) {
				lastTransient = err
				t.logger.WarnContext(ctx, "transient error while polling, continuing",
					"chain", t.chain,
					"tx_id", txID,
					"error", err,
				)
				return false, nil
			}
			return false, err
		}
		if r == nil {
			// Not indexed yet; ledgers may lag behind acceptance.
			return false, nil
		}
		t.cache.Put(txID, r)
		last = r
		return t.satisfied(r, opts.Threshold), nil
	})

	elapsed := time.Since(start)
	switch {
	case err == nil:
		outcome := "confirmed"
		if last.Error != "" {
			outcome = "failed"
		}
		if t.metrics != nil {
			t.metrics.RecordAwait(t.chain, outcome, elapsed.Seconds())
		}
		if t.observer != nil {
			t.observer.ReceiptFinalized(ctx, t.chain, last)
		}
		return t.resolve(last)

	case errors.Is(err, ErrDeadlineExceeded):
		if t.metrics != nil {
			t.metrics.RecordAwait(t.chain, "timeout", elapsed.Seconds())
		}
		t.logger.WarnContext(ctx, "confirmation wait timed out",
			"chain", t.chain,
			"tx_id", txID,
			"waited", elapsed,
		)
		return nil, &TimeoutError{TxID: txID, Waited: elapsed, LastErr: lastTransient}

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		if t.metrics != nil {
			t.metrics.RecordAwait(t.chain, "canceled", elapsed.Seconds())
		}
		return nil, err

	default:
		if t.metrics != nil {
			t.metrics.RecordAwait(t.chain, "error", elapsed.Seconds())
		}
		return nil, err
	}
}

// satisfied reports whether r is terminal under the threshold policy:
// errors are always terminal, success needs the confirmation count only
// when a threshold is set.
func (t *Tracker) satisfied(r *Receipt, threshold int64) bool {
	if r.Error != "" {
		return true
	}
	if !r.Success {
		return false
	}
	return threshold <= 0 || r.Confirmations >= threshold
}

// resolve converts a terminal receipt into the Await return contract.
func (t *Tracker) resolve(r *Receipt) (*Receipt, error) {
	if r.Error != "" {
		return nil, &TxFailedError{TxID: r.TxID, Reason: r.Error}
	}
	return r, nil
}
