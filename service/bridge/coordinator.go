package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dchatlabs/dualledger/service/chain"
	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/metrics"
)

// stakeLockDuration is the lock applied to the stake leg of a
// registration. 30 days.
const stakeLockDuration = 30 * 24 * time.Hour

// treasuryAccount receives channel creation fees and issues refunds.
const treasuryAccount = "treasury"

// CoordinatorConfig tunes the per-leg confirmation waits.
type CoordinatorConfig struct {
	ConfirmationThreshold int64
	ConfirmationTimeout   time.Duration
	PollInterval          time.Duration
}

// Coordinator drives two-legged operations client-side: it submits each leg
// itself, waits for individual confirmation, and on a partial failure
// submits and confirms a compensating reversal before recording
// rolled_back. It never reports atomic_success without both confirmed
// receipts in hand.
//
// Each record progresses under exactly one coordinator run; a duplicate
// run for an id already in flight is rejected.
type Coordinator struct {
	chat     *chain.ChatClient
	currency *chain.CurrencyClient

	chatTracker     *ledger.Tracker
	currencyTracker *ledger.Tracker

	cfg     CoordinatorConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	txs      map[string]*Transaction
	inflight map[string]struct{}
}

// NewCoordinator creates a client-driven coordinator over the two chain
// clients. The trackers share the caller's receipt cache when one is
// supplied through them; metrics may be nil.
func NewCoordinator(
	chat *chain.ChatClient,
	currency *chain.CurrencyClient,
	chatTracker *ledger.Tracker,
	currencyTracker *ledger.Tracker,
	cfg CoordinatorConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Coordinator {
	if cfg.ConfirmationThreshold <= 0 {
		cfg.ConfirmationThreshold = 6
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = ledger.DefaultAwaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = ledger.DefaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Coordinator{
		chat:            chat,
		currency:        currency,
		chatTracker:     chatTracker,
		currencyTracker: currencyTracker,
		cfg:             cfg,
		metrics:         m,
		logger:          logger,
		txs:             make(map[string]*Transaction),
		inflight:        make(map[string]struct{}),
	}
}

// RegisterUserWithStake registers an identity on the chat chain and locks a
// stake on the currency chain. Leg order: chat first, then currency; a
// failed stake after a confirmed registration is compensated by revoking
// the registration.
func (c *Coordinator) RegisterUserWithStake(ctx context.Context, userID, publicKey string, stakeAmount int64) (*Transaction, error) {
	id := uuid.New().String()
	if err := c.begin(id, OpRegisterUserWithStake, userID); err != nil {
		return nil, err
	}
	defer c.release(id)

	// The wallet must exist before the stake leg can lock anything. This
	// happens before either leg, so a failure here leaves nothing to
	// compensate.
	if _, err := c.currency.CreateWallet(ctx, userID, stakeAmount*2); err != nil {
		return c.fail(ctx, id, fmt.Errorf("failed to create wallet: %w", err))
	}

	// Leg A: chat chain registration.
	chatTxID, err := c.chat.RegisterUser(ctx, userID, userID, publicKey)
	if err != nil {
		return c.fail(ctx, id, fmt.Errorf("chat leg submission failed: %w", err))
	}
	c.update(id, func(tx *Transaction) { tx.ChatChainTx = chatTxID })

	if _, err := c.awaitLeg(ctx, c.chatTracker, chatTxID); err != nil {
		return c.fail(ctx, id, fmt.Errorf("chat leg failed: %w", err))
	}
	c.setStatus(id, StatusChatChainConfirmed, "")

	// Leg B: currency chain stake.
	stakeTxID, err := c.currency.Stake(ctx, userID, stakeAmount, stakeLockDuration)
	if err == nil {
		c.update(id, func(tx *Transaction) { tx.CurrencyChainTx = stakeTxID })
		_, err = c.awaitLeg(ctx, c.currencyTracker, stakeTxID)
	}
	if err != nil {
		return c.rollback(ctx, id, err, func(ctx context.Context) (string, *ledger.Tracker, error) {
			compTxID, compErr := c.chat.RevokeUser(ctx, userID, "stake leg failed")
			return compTxID, c.chatTracker, compErr
		})
	}

	return c.succeed(id)
}

// CreateChannelWithFee collects the channel creation fee on the currency
// chain, then creates the channel on the chat chain. Leg order: currency
// first, then chat; a failed channel creation after a confirmed fee
// payment is compensated by refunding the fee from the treasury.
func (c *Coordinator) CreateChannelWithFee(ctx context.Context, owner, channelName string, creationFee int64) (*Transaction, error) {
	id := uuid.New().String()
	if err := c.begin(id, OpCreateChannelWithFee, owner); err != nil {
		return nil, err
	}
	defer c.release(id)

	// Leg A: fee transfer to the treasury.
	feeTxID, err := c.currency.Transfer(ctx, owner, treasuryAccount, creationFee)
	if err != nil {
		return c.fail(ctx, id, fmt.Errorf("fee leg submission failed: %w", err))
	}
	c.update(id, func(tx *Transaction) { tx.CurrencyChainTx = feeTxID })

	if _, err := c.awaitLeg(ctx, c.currencyTracker, feeTxID); err != nil {
		return c.fail(ctx, id, fmt.Errorf("fee leg failed: %w", err))
	}
	c.setStatus(id, StatusCurrencyChainConfirmed, "")

	// Leg B: channel creation.
	channelID := uuid.New().String()
	chatTxID, err := c.chat.CreateChannel(ctx, owner, channelID, channelName)
	if err == nil {
		c.update(id, func(tx *Transaction) { tx.ChatChainTx = chatTxID })
		_, err = c.awaitLeg(ctx, c.chatTracker, chatTxID)
	}
	if err != nil {
		return c.rollback(ctx, id, err, func(ctx context.Context) (string, *ledger.Tracker, error) {
			compTxID, compErr := c.currency.Transfer(ctx, treasuryAccount, owner, creationFee)
			return compTxID, c.currencyTracker, compErr
		})
	}

	return c.succeed(id)
}

// Status returns a copy of the record for a cross-chain id, or (nil, nil)
// if the coordinator does not know the id.
func (c *Coordinator) Status(_ context.Context, id string) (*Transaction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.txs[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

// UserTransactions returns copies of all records for a user.
func (c *Coordinator) UserTransactions(_ context.Context, userID string) ([]*Transaction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Transaction
	for _, tx := range c.txs {
		if tx.UserID == userID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Await polls the coordinator's own records until the transaction reaches
// a terminal status.
func (c *Coordinator) Await(ctx context.Context, id string, timeout, interval time.Duration) (*Transaction, error) {
	return AwaitAtomicCompletion(ctx, c, id, timeout, interval)
}

// begin registers a fresh record and claims the id. A duplicate claim is
// rejected so two coordinator runs can never race one id to terminal.
func (c *Coordinator) begin(id, operation, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[id]; ok {
		return fmt.Errorf("cross-chain transaction %s is already being driven", id)
	}
	if _, ok := c.txs[id]; ok {
		return fmt.Errorf("cross-chain transaction %s already exists", id)
	}
	c.inflight[id] = struct{}{}
	c.txs[id] = &Transaction{
		ID:        id,
		Operation: operation,
		UserID:    userID,
		Status:    StatusPending,
		CreatedAt: time.Now().Unix(),
	}
	return nil
}

func (c *Coordinator) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}

// update applies fn to the record under the lock.
func (c *Coordinator) update(id string, fn func(*Transaction)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tx, ok := c.txs[id]; ok {
		fn(tx)
	}
}

// setStatus transitions the record. FinalizedAt is set exactly once, on
// the first terminal transition; a terminal record is never modified
// again.
func (c *Coordinator) setStatus(id string, status CrossChainStatus, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txs[id]
	if !ok || tx.Status.Terminal() {
		return
	}
	tx.Status = status
	if errMsg != "" {
		tx.Error = errMsg
	}
	if status.Terminal() {
		now := time.Now().Unix()
		tx.FinalizedAt = &now
		if c.metrics != nil {
			c.metrics.RecordBridgeOperation(tx.Operation, string(status))
		}
	}
}

// awaitLeg waits for one leg to confirm under the coordinator's threshold
// policy.
func (c *Coordinator) awaitLeg(ctx context.Context, tracker *ledger.Tracker, txID string) (*ledger.Receipt, error) {
	return tracker.Await(ctx, txID, ledger.AwaitOptions{
		Threshold: c.cfg.ConfirmationThreshold,
		Timeout:   c.cfg.ConfirmationTimeout,
		Interval:  c.cfg.PollInterval,
	})
}

// fail records a terminal failure where no leg survived.
func (c *Coordinator) fail(ctx context.Context, id string, cause error) (*Transaction, error) {
	c.logger.WarnContext(ctx, "cross-chain operation failed",
		"bridge_tx_id", id,
		"error", cause,
	)
	c.setStatus(id, StatusFailed, cause.Error())
	tx, _ := c.Status(ctx, id)
	return tx, &AtomicError{ID: id, Status: StatusFailed, Reason: cause.Error()}
}

// rollback compensates a confirmed leg after its pair failed. The
// compensating transaction gets the same confirmation tracking as any
// other transaction: rolled_back is only recorded once the reversal
// confirms. If compensation cannot be confirmed the record is failed with
// the compensation error noted, so the pair still reaches terminal.
func (c *Coordinator) rollback(ctx context.Context, id string, cause error, compensate func(context.Context) (string, *ledger.Tracker, error)) (*Transaction, error) {
	c.mu.RLock()
	operation := c.txs[id].Operation
	c.mu.RUnlock()

	c.logger.WarnContext(ctx, "leg failed after its pair confirmed, compensating",
		"bridge_tx_id", id,
		"error", cause,
	)

	compTxID, compTracker, err := compensate(ctx)
	if err == nil {
		_, err = c.awaitLeg(ctx, compTracker, compTxID)
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordCompensation(operation, "failed")
		}
		c.logger.ErrorContext(ctx, "compensation failed",
			"bridge_tx_id", id,
			"error", err,
		)
		reason := fmt.Sprintf("%v (compensation failed: %v)", cause, err)
		c.setStatus(id, StatusFailed, reason)
		tx, _ := c.Status(ctx, id)
		return tx, &AtomicError{ID: id, Status: StatusFailed, Reason: reason}
	}

	if c.metrics != nil {
		c.metrics.RecordCompensation(operation, "confirmed")
	}
	c.setStatus(id, StatusRolledBack, cause.Error())
	tx, _ := c.Status(ctx, id)
	return tx, &AtomicError{ID: id, Status: StatusRolledBack, Reason: cause.Error()}
}

// succeed records atomic success. Both legs hold confirmed receipts by
// the time this runs.
func (c *Coordinator) succeed(id string) (*Transaction, error) {
	c.setStatus(id, StatusAtomicSuccess, "")
	tx, _ := c.Status(context.Background(), id)
	return tx, nil
}
