package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchatlabs/dualledger/service/bridge"
	"github.com/dchatlabs/dualledger/service/devnet"
	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/nats"
)

const testThreshold = 2

// newTestStack runs a devnet in-process with automatic block production
// and returns a client pointed at it.
func newTestStack(t *testing.T, observer ledger.ReceiptObserver) (*Client, *devnet.Server) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dev := devnet.New("", testThreshold, nil, logger)
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)

	// Produce blocks continuously so pending transactions confirm.
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				dev.AdvanceBlock(1)
			}
		}
	}()

	c := New(Config{
		ChatChainURL:          ts.URL,
		CurrencyChainURL:      ts.URL,
		ConfirmationThreshold: testThreshold,
		ConfirmationTimeout:   10 * time.Second,
		PollInterval:          10 * time.Millisecond,
		Observer:              observer,
		Logger:                logger,
	})
	return c, dev
}

func TestRegisterUser_Confirms(t *testing.T) {
	c, _ := newTestStack(t, nil)

	result, err := c.RegisterUser(context.Background(), "alice", "alice", "pk-alice")
	require.NoError(t, err)
	require.NotNil(t, result.Receipt)
	assert.True(t, result.Receipt.Success)
	assert.GreaterOrEqual(t, result.Receipt.Confirmations, int64(testThreshold))
	assert.Equal(t, ledger.StatusConfirmed, result.Receipt.Status())
}

func TestTransfer_ConfirmsAndMovesFunds(t *testing.T) {
	c, _ := newTestStack(t, nil)
	ctx := context.Background()

	_, err := c.CreateWallet(ctx, "alice", 500)
	require.NoError(t, err)
	_, err = c.CreateWallet(ctx, "bob", 0)
	require.NoError(t, err)

	result, err := c.Transfer(ctx, "alice", "bob", 200)
	require.NoError(t, err)
	assert.True(t, result.Receipt.Success)

	balance, err := c.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance)
}

func TestTransfer_InsufficientFunds_Fails(t *testing.T) {
	c, _ := newTestStack(t, nil)
	ctx := context.Background()

	_, err := c.CreateWallet(ctx, "alice", 10)
	require.NoError(t, err)
	_, err = c.CreateWallet(ctx, "bob", 0)
	require.NoError(t, err)

	_, err = c.Transfer(ctx, "alice", "bob", 9999)
	require.Error(t, err)

	var txFailed *ledger.TxFailedError
	require.True(t, errors.As(err, &txFailed))
	assert.Contains(t, txFailed.Reason, "insufficient funds")
}

func TestRegisterUserWithStake_AtomicSuccess(t *testing.T) {
	c, _ := newTestStack(t, nil)

	record, err := c.RegisterUserWithStake(context.Background(), "carol", "pk-carol", 100)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusAtomicSuccess, record.Status)
	assert.NotEmpty(t, record.ChatChainTx)
	assert.NotEmpty(t, record.CurrencyChainTx)
	require.NotNil(t, record.FinalizedAt)

	// The record is queryable afterwards.
	status, err := c.AtomicStatus(context.Background(), record.ID)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, bridge.StatusAtomicSuccess, status.Status)

	history, err := c.AtomicTransactions(context.Background(), "carol")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCreateChannelWithFee_AtomicSuccess(t *testing.T) {
	c, _ := newTestStack(t, nil)
	ctx := context.Background()

	_, err := c.CreateWallet(ctx, "dave", 1000)
	require.NoError(t, err)

	record, err := c.CreateChannelWithFee(ctx, "dave", "general", 50)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusAtomicSuccess, record.Status)

	// The fee landed in the treasury leg; dave paid it.
	balance, err := c.Balance(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(950), balance)
}

func TestCreateChannelWithFee_NoWallet_Fails(t *testing.T) {
	c, _ := newTestStack(t, nil)

	record, err := c.CreateChannelWithFee(context.Background(), "nobody", "general", 50)
	require.Error(t, err)

	var atomicErr *bridge.AtomicError
	require.True(t, errors.As(err, &atomicErr))
	assert.Equal(t, bridge.StatusFailed, atomicErr.Status)
	require.NotNil(t, record)
	assert.Equal(t, bridge.StatusFailed, record.Status)
	// The fee leg never confirmed, so nothing was compensated.
	assert.Empty(t, record.ChatChainTx)
}

func TestFinalizedReceiptsAreObserved(t *testing.T) {
	pub := nats.NewMockPublisher()
	observer := nats.NewReceiptObserver(pub, nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	c, _ := newTestStack(t, observer)

	_, err := c.RegisterUser(context.Background(), "erin", "erin", "pk-erin")
	require.NoError(t, err)

	events := pub.GetPublishedEventsForChain("chat")
	require.NotEmpty(t, events)
	assert.Equal(t, string(ledger.StatusConfirmed), events[0].Status)
	assert.True(t, events[0].Success)
}
