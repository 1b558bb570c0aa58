package bridge_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchatlabs/dualledger/service/bridge"
	"github.com/dchatlabs/dualledger/service/devnet"
)

// newBridgeServer runs a devnet bridge in-process with automatic block
// production and returns a client pointed at it.
func newBridgeServer(t *testing.T) *bridge.Client {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dev := devnet.New("", 2, nil, logger)
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)

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

	return bridge.NewClient(ts.URL, nil, nil, logger)
}

func TestClient_RegisterUserWithStake_ServerSide(t *testing.T) {
	c := newBridgeServer(t)
	ctx := context.Background()

	tx, err := c.RegisterUserWithStake(ctx, "alice", "pk-alice", 500)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, bridge.OpRegisterUserWithStake, tx.Operation)
	assert.NotEmpty(t, tx.ChatChainTx)
	assert.NotEmpty(t, tx.CurrencyChainTx)

	final, err := c.Await(ctx, tx.ID, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusAtomicSuccess, final.Status)
	require.NotNil(t, final.FinalizedAt)
}

func TestClient_CreateChannelWithFee_NoWallet_RollsBack(t *testing.T) {
	c := newBridgeServer(t)
	ctx := context.Background()

	// The owner has no wallet, so the fee leg fails at execution while
	// the channel leg still confirms; the bridge reverses the channel.
	tx, err := c.CreateChannelWithFee(ctx, "ghost", "general", 50)
	require.NoError(t, err)

	_, err = c.Await(ctx, tx.ID, 10*time.Second, 10*time.Millisecond)
	var atomicErr *bridge.AtomicError
	require.ErrorAs(t, err, &atomicErr)
	assert.Equal(t, bridge.StatusRolledBack, atomicErr.Status)
	assert.Contains(t, atomicErr.Reason, "unknown wallet")
}

func TestClient_StatusUnknownID(t *testing.T) {
	c := newBridgeServer(t)

	tx, err := c.Status(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestClient_UserTransactions(t *testing.T) {
	c := newBridgeServer(t)
	ctx := context.Background()

	tx, err := c.RegisterUserWithStake(ctx, "carol", "pk-carol", 100)
	require.NoError(t, err)
	_, err = c.Await(ctx, tx.ID, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, err)

	txs, err := c.UserTransactions(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID, txs[0].ID)

	txs, err = c.UserTransactions(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, txs)
}
