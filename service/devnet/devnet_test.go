package devnet_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchatlabs/dualledger/service/bridge"
	"github.com/dchatlabs/dualledger/service/chain"
	"github.com/dchatlabs/dualledger/service/devnet"
	"github.com/dchatlabs/dualledger/service/ledger"
	"github.com/dchatlabs/dualledger/service/rpc"
)

func newDevnet(t *testing.T, threshold int64) (*devnet.Server, string) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dev := devnet.New("", threshold, nil, logger)
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)
	return dev, ts.URL
}

func TestChainState_AdvanceBlockAddsExactConfirmations(t *testing.T) {
	state := devnet.NewChainState("chat", 6)
	tx := state.Submit(chain.ChatTxRegisterUser, "alice", "", 0, nil, "")

	got := state.Get(tx.ID)
	assert.Equal(t, chain.TxStatusPending, got.Status)
	assert.Equal(t, int64(0), got.Confirmations)

	state.AdvanceBlock(4)
	got = state.Get(tx.ID)
	assert.Equal(t, chain.TxStatusPending, got.Status)
	assert.Equal(t, int64(4), got.Confirmations)

	state.AdvanceBlock(2)
	got = state.Get(tx.ID)
	assert.Equal(t, chain.TxStatusConfirmed, got.Status)
	assert.Equal(t, int64(6), got.Confirmations)

	// Confirmations keep accruing past the threshold.
	state.AdvanceBlock(3)
	assert.Equal(t, int64(9), state.Get(tx.ID).Confirmations)
}

func TestChainState_FailedTransactionNeverConfirms(t *testing.T) {
	state := devnet.NewChainState("currency", 2)
	tx := state.Submit(chain.CurrencyTxPayment, "alice", "bob", 100, nil, "insufficient funds")

	state.AdvanceBlock(10)
	got := state.Get(tx.ID)
	assert.Equal(t, chain.TxStatusFailed, got.Status)
	assert.Equal(t, int64(0), got.Confirmations)
	assert.Equal(t, "insufficient funds", got.Error)
}

func TestChainState_BySenderPreservesOrder(t *testing.T) {
	state := devnet.NewChainState("chat", 2)
	first := state.Submit(chain.ChatTxRegisterUser, "alice", "", 0, nil, "")
	state.Submit(chain.ChatTxRegisterUser, "bob", "", 0, nil, "")
	second := state.Submit(chain.ChatTxSendDirectMessage, "alice", "bob", 0, nil, "")

	txs := state.BySender("alice")
	require.Len(t, txs, 2)
	assert.Equal(t, first.ID, txs[0].ID)
	assert.Equal(t, second.ID, txs[1].ID)
}

func TestWalletBook_Semantics(t *testing.T) {
	book := devnet.NewWalletBook()

	_, err := book.Create("alice", 1000)
	require.NoError(t, err)
	_, err = book.Create("alice", 0)
	require.Error(t, err)

	assert.Empty(t, book.Transfer("alice", "bob", 300))
	assert.Equal(t, int64(700), book.Get("alice").Balance)
	assert.Equal(t, int64(300), book.Get("bob").Balance)

	assert.Contains(t, book.Transfer("alice", "bob", 5000), "insufficient funds")
	assert.Contains(t, book.Transfer("ghost", "bob", 10), "unknown wallet")

	assert.Empty(t, book.Stake("alice", 500))
	w := book.Get("alice")
	assert.Equal(t, int64(200), w.Balance)
	assert.Equal(t, int64(500), w.Staked)

	assert.NotEmpty(t, book.Unstake("alice", 600))
	assert.Empty(t, book.Unstake("alice", 500))
	assert.Equal(t, int64(700), book.Get("alice").Balance)
}

func TestRPCSurface_SubmitAndReceipt(t *testing.T) {
	dev, url := newDevnet(t, 2)
	c := rpc.NewClient(url+"/rpc", nil, 1, nil, nil)
	ctx := context.Background()

	txID, err := c.Submit(ctx, "send_direct_message", map[string]any{
		"sender":       "alice",
		"recipient":    "bob",
		"content_hash": "abc",
	})
	require.NoError(t, err)
	require.NotEmpty(t, txID)

	// Pending transactions report a null receipt.
	r, err := c.FetchReceipt(ctx, txID)
	require.NoError(t, err)
	assert.Nil(t, r)

	dev.AdvanceBlock(2)

	r, err = c.FetchReceipt(ctx, txID)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, txID, r.TxID)
	assert.True(t, r.Success)
	assert.NotEmpty(t, r.TxHash)
	require.NotNil(t, r.Timestamp)
}

func TestRPCSurface_UnknownTxIsNull(t *testing.T) {
	_, url := newDevnet(t, 2)
	c := rpc.NewClient(url+"/rpc", nil, 1, nil, nil)

	r, err := c.FetchReceipt(context.Background(), "no-such-tx")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestRPCSurface_UnknownMethod(t *testing.T) {
	_, url := newDevnet(t, 2)
	c := rpc.NewClient(url+"/rpc", nil, 1, nil, nil)

	_, err := c.Submit(context.Background(), "no_such_op", map[string]any{"user_id": "x"})
	var rpcErr *ledger.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "not found")
}

func TestRPCSurface_BlockNumber(t *testing.T) {
	dev, url := newDevnet(t, 2)
	c := rpc.NewClient(url+"/rpc", nil, 1, nil, nil)
	ctx := context.Background()

	height, err := c.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), height)

	dev.AdvanceBlock(5)
	height, err = c.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), height)
}

func TestBridgeSettlement_IntermediateThenSuccess(t *testing.T) {
	dev, url := newDevnet(t, 2)
	bc := bridge.NewClient(url, nil, nil, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	tx, err := bc.RegisterUserWithStake(ctx, "alice", "pk-alice", 500)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusPending, tx.Status)

	// Below the threshold neither leg has confirmed.
	dev.AdvanceBlock(1)
	got, err := bc.Status(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusPending, got.Status)

	dev.AdvanceBlock(1)
	got, err = bc.Status(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusAtomicSuccess, got.Status)
	require.NotNil(t, got.FinalizedAt)

	// The stake applied to the wallet: half the funded balance is locked.
	wallet, err := chain.NewCurrencyClient(url, nil, 1, nil, nil).GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.Balance)
	assert.Equal(t, int64(500), wallet.Staked)
}

func TestBridgeSettlement_RollbackRestoresFunds(t *testing.T) {
	dev, url := newDevnet(t, 2)
	bc := bridge.NewClient(url, nil, nil, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	// An owner with no wallet fails the fee leg at execution while the
	// channel leg still confirms; the pair must end rolled_back with a
	// compensating reversal on the chat chain.
	tx, err := bc.CreateChannelWithFee(ctx, "ghost", "general", 50)
	require.NoError(t, err)

	dev.AdvanceBlock(2)

	got, err := bc.Status(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusRolledBack, got.Status)
	assert.Contains(t, got.Error, "unknown wallet")

	// The chat chain carries the compensating revoke transaction.
	chat := chain.NewChatClient(url, nil, 1, nil, nil)
	txs, err := chat.UserTransactions(ctx, "ghost")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, chain.ChatTxCreateChannel, txs[0].TxType)
	assert.Equal(t, chain.ChatTxRevokeUser, txs[1].TxType)
}

func TestAdvanceBlockEndpoint(t *testing.T) {
	dev, url := newDevnet(t, 2)
	c := rpc.NewClient(url+"/rpc", nil, 1, nil, nil)

	chatBlock, currencyBlock := dev.AdvanceBlock(3)
	assert.Equal(t, int64(4), chatBlock)
	assert.Equal(t, int64(4), currencyBlock)

	height, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), height)
}
