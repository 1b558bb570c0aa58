package temporal

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/dchatlabs/dualledger/service/chain"
	"github.com/dchatlabs/dualledger/service/ledger"
)

type fakeChat struct {
	registerTx string
	revokeTx   string
	channelTx  string
	err        error
}

func (f *fakeChat) RegisterUser(ctx context.Context, userID, username, publicKey string) (string, error) {
	return f.registerTx, f.err
}

func (f *fakeChat) CreateChannel(ctx context.Context, owner, channelID, name string) (string, error) {
	return f.channelTx, f.err
}

func (f *fakeChat) RevokeUser(ctx context.Context, userID, reason string) (string, error) {
	return f.revokeTx, f.err
}

type fakeCurrency struct {
	wallet     *chain.Wallet
	stakeTx    string
	transferTx string
	err        error
}

func (f *fakeCurrency) CreateWallet(ctx context.Context, userID string, initialBalance int64) (*chain.Wallet, error) {
	return f.wallet, f.err
}

func (f *fakeCurrency) Stake(ctx context.Context, userID string, amount int64, lockDuration time.Duration) (string, error) {
	return f.stakeTx, f.err
}

func (f *fakeCurrency) Transfer(ctx context.Context, from, to string, amount int64) (string, error) {
	return f.transferTx, f.err
}

type fakeTracker struct {
	receipt *ledger.Receipt
	err     error
	lastTx  string
}

func (f *fakeTracker) Await(ctx context.Context, txID string, opts ledger.AwaitOptions) (*ledger.Receipt, error) {
	f.lastTx = txID
	return f.receipt, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCreateWalletActivity(t *testing.T) {
	currency := &fakeCurrency{wallet: &chain.Wallet{UserID: "alice", Balance: 200}}
	a := NewActivities(&fakeChat{}, currency, &fakeTracker{}, &fakeTracker{}, nil, discardLogger())

	result, err := a.CreateWallet(context.Background(), CreateWalletInput{UserID: "alice", InitialBalance: 200})
	require.NoError(t, err)
	assert.Equal(t, "alice", result.UserID)
	assert.Equal(t, int64(200), result.Balance)
}

func TestSubmitActivities(t *testing.T) {
	chatClient := &fakeChat{registerTx: "r-1", revokeTx: "v-1", channelTx: "c-1"}
	currency := &fakeCurrency{stakeTx: "s-1", transferTx: "t-1"}
	a := NewActivities(chatClient, currency, &fakeTracker{}, &fakeTracker{}, nil, discardLogger())

	ctx := context.Background()

	r, err := a.SubmitRegisterUser(ctx, SubmitRegisterUserInput{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "r-1", r.TxID)

	r, err = a.SubmitStake(ctx, SubmitStakeInput{UserID: "alice", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, "s-1", r.TxID)

	r, err = a.SubmitCreateChannel(ctx, SubmitCreateChannelInput{Owner: "alice", Name: "general"})
	require.NoError(t, err)
	assert.Equal(t, "c-1", r.TxID)

	r, err = a.SubmitFeeTransfer(ctx, SubmitFeeTransferInput{From: "alice", Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, "t-1", r.TxID)

	r, err = a.SubmitRevokeUser(ctx, SubmitRevokeUserInput{UserID: "alice", Reason: "test"})
	require.NoError(t, err)
	assert.Equal(t, "v-1", r.TxID)

	r, err = a.SubmitRefund(ctx, SubmitRefundInput{To: "alice", Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, "t-1", r.TxID)
}

func TestAwaitConfirmation_RoutesByChain(t *testing.T) {
	chatTracker := &fakeTracker{receipt: &ledger.Receipt{TxID: "chat-tx", Success: true, Confirmations: 6}}
	currencyTracker := &fakeTracker{receipt: &ledger.Receipt{TxID: "cur-tx", Success: true, Confirmations: 6}}
	a := NewActivities(&fakeChat{}, &fakeCurrency{}, chatTracker, currencyTracker, nil, discardLogger())

	_, err := a.AwaitConfirmation(context.Background(), AwaitConfirmationInput{Chain: "chat", TxID: "chat-tx"})
	require.NoError(t, err)
	assert.Equal(t, "chat-tx", chatTracker.lastTx)
	assert.Empty(t, currencyTracker.lastTx)

	_, err = a.AwaitConfirmation(context.Background(), AwaitConfirmationInput{Chain: "currency", TxID: "cur-tx"})
	require.NoError(t, err)
	assert.Equal(t, "cur-tx", currencyTracker.lastTx)
}

func TestAwaitConfirmation_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
	}{
		{
			name:     "terminal on-chain failure is non-retryable",
			err:      &ledger.TxFailedError{TxID: "tx-1", Reason: "insufficient funds"},
			wantType: ErrTypeTransactionFailed,
		},
		{
			name:     "confirmation timeout is non-retryable",
			err:      &ledger.TimeoutError{TxID: "tx-1", Waited: time.Minute},
			wantType: ErrTypeConfirmationTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &fakeTracker{err: tt.err}
			a := NewActivities(&fakeChat{}, &fakeCurrency{}, tracker, tracker, nil, discardLogger())

			_, err := a.AwaitConfirmation(context.Background(), AwaitConfirmationInput{Chain: "chat", TxID: "tx-1"})
			require.Error(t, err)

			var appErr *temporal.ApplicationError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantType, appErr.Type())
			assert.True(t, appErr.NonRetryable())
		})
	}
}

func TestAwaitConfirmation_InfrastructureErrorStaysRetryable(t *testing.T) {
	tracker := &fakeTracker{err: &ledger.RPCError{Method: "eth_getTransactionReceipt", Message: "boom"}}
	a := NewActivities(&fakeChat{}, &fakeCurrency{}, tracker, tracker, nil, discardLogger())

	_, err := a.AwaitConfirmation(context.Background(), AwaitConfirmationInput{Chain: "currency", TxID: "tx-2"})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	assert.False(t, errors.As(err, &appErr))
}
