package temporal

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/dchatlabs/dualledger/service/bridge"
)

// AtomicOperationResult is the terminal state of a cross-chain workflow.
type AtomicOperationResult struct {
	Operation        string                  `json:"operation"`
	UserID           string                  `json:"user_id"`
	ChatChainTx      string                  `json:"chat_chain_tx,omitempty"`
	CurrencyChainTx  string                  `json:"currency_chain_tx,omitempty"`
	CompensationTx   string                  `json:"compensation_tx,omitempty"`
	Status           bridge.CrossChainStatus `json:"status"`
	Error            *string                 `json:"error,omitempty"`
	FinalizedAt      time.Time               `json:"finalized_at"`
}

// ConfirmationPolicy carries the tracking parameters both workflows use.
type ConfirmationPolicy struct {
	Threshold int64         `json:"threshold"`
	Timeout   time.Duration `json:"timeout"`
	Interval  time.Duration `json:"interval"`
}

// AtomicRegistrationInput contains input for durable user registration.
type AtomicRegistrationInput struct {
	UserID       string             `json:"user_id"`
	Username     string             `json:"username"`
	PublicKey    string             `json:"public_key"`
	StakeAmount  int64              `json:"stake_amount"`
	Confirmation ConfirmationPolicy `json:"confirmation"`
}

// AtomicChannelInput contains input for durable channel creation.
type AtomicChannelInput struct {
	Owner        string             `json:"owner"`
	ChannelID    string             `json:"channel_id"`
	ChannelName  string             `json:"channel_name"`
	CreationFee  int64              `json:"creation_fee"`
	Confirmation ConfirmationPolicy `json:"confirmation"`
}

// legActivityOptions configures the submit/await activities. The await
// timeout has to outlive confirmation tracking.
func legActivityOptions(ctx workflow.Context, policy ConfirmationPolicy) workflow.Context {
	timeout := policy.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout + time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})
}

// AtomicRegistrationWorkflow registers a user on the chat chain and
// stakes currency atomically. If the stake leg fails after the identity
// leg confirmed, the registration is revoked and the operation reports
// rolled_back; an unconfirmed compensation downgrades that to failed.
func AtomicRegistrationWorkflow(ctx workflow.Context, input AtomicRegistrationInput) (*AtomicOperationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("AtomicRegistrationWorkflow started",
		"user_id", input.UserID,
		"stake_amount", input.StakeAmount,
	)

	result := &AtomicOperationResult{
		Operation: bridge.OpRegisterUserWithStake,
		UserID:    input.UserID,
		Status:    bridge.StatusPending,
	}
	ctx = legActivityOptions(ctx, input.Confirmation)

	// Provision the wallet before any leg runs. Seed enough balance to
	// cover the stake with headroom for later fees.
	var walletResult *CreateWalletResult
	err := workflow.ExecuteActivity(ctx, "CreateWallet", CreateWalletInput{
		UserID:         input.UserID,
		InitialBalance: input.StakeAmount * 2,
	}).Get(ctx, &walletResult)
	if err != nil {
		return failResult(ctx, result, fmt.Errorf("wallet provisioning failed: %w", err))
	}

	// Leg 1: identity on the chat chain.
	var chatSubmit *SubmitResult
	err = workflow.ExecuteActivity(ctx, "SubmitRegisterUser", SubmitRegisterUserInput{
		UserID:    input.UserID,
		Username:  input.Username,
		PublicKey: input.PublicKey,
	}).Get(ctx, &chatSubmit)
	if err != nil {
		return failResult(ctx, result, fmt.Errorf("registration submission failed: %w", err))
	}
	result.ChatChainTx = chatSubmit.TxID

	err = awaitLeg(ctx, "chat", chatSubmit.TxID, input.Confirmation)
	if err != nil {
		// Nothing has landed on the currency chain yet; no compensation.
		return failResult(ctx, result, fmt.Errorf("registration leg failed: %w", err))
	}
	result.Status = bridge.StatusChatChainConfirmed
	logger.Info("identity leg confirmed", "tx_id", chatSubmit.TxID)

	// Leg 2: stake on the currency chain.
	var stakeSubmit *SubmitResult
	err = workflow.ExecuteActivity(ctx, "SubmitStake", SubmitStakeInput{
		UserID: input.UserID,
		Amount: input.StakeAmount,
	}).Get(ctx, &stakeSubmit)
	if err == nil {
		result.CurrencyChainTx = stakeSubmit.TxID
		err = awaitLeg(ctx, "currency", stakeSubmit.TxID, input.Confirmation)
	}
	if err != nil {
		logger.Warn("stake leg failed, revoking registration",
			"user_id", input.UserID,
			"error", err,
		)
		return compensate(ctx, result, err, func() (string, error) {
			var comp *SubmitResult
			compErr := workflow.ExecuteActivity(ctx, "SubmitRevokeUser", SubmitRevokeUserInput{
				UserID: input.UserID,
				Reason: "stake leg failed",
			}).Get(ctx, &comp)
			if compErr != nil {
				return "", compErr
			}
			if compErr := awaitLeg(ctx, "chat", comp.TxID, input.Confirmation); compErr != nil {
				return comp.TxID, compErr
			}
			return comp.TxID, nil
		})
	}

	result.Status = bridge.StatusAtomicSuccess
	result.FinalizedAt = workflow.Now(ctx)
	logger.Info("registration completed atomically",
		"user_id", input.UserID,
		"chat_tx", result.ChatChainTx,
		"currency_tx", result.CurrencyChainTx,
	)
	return result, nil
}

// AtomicChannelWorkflow charges the creation fee on the currency chain
// and creates the channel on the chat chain atomically. A failed channel
// leg refunds the fee.
func AtomicChannelWorkflow(ctx workflow.Context, input AtomicChannelInput) (*AtomicOperationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("AtomicChannelWorkflow started",
		"owner", input.Owner,
		"channel_name", input.ChannelName,
		"creation_fee", input.CreationFee,
	)

	result := &AtomicOperationResult{
		Operation: bridge.OpCreateChannelWithFee,
		UserID:    input.Owner,
		Status:    bridge.StatusPending,
	}
	ctx = legActivityOptions(ctx, input.Confirmation)

	// Leg 1: fee payment on the currency chain.
	var feeSubmit *SubmitResult
	err := workflow.ExecuteActivity(ctx, "SubmitFeeTransfer", SubmitFeeTransferInput{
		From:   input.Owner,
		Amount: input.CreationFee,
	}).Get(ctx, &feeSubmit)
	if err != nil {
		return failResult(ctx, result, fmt.Errorf("fee submission failed: %w", err))
	}
	result.CurrencyChainTx = feeSubmit.TxID

	err = awaitLeg(ctx, "currency", feeSubmit.TxID, input.Confirmation)
	if err != nil {
		return failResult(ctx, result, fmt.Errorf("fee leg failed: %w", err))
	}
	result.Status = bridge.StatusCurrencyChainConfirmed
	logger.Info("fee leg confirmed", "tx_id", feeSubmit.TxID)

	// Leg 2: channel creation on the chat chain.
	var channelSubmit *SubmitResult
	err = workflow.ExecuteActivity(ctx, "SubmitCreateChannel", SubmitCreateChannelInput{
		Owner:     input.Owner,
		ChannelID: input.ChannelID,
		Name:      input.ChannelName,
	}).Get(ctx, &channelSubmit)
	if err == nil {
		result.ChatChainTx = channelSubmit.TxID
		err = awaitLeg(ctx, "chat", channelSubmit.TxID, input.Confirmation)
	}
	if err != nil {
		logger.Warn("channel leg failed, refunding fee",
			"owner", input.Owner,
			"error", err,
		)
		return compensate(ctx, result, err, func() (string, error) {
			var comp *SubmitResult
			compErr := workflow.ExecuteActivity(ctx, "SubmitRefund", SubmitRefundInput{
				To:     input.Owner,
				Amount: input.CreationFee,
			}).Get(ctx, &comp)
			if compErr != nil {
				return "", compErr
			}
			if compErr := awaitLeg(ctx, "currency", comp.TxID, input.Confirmation); compErr != nil {
				return comp.TxID, compErr
			}
			return comp.TxID, nil
		})
	}

	result.Status = bridge.StatusAtomicSuccess
	result.FinalizedAt = workflow.Now(ctx)
	logger.Info("channel created atomically",
		"owner", input.Owner,
		"chat_tx", result.ChatChainTx,
		"currency_tx", result.CurrencyChainTx,
	)
	return result, nil
}

// awaitLeg runs the AwaitConfirmation activity for one leg.
func awaitLeg(ctx workflow.Context, chainName, txID string, policy ConfirmationPolicy) error {
	var awaitResult *AwaitConfirmationResult
	return workflow.ExecuteActivity(ctx, "AwaitConfirmation", AwaitConfirmationInput{
		Chain:     chainName,
		TxID:      txID,
		Threshold: policy.Threshold,
		Timeout:   policy.Timeout,
		Interval:  policy.Interval,
	}).Get(ctx, &awaitResult)
}

// compensate runs the compensating transaction and downgrades the result
// to rolled_back, or failed when the compensation itself did not confirm.
func compensate(ctx workflow.Context, result *AtomicOperationResult, legErr error, run func() (string, error)) (*AtomicOperationResult, error) {
	logger := workflow.GetLogger(ctx)

	compTxID, compErr := run()
	result.CompensationTx = compTxID
	result.FinalizedAt = workflow.Now(ctx)

	if compErr != nil {
		logger.Error("compensation failed",
			"user_id", result.UserID,
			"error", compErr,
		)
		result.Status = bridge.StatusFailed
		msg := fmt.Sprintf("%v (compensation failed: %v)", legErr, compErr)
		result.Error = &msg
		return result, nil
	}

	result.Status = bridge.StatusRolledBack
	msg := legErr.Error()
	result.Error = &msg
	return result, nil
}

// failResult finalizes a result as failed without compensation.
func failResult(ctx workflow.Context, result *AtomicOperationResult, err error) (*AtomicOperationResult, error) {
	result.Status = bridge.StatusFailed
	msg := err.Error()
	result.Error = &msg
	result.FinalizedAt = workflow.Now(ctx)
	return result, nil
}

// IsTerminalLegError reports whether a leg error indicates a terminal
// on-chain outcome rather than an infrastructure fault.
func IsTerminalLegError(err error) bool {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Type() == ErrTypeTransactionFailed || appErr.Type() == ErrTypeConfirmationTimeout
}
