package chain

import (
	"github.com/dchatlabs/dualledger/service/ledger"
)

// Transaction statuses reported by the chat and currency chains.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// Transaction is a per-ledger transaction record as both chains report it.
// Confirmations is monotonically non-decreasing once the transaction is
// included: advancing the chain by N blocks adds N confirmations to every
// non-failed transaction. CreatedAt is Unix seconds on the wire.
type Transaction struct {
	ID            string         `json:"id"`
	TxType        string         `json:"tx_type"`
	Sender        string         `json:"sender"`
	Recipient     string         `json:"recipient,omitempty"`
	Amount        int64          `json:"amount,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Status        string         `json:"status"`
	Confirmations int64          `json:"confirmations"`
	BlockHeight   int64          `json:"block_height"`
	CreatedAt     int64          `json:"created_at"`
	Error         string         `json:"error,omitempty"`
}

// Wallet is the currency-chain account record. All balances are
// non-negative.
type Wallet struct {
	UserID         string `json:"user_id"`
	Balance        int64  `json:"balance"`
	Staked         int64  `json:"staked"`
	RewardsPending int64  `json:"rewards_pending"`
}

// Chat chain transaction types.
const (
	ChatTxRegisterUser      = "register_user"
	ChatTxSendDirectMessage = "send_direct_message"
	ChatTxCreateChannel     = "create_channel"
	ChatTxPostToChannel     = "post_to_channel"
	ChatTxRevokeUser        = "revoke_user"
)

// Currency chain transaction types.
const (
	CurrencyTxPayment      = "payment"
	CurrencyTxStake        = "stake"
	CurrencyTxUnstake      = "unstake"
	CurrencyTxReward       = "reward"
	CurrencyTxCreateWallet = "create_wallet"
)

// receiptFromTransaction maps the chain's transaction record onto the
// common receipt shape the tracker polls against. A failed transaction
// always carries a non-empty error string so the success/error exclusivity
// invariant holds.
func receiptFromTransaction(tx *Transaction) *ledger.Receipt {
	r := &ledger.Receipt{
		TxID:          tx.ID,
		Success:       tx.Status == TxStatusConfirmed,
		BlockHeight:   tx.BlockHeight,
		Confirmations: tx.Confirmations,
	}
	if tx.Status == TxStatusFailed {
		r.Error = tx.Error
		if r.Error == "" {
			r.Error = "transaction failed"
		}
	}
	return r
}
