// Package devnet is an in-process development stand-in for the chat chain,
// the currency chain, and the bridge service. It exposes the same REST and
// JSON-RPC surface the real ledgers do, plus an advance-block control so
// tests and local sandboxes can drive confirmations deterministically.
package devnet

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dchatlabs/dualledger/service/bridge"
	"github.com/dchatlabs/dualledger/service/chain"
)

// ChainState is one in-memory ledger. Transactions accumulate
// confirmations as blocks advance: advancing by N adds exactly N
// confirmations to every non-failed transaction, and a pending
// transaction flips to confirmed once it reaches the threshold.
type ChainState struct {
	mu        sync.RWMutex
	name      string
	threshold int64
	block     int64
	txs       map[string]*chain.Transaction
	order     []string
}

// NewChainState creates a ledger starting at block 1.
func NewChainState(name string, threshold int64) *ChainState {
	if threshold <= 0 {
		threshold = 6
	}
	return &ChainState{
		name:      name,
		threshold: threshold,
		block:     1,
		txs:       make(map[string]*chain.Transaction),
	}
}

// Submit records a new pending transaction and returns it. The error
// argument, when non-empty, records the transaction as executed-and-failed
// instead (the ledger accepted it but execution was rejected).
func (s *ChainState) Submit(txType, sender, recipient string, amount int64, data map[string]any, execErr string) *chain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &chain.Transaction{
		ID:          uuid.New().String(),
		TxType:      txType,
		Sender:      sender,
		Recipient:   recipient,
		Amount:      amount,
		Data:        data,
		Status:      chain.TxStatusPending,
		BlockHeight: s.block,
		CreatedAt:   time.Now().Unix(),
	}
	if execErr != "" {
		tx.Status = chain.TxStatusFailed
		tx.Error = execErr
	}
	s.txs[tx.ID] = tx
	s.order = append(s.order, tx.ID)
	return cloneTx(tx)
}

// Get returns a copy of a transaction, or nil.
func (s *ChainState) Get(txID string) *chain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[txID]
	if !ok {
		return nil
	}
	return cloneTx(tx)
}

// BySender returns copies of all transactions submitted by sender, in
// submission order.
func (s *ChainState) BySender(sender string) []*chain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*chain.Transaction
	for _, id := range s.order {
		if tx := s.txs[id]; tx.Sender == sender {
			out = append(out, cloneTx(tx))
		}
	}
	return out
}

// Block returns the current block height.
func (s *ChainState) Block() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.block
}

// AdvanceBlock advances the chain by n blocks. Every non-failed
// transaction gains exactly n confirmations; pending transactions that
// reach the threshold become confirmed.
func (s *ChainState) AdvanceBlock(n int64) int64 {
	if n <= 0 {
		return s.Block()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block += n
	for _, tx := range s.txs {
		if tx.Status == chain.TxStatusFailed {
			continue
		}
		tx.Confirmations += n
		if tx.Status == chain.TxStatusPending && tx.Confirmations >= s.threshold {
			tx.Status = chain.TxStatusConfirmed
		}
	}
	return s.block
}

func cloneTx(tx *chain.Transaction) *chain.Transaction {
	cp := *tx
	return &cp
}

// WalletBook is the currency chain's account state. Transfer and stake
// effects apply at submission; a rejected execution surfaces as a failed
// transaction instead of mutating balances.
type WalletBook struct {
	mu      sync.RWMutex
	wallets map[string]*chain.Wallet
}

// NewWalletBook creates an empty account book with a funded treasury.
func NewWalletBook() *WalletBook {
	return &WalletBook{
		wallets: map[string]*chain.Wallet{
			"treasury": {UserID: "treasury", Balance: 1_000_000_000},
		},
	}
}

// Create creates a wallet. Creating an existing wallet is an error.
func (b *WalletBook) Create(userID string, initialBalance int64) (*chain.Wallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.wallets[userID]; ok {
		return nil, fmt.Errorf("wallet for %s already exists", userID)
	}
	if initialBalance < 0 {
		return nil, fmt.Errorf("initial balance must be non-negative")
	}
	w := &chain.Wallet{UserID: userID, Balance: initialBalance}
	b.wallets[userID] = w
	cp := *w
	return &cp, nil
}

// Get returns a copy of a wallet, or nil.
func (b *WalletBook) Get(userID string) *chain.Wallet {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.wallets[userID]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

// Transfer moves tokens between wallets. Returns an execution error string
// when funds are insufficient or a wallet is missing.
func (b *WalletBook) Transfer(from, to string, amount int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	src, ok := b.wallets[from]
	if !ok {
		return fmt.Sprintf("unknown wallet %s", from)
	}
	if amount <= 0 {
		return "amount must be positive"
	}
	if src.Balance < amount {
		return "insufficient funds"
	}
	dst, ok := b.wallets[to]
	if !ok {
		dst = &chain.Wallet{UserID: to}
		b.wallets[to] = dst
	}
	src.Balance -= amount
	dst.Balance += amount
	return ""
}

// Stake locks tokens in a wallet. Returns an execution error string on
// insufficient balance.
func (b *WalletBook) Stake(userID string, amount int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.wallets[userID]
	if !ok {
		return fmt.Sprintf("unknown wallet %s", userID)
	}
	if amount <= 0 {
		return "amount must be positive"
	}
	if w.Balance < amount {
		return "insufficient stake"
	}
	w.Balance -= amount
	w.Staked += amount
	return ""
}

// Unstake releases staked tokens back to the liquid balance.
func (b *WalletBook) Unstake(userID string, amount int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.wallets[userID]
	if !ok {
		return fmt.Sprintf("unknown wallet %s", userID)
	}
	if amount <= 0 || w.Staked < amount {
		return "invalid unstake amount"
	}
	w.Staked -= amount
	w.Balance += amount
	return ""
}

// ClaimRewards moves pending rewards into the liquid balance.
func (b *WalletBook) ClaimRewards(userID string) (int64, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.wallets[userID]
	if !ok {
		return 0, fmt.Sprintf("unknown wallet %s", userID)
	}
	claimed := w.RewardsPending
	w.Balance += claimed
	w.RewardsPending = 0
	return claimed, ""
}

// bridgeBook tracks the devnet bridge's cross-chain records.
type bridgeBook struct {
	mu  sync.RWMutex
	txs map[string]*bridge.Transaction
}

func newBridgeBook() *bridgeBook {
	return &bridgeBook{txs: make(map[string]*bridge.Transaction)}
}

func (b *bridgeBook) put(tx *bridge.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs[tx.ID] = tx
}

func (b *bridgeBook) get(id string) *bridge.Transaction {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tx, ok := b.txs[id]
	if !ok {
		return nil
	}
	cp := *tx
	return &cp
}

func (b *bridgeBook) byUser(userID string) []*bridge.Transaction {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*bridge.Transaction
	for _, tx := range b.txs {
		if tx.UserID == userID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out
}

// update applies fn under the lock and returns the updated copy.
func (b *bridgeBook) update(id string, fn func(*bridge.Transaction)) *bridge.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.txs[id]
	if !ok {
		return nil
	}
	fn(tx)
	cp := *tx
	return &cp
}
