// Package db persists transaction outcomes and cross-chain records to
// Postgres. The store is a plain pgx layer: every receipt a tracker
// finalizes and every coordinator record can be written here for audit
// and replay.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Schema is the DDL for the store's tables. Migrate applies it; every
// statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS transactions (
	chain          TEXT        NOT NULL,
	tx_id          TEXT        NOT NULL,
	tx_hash        TEXT,
	sender         TEXT        NOT NULL DEFAULT '',
	status         TEXT        NOT NULL,
	block_height   BIGINT      NOT NULL DEFAULT 0,
	confirmations  BIGINT      NOT NULL DEFAULT 0,
	error          TEXT        NOT NULL DEFAULT '',
	submitted_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	finalized_at   TIMESTAMPTZ,
	PRIMARY KEY (chain, tx_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_sender
	ON transactions (chain, sender, submitted_at DESC);

CREATE TABLE IF NOT EXISTS cross_chain_transactions (
	id                TEXT        PRIMARY KEY,
	operation         TEXT        NOT NULL,
	user_id           TEXT        NOT NULL,
	chat_chain_tx     TEXT        NOT NULL DEFAULT '',
	currency_chain_tx TEXT        NOT NULL DEFAULT '',
	status            TEXT        NOT NULL,
	error             TEXT        NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	finalized_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_cross_chain_user
	ON cross_chain_transactions (user_id, created_at DESC);
`

// Migrate applies the schema. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Transaction represents a tracked ledger transaction in our system.
type Transaction struct {
	Chain         string
	TxID          string
	TxHash        *string
	Sender        string
	Status        string
	BlockHeight   int64
	Confirmations int64
	Error         string
	SubmittedAt   time.Time
	FinalizedAt   *time.Time
}

// UpsertTransactionParams contains the parameters for recording a
// transaction outcome. Upserting the same tx id updates status,
// confirmations, and finalization.
type UpsertTransactionParams struct {
	Chain         string
	TxID          string
	TxHash        *string
	Sender        string
	Status        string
	BlockHeight   int64
	Confirmations int64
	Error         string
	FinalizedAt   *time.Time
}

// UpsertTransaction inserts or updates a transaction record.
func (s *Store) UpsertTransaction(ctx context.Context, params UpsertTransactionParams) (*Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transactions
			(chain, tx_id, tx_hash, sender, status, block_height, confirmations, error, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chain, tx_id) DO UPDATE SET
			tx_hash       = COALESCE(EXCLUDED.tx_hash, transactions.tx_hash),
			status        = EXCLUDED.status,
			block_height  = EXCLUDED.block_height,
			confirmations = EXCLUDED.confirmations,
			error         = EXCLUDED.error,
			finalized_at  = COALESCE(transactions.finalized_at, EXCLUDED.finalized_at)
		RETURNING chain, tx_id, tx_hash, sender, status, block_height, confirmations, error, submitted_at, finalized_at`,
		params.Chain, params.TxID, params.TxHash, params.Sender, params.Status,
		params.BlockHeight, params.Confirmations, params.Error, params.FinalizedAt,
	)
	return scanTransaction(row)
}

// GetTransaction retrieves a transaction by chain and tx id.
// Returns (nil, nil) when no record exists.
func (s *Store) GetTransaction(ctx context.Context, chain, txID string) (*Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT chain, tx_id, tx_hash, sender, status, block_height, confirmations, error, submitted_at, finalized_at
		FROM transactions
		WHERE chain = $1 AND tx_id = $2`,
		chain, txID,
	)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return txn, err
}

// ListTransactionsBySenderParams contains pagination parameters.
type ListTransactionsBySenderParams struct {
	Chain  string
	Sender string
	Limit  int32
	Offset int32
}

// ListTransactionsBySender retrieves transactions for a sender with
// pagination, most recent first.
func (s *Store) ListTransactionsBySender(ctx context.Context, params ListTransactionsBySenderParams) ([]*Transaction, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT chain, tx_id, tx_hash, sender, status, block_height, confirmations, error, submitted_at, finalized_at
		FROM transactions
		WHERE chain = $1 AND sender = $2
		ORDER BY submitted_at DESC
		LIMIT $3 OFFSET $4`,
		params.Chain, params.Sender, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// CountTransactionsBySender counts transactions for a sender on a chain.
func (s *Store) CountTransactionsBySender(ctx context.Context, chain, sender string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE chain = $1 AND sender = $2`,
		chain, sender,
	).Scan(&count)
	return count, err
}

// CrossChainTransaction represents a coordinated two-chain operation.
type CrossChainTransaction struct {
	ID              string
	Operation       string
	UserID          string
	ChatChainTx     string
	CurrencyChainTx string
	Status          string
	Error           string
	CreatedAt       time.Time
	FinalizedAt     *time.Time
}

// UpsertCrossChainTransaction inserts or updates a cross-chain record.
// A record that already reached a terminal finalization keeps its
// original finalized_at.
func (s *Store) UpsertCrossChainTransaction(ctx context.Context, txn *CrossChainTransaction) (*CrossChainTransaction, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO cross_chain_transactions
			(id, operation, user_id, chat_chain_tx, currency_chain_tx, status, error, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			chat_chain_tx     = EXCLUDED.chat_chain_tx,
			currency_chain_tx = EXCLUDED.currency_chain_tx,
			status            = EXCLUDED.status,
			error             = EXCLUDED.error,
			finalized_at      = COALESCE(cross_chain_transactions.finalized_at, EXCLUDED.finalized_at)
		RETURNING id, operation, user_id, chat_chain_tx, currency_chain_tx, status, error, created_at, finalized_at`,
		txn.ID, txn.Operation, txn.UserID, txn.ChatChainTx, txn.CurrencyChainTx,
		txn.Status, txn.Error, txn.FinalizedAt,
	)
	return scanCrossChain(row)
}

// GetCrossChainTransaction retrieves a cross-chain record by id.
// Returns (nil, nil) when no record exists.
func (s *Store) GetCrossChainTransaction(ctx context.Context, id string) (*CrossChainTransaction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, operation, user_id, chat_chain_tx, currency_chain_tx, status, error, created_at, finalized_at
		FROM cross_chain_transactions
		WHERE id = $1`,
		id,
	)
	txn, err := scanCrossChain(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return txn, err
}

// ListCrossChainTransactionsByUser retrieves a user's cross-chain records,
// most recent first.
func (s *Store) ListCrossChainTransactionsByUser(ctx context.Context, userID string) ([]*CrossChainTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, operation, user_id, chat_chain_tx, currency_chain_tx, status, error, created_at, finalized_at
		FROM cross_chain_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*CrossChainTransaction
	for rows.Next() {
		txn, err := scanCrossChain(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var txn Transaction
	err := row.Scan(
		&txn.Chain, &txn.TxID, &txn.TxHash, &txn.Sender, &txn.Status,
		&txn.BlockHeight, &txn.Confirmations, &txn.Error,
		&txn.SubmittedAt, &txn.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func scanCrossChain(row pgx.Row) (*CrossChainTransaction, error) {
	var txn CrossChainTransaction
	err := row.Scan(
		&txn.ID, &txn.Operation, &txn.UserID, &txn.ChatChainTx, &txn.CurrencyChainTx,
		&txn.Status, &txn.Error, &txn.CreatedAt, &txn.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
