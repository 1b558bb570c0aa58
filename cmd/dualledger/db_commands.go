package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/dchatlabs/dualledger/service/db"
)

// openStore connects to the database named by --database-url and returns
// the store plus the pool for the caller to close.
func openStore(c *cli.Context) (*db.Store, *pgxpool.Pool, error) {
	url := c.String("database-url")
	if url == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL or --database-url)")
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db.NewStore(pool), pool, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the transaction history schema",
		Action: func(c *cli.Context) error {
			store, pool, err := openStore(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func dbTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Usage:     "List persisted transactions for a sender on one chain",
		ArgsUsage: "CHAIN SENDER",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum rows to return",
				Value: 50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Rows to skip",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("chain (chat|currency) and sender are required")
			}
			chainName := c.Args().Get(0)
			sender := c.Args().Get(1)
			if chainName != "chat" && chainName != "currency" {
				return fmt.Errorf("unknown chain %q, expected chat or currency", chainName)
			}

			store, pool, err := openStore(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx := context.Background()
			transactions, err := store.ListTransactionsBySender(ctx, db.ListTransactionsBySenderParams{
				Chain:  chainName,
				Sender: sender,
				Limit:  int32(c.Int("limit")),
				Offset: int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if c.Bool("json") {
				return printJSON(transactions)
			}

			total, err := store.CountTransactionsBySender(ctx, chainName, sender)
			if err != nil {
				return fmt.Errorf("failed to count transactions: %w", err)
			}
			if len(transactions) == 0 {
				fmt.Println("no transactions")
				return nil
			}
			for _, txn := range transactions {
				finalized := "-"
				if txn.FinalizedAt != nil {
					finalized = txn.FinalizedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%-36s  %-10s  conf=%-3d  %s\n", txn.TxID, txn.Status, txn.Confirmations, finalized)
			}
			fmt.Printf("showing %d of %d\n", len(transactions), total)
			return nil
		},
	}
}

func dbCrossChainCommand() *cli.Command {
	return &cli.Command{
		Name:      "cross-chain",
		Usage:     "List persisted cross-chain operations for a user",
		ArgsUsage: "USER_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("user id is required")
			}

			store, pool, err := openStore(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			records, err := store.ListCrossChainTransactionsByUser(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to list cross-chain transactions: %w", err)
			}

			if c.Bool("json") {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("no cross-chain transactions")
				return nil
			}
			for _, record := range records {
				fmt.Printf("%-36s  %-26s  %-24s  chat=%s currency=%s\n",
					record.ID, record.Operation, record.Status, record.ChatChainTx, record.CurrencyChainTx)
			}
			return nil
		},
	}
}
