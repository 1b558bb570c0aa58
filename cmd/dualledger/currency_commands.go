package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func currencyCommands() *cli.Command {
	return &cli.Command{
		Name:  "currency",
		Usage: "Currency chain commands",
		Subcommands: []*cli.Command{
			createWalletCommand(),
			balanceCommand(),
			transferCommand(),
			stakeCommand(),
			unstakeCommand(),
			claimRewardsCommand(),
			currencyTransactionsCommand(),
		},
	}
}

func createWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-wallet",
		Usage:     "Create a wallet",
		ArgsUsage: "USER_ID",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "balance",
				Usage: "Initial balance",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("user id is required")
			}

			cl := newClientFromFlags(c)
			wallet, err := cl.CreateWallet(context.Background(), c.Args().Get(0), c.Int64("balance"))
			if err != nil {
				return fmt.Errorf("wallet creation failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(wallet)
			}
			fmt.Printf("wallet %s created, balance %d\n", wallet.UserID, wallet.Balance)
			return nil
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show a wallet's spendable balance",
		ArgsUsage: "USER_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("user id is required")
			}

			cl := newClientFromFlags(c)
			balance, err := cl.Balance(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to fetch balance: %w", err)
			}

			if c.Bool("json") {
				return printJSON(map[string]int64{"balance": balance})
			}
			fmt.Printf("balance: %d\n", balance)
			return nil
		},
	}
}

func transferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Transfer funds and wait for confirmation",
		ArgsUsage: "FROM TO AMOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("from, to, and amount are required")
			}
			amount, err := parseAmount(c.Args().Get(2))
			if err != nil {
				return err
			}

			cl := newClientFromFlags(c)
			result, err := cl.Transfer(context.Background(), c.Args().Get(0), c.Args().Get(1), amount)
			if err != nil {
				return fmt.Errorf("transfer failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result.Receipt)
			}
			printReceipt(result)
			return nil
		},
	}
}

func stakeCommand() *cli.Command {
	return &cli.Command{
		Name:      "stake",
		Usage:     "Lock a stake and wait for confirmation",
		ArgsUsage: "USER_ID AMOUNT",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "lock",
				Usage: "Stake lock duration",
				Value: 30 * 24 * time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("user id and amount are required")
			}
			amount, err := parseAmount(c.Args().Get(1))
			if err != nil {
				return err
			}

			cl := newClientFromFlags(c)
			result, err := cl.Stake(context.Background(), c.Args().Get(0), amount, c.Duration("lock"))
			if err != nil {
				return fmt.Errorf("stake failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result.Receipt)
			}
			printReceipt(result)
			return nil
		},
	}
}

func unstakeCommand() *cli.Command {
	return &cli.Command{
		Name:      "unstake",
		Usage:     "Release a stake and wait for confirmation",
		ArgsUsage: "USER_ID AMOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("user id and amount are required")
			}
			amount, err := parseAmount(c.Args().Get(1))
			if err != nil {
				return err
			}

			cl := newClientFromFlags(c)
			result, err := cl.Unstake(context.Background(), c.Args().Get(0), amount)
			if err != nil {
				return fmt.Errorf("unstake failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result.Receipt)
			}
			printReceipt(result)
			return nil
		},
	}
}

func claimRewardsCommand() *cli.Command {
	return &cli.Command{
		Name:      "claim-rewards",
		Usage:     "Claim pending rewards and wait for confirmation",
		ArgsUsage: "USER_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("user id is required")
			}

			cl := newClientFromFlags(c)
			result, err := cl.ClaimRewards(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("claim failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result.Receipt)
			}
			printReceipt(result)
			return nil
		},
	}
}

func currencyTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Usage:     "List a user's currency chain transactions",
		ArgsUsage: "USER_ID",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("user id is required")
			}

			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			cl := newClientFromFlags(c)
			txs, err := cl.CurrencyTransactions(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			txs = filterTransactions(txs, filters)

			if c.Bool("json") {
				return printJSON(txs)
			}
			printTransactions(txs)
			return nil
		},
	}
}

// parseAmount parses a positive integer amount argument.
func parseAmount(s string) (int64, error) {
	var amount int64
	if _, err := fmt.Sscanf(s, "%d", &amount); err != nil || amount <= 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}
