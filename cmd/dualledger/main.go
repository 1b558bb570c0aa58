package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "dualledger",
		Usage: "Dual-ledger chat and currency chain CLI",
		Description: `A command-line tool for submitting transactions to the chat and
currency chains, tracking them to finality, and running cross-chain
atomic operations.

Use this CLI to register users, move funds, inspect transaction history,
and debug the bridge.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			chatCommands(),
			currencyCommands(),
			bridgeCommands(),
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Transaction history inspection commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					dbTransactionsCommand(),
					dbCrossChainCommand(),
				},
			},
			// NATS receipt streaming commands
			{
				Name:  "nats",
				Usage: "NATS receipt streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			devnetCommands(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "chat-url",
				Usage:   "Chat chain REST endpoint",
				EnvVars: []string{"CHAT_CHAIN_URL"},
				Value:   "http://localhost:8545",
			},
			&cli.StringFlag{
				Name:    "currency-url",
				Usage:   "Currency chain REST endpoint",
				EnvVars: []string{"CURRENCY_CHAIN_URL"},
				Value:   "http://localhost:8545",
			},
			&cli.StringFlag{
				Name:    "bridge-url",
				Usage:   "Bridge endpoint",
				EnvVars: []string{"BRIDGE_URL"},
				Value:   "http://localhost:8545",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server host:port",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue for atomic operations",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "dualledger-atomic-ops",
			},
			&cli.Int64Flag{
				Name:    "confirmations",
				Usage:   "Confirmation blocks required for finality",
				EnvVars: []string{"CONFIRMATION_BLOCKS"},
				Value:   6,
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "Confirmation tracking timeout",
				EnvVars: []string{"CONFIRMATION_TIMEOUT"},
				Value:   ledgerDefaultTimeout,
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Delay between receipt polls",
				EnvVars: []string{"POLL_INTERVAL"},
				Value:   ledgerDefaultInterval,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
