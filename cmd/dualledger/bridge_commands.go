package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/dchatlabs/dualledger/service/bridge"
	"github.com/dchatlabs/dualledger/service/temporal"
)

func bridgeCommands() *cli.Command {
	return &cli.Command{
		Name:  "bridge",
		Usage: "Cross-chain atomic operation commands",
		Subcommands: []*cli.Command{
			registerWithStakeCommand(),
			createChannelWithFeeCommand(),
			bridgeStatusCommand(),
			bridgeTransactionsCommand(),
			bridgeAwaitCommand(),
		},
	}
}

// newBridgeClient builds the HTTP client for a remote bridge.
func newBridgeClient(c *cli.Context) *bridge.Client {
	return bridge.NewClient(c.String("bridge-url"), nil, nil, errorLogger())
}

// confirmationPolicyFromFlags maps the global tracking flags onto the
// workflow confirmation policy.
func confirmationPolicyFromFlags(c *cli.Context) temporal.ConfirmationPolicy {
	return temporal.ConfirmationPolicy{
		Threshold: c.Int64("confirmations"),
		Timeout:   c.Duration("timeout"),
		Interval:  c.Duration("poll-interval"),
	}
}

// runDurable starts a workflow on the Temporal server and blocks for its
// terminal result. Leg failures surface as a printed record with a
// non-zero exit; infrastructure errors surface as plain errors.
func runDurable(c *cli.Context, start func(ctx context.Context, tc *temporal.Client) (string, error)) error {
	tc, err := temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		errorLogger(),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to temporal: %w", err)
	}
	defer tc.Close()

	ctx := context.Background()
	workflowID, err := start(ctx, tc)
	if err != nil {
		return err
	}
	if !c.Bool("json") {
		fmt.Fprintf(os.Stderr, "Workflow %s started, waiting for result...\n", workflowID)
	}

	result, err := tc.AwaitResult(ctx, workflowID)
	if err != nil {
		if temporal.IsTerminalLegError(err) {
			return cli.Exit(fmt.Sprintf("operation failed: %v", err), 1)
		}
		return err
	}
	return reportDurable(c, result)
}

// reportDurable prints a workflow's terminal result; any status other
// than atomic_success exits non-zero with the record still printed.
func reportDurable(c *cli.Context, result *temporal.AtomicOperationResult) error {
	if c.Bool("json") {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Println("────────────────────────────────────────────────────────────")
		fmt.Printf("Status:       %s\n", result.Status)
		fmt.Printf("Operation:    %s\n", result.Operation)
		if result.ChatChainTx != "" {
			fmt.Printf("Chat Leg:     %s\n", result.ChatChainTx)
		}
		if result.CurrencyChainTx != "" {
			fmt.Printf("Currency Leg: %s\n", result.CurrencyChainTx)
		}
		if result.CompensationTx != "" {
			fmt.Printf("Compensation: %s\n", result.CompensationTx)
		}
		if result.Error != nil {
			fmt.Printf("Error:        %s\n", *result.Error)
		}
		fmt.Println("────────────────────────────────────────────────────────────")
	}

	if result.Status != bridge.StatusAtomicSuccess {
		reason := string(result.Status)
		if result.Error != nil {
			reason = *result.Error
		}
		return cli.Exit(fmt.Sprintf("operation %s: %s", result.Status, reason), 1)
	}
	return nil
}

// reportAtomic prints the terminal record of a cross-chain operation.
// Rolled-back and failed operations exit non-zero with the record still
// printed, so scripts can inspect what happened.
func reportAtomic(c *cli.Context, record *bridge.Transaction, err error) error {
	var atomicErr *bridge.AtomicError
	if err != nil && !errors.As(err, &atomicErr) {
		return err
	}

	if c.Bool("json") {
		if printErr := printJSON(record); printErr != nil {
			return printErr
		}
	} else if record != nil {
		fmt.Println("────────────────────────────────────────────────────────────")
		fmt.Printf("Status:       %s\n", record.Status)
		fmt.Printf("Operation:    %s\n", record.Operation)
		fmt.Printf("Bridge Tx:    %s\n", record.ID)
		if record.ChatChainTx != "" {
			fmt.Printf("Chat Leg:     %s\n", record.ChatChainTx)
		}
		if record.CurrencyChainTx != "" {
			fmt.Printf("Currency Leg: %s\n", record.CurrencyChainTx)
		}
		if record.Error != "" {
			fmt.Printf("Error:        %s\n", record.Error)
		}
		fmt.Println("────────────────────────────────────────────────────────────")
	}

	if atomicErr != nil {
		return cli.Exit(fmt.Sprintf("operation %s: %s", atomicErr.Status, atomicErr.Reason), 1)
	}
	return nil
}

func registerWithStakeCommand() *cli.Command {
	return &cli.Command{
		Name:      "register-with-stake",
		Usage:     "Register a user and lock a stake atomically across both chains",
		ArgsUsage: "USER_ID PUBLIC_KEY STAKE_AMOUNT",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "server",
				Usage: "Delegate coordination to the bridge server instead of coordinating locally",
			},
			&cli.BoolFlag{
				Name:  "durable",
				Usage: "Run the operation as a Temporal workflow that survives client restarts",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("user id, public key, and stake amount are required")
			}
			userID := c.Args().Get(0)
			publicKey := c.Args().Get(1)
			stake, err := parseAmount(c.Args().Get(2))
			if err != nil {
				return err
			}

			ctx := context.Background()
			if !c.Bool("json") {
				fmt.Fprintf(os.Stderr, "Registering %s with stake %d...\n", userID, stake)
			}

			if c.Bool("durable") {
				return runDurable(c, func(ctx context.Context, tc *temporal.Client) (string, error) {
					return tc.StartRegistration(ctx, temporal.AtomicRegistrationInput{
						UserID:       userID,
						Username:     userID,
						PublicKey:    publicKey,
						StakeAmount:  stake,
						Confirmation: confirmationPolicyFromFlags(c),
					})
				})
			}

			if c.Bool("server") {
				bc := newBridgeClient(c)
				record, err := bc.RegisterUserWithStake(ctx, userID, publicKey, stake)
				if err != nil {
					return err
				}
				record, err = bc.Await(ctx, record.ID, c.Duration("timeout"), c.Duration("poll-interval"))
				return reportAtomic(c, record, err)
			}

			cl := newClientFromFlags(c)
			record, err := cl.RegisterUserWithStake(ctx, userID, publicKey, stake)
			return reportAtomic(c, record, err)
		},
	}
}

func createChannelWithFeeCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-channel-with-fee",
		Usage:     "Create a channel and charge the creation fee atomically",
		ArgsUsage: "OWNER CHANNEL_NAME FEE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "server",
				Usage: "Delegate coordination to the bridge server instead of coordinating locally",
			},
			&cli.BoolFlag{
				Name:  "durable",
				Usage: "Run the operation as a Temporal workflow that survives client restarts",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("owner, channel name, and fee are required")
			}
			owner := c.Args().Get(0)
			channelName := c.Args().Get(1)
			fee, err := parseAmount(c.Args().Get(2))
			if err != nil {
				return err
			}

			ctx := context.Background()
			if c.Bool("durable") {
				return runDurable(c, func(ctx context.Context, tc *temporal.Client) (string, error) {
					return tc.StartChannelCreation(ctx, temporal.AtomicChannelInput{
						Owner:        owner,
						ChannelID:    uuid.New().String(),
						ChannelName:  channelName,
						CreationFee:  fee,
						Confirmation: confirmationPolicyFromFlags(c),
					})
				})
			}

			if c.Bool("server") {
				bc := newBridgeClient(c)
				record, err := bc.CreateChannelWithFee(ctx, owner, channelName, fee)
				if err != nil {
					return err
				}
				record, err = bc.Await(ctx, record.ID, c.Duration("timeout"), c.Duration("poll-interval"))
				return reportAtomic(c, record, err)
			}

			cl := newClientFromFlags(c)
			record, err := cl.CreateChannelWithFee(ctx, owner, channelName, fee)
			return reportAtomic(c, record, err)
		},
	}
}

func bridgeStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of a cross-chain operation on the bridge server",
		ArgsUsage: "BRIDGE_TX_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("bridge transaction id is required")
			}

			bc := newBridgeClient(c)
			record, err := bc.Status(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to fetch status: %w", err)
			}
			if record == nil {
				return cli.Exit("transaction not found", 1)
			}
			return reportAtomic(c, record, nil)
		},
	}
}

func bridgeAwaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a cross-chain operation reaches a terminal status",
		ArgsUsage: "BRIDGE_TX_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("bridge transaction id is required")
			}

			bc := newBridgeClient(c)
			record, err := bc.Await(context.Background(), c.Args().Get(0), c.Duration("timeout"), c.Duration("poll-interval"))
			return reportAtomic(c, record, err)
		},
	}
}

func bridgeTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Usage:     "List a user's cross-chain operations on the bridge server",
		ArgsUsage: "USER_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("user id is required")
			}

			bc := newBridgeClient(c)
			records, err := bc.UserTransactions(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if c.Bool("json") {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("no transactions")
				return nil
			}
			for _, record := range records {
				fmt.Printf("%-36s  %-26s  %s\n", record.ID, record.Operation, record.Status)
			}
			return nil
		},
	}
}
