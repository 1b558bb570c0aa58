package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func chatCommands() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat chain commands",
		Subcommands: []*cli.Command{
			registerUserCommand(),
			sendMessageCommand(),
			createChannelCommand(),
			postMessageCommand(),
			reputationCommand(),
			chatTransactionsCommand(),
		},
	}
}

func registerUserCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register a user identity and wait for confirmation",
		ArgsUsage: "USER_ID PUBLIC_KEY",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "username",
				Usage: "Display name (defaults to the user id)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("user id and public key are required")
			}
			userID := c.Args().Get(0)
			publicKey := c.Args().Get(1)
			username := c.String("username")
			if username == "" {
				username = userID
			}

			cl := newClientFromFlags(c)
			if !c.Bool("json") {
				fmt.Fprintf(os.Stderr, "Registering %s, waiting for confirmation...\n", userID)
			}

			result, err := cl.RegisterUser(context.Background(), userID, username, publicKey)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result.Receipt)
			}
			printReceipt(result)
			return nil
		},
	}
}

func sendMessageCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Record a direct message and wait for confirmation",
		ArgsUsage: "SENDER RECIPIENT CONTENT_HASH",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "payload-size",
				Usage: "Size of the off-chain payload in bytes",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("sender, recipient, and content hash are required")
			}

			cl := newClientFromFlags(c)
			result, err := cl.SendDirectMessage(context.Background(),
				c.Args().Get(0), c.Args().Get(1), c.Args().Get(2), c.Int("payload-size"))
			if err != nil {
				return fmt.Errorf("message send failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result.Receipt)
			}
			printReceipt(result)
			return nil
		},
	}
}

func createChannelCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-channel",
		Usage:     "Create a channel (no fee) and wait for confirmation",
		ArgsUsage: "OWNER NAME",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("owner and channel name are required")
			}

			cl := newClientFromFlags(c)
			result, err := cl.CreateChannel(context.Background(), c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("channel creation failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result.Receipt)
			}
			printReceipt(result)
			return nil
		},
	}
}

func postMessageCommand() *cli.Command {
	return &cli.Command{
		Name:      "post",
		Usage:     "Record a channel message and wait for confirmation",
		ArgsUsage: "SENDER CHANNEL_ID CONTENT_HASH",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "payload-size",
				Usage: "Size of the off-chain payload in bytes",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("sender, channel id, and content hash are required")
			}

			cl := newClientFromFlags(c)
			result, err := cl.PostToChannel(context.Background(),
				c.Args().Get(0), c.Args().Get(1), c.Args().Get(2), c.Int("payload-size"))
			if err != nil {
				return fmt.Errorf("channel post failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result.Receipt)
			}
			printReceipt(result)
			return nil
		},
	}
}

func reputationCommand() *cli.Command {
	return &cli.Command{
		Name:      "reputation",
		Usage:     "Show a user's reputation score",
		ArgsUsage: "USER_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("user id is required")
			}

			cl := newClientFromFlags(c)
			score, err := cl.Reputation(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to fetch reputation: %w", err)
			}

			if c.Bool("json") {
				return printJSON(map[string]int64{"reputation": score})
			}
			fmt.Printf("reputation: %d\n", score)
			return nil
		},
	}
}

func chatTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Usage:     "List a user's chat chain transactions",
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
			txs, err := cl.ChatTransactions(context.Background(), c.Args().Get(0))
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
