package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/urfave/cli/v2"
)

func devnetCommands() *cli.Command {
	return &cli.Command{
		Name:  "devnet",
		Usage: "Local devnet control commands",
		Subcommands: []*cli.Command{
			{
				Name:      "advance",
				Usage:     "Advance both chains by N blocks",
				ArgsUsage: "[BLOCKS]",
				Action: func(c *cli.Context) error {
					blocks := int64(1)
					if c.NArg() > 0 {
						parsed, err := parseAmount(c.Args().Get(0))
						if err != nil {
							return fmt.Errorf("invalid block count: %w", err)
						}
						blocks = parsed
					}

					body, _ := json.Marshal(map[string]int64{"blocks": blocks})
					url := c.String("chat-url") + "/devnet/advance_block"
					resp, err := http.Post(url, "application/json", bytes.NewReader(body))
					if err != nil {
						return fmt.Errorf("failed to advance block: %w", err)
					}
					defer resp.Body.Close()

					payload, _ := io.ReadAll(resp.Body)
					if resp.StatusCode != http.StatusOK {
						return fmt.Errorf("advance block failed: status %d: %s", resp.StatusCode, payload)
					}

					var heights map[string]int64
					if err := json.Unmarshal(payload, &heights); err != nil {
						return fmt.Errorf("failed to decode response: %w", err)
					}
					if c.Bool("json") {
						return printJSON(heights)
					}
					fmt.Printf("chat block:     %d\n", heights["chat_block"])
					fmt.Printf("currency block: %d\n", heights["currency_block"])
					return nil
				},
			},
			{
				Name:  "health",
				Usage: "Check that the devnet server is up",
				Action: func(c *cli.Context) error {
					url := c.String("chat-url") + "/health"
					resp, err := http.Get(url)
					if err != nil {
						return fmt.Errorf("devnet unreachable: %w", err)
					}
					defer resp.Body.Close()
					if resp.StatusCode != http.StatusOK {
						return cli.Exit(fmt.Sprintf("unhealthy: status %d", resp.StatusCode), 1)
					}
					fmt.Println("OK")
					return nil
				},
			},
		},
	}
}
