package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/dchatlabs/dualledger/client"
	"github.com/dchatlabs/dualledger/service/chain"
	"github.com/dchatlabs/dualledger/service/ledger"
)

const (
	ledgerDefaultTimeout  = ledger.DefaultAwaitTimeout
	ledgerDefaultInterval = ledger.DefaultPollInterval
)

// errorLogger logs only errors to stderr; CLI output goes to stdout.
func errorLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// newClientFromFlags builds the dual-ledger client from the global flags.
func newClientFromFlags(c *cli.Context) *client.Client {
	return client.New(client.Config{
		ChatChainURL:          c.String("chat-url"),
		CurrencyChainURL:      c.String("currency-url"),
		ConfirmationThreshold: c.Int64("confirmations"),
		ConfirmationTimeout:   c.Duration("timeout"),
		PollInterval:          c.Duration("poll-interval"),
		Logger:                errorLogger(),
	})
}

// printJSON pretty-prints any value as JSON to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// printReceipt renders a terminal receipt for humans.
func printReceipt(result *client.TxResult) {
	r := result.Receipt
	fmt.Println("────────────────────────────────────────────────────────────")
	fmt.Printf("Status:        %s\n", r.Status())
	fmt.Printf("Tx ID:         %s\n", r.TxID)
	if r.TxHash != "" {
		fmt.Printf("Tx Hash:       %s\n", r.TxHash)
	}
	fmt.Printf("Block:         %d\n", r.BlockHeight)
	fmt.Printf("Confirmations: %d\n", r.Confirmations)
	if r.Timestamp != nil {
		fmt.Printf("Timestamp:     %s\n", r.Timestamp.Format(time.RFC3339))
	}
	fmt.Println("────────────────────────────────────────────────────────────")
}

// compileJQFilters parses and compiles a set of jq expressions.
func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// matchesJQFilters reports whether every compiled filter evaluates truthy
// against the value. The value is round-tripped through JSON so filters
// see wire field names.
func matchesJQFilters(v any, filters []*gojq.Code) bool {
	if len(filters) == 0 {
		return true
	}

	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return false
	}

	for _, code := range filters {
		iter := code.Run(generic)
		result, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := result.(error); isErr {
			return false
		}
		if !isTruthy(result) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// filterTransactions keeps the transactions every jq filter accepts.
func filterTransactions(txs []*chain.Transaction, filters []*gojq.Code) []*chain.Transaction {
	if len(filters) == 0 {
		return txs
	}
	var out []*chain.Transaction
	for _, tx := range txs {
		if matchesJQFilters(tx, filters) {
			out = append(out, tx)
		}
	}
	return out
}

// printTransactions renders a chain transaction list for humans.
func printTransactions(txs []*chain.Transaction) {
	if len(txs) == 0 {
		fmt.Println("no transactions")
		return
	}
	for _, tx := range txs {
		fmt.Printf("%-36s  %-20s  %-9s  conf=%d\n", tx.ID, tx.TxType, tx.Status, tx.Confirmations)
	}
}
