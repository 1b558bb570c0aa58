package main

import (
	"testing"

	"github.com/dchatlabs/dualledger/service/chain"
)

func TestJQFilterMatching(t *testing.T) {
	tests := []struct {
		name        string
		tx          *chain.Transaction
		jqFilter    string
		expectMatch bool
	}{
		{
			name:        "tx_type match",
			tx:          &chain.Transaction{ID: "tx-1", TxType: chain.CurrencyTxPayment},
			jqFilter:    `.tx_type == "payment"`,
			expectMatch: true,
		},
		{
			name:        "tx_type mismatch",
			tx:          &chain.Transaction{ID: "tx-1", TxType: chain.CurrencyTxStake},
			jqFilter:    `.tx_type == "payment"`,
			expectMatch: false,
		},
		{
			name:        "amount threshold match",
			tx:          &chain.Transaction{ID: "tx-2", Amount: 500},
			jqFilter:    `.amount > 100`,
			expectMatch: true,
		},
		{
			name:        "amount threshold mismatch",
			tx:          &chain.Transaction{ID: "tx-2", Amount: 50},
			jqFilter:    `.amount > 100`,
			expectMatch: false,
		},
		{
			name: "nested data match",
			tx: &chain.Transaction{
				ID:     "tx-3",
				TxType: chain.ChatTxSendDirectMessage,
				Data:   map[string]any{"content_hash": "abc123", "payload_size": float64(42)},
			},
			jqFilter:    `.data.content_hash == "abc123"`,
			expectMatch: true,
		},
		{
			name: "contains on data object",
			tx: &chain.Transaction{
				ID:   "tx-4",
				Data: map[string]any{"channel_id": "chan-9", "name": "general"},
			},
			jqFilter:    `.data | contains({channel_id: "chan-9"})`,
			expectMatch: true,
		},
		{
			name:        "missing field is falsy",
			tx:          &chain.Transaction{ID: "tx-5"},
			jqFilter:    `.data.channel_id == "chan-9"`,
			expectMatch: false,
		},
		{
			name:        "status filter",
			tx:          &chain.Transaction{ID: "tx-6", Status: chain.TxStatusFailed, Error: "insufficient funds"},
			jqFilter:    `.status == "failed" and (.error | contains("insufficient"))`,
			expectMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters, err := compileJQFilters([]string{tt.jqFilter})
			if err != nil {
				t.Fatalf("failed to compile jq filter: %v", err)
			}

			matched := matchesJQFilters(tt.tx, filters)
			if matched != tt.expectMatch {
				t.Errorf("expected match=%v, got match=%v", tt.expectMatch, matched)
			}
		})
	}
}

func TestJQFilterMatching_AllMustPass(t *testing.T) {
	tx := &chain.Transaction{
		ID:     "tx-1",
		TxType: chain.CurrencyTxPayment,
		Sender: "alice",
		Amount: 250,
	}

	filters, err := compileJQFilters([]string{
		`.tx_type == "payment"`,
		`.amount > 100`,
	})
	if err != nil {
		t.Fatalf("failed to compile jq filters: %v", err)
	}
	if !matchesJQFilters(tx, filters) {
		t.Error("expected transaction to match both filters")
	}

	filters, err = compileJQFilters([]string{
		`.tx_type == "payment"`,
		`.amount > 1000`,
	})
	if err != nil {
		t.Fatalf("failed to compile jq filters: %v", err)
	}
	if matchesJQFilters(tx, filters) {
		t.Error("expected transaction to fail when one filter rejects it")
	}
}

func TestCompileJQFilters_Invalid(t *testing.T) {
	_, err := compileJQFilters([]string{`.tx_type ==`})
	if err == nil {
		t.Fatal("expected error for invalid jq expression")
	}
}

func TestFilterTransactions(t *testing.T) {
	txs := []*chain.Transaction{
		{ID: "tx-1", TxType: chain.CurrencyTxPayment, Amount: 100},
		{ID: "tx-2", TxType: chain.CurrencyTxStake, Amount: 500},
		{ID: "tx-3", TxType: chain.CurrencyTxPayment, Amount: 900},
	}

	filters, err := compileJQFilters([]string{`.tx_type == "payment"`})
	if err != nil {
		t.Fatalf("failed to compile jq filter: %v", err)
	}

	filtered := filterTransactions(txs, filters)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(filtered))
	}
	if filtered[0].ID != "tx-1" || filtered[1].ID != "tx-3" {
		t.Errorf("unexpected transactions kept: %s, %s", filtered[0].ID, filtered[1].ID)
	}

	// No filters keeps everything.
	if got := filterTransactions(txs, nil); len(got) != 3 {
		t.Errorf("expected all transactions without filters, got %d", len(got))
	}
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		expect bool
	}{
		{"nil is falsy", nil, false},
		{"false is falsy", false, false},
		{"true is truthy", true, true},
		{"zero is truthy", float64(0), true},
		{"empty string is truthy", "", true},
		{"object is truthy", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTruthy(tt.value); got != tt.expect {
				t.Errorf("isTruthy(%v) = %v, want %v", tt.value, got, tt.expect)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	if _, err := parseAmount("0"); err == nil {
		t.Error("expected error for zero amount")
	}
	if _, err := parseAmount("-5"); err == nil {
		t.Error("expected error for negative amount")
	}
	if _, err := parseAmount("abc"); err == nil {
		t.Error("expected error for non-numeric amount")
	}
	amount, err := parseAmount("1000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount != 1000 {
		t.Errorf("expected 1000, got %d", amount)
	}
}
