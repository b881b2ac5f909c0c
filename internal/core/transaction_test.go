package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func testTransaction(t *testing.T, cents int64) *Transaction {
	t.Helper()
	tx, err := NewTransaction(TransactionParams{
		HouseholdID: "hh-1",
		Description: "weekly groceries",
		Amount:      brl(t, cents),
		Category:    "groceries",
		PayerID:     "ana",
		Date:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	return tx
}

func TestNewTransactionValidation(t *testing.T) {
	valid := TransactionParams{
		HouseholdID: "hh-1",
		Description: "rent",
		Amount:      brl(t, 150000),
		Category:    "housing",
		PayerID:     "bruno",
	}

	tests := []struct {
		name    string
		mutate  func(*TransactionParams)
		wantErr error
	}{
		{"empty description", func(p *TransactionParams) { p.Description = "   " }, ErrEmptyDescription},
		{"empty category", func(p *TransactionParams) { p.Category = "" }, ErrEmptyCategory},
		{"zero amount", func(p *TransactionParams) { p.Amount = Money{} }, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if _, err := NewTransaction(p); !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTransaction error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("missing household", func(t *testing.T) {
		p := valid
		p.HouseholdID = ""
		if _, err := NewTransaction(p); err == nil {
			t.Error("NewTransaction accepted empty household id")
		}
	})

	t.Run("description too long", func(t *testing.T) {
		p := valid
		p.Description = strings.Repeat("x", 201)
		if _, err := NewTransaction(p); err == nil {
			t.Error("NewTransaction accepted 201-char description")
		}
	})
}

func TestNewTransactionDefaults(t *testing.T) {
	tx, err := NewTransaction(TransactionParams{
		HouseholdID: "hh-1",
		Description: "  coffee  ",
		Amount:      brl(t, 900),
		Category:    "eating out",
	})
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	if tx.ID() == "" {
		t.Error("expected a generated id")
	}
	if tx.Date().IsZero() {
		t.Error("expected a defaulted date")
	}
	if tx.Description() != "coffee" {
		t.Errorf("description = %q, want trimmed", tx.Description())
	}
	if tx.IsSplit() {
		t.Error("new transaction should be unsplit")
	}
}

func TestApplySplitResults(t *testing.T) {
	tx := testTransaction(t, 10000)

	results := []SplitResult{
		{PartnerID: "ana", Amount: brl(t, 5000), Percentage: 50},
		{PartnerID: "bruno", Amount: brl(t, 5000), Percentage: 50},
	}
	if err := tx.ApplySplitResults(results); err != nil {
		t.Fatalf("ApplySplitResults: %v", err)
	}
	if !tx.IsSplit() || len(tx.Splits()) != 2 {
		t.Errorf("splits = %d, want 2", len(tx.Splits()))
	}

	// Mutating the returned slice must not touch the transaction.
	tx.Splits()[0].PartnerID = "mallory"
	if tx.Splits()[0].PartnerID != "ana" {
		t.Error("Splits returned the internal slice")
	}
}

func TestApplySplitResultsRejectsUnreconciled(t *testing.T) {
	tx := testTransaction(t, 10000)

	err := tx.ApplySplitResults([]SplitResult{
		{PartnerID: "ana", Amount: brl(t, 4000)},
		{PartnerID: "bruno", Amount: brl(t, 5000)},
	})
	if !errors.Is(err, ErrSplitNotReconciled) {
		t.Errorf("error = %v, want ErrSplitNotReconciled", err)
	}
	if tx.IsSplit() {
		t.Error("failed apply must leave the transaction unsplit")
	}
}

func TestTransactionJSONRoundTrip(t *testing.T) {
	tx := testTransaction(t, 10000)
	if err := tx.ApplySplitResults([]SplitResult{
		{PartnerID: "ana", Amount: brl(t, 5000), Percentage: 50},
		{PartnerID: "bruno", Amount: brl(t, 5000), Percentage: 50},
	}); err != nil {
		t.Fatalf("ApplySplitResults: %v", err)
	}

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var loaded Transaction
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if loaded.ID() != tx.ID() || loaded.Amount().Cents() != 10000 {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
	if len(loaded.Splits()) != 2 {
		t.Errorf("splits after round trip = %d, want 2", len(loaded.Splits()))
	}
	if !loaded.Date().Equal(tx.Date()) {
		t.Errorf("date = %v, want %v", loaded.Date(), tx.Date())
	}
}
