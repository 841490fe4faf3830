package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRollForwardSnapshot_Deposit(t *testing.T) {
	prev := map[string]decimal.Decimal{
		"food": decimal.NewFromInt(100),
		"rent": decimal.NewFromInt(50),
	}
	entries := []LedgerEntry{
		{CategoryID: "food", Amount: decimal.NewFromInt(60), Increment: true},
		{CategoryID: "rent", Amount: decimal.NewFromInt(40), Increment: true},
	}

	next := RollForwardSnapshot(prev, []string{"food", "rent"}, entries, decimal.NewFromInt(100))

	if !next["food"].Equal(decimal.NewFromInt(160)) {
		t.Errorf("food = %s, want 160", next["food"])
	}
	if !next["rent"].Equal(decimal.NewFromInt(90)) {
		t.Errorf("rent = %s, want 90", next["rent"])
	}
	// Previous snapshot is not mutated.
	if !prev["food"].Equal(decimal.NewFromInt(100)) {
		t.Errorf("prev snapshot mutated: food = %s", prev["food"])
	}
}

func TestRollForwardSnapshot_WithdrawalUsesTotalAmount(t *testing.T) {
	prev := map[string]decimal.Decimal{"food": decimal.NewFromInt(200)}
	entries := []LedgerEntry{
		{CategoryID: "food", Amount: decimal.NewFromInt(30), Increment: false},
	}

	// The decrement subtracts the transaction total, not the entry amount.
	next := RollForwardSnapshot(prev, []string{"food"}, entries, decimal.NewFromInt(75))

	if !next["food"].Equal(decimal.NewFromInt(125)) {
		t.Errorf("food = %s, want 125", next["food"])
	}
}

func TestRollForwardSnapshot_FloorsAtZero(t *testing.T) {
	prev := map[string]decimal.Decimal{"food": decimal.NewFromInt(40)}
	entries := []LedgerEntry{
		{CategoryID: "food", Amount: decimal.NewFromInt(100), Increment: false},
	}

	next := RollForwardSnapshot(prev, []string{"food"}, entries, decimal.NewFromInt(100))

	if !next["food"].IsZero() {
		t.Errorf("food = %s, want 0", next["food"])
	}
}

func TestRollForwardSnapshot_SeedsNewCategories(t *testing.T) {
	prev := map[string]decimal.Decimal{"food": decimal.NewFromInt(10)}

	next := RollForwardSnapshot(prev, []string{"food", "travel"}, []LedgerEntry{
		{CategoryID: "travel", Amount: decimal.NewFromInt(5), Increment: true},
	}, decimal.NewFromInt(5))

	if !next["travel"].Equal(decimal.NewFromInt(5)) {
		t.Errorf("travel = %s, want 5 (seeded at zero, then incremented)", next["travel"])
	}
}

func TestRollForwardSnapshot_SkipsUnknownCategories(t *testing.T) {
	next := RollForwardSnapshot(nil, []string{"food"}, []LedgerEntry{
		{CategoryID: "deleted", Amount: decimal.NewFromInt(5), Increment: true},
	}, decimal.NewFromInt(5))

	if _, ok := next["deleted"]; ok {
		t.Error("entry for unknown category should be skipped")
	}
	if !next["food"].IsZero() {
		t.Errorf("food = %s, want 0", next["food"])
	}
}
