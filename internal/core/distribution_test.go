package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func cat(id, name string, share float64) ExpenseCategory {
	return ExpenseCategory{
		ID:              id,
		Name:            name,
		PercentageShare: decimal.NewFromFloat(share),
	}
}

func TestValidateShares(t *testing.T) {
	tests := []struct {
		name       string
		categories []ExpenseCategory
		wantErr    bool
	}{
		{"exactly 100", []ExpenseCategory{cat("a", "Food", 60), cat("b", "Rent", 40)}, false},
		{"single category", []ExpenseCategory{cat("a", "Everything", 100)}, false},
		{"fractional shares", []ExpenseCategory{cat("a", "A", 33.5), cat("b", "B", 66.5)}, false},
		{"under 100", []ExpenseCategory{cat("a", "Food", 60), cat("b", "Rent", 30)}, true},
		{"over 100", []ExpenseCategory{cat("a", "Food", 60), cat("b", "Rent", 50)}, true},
		{"no categories", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateShares(tt.categories)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateShares() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("ValidateShares() error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestShare(t *testing.T) {
	got := Share(decimal.NewFromInt(1000), decimal.NewFromInt(60))
	if !got.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Share(1000, 60) = %s, want 600", got)
	}

	// A repeating-fraction share keeps exact decimal precision.
	got = Share(decimal.NewFromInt(100), decimal.NewFromFloat(33.33))
	if !got.Equal(decimal.NewFromFloat(33.33)) {
		t.Errorf("Share(100, 33.33) = %s, want 33.33", got)
	}
}

func TestComputeDistributions(t *testing.T) {
	categories := []ExpenseCategory{
		cat("food", "Food", 60),
		cat("rent", "Rent", 40),
		cat("fun", "Fun", 0),
	}
	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	// Shares sum over 100 here, but ComputeDistributions trusts its input:
	// validation happens separately.
	got := ComputeDistributions(categories, decimal.NewFromInt(1000), date)

	if len(got) != 3 {
		t.Fatalf("got %d distributions, want 3", len(got))
	}
	if got[0].CategoryID != "food" || !got[0].Amount.Equal(decimal.NewFromInt(600)) {
		t.Errorf("distribution[0] = %s/%s, want food/600", got[0].CategoryID, got[0].Amount)
	}
	if !got[1].Amount.Equal(decimal.NewFromInt(400)) {
		t.Errorf("rent share = %s, want 400", got[1].Amount)
	}
	if !got[2].Amount.IsZero() {
		t.Errorf("zero-share category got %s, want 0", got[2].Amount)
	}
	for _, d := range got {
		if d.MonthYear != "2025-06" {
			t.Errorf("MonthYear = %q, want 2025-06", d.MonthYear)
		}
	}
}

func TestComputeDistributions_SharesSumToAmount(t *testing.T) {
	categories := []ExpenseCategory{
		cat("a", "A", 33.33),
		cat("b", "B", 33.33),
		cat("c", "C", 33.34),
	}
	amount := decimal.NewFromFloat(999.99)

	distributions := ComputeDistributions(categories, amount, time.Now())

	total := decimal.Zero
	for _, d := range distributions {
		total = total.Add(d.Amount)
	}
	if !total.Equal(amount) {
		t.Errorf("distributed total = %s, want %s", total, amount)
	}
}
