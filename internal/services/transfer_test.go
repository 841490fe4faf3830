package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 60)
	rent := addExpenseCategory(t, store, testUser, "Rent", 40)
	june := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(1000), june); err != nil {
		t.Fatalf("DistributeIncome: %v", err)
	}

	if err := budget.Transfer(ctx, testUser, food.ID, rent.ID, decimal.NewFromInt(100), "2025-06"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	foodAvail, _ := budget.AvailableBalance(ctx, testUser, food.ID, june)
	rentAvail, _ := budget.AvailableBalance(ctx, testUser, rent.ID, june)
	if !foodAvail.Equal(decimal.NewFromInt(500)) {
		t.Errorf("food available = %s, want 500", foodAvail)
	}
	if !rentAvail.Equal(decimal.NewFromInt(500)) {
		t.Errorf("rent available = %s, want 500", rentAvail)
	}

	// Total funds are conserved.
	total := foodAvail.Add(rentAvail)
	if !total.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("total after transfer = %s, want 1000", total)
	}

	// The transfer left a TRANSFER audit entry.
	logs, err := store.ListFinancialLogs(ctx, testUser, 10)
	if err != nil {
		t.Fatalf("ListFinancialLogs: %v", err)
	}
	if len(logs) == 0 || logs[0].Type != core.TransactionTransfer {
		t.Fatalf("latest log = %+v, want a TRANSFER entry", logs)
	}
}

func TestTransfer_Validation(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 60)
	rent := addExpenseCategory(t, store, testUser, "Rent", 40)
	june := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(100), june); err != nil {
		t.Fatalf("DistributeIncome: %v", err)
	}

	tests := []struct {
		name    string
		from    string
		to      string
		amount  decimal.Decimal
		month   string
		wantErr error
	}{
		{"same category", food.ID, food.ID, decimal.NewFromInt(10), "2025-06", core.ErrSameCategory},
		{"zero amount", food.ID, rent.ID, decimal.Zero, "2025-06", core.ErrInvalidAmount},
		{"negative amount", food.ID, rent.ID, decimal.NewFromInt(-10), "2025-06", core.ErrInvalidAmount},
		{"missing source row", "no-such-category", rent.ID, decimal.NewFromInt(10), "2025-06", core.ErrSourceBalanceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := budget.Transfer(ctx, testUser, tt.from, tt.to, tt.amount, tt.month)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Transfer() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := budget.Transfer(ctx, testUser, food.ID, rent.ID, decimal.NewFromInt(10), "junk"); err == nil {
		t.Error("Transfer with malformed month key should fail")
	}
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 60)
	rent := addExpenseCategory(t, store, testUser, "Rent", 40)
	june := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(100), june); err != nil {
		t.Fatalf("DistributeIncome: %v", err)
	}

	err := budget.Transfer(ctx, testUser, food.ID, rent.ID, decimal.NewFromInt(500), "2025-06")
	var ife *core.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("err = %v, want InsufficientFundsError", err)
	}
	if ife.CategoryName != "Food" {
		t.Errorf("error category name = %q, want Food", ife.CategoryName)
	}

	// Neither side changed.
	foodAvail, _ := budget.AvailableBalance(ctx, testUser, food.ID, june)
	if !foodAvail.Equal(decimal.NewFromInt(60)) {
		t.Errorf("food available = %s, want 60", foodAvail)
	}
}

func TestTransfer_NoActivePeriod(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 60)
	rent := addExpenseCategory(t, store, testUser, "Rent", 40)

	// Transfers never create a period implicitly.
	err := budget.Transfer(ctx, testUser, food.ID, rent.ID, decimal.NewFromInt(10), "2025-06")
	if !errors.Is(err, core.ErrNoActivePeriod) {
		t.Fatalf("err = %v, want ErrNoActivePeriod", err)
	}
	periods, _ := store.ListPeriods(ctx, testUser)
	if len(periods) != 0 {
		t.Errorf("got %d periods, want 0", len(periods))
	}
}

func TestTransfer_MissingDestinationCreated(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 100)
	june := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(200), june); err != nil {
		t.Fatalf("DistributeIncome: %v", err)
	}

	// Category added after the deposit has no ledger row for the month yet.
	savings := addExpenseCategory(t, store, testUser, "Savings", 0)

	if err := budget.Transfer(ctx, testUser, food.ID, savings.ID, decimal.NewFromInt(50), "2025-06"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	savingsAvail, _ := budget.AvailableBalance(ctx, testUser, savings.ID, june)
	if !savingsAvail.Equal(decimal.NewFromInt(50)) {
		t.Errorf("savings available = %s, want 50", savingsAvail)
	}
}
