package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

func period(userID, id string, active bool) core.BudgetPeriod {
	status := core.StatusClosed
	if active {
		status = core.StatusActive
	}
	return core.BudgetPeriod{
		ID:        id,
		UserID:    userID,
		Name:      id,
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		IsActive:  active,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateCategory_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := core.ExpenseCategory{ID: "c1", UserID: "u1", Name: "Food", CreatedAt: time.Now().UTC()}

	if err := s.CreateExpenseCategory(ctx, c); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := s.CreateExpenseCategory(ctx, c); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("second create = %v, want ErrConflict", err)
	}
}

func TestCreatePeriod_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreatePeriod(ctx, period("u1", "p1", true)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := s.CreatePeriod(ctx, period("u1", "p1", true)); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("second create = %v, want ErrConflict", err)
	}
}

func TestApplyBalanceDelta_SeedsOpeningFromPreviousMonth(t *testing.T) {
	ctx := context.Background()
	s := New()
	may := services.BalanceKey{UserID: "u1", PeriodID: "p1", CategoryID: "c1", MonthYear: "2025-05"}
	june := services.BalanceKey{UserID: "u1", PeriodID: "p1", CategoryID: "c1", MonthYear: "2025-06"}

	if _, err := s.ApplyBalanceDelta(ctx, may, decimal.NewFromInt(300), decimal.Zero); err != nil {
		t.Fatalf("ApplyBalanceDelta (may): %v", err)
	}
	row, err := s.ApplyBalanceDelta(ctx, june, decimal.Zero, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("ApplyBalanceDelta (june): %v", err)
	}
	if !row.OpeningBalance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("june opening = %s, want 300", row.OpeningBalance)
	}
	if !row.ClosingBalance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("june closing = %s, want 200", row.ClosingBalance)
	}
}

func TestClosePeriod_SeedCollisionLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreatePeriod(ctx, period("u1", "p1", true)); err != nil {
		t.Fatalf("CreatePeriod: %v", err)
	}
	// A row already occupies the seed's key in the new period.
	occupied := services.BalanceKey{UserID: "u1", PeriodID: "p2", CategoryID: "c1", MonthYear: "2025-07"}
	if _, err := s.ApplyBalanceDelta(ctx, occupied, decimal.NewFromInt(1), decimal.Zero); err != nil {
		t.Fatalf("ApplyBalanceDelta: %v", err)
	}

	err := s.ClosePeriod(ctx, services.ClosePeriodParams{
		UserID:    "u1",
		PeriodID:  "p1",
		EndDate:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		NewPeriod: period("u1", "p2", true),
		SeedBalances: []core.MonthlyBalance{{
			ID:             "seed-1",
			UserID:         "u1",
			PeriodID:       "p2",
			CategoryID:     "c1",
			MonthYear:      "2025-07",
			OpeningBalance: decimal.NewFromInt(150),
			ClosingBalance: decimal.NewFromInt(150),
		}},
	})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("ClosePeriod = %v, want ErrConflict", err)
	}

	// Nothing was mutated: the old period is still active and p2 was not
	// created as a period.
	p, err := s.GetPeriod(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("GetPeriod: %v", err)
	}
	if !p.IsActive || p.Status != core.StatusActive {
		t.Errorf("p1 should still be active, got IsActive=%v Status=%s", p.IsActive, p.Status)
	}
	if _, err := s.GetPeriod(ctx, "u1", "p2"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("p2 should not exist, got err = %v", err)
	}
}

func TestUpdateExpenseCategory_NotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := core.ExpenseCategory{ID: "missing", UserID: "u1", Name: "Ghost"}
	if err := s.UpdateExpenseCategory(ctx, c); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("UpdateExpenseCategory = %v, want ErrNotFound", err)
	}
	if err := s.DeleteExpenseCategory(ctx, "u1", "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("DeleteExpenseCategory = %v, want ErrNotFound", err)
	}
}

func TestListBalances_Ordering(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []services.BalanceKey{
		{UserID: "u1", PeriodID: "p1", CategoryID: "b", MonthYear: "2025-05"},
		{UserID: "u1", PeriodID: "p1", CategoryID: "a", MonthYear: "2025-06"},
		{UserID: "u1", PeriodID: "p1", CategoryID: "b", MonthYear: "2025-06"},
	} {
		if _, err := s.ApplyBalanceDelta(ctx, k, decimal.NewFromInt(1), decimal.Zero); err != nil {
			t.Fatalf("ApplyBalanceDelta: %v", err)
		}
	}

	rows, err := s.ListBalances(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ListBalances: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	// Newest month first, then category ascending within the month.
	if rows[0].MonthYear != "2025-06" || rows[0].CategoryID != "a" {
		t.Errorf("rows[0] = %s/%s", rows[0].MonthYear, rows[0].CategoryID)
	}
	if rows[1].MonthYear != "2025-06" || rows[1].CategoryID != "b" {
		t.Errorf("rows[1] = %s/%s", rows[1].MonthYear, rows[1].CategoryID)
	}
	if rows[2].MonthYear != "2025-05" {
		t.Errorf("rows[2] month = %s, want 2025-05", rows[2].MonthYear)
	}

	june, err := s.ListBalances(ctx, "u1", "2025-06")
	if err != nil {
		t.Fatalf("ListBalances (filtered): %v", err)
	}
	if len(june) != 2 {
		t.Errorf("filtered rows = %d, want 2", len(june))
	}
}
