package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// Storage-level sentinel errors shared by all backends.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// BalanceKey identifies one monthly ledger row.
type BalanceKey struct {
	UserID     string
	PeriodID   string
	CategoryID string
	MonthYear  string
}

// TransferParams describes a same-period, same-month reallocation between
// two categories.
type TransferParams struct {
	UserID         string
	PeriodID       string
	FromCategoryID string
	ToCategoryID   string
	MonthYear      string
	Amount         decimal.Decimal
}

// ClosePeriodParams describes the atomic close-and-open operation.
type ClosePeriodParams struct {
	UserID       string
	PeriodID     string
	EndDate      time.Time
	NewPeriod    core.BudgetPeriod
	SeedBalances []core.MonthlyBalance
}

// Ports for the persistence backends.
type (
	CategoryStore interface {
		CreateExpenseCategory(ctx context.Context, c core.ExpenseCategory) error
		GetExpenseCategory(ctx context.Context, userID, id string) (core.ExpenseCategory, error)
		UpdateExpenseCategory(ctx context.Context, c core.ExpenseCategory) error
		DeleteExpenseCategory(ctx context.Context, userID, id string) error
		// ListExpenseCategories returns the user's categories ordered by
		// name ascending; distribution order depends on this being stable.
		ListExpenseCategories(ctx context.Context, userID string) ([]core.ExpenseCategory, error)

		CreateIncomeCategory(ctx context.Context, c core.IncomeCategory) error
		GetIncomeCategory(ctx context.Context, userID, id string) (core.IncomeCategory, error)
		DeleteIncomeCategory(ctx context.Context, userID, id string) error
		ListIncomeCategories(ctx context.Context, userID string) ([]core.IncomeCategory, error)
	}

	PeriodStore interface {
		// GetActivePeriod returns the single active period, or ErrNotFound.
		GetActivePeriod(ctx context.Context, userID string) (core.BudgetPeriod, error)
		GetPeriod(ctx context.Context, userID, id string) (core.BudgetPeriod, error)
		ListPeriods(ctx context.Context, userID string) ([]core.BudgetPeriod, error)
		// CreatePeriod fails with ErrConflict when a period with the same
		// ID already exists (the default-period race relies on this).
		CreatePeriod(ctx context.Context, p core.BudgetPeriod) error
		// ClosePeriod atomically closes the old period, creates the new
		// one, and writes the seed balance rows; all or nothing.
		ClosePeriod(ctx context.Context, params ClosePeriodParams) error
	}

	BalanceStore interface {
		GetBalance(ctx context.Context, key BalanceKey) (core.MonthlyBalance, error)
		// ListBalances returns the user's rows, optionally filtered by
		// month, ordered by monthYear descending then category.
		ListBalances(ctx context.Context, userID, monthYear string) ([]core.MonthlyBalance, error)
		ListPeriodBalances(ctx context.Context, userID, periodID string) ([]core.MonthlyBalance, error)
		// ApplyBalanceDelta is the atomic upsert-and-increment: existing
		// rows get the deltas added and the closing balance recomputed;
		// missing rows are created with the opening balance seeded from
		// the previous calendar month's closing balance (or zero). The
		// whole read-modify-write happens in one storage transaction.
		ApplyBalanceDelta(ctx context.Context, key BalanceKey, depositDelta, withdrawalDelta decimal.Decimal) (core.MonthlyBalance, error)
		// TransferBalance moves Amount between two rows atomically.
		// Returns core.ErrSourceBalanceNotFound when the source row does
		// not exist and *core.InsufficientFundsError when it cannot cover
		// the amount; a missing destination row is created zero-valued.
		TransferBalance(ctx context.Context, params TransferParams) error
	}

	LedgerStore interface {
		AppendFinancialLog(ctx context.Context, tx core.FinancialTransaction) error
		// LatestFinancialLog returns the most recent row by timestamp for
		// the user, or ErrNotFound.
		LatestFinancialLog(ctx context.Context, userID string) (core.FinancialTransaction, error)
		ListFinancialLogs(ctx context.Context, userID string, limit int) ([]core.FinancialTransaction, error)
	}

	EntryStore interface {
		CreateIncome(ctx context.Context, in core.Income) error
		ListIncomes(ctx context.Context, userID, periodID string) ([]core.Income, error)
		CreateExpense(ctx context.Context, e core.Expense) error
		ListExpenses(ctx context.Context, userID, periodID string) ([]core.Expense, error)
	}
)

// Store is the full persistence surface a backend must provide.
type Store interface {
	CategoryStore
	PeriodStore
	BalanceStore
	LedgerStore
	EntryStore
}
