package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

// BudgetService runs the income distribution and balance ledger engine:
// deposits are apportioned across expense categories by percentage share,
// expenses are checked against the available balance before they touch the
// ledger, and transfers move funds between categories without changing
// period totals.
type BudgetService struct {
	store   Store
	periods *PeriodService
	ledger  *LedgerService
	logger  *log.Logger
}

func NewBudgetService(store Store, periods *PeriodService, ledger *LedgerService) *BudgetService {
	return &BudgetService{
		store:   store,
		periods: periods,
		ledger:  ledger,
		logger:  log.Component(log.ComponentBudget),
	}
}

// DistributeIncome apportions a deposit across the user's expense
// categories for the month derived from date. Fails with
// core.ErrInvalidConfiguration before any ledger row is touched when no
// categories exist or the shares do not sum to exactly 100.
func (s *BudgetService) DistributeIncome(ctx context.Context, userID string, amount decimal.Decimal, date time.Time) ([]core.Distribution, error) {
	if !amount.IsPositive() {
		return nil, core.ErrInvalidAmount
	}

	categories, err := s.store.ListExpenseCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expense categories: %w", err)
	}
	if err := core.ValidateShares(categories); err != nil {
		return nil, err
	}

	period, err := s.periods.EnsureActivePeriod(ctx, userID)
	if err != nil {
		return nil, err
	}

	distributions := core.ComputeDistributions(categories, amount, date)
	for _, d := range distributions {
		key := BalanceKey{
			UserID:     userID,
			PeriodID:   period.ID,
			CategoryID: d.CategoryID,
			MonthYear:  d.MonthYear,
		}
		if _, err := s.store.ApplyBalanceDelta(ctx, key, d.Amount, decimal.Zero); err != nil {
			return nil, fmt.Errorf("apply deposit to category %s: %w", d.CategoryID, err)
		}
	}

	s.logger.InfoContext(ctx, "Income distributed",
		log.FieldUserID, userID,
		log.FieldAmount, amount.String(),
		"categories", len(distributions),
		log.FieldMonthYear, core.MonthKey(date))
	return distributions, nil
}

// AvailableBalance returns the funds a category can still cover in the
// month derived from date: the month's closing balance if a ledger row
// exists, otherwise the previous month's closing balance, otherwise zero.
// Read-only: a user with no active period gets zero, not a new period.
func (s *BudgetService) AvailableBalance(ctx context.Context, userID, categoryID string, date time.Time) (decimal.Decimal, error) {
	period, err := s.periods.GetActivePeriod(ctx, userID)
	if errors.Is(err, core.ErrNoActivePeriod) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return s.availableBalance(ctx, userID, period.ID, categoryID, core.MonthKey(date))
}

func (s *BudgetService) availableBalance(ctx context.Context, userID, periodID, categoryID, monthYear string) (decimal.Decimal, error) {
	row, err := s.store.GetBalance(ctx, BalanceKey{UserID: userID, PeriodID: periodID, CategoryID: categoryID, MonthYear: monthYear})
	if err == nil {
		return row.ClosingBalance, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}

	previous, err := core.PreviousMonthKey(monthYear)
	if err != nil {
		return decimal.Zero, err
	}
	row, err = s.store.GetBalance(ctx, BalanceKey{UserID: userID, PeriodID: periodID, CategoryID: categoryID, MonthYear: previous})
	if err == nil {
		return row.ClosingBalance, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return decimal.Zero, fmt.Errorf("get previous month balance: %w", err)
	}
	return decimal.Zero, nil
}

// RecordExpense validates that the category can cover the amount and
// applies the withdrawal to the ledger. On *core.InsufficientFundsError
// nothing is mutated; callers must treat this as a precondition to
// persisting the expense entity itself.
func (s *BudgetService) RecordExpense(ctx context.Context, userID, categoryID string, amount decimal.Decimal, date time.Time) (core.BudgetPeriod, error) {
	if !amount.IsPositive() {
		return core.BudgetPeriod{}, core.ErrInvalidAmount
	}

	category, err := s.store.GetExpenseCategory(ctx, userID, categoryID)
	if err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("get expense category: %w", err)
	}

	period, err := s.periods.EnsureActivePeriod(ctx, userID)
	if err != nil {
		return core.BudgetPeriod{}, err
	}

	monthYear := core.MonthKey(date)
	available, err := s.availableBalance(ctx, userID, period.ID, categoryID, monthYear)
	if err != nil {
		return core.BudgetPeriod{}, err
	}
	if available.Sub(amount).IsNegative() {
		return core.BudgetPeriod{}, &core.InsufficientFundsError{
			CategoryID:   categoryID,
			CategoryName: category.Name,
			Available:    available,
			Requested:    amount,
		}
	}

	key := BalanceKey{UserID: userID, PeriodID: period.ID, CategoryID: categoryID, MonthYear: monthYear}
	if _, err := s.store.ApplyBalanceDelta(ctx, key, decimal.Zero, amount); err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("apply withdrawal: %w", err)
	}
	return period, nil
}

// IncomeResult reports a recorded income. DistributionErr is set when the
// income row was kept but the distribution itself was rejected; disposition
// of the recorded income is left to the caller.
type IncomeResult struct {
	Income          core.Income
	Distributions   []core.Distribution
	DistributionErr error
}

// RecordIncome creates the income entry under the active period, then
// distributes it and appends the audit log entry. A distribution failure
// does not roll back the income row; it is surfaced separately.
func (s *BudgetService) RecordIncome(ctx context.Context, userID, categoryID string, amount decimal.Decimal, details string) (IncomeResult, error) {
	if !amount.IsPositive() {
		return IncomeResult{}, core.ErrInvalidAmount
	}
	if _, err := s.store.GetIncomeCategory(ctx, userID, categoryID); err != nil {
		return IncomeResult{}, fmt.Errorf("get income category: %w", err)
	}

	period, err := s.periods.EnsureActivePeriod(ctx, userID)
	if err != nil {
		return IncomeResult{}, err
	}

	now := time.Now().UTC()
	income := core.Income{
		ID:         uuid.NewString(),
		UserID:     userID,
		PeriodID:   period.ID,
		CategoryID: categoryID,
		Amount:     amount,
		Details:    details,
		CreatedAt:  now,
	}
	if err := s.store.CreateIncome(ctx, income); err != nil {
		return IncomeResult{}, fmt.Errorf("create income: %w", err)
	}

	distributions, err := s.DistributeIncome(ctx, userID, amount, now)
	if err != nil {
		s.logger.WarnContext(ctx, "Income recorded but distribution failed",
			log.FieldUserID, userID, "income_id", income.ID, log.FieldError, err)
		return IncomeResult{Income: income, DistributionErr: err}, nil
	}

	entries := make([]core.LedgerEntry, 0, len(distributions))
	for _, d := range distributions {
		entries = append(entries, core.LedgerEntry{CategoryID: d.CategoryID, Amount: d.Amount, Increment: true})
	}
	if err := s.ledger.LogFinancial(ctx, entries, userID, income.ID, core.TransactionDeposit, amount); err != nil {
		return IncomeResult{}, fmt.Errorf("append financial log: %w", err)
	}

	return IncomeResult{Income: income, Distributions: distributions}, nil
}

// CreateExpense runs the full withdrawal flow: ledger check-and-update
// first, expense row second, audit log last. A failed balance check never
// leaves an orphaned expense row.
func (s *BudgetService) CreateExpense(ctx context.Context, userID, categoryID string, amount decimal.Decimal, details string, date time.Time) (core.Expense, error) {
	period, err := s.RecordExpense(ctx, userID, categoryID, amount, date)
	if err != nil {
		return core.Expense{}, err
	}

	expense := core.Expense{
		ID:         uuid.NewString(),
		UserID:     userID,
		PeriodID:   period.ID,
		CategoryID: categoryID,
		Amount:     amount,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateExpense(ctx, expense); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	entries := []core.LedgerEntry{{CategoryID: categoryID, Amount: amount, Increment: false}}
	if err := s.ledger.LogFinancial(ctx, entries, userID, expense.ID, core.TransactionWithdrawal, amount); err != nil {
		return core.Expense{}, fmt.Errorf("append financial log: %w", err)
	}
	return expense, nil
}

// Transfer moves amount between two categories' balances for the given
// month within the active period, then appends a TRANSFER audit entry.
// The two ledger row updates commit atomically in the store.
func (s *BudgetService) Transfer(ctx context.Context, userID, fromCategoryID, toCategoryID string, amount decimal.Decimal, monthYear string) error {
	if fromCategoryID == toCategoryID {
		return core.ErrSameCategory
	}
	if !amount.IsPositive() {
		return core.ErrInvalidAmount
	}
	if !core.ValidMonthKey(monthYear) {
		return fmt.Errorf("invalid month key %q", monthYear)
	}

	period, err := s.store.GetActivePeriod(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return core.ErrNoActivePeriod
	}
	if err != nil {
		return fmt.Errorf("get active period: %w", err)
	}
	if period.Status != core.StatusActive {
		return core.ErrPeriodClosedForTransfers
	}

	params := TransferParams{
		UserID:         userID,
		PeriodID:       period.ID,
		FromCategoryID: fromCategoryID,
		ToCategoryID:   toCategoryID,
		MonthYear:      monthYear,
		Amount:         amount,
	}
	if err := s.store.TransferBalance(ctx, params); err != nil {
		var ife *core.InsufficientFundsError
		if errors.As(err, &ife) && ife.CategoryName == "" {
			if cat, catErr := s.store.GetExpenseCategory(ctx, userID, ife.CategoryID); catErr == nil {
				ife.CategoryName = cat.Name
			}
		}
		return err
	}

	entries := []core.LedgerEntry{
		{CategoryID: fromCategoryID, Amount: amount, Increment: false},
		{CategoryID: toCategoryID, Amount: amount, Increment: true},
	}
	refID := uuid.NewString()
	if err := s.ledger.LogFinancial(ctx, entries, userID, refID, core.TransactionTransfer, amount); err != nil {
		return fmt.Errorf("append financial log: %w", err)
	}

	s.logger.InfoContext(ctx, "Balance transferred",
		log.FieldUserID, userID,
		"from_category_id", fromCategoryID,
		"to_category_id", toCategoryID,
		log.FieldAmount, amount.String(),
		log.FieldMonthYear, monthYear)
	return nil
}
