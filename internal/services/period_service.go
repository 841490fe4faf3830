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

// PeriodService resolves, creates, and closes budget periods.
type PeriodService struct {
	store  Store
	logger *log.Logger
}

func NewPeriodService(store Store) *PeriodService {
	return &PeriodService{
		store:  store,
		logger: log.Component(log.ComponentPeriod),
	}
}

// DefaultPeriodID derives the deterministic identifier for a user's
// implicitly created period. Two concurrent EnsureActivePeriod calls for
// the same user collide on this ID; the unique constraint lets exactly one
// creation win.
func DefaultPeriodID(userID string) string {
	return "default-" + userID
}

// GetActivePeriod returns the user's single active period, or
// core.ErrNoActivePeriod when none exists.
func (s *PeriodService) GetActivePeriod(ctx context.Context, userID string) (core.BudgetPeriod, error) {
	p, err := s.store.GetActivePeriod(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return core.BudgetPeriod{}, core.ErrNoActivePeriod
	}
	if err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("get active period: %w", err)
	}
	return p, nil
}

// EnsureActivePeriod returns the active period, creating a default one if
// none exists. Safe under concurrent invocation: the default period's ID
// is derived solely from the user, so a race resolves via first-writer-wins
// on the uniqueness constraint and the loser re-reads the winner's row.
func (s *PeriodService) EnsureActivePeriod(ctx context.Context, userID string) (core.BudgetPeriod, error) {
	p, err := s.store.GetActivePeriod(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return core.BudgetPeriod{}, fmt.Errorf("get active period: %w", err)
	}

	now := time.Now().UTC()
	candidate := core.BudgetPeriod{
		ID:        DefaultPeriodID(userID),
		UserID:    userID,
		Name:      core.DefaultPeriodName,
		StartDate: now,
		IsActive:  true,
		Status:    core.StatusActive,
		CreatedAt: now,
	}

	createErr := s.store.CreatePeriod(ctx, candidate)
	if createErr == nil {
		s.logger.InfoContext(ctx, "Created default budget period", log.FieldUserID, userID, log.FieldPeriodID, candidate.ID)
		return candidate, nil
	}

	// Lost the creation race: the winner's row must be visible now.
	if p, err := s.store.GetActivePeriod(ctx, userID); err == nil {
		return p, nil
	}
	return core.BudgetPeriod{}, fmt.Errorf("create default period: %w", createErr)
}

// CreatePeriod explicitly opens a new period. Rejected while another
// period is still active.
func (s *PeriodService) CreatePeriod(ctx context.Context, userID, name string, startDate, endDate time.Time) (core.BudgetPeriod, error) {
	p := core.BudgetPeriod{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		StartDate: startDate.UTC(),
		IsActive:  true,
		Status:    core.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if !endDate.IsZero() {
		p.EndDate = endDate.UTC()
	}
	if err := p.Validate(); err != nil {
		return core.BudgetPeriod{}, err
	}

	if _, err := s.store.GetActivePeriod(ctx, userID); err == nil {
		return core.BudgetPeriod{}, core.ErrActivePeriodExists
	} else if !errors.Is(err, ErrNotFound) {
		return core.BudgetPeriod{}, fmt.Errorf("check active period: %w", err)
	}

	if err := s.store.CreatePeriod(ctx, p); err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("create period: %w", err)
	}
	return p, nil
}

// PeriodSummary is a period plus its entry counts, for listings.
type PeriodSummary struct {
	core.BudgetPeriod
	IncomeCount  int
	ExpenseCount int
}

func (s *PeriodService) ListPeriods(ctx context.Context, userID string) ([]PeriodSummary, error) {
	periods, err := s.store.ListPeriods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	out := make([]PeriodSummary, 0, len(periods))
	for _, p := range periods {
		incomes, err := s.store.ListIncomes(ctx, userID, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list incomes for period %s: %w", p.ID, err)
		}
		expenses, err := s.store.ListExpenses(ctx, userID, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list expenses for period %s: %w", p.ID, err)
		}
		out = append(out, PeriodSummary{
			BudgetPeriod: p,
			IncomeCount:  len(incomes),
			ExpenseCount: len(expenses),
		})
	}
	return out, nil
}

// ClosePeriod closes the given period and opens a new active one as a
// single atomic unit. When transferBalances is set, each category's latest
// closing balance in the closed period is carried into the new period's
// start month as an untouched opening balance.
func (s *PeriodService) ClosePeriod(ctx context.Context, userID, periodID, newName string, newStartDate time.Time, transferBalances bool) (closed, opened core.BudgetPeriod, err error) {
	p, err := s.store.GetPeriod(ctx, userID, periodID)
	if err != nil {
		return core.BudgetPeriod{}, core.BudgetPeriod{}, fmt.Errorf("get period: %w", err)
	}
	if p.Status == core.StatusClosed {
		return core.BudgetPeriod{}, core.BudgetPeriod{}, core.ErrPeriodAlreadyClosed
	}

	now := time.Now().UTC()
	newPeriod := core.BudgetPeriod{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      newName,
		StartDate: newStartDate.UTC(),
		IsActive:  true,
		Status:    core.StatusActive,
		CreatedAt: now,
	}
	if err := newPeriod.Validate(); err != nil {
		return core.BudgetPeriod{}, core.BudgetPeriod{}, err
	}

	var seeds []core.MonthlyBalance
	if transferBalances {
		seeds, err = s.seedBalances(ctx, userID, periodID, newPeriod.ID, core.MonthKey(newPeriod.StartDate), now)
		if err != nil {
			return core.BudgetPeriod{}, core.BudgetPeriod{}, err
		}
	}

	params := ClosePeriodParams{
		UserID:       userID,
		PeriodID:     periodID,
		EndDate:      now,
		NewPeriod:    newPeriod,
		SeedBalances: seeds,
	}
	if err := s.store.ClosePeriod(ctx, params); err != nil {
		return core.BudgetPeriod{}, core.BudgetPeriod{}, fmt.Errorf("close period: %w", err)
	}

	s.logger.InfoContext(ctx, "Closed budget period",
		log.FieldUserID, userID,
		"closed_period_id", periodID,
		"new_period_id", newPeriod.ID,
		"seeded_balances", len(seeds))

	p.Status = core.StatusClosed
	p.IsActive = false
	p.EndDate = now
	return p, newPeriod, nil
}

// seedBalances builds one seed row per category from that category's most
// recent month in the closing period. Opening and closing both carry the
// old closing balance; deposit and withdrawal totals start at zero.
func (s *PeriodService) seedBalances(ctx context.Context, userID, oldPeriodID, newPeriodID, monthYear string, now time.Time) ([]core.MonthlyBalance, error) {
	rows, err := s.store.ListPeriodBalances(ctx, userID, oldPeriodID)
	if err != nil {
		return nil, fmt.Errorf("list balances for period %s: %w", oldPeriodID, err)
	}

	latest := make(map[string]core.MonthlyBalance)
	for _, row := range rows {
		if cur, ok := latest[row.CategoryID]; !ok || row.MonthYear > cur.MonthYear {
			latest[row.CategoryID] = row
		}
	}

	seeds := make([]core.MonthlyBalance, 0, len(latest))
	for _, row := range rows {
		cur, ok := latest[row.CategoryID]
		if !ok || cur.ID != row.ID {
			continue
		}
		seeds = append(seeds, core.MonthlyBalance{
			ID:               uuid.NewString(),
			UserID:           userID,
			PeriodID:         newPeriodID,
			CategoryID:       row.CategoryID,
			MonthYear:        monthYear,
			OpeningBalance:   row.ClosingBalance,
			TotalDeposits:    decimal.Zero,
			TotalWithdrawals: decimal.Zero,
			ClosingBalance:   row.ClosingBalance,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return seeds, nil
}
