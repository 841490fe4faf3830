// Package memory provides the in-memory persistence backend. It is the
// default backend for local development and the fixture for the engine
// tests; every operation mirrors the transactional semantics of the
// SQLite backend under a single mutex.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

type Store struct {
	mu                sync.Mutex
	expenseCategories map[string]core.ExpenseCategory
	incomeCategories  map[string]core.IncomeCategory
	periods           map[string]core.BudgetPeriod
	balances          map[string]core.MonthlyBalance
	logs              []core.FinancialTransaction
	incomes           []core.Income
	expenses          []core.Expense
}

var _ services.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		expenseCategories: make(map[string]core.ExpenseCategory),
		incomeCategories:  make(map[string]core.IncomeCategory),
		periods:           make(map[string]core.BudgetPeriod),
		balances:          make(map[string]core.MonthlyBalance),
	}
}

func balanceKey(k services.BalanceKey) string {
	return strings.Join([]string{k.UserID, k.PeriodID, k.CategoryID, k.MonthYear}, "|")
}

// --- categories ---

func (s *Store) CreateExpenseCategory(_ context.Context, c core.ExpenseCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenseCategories[c.ID]; ok {
		return services.ErrConflict
	}
	s.expenseCategories[c.ID] = c
	return nil
}

func (s *Store) GetExpenseCategory(_ context.Context, userID, id string) (core.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.expenseCategories[id]
	if !ok || c.UserID != userID {
		return core.ExpenseCategory{}, services.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateExpenseCategory(_ context.Context, c core.ExpenseCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.expenseCategories[c.ID]
	if !ok || existing.UserID != c.UserID {
		return services.ErrNotFound
	}
	s.expenseCategories[c.ID] = c
	return nil
}

func (s *Store) DeleteExpenseCategory(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.expenseCategories[id]
	if !ok || c.UserID != userID {
		return services.ErrNotFound
	}
	delete(s.expenseCategories, id)
	return nil
}

func (s *Store) ListExpenseCategories(_ context.Context, userID string) ([]core.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ExpenseCategory
	for _, c := range s.expenseCategories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateIncomeCategory(_ context.Context, c core.IncomeCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incomeCategories[c.ID]; ok {
		return services.ErrConflict
	}
	s.incomeCategories[c.ID] = c
	return nil
}

func (s *Store) GetIncomeCategory(_ context.Context, userID, id string) (core.IncomeCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.incomeCategories[id]
	if !ok || c.UserID != userID {
		return core.IncomeCategory{}, services.ErrNotFound
	}
	return c, nil
}

func (s *Store) DeleteIncomeCategory(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.incomeCategories[id]
	if !ok || c.UserID != userID {
		return services.ErrNotFound
	}
	delete(s.incomeCategories, id)
	return nil
}

func (s *Store) ListIncomeCategories(_ context.Context, userID string) ([]core.IncomeCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.IncomeCategory
	for _, c := range s.incomeCategories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- periods ---

func (s *Store) GetActivePeriod(_ context.Context, userID string) (core.BudgetPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.periods {
		if p.UserID == userID && p.IsActive {
			return p, nil
		}
	}
	return core.BudgetPeriod{}, services.ErrNotFound
}

func (s *Store) GetPeriod(_ context.Context, userID, id string) (core.BudgetPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[id]
	if !ok || p.UserID != userID {
		return core.BudgetPeriod{}, services.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPeriods(_ context.Context, userID string) ([]core.BudgetPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BudgetPeriod
	for _, p := range s.periods {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (s *Store) CreatePeriod(_ context.Context, p core.BudgetPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.periods[p.ID]; ok {
		return services.ErrConflict
	}
	s.periods[p.ID] = p
	return nil
}

func (s *Store) ClosePeriod(_ context.Context, params services.ClosePeriodParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.periods[params.PeriodID]
	if !ok || p.UserID != params.UserID {
		return services.ErrNotFound
	}
	if _, ok := s.periods[params.NewPeriod.ID]; ok {
		return services.ErrConflict
	}
	for _, seed := range params.SeedBalances {
		key := balanceKey(services.BalanceKey{
			UserID:     seed.UserID,
			PeriodID:   seed.PeriodID,
			CategoryID: seed.CategoryID,
			MonthYear:  seed.MonthYear,
		})
		if _, ok := s.balances[key]; ok {
			return services.ErrConflict
		}
	}

	// All checks passed; apply the whole unit.
	p.Status = core.StatusClosed
	p.IsActive = false
	p.EndDate = params.EndDate
	s.periods[p.ID] = p
	s.periods[params.NewPeriod.ID] = params.NewPeriod
	for _, seed := range params.SeedBalances {
		key := balanceKey(services.BalanceKey{
			UserID:     seed.UserID,
			PeriodID:   seed.PeriodID,
			CategoryID: seed.CategoryID,
			MonthYear:  seed.MonthYear,
		})
		s.balances[key] = seed
	}
	return nil
}

// --- balances ---

func (s *Store) GetBalance(_ context.Context, key services.BalanceKey) (core.MonthlyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[balanceKey(key)]
	if !ok {
		return core.MonthlyBalance{}, services.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListBalances(_ context.Context, userID, monthYear string) ([]core.MonthlyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.MonthlyBalance
	for _, b := range s.balances {
		if b.UserID != userID {
			continue
		}
		if monthYear != "" && b.MonthYear != monthYear {
			continue
		}
		out = append(out, b)
	}
	sortBalances(out)
	return out, nil
}

func (s *Store) ListPeriodBalances(_ context.Context, userID, periodID string) ([]core.MonthlyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.MonthlyBalance
	for _, b := range s.balances {
		if b.UserID == userID && b.PeriodID == periodID {
			out = append(out, b)
		}
	}
	sortBalances(out)
	return out, nil
}

func sortBalances(out []core.MonthlyBalance) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].MonthYear != out[j].MonthYear {
			return out[i].MonthYear > out[j].MonthYear
		}
		return out[i].CategoryID < out[j].CategoryID
	})
}

// ApplyBalanceDelta performs the upsert-and-increment under the store
// mutex, the in-memory equivalent of one write transaction.
func (s *Store) ApplyBalanceDelta(_ context.Context, key services.BalanceKey, depositDelta, withdrawalDelta decimal.Decimal) (core.MonthlyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if b, ok := s.balances[balanceKey(key)]; ok {
		b.TotalDeposits = b.TotalDeposits.Add(depositDelta)
		b.TotalWithdrawals = b.TotalWithdrawals.Add(withdrawalDelta)
		b.ClosingBalance = b.ComputedClosing()
		b.UpdatedAt = now
		s.balances[balanceKey(key)] = b
		return b, nil
	}

	opening := s.previousClosingLocked(key)
	b := core.MonthlyBalance{
		ID:               uuid.NewString(),
		UserID:           key.UserID,
		PeriodID:         key.PeriodID,
		CategoryID:       key.CategoryID,
		MonthYear:        key.MonthYear,
		OpeningBalance:   opening,
		TotalDeposits:    depositDelta,
		TotalWithdrawals: withdrawalDelta,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	b.ClosingBalance = b.ComputedClosing()
	s.balances[balanceKey(key)] = b
	return b, nil
}

func (s *Store) previousClosingLocked(key services.BalanceKey) decimal.Decimal {
	previous, err := core.PreviousMonthKey(key.MonthYear)
	if err != nil {
		return decimal.Zero
	}
	prevKey := key
	prevKey.MonthYear = previous
	if b, ok := s.balances[balanceKey(prevKey)]; ok {
		return b.ClosingBalance
	}
	return decimal.Zero
}

func (s *Store) TransferBalance(_ context.Context, params services.TransferParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromKey := services.BalanceKey{
		UserID:     params.UserID,
		PeriodID:   params.PeriodID,
		CategoryID: params.FromCategoryID,
		MonthYear:  params.MonthYear,
	}
	from, ok := s.balances[balanceKey(fromKey)]
	if !ok {
		return core.ErrSourceBalanceNotFound
	}
	if from.ClosingBalance.LessThan(params.Amount) {
		return &core.InsufficientFundsError{
			CategoryID: params.FromCategoryID,
			Available:  from.ClosingBalance,
			Requested:  params.Amount,
		}
	}

	now := time.Now().UTC()
	toKey := services.BalanceKey{
		UserID:     params.UserID,
		PeriodID:   params.PeriodID,
		CategoryID: params.ToCategoryID,
		MonthYear:  params.MonthYear,
	}
	to, ok := s.balances[balanceKey(toKey)]
	if !ok {
		to = core.MonthlyBalance{
			ID:         uuid.NewString(),
			UserID:     params.UserID,
			PeriodID:   params.PeriodID,
			CategoryID: params.ToCategoryID,
			MonthYear:  params.MonthYear,
			CreatedAt:  now,
		}
	}

	from.TotalWithdrawals = from.TotalWithdrawals.Add(params.Amount)
	from.ClosingBalance = from.ClosingBalance.Sub(params.Amount)
	from.UpdatedAt = now
	to.TotalDeposits = to.TotalDeposits.Add(params.Amount)
	to.ClosingBalance = to.ClosingBalance.Add(params.Amount)
	to.UpdatedAt = now

	s.balances[balanceKey(fromKey)] = from
	s.balances[balanceKey(toKey)] = to
	return nil
}

// --- financial log ---

func (s *Store) AppendFinancialLog(_ context.Context, tx core.FinancialTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string]decimal.Decimal, len(tx.Balances))
	for k, v := range tx.Balances {
		snapshot[k] = v
	}
	tx.Balances = snapshot
	s.logs = append(s.logs, tx)
	return nil
}

func (s *Store) LatestFinancialLog(_ context.Context, userID string) (core.FinancialTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	var latest core.FinancialTransaction
	for _, tx := range s.logs {
		if tx.UserID != userID {
			continue
		}
		if !found || !tx.Timestamp.Before(latest.Timestamp) {
			latest = tx
			found = true
		}
	}
	if !found {
		return core.FinancialTransaction{}, services.ErrNotFound
	}
	return latest, nil
}

func (s *Store) ListFinancialLogs(_ context.Context, userID string, limit int) ([]core.FinancialTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.FinancialTransaction
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].UserID != userID {
			continue
		}
		out = append(out, s.logs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- incomes and expenses ---

func (s *Store) CreateIncome(_ context.Context, in core.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomes = append(s.incomes, in)
	return nil
}

func (s *Store) ListIncomes(_ context.Context, userID, periodID string) ([]core.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Income
	for i := len(s.incomes) - 1; i >= 0; i-- {
		in := s.incomes[i]
		if in.UserID != userID {
			continue
		}
		if periodID != "" && in.PeriodID != periodID {
			continue
		}
		out = append(out, in)
	}
	return out, nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append(s.expenses, e)
	return nil
}

func (s *Store) ListExpenses(_ context.Context, userID, periodID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for i := len(s.expenses) - 1; i >= 0; i-- {
		e := s.expenses[i]
		if e.UserID != userID {
			continue
		}
		if periodID != "" && e.PeriodID != periodID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
