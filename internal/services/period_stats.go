package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

type (
	// CategoryTotal aggregates entries of one category.
	CategoryTotal struct {
		CategoryID   string
		CategoryName string
		Total        decimal.Decimal
		Count        int
	}

	// CategoryBalance is the latest closing balance of one category
	// within a period.
	CategoryBalance struct {
		CategoryID     string
		CategoryName   string
		ClosingBalance decimal.Decimal
		MonthYear      string
	}

	// PeriodStats is the reporting view of one budget period.
	PeriodStats struct {
		Period             core.BudgetPeriod
		TotalIncome        decimal.Decimal
		TotalExpenses      decimal.Decimal
		NetBalance         decimal.Decimal
		IncomeCount        int
		ExpenseCount       int
		IncomesByCategory  []CategoryTotal
		ExpensesByCategory []CategoryTotal
		CurrentBalances    []CategoryBalance
	}
)

// Stats aggregates a period's incomes, expenses, and latest per-category
// balances.
func (s *PeriodService) Stats(ctx context.Context, userID, periodID string) (PeriodStats, error) {
	period, err := s.store.GetPeriod(ctx, userID, periodID)
	if err != nil {
		return PeriodStats{}, fmt.Errorf("get period: %w", err)
	}

	incomes, err := s.store.ListIncomes(ctx, userID, periodID)
	if err != nil {
		return PeriodStats{}, fmt.Errorf("list incomes: %w", err)
	}
	expenses, err := s.store.ListExpenses(ctx, userID, periodID)
	if err != nil {
		return PeriodStats{}, fmt.Errorf("list expenses: %w", err)
	}

	incomeNames, err := s.incomeCategoryNames(ctx, userID)
	if err != nil {
		return PeriodStats{}, err
	}
	expenseNames, err := s.expenseCategoryNames(ctx, userID)
	if err != nil {
		return PeriodStats{}, err
	}

	stats := PeriodStats{
		Period:       period,
		IncomeCount:  len(incomes),
		ExpenseCount: len(expenses),
	}

	incomeTotals := make(map[string]*CategoryTotal)
	for _, in := range incomes {
		stats.TotalIncome = stats.TotalIncome.Add(in.Amount)
		t, ok := incomeTotals[in.CategoryID]
		if !ok {
			t = &CategoryTotal{CategoryID: in.CategoryID, CategoryName: incomeNames[in.CategoryID]}
			incomeTotals[in.CategoryID] = t
		}
		t.Total = t.Total.Add(in.Amount)
		t.Count++
	}
	for _, t := range incomeTotals {
		stats.IncomesByCategory = append(stats.IncomesByCategory, *t)
	}

	expenseTotals := make(map[string]*CategoryTotal)
	for _, e := range expenses {
		stats.TotalExpenses = stats.TotalExpenses.Add(e.Amount)
		t, ok := expenseTotals[e.CategoryID]
		if !ok {
			t = &CategoryTotal{CategoryID: e.CategoryID, CategoryName: expenseNames[e.CategoryID]}
			expenseTotals[e.CategoryID] = t
		}
		t.Total = t.Total.Add(e.Amount)
		t.Count++
	}
	for _, t := range expenseTotals {
		stats.ExpensesByCategory = append(stats.ExpensesByCategory, *t)
	}

	stats.NetBalance = stats.TotalIncome.Sub(stats.TotalExpenses)

	balances, err := s.store.ListPeriodBalances(ctx, userID, periodID)
	if err != nil {
		return PeriodStats{}, fmt.Errorf("list period balances: %w", err)
	}
	latest := make(map[string]core.MonthlyBalance)
	for _, b := range balances {
		if cur, ok := latest[b.CategoryID]; !ok || b.MonthYear > cur.MonthYear {
			latest[b.CategoryID] = b
		}
	}
	for _, b := range latest {
		stats.CurrentBalances = append(stats.CurrentBalances, CategoryBalance{
			CategoryID:     b.CategoryID,
			CategoryName:   expenseNames[b.CategoryID],
			ClosingBalance: b.ClosingBalance,
			MonthYear:      b.MonthYear,
		})
	}

	return stats, nil
}

func (s *PeriodService) incomeCategoryNames(ctx context.Context, userID string) (map[string]string, error) {
	cats, err := s.store.ListIncomeCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list income categories: %w", err)
	}
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}

func (s *PeriodService) expenseCategoryNames(ctx context.Context, userID string) (map[string]string, error) {
	cats, err := s.store.ListExpenseCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expense categories: %w", err)
	}
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}
