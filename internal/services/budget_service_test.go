package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/services"
	"bilancio/internal/storage/memory"
)

const testUser = "user-1"

func newEngine(t *testing.T) (*memory.Store, *services.BudgetService, *services.PeriodService) {
	t.Helper()
	store := memory.New()
	periods := services.NewPeriodService(store)
	ledger := services.NewLedgerService(store, nil)
	budget := services.NewBudgetService(store, periods, ledger)
	return store, budget, periods
}

func addExpenseCategory(t *testing.T, store *memory.Store, userID, name string, share int64) core.ExpenseCategory {
	t.Helper()
	c := core.ExpenseCategory{
		ID:              uuid.NewString(),
		UserID:          userID,
		Name:            name,
		PercentageShare: decimal.NewFromInt(share),
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.CreateExpenseCategory(context.Background(), c); err != nil {
		t.Fatalf("create expense category %s: %v", name, err)
	}
	return c
}

func addIncomeCategory(t *testing.T, store *memory.Store, userID, name string) core.IncomeCategory {
	t.Helper()
	c := core.IncomeCategory{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateIncomeCategory(context.Background(), c); err != nil {
		t.Fatalf("create income category %s: %v", name, err)
	}
	return c
}

func TestDistributeIncome(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 60)
	rent := addExpenseCategory(t, store, testUser, "Rent", 40)
	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	distributions, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(1000), date)
	if err != nil {
		t.Fatalf("DistributeIncome: %v", err)
	}
	if len(distributions) != 2 {
		t.Fatalf("got %d distributions, want 2", len(distributions))
	}

	byCategory := make(map[string]decimal.Decimal)
	for _, d := range distributions {
		byCategory[d.CategoryID] = d.Amount
	}
	if !byCategory[food.ID].Equal(decimal.NewFromInt(600)) {
		t.Errorf("food share = %s, want 600", byCategory[food.ID])
	}
	if !byCategory[rent.ID].Equal(decimal.NewFromInt(400)) {
		t.Errorf("rent share = %s, want 400", byCategory[rent.ID])
	}

	// The ledger rows carry the deposits with closing balances updated.
	balances, err := store.ListBalances(ctx, testUser, "2025-06")
	if err != nil {
		t.Fatalf("ListBalances: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("got %d balance rows, want 2", len(balances))
	}
	for _, b := range balances {
		if !b.ClosingBalance.Equal(b.ComputedClosing()) {
			t.Errorf("closing balance %s != computed %s", b.ClosingBalance, b.ComputedClosing())
		}
		if !b.OpeningBalance.IsZero() {
			t.Errorf("opening balance = %s, want 0 for a fresh month", b.OpeningBalance)
		}
	}
}

func TestDistributeIncome_RepeatedDepositsAccumulate(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 100)
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(100), date); err != nil {
			t.Fatalf("DistributeIncome #%d: %v", i, err)
		}
	}

	available, err := budget.AvailableBalance(ctx, testUser, food.ID, date)
	if err != nil {
		t.Fatalf("AvailableBalance: %v", err)
	}
	if !available.Equal(decimal.NewFromInt(300)) {
		t.Errorf("available = %s, want 300", available)
	}
}

func TestDistributeIncome_InvalidConfiguration(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	addExpenseCategory(t, store, testUser, "Food", 60)
	addExpenseCategory(t, store, testUser, "Rent", 30) // sums to 90

	_, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(1000), time.Now())
	if !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}

	// Nothing was written.
	balances, _ := store.ListBalances(ctx, testUser, "")
	if len(balances) != 0 {
		t.Errorf("got %d balance rows after failed distribution, want 0", len(balances))
	}
}

func TestDistributeIncome_NoCategories(t *testing.T) {
	ctx := context.Background()
	_, budget, _ := newEngine(t)

	_, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(100), time.Now())
	if !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestDistributeIncome_InvalidAmount(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	addExpenseCategory(t, store, testUser, "Food", 100)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		if _, err := budget.DistributeIncome(ctx, testUser, amount, time.Now()); !errors.Is(err, core.ErrInvalidAmount) {
			t.Errorf("amount %s: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestEnsureActivePeriod_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, _, periods := newEngine(t)

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := periods.EnsureActivePeriod(ctx, testUser)
			if err != nil {
				t.Errorf("EnsureActivePeriod: %v", err)
				return
			}
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()

	want := services.DefaultPeriodID(testUser)
	for i, id := range ids {
		if id != want {
			t.Errorf("goroutine %d got period %q, want %q", i, id, want)
		}
	}

	all, err := store.ListPeriods(ctx, testUser)
	if err != nil {
		t.Fatalf("ListPeriods: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("got %d periods, want exactly 1", len(all))
	}
}

func TestAvailableBalance_PreviousMonthFallback(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 100)

	may := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	if _, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(500), may); err != nil {
		t.Fatalf("DistributeIncome: %v", err)
	}

	tests := []struct {
		name string
		date time.Time
		want int64
	}{
		{"current month row", may, 500},
		{"next month falls back", may.AddDate(0, 1, 0), 500},
		{"two months ahead sees nothing", may.AddDate(0, 2, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := budget.AvailableBalance(ctx, testUser, food.ID, tt.date)
			if err != nil {
				t.Fatalf("AvailableBalance: %v", err)
			}
			if !got.Equal(decimal.NewFromInt(tt.want)) {
				t.Errorf("available = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestAvailableBalance_NoPeriodIsReadOnly(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 100)

	available, err := budget.AvailableBalance(ctx, testUser, food.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("AvailableBalance: %v", err)
	}
	if !available.IsZero() {
		t.Errorf("available = %s, want 0", available)
	}

	// A balance read must not create a period as a side effect.
	periods, err := store.ListPeriods(ctx, testUser)
	if err != nil {
		t.Fatalf("ListPeriods: %v", err)
	}
	if len(periods) != 0 {
		t.Errorf("got %d periods after a read, want 0", len(periods))
	}
}

func TestCreateExpense(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 100)
	june := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)

	if _, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(200), june); err != nil {
		t.Fatalf("DistributeIncome: %v", err)
	}

	expense, err := budget.CreateExpense(ctx, testUser, food.ID, decimal.NewFromInt(80), "groceries", june)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if expense.PeriodID == "" {
		t.Error("expense should be attached to the active period")
	}

	available, err := budget.AvailableBalance(ctx, testUser, food.ID, june)
	if err != nil {
		t.Fatalf("AvailableBalance: %v", err)
	}
	if !available.Equal(decimal.NewFromInt(120)) {
		t.Errorf("available = %s, want 120", available)
	}

	expenses, err := store.ListExpenses(ctx, testUser, expense.PeriodID)
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(expenses) != 1 {
		t.Errorf("got %d expense rows, want 1", len(expenses))
	}
}

func TestCreateExpense_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 100)
	june := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)

	if _, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(50), june); err != nil {
		t.Fatalf("DistributeIncome: %v", err)
	}

	_, err := budget.CreateExpense(ctx, testUser, food.ID, decimal.NewFromInt(80), "too much", june)
	var ife *core.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("err = %v, want InsufficientFundsError", err)
	}
	if !ife.Available.Equal(decimal.NewFromInt(50)) || !ife.Requested.Equal(decimal.NewFromInt(80)) {
		t.Errorf("error carries available=%s requested=%s, want 50/80", ife.Available, ife.Requested)
	}
	if ife.CategoryName != "Food" {
		t.Errorf("error carries category name %q, want Food", ife.CategoryName)
	}

	// Overdraw protection: no expense row, balance untouched.
	expenses, _ := store.ListExpenses(ctx, testUser, "")
	if len(expenses) != 0 {
		t.Errorf("got %d expense rows after rejected expense, want 0", len(expenses))
	}
	available, _ := budget.AvailableBalance(ctx, testUser, food.ID, june)
	if !available.Equal(decimal.NewFromInt(50)) {
		t.Errorf("available = %s after rejected expense, want 50", available)
	}
}

func TestCreateExpense_ExactBalanceAllowed(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 100)
	june := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)

	if _, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(50), june); err != nil {
		t.Fatalf("DistributeIncome: %v", err)
	}
	if _, err := budget.CreateExpense(ctx, testUser, food.ID, decimal.NewFromInt(50), "all of it", june); err != nil {
		t.Fatalf("spending the exact balance should succeed: %v", err)
	}

	available, _ := budget.AvailableBalance(ctx, testUser, food.ID, june)
	if !available.IsZero() {
		t.Errorf("available = %s, want 0", available)
	}
}

func TestCreateExpense_NewMonthSeedsFromPrevious(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	food := addExpenseCategory(t, store, testUser, "Food", 100)
	may := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	june := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	if _, err := budget.DistributeIncome(ctx, testUser, decimal.NewFromInt(300), may); err != nil {
		t.Fatalf("DistributeIncome: %v", err)
	}
	if _, err := budget.CreateExpense(ctx, testUser, food.ID, decimal.NewFromInt(100), "june spend", june); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	// June's row opened with May's closing balance carried forward.
	balances, err := store.ListBalances(ctx, testUser, "2025-06")
	if err != nil || len(balances) != 1 {
		t.Fatalf("june balances = %v (err %v), want 1 row", balances, err)
	}
	b := balances[0]
	if !b.OpeningBalance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("opening = %s, want 300", b.OpeningBalance)
	}
	if !b.ClosingBalance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("closing = %s, want 200", b.ClosingBalance)
	}
}

func TestRecordIncome(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	addExpenseCategory(t, store, testUser, "Food", 100)
	salary := addIncomeCategory(t, store, testUser, "Salary")

	result, err := budget.RecordIncome(ctx, testUser, salary.ID, decimal.NewFromInt(1000), "august pay")
	if err != nil {
		t.Fatalf("RecordIncome: %v", err)
	}
	if result.DistributionErr != nil {
		t.Fatalf("unexpected distribution error: %v", result.DistributionErr)
	}
	if len(result.Distributions) != 1 {
		t.Errorf("got %d distributions, want 1", len(result.Distributions))
	}

	// The audit log captured a deposit snapshot.
	logs, err := store.ListFinancialLogs(ctx, testUser, 10)
	if err != nil {
		t.Fatalf("ListFinancialLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d log rows, want 1", len(logs))
	}
	if logs[0].Type != core.TransactionDeposit {
		t.Errorf("log type = %s, want DEPOSIT", logs[0].Type)
	}
	if logs[0].RefID != result.Income.ID {
		t.Errorf("log ref = %q, want income ID %q", logs[0].RefID, result.Income.ID)
	}
}

func TestRecordIncome_KeptOnDistributionFailure(t *testing.T) {
	ctx := context.Background()
	store, budget, _ := newEngine(t)
	addExpenseCategory(t, store, testUser, "Food", 90) // misconfigured
	salary := addIncomeCategory(t, store, testUser, "Salary")

	result, err := budget.RecordIncome(ctx, testUser, salary.ID, decimal.NewFromInt(1000), "pay")
	if err != nil {
		t.Fatalf("RecordIncome: %v", err)
	}
	if !errors.Is(result.DistributionErr, core.ErrInvalidConfiguration) {
		t.Fatalf("DistributionErr = %v, want ErrInvalidConfiguration", result.DistributionErr)
	}

	// The income row is kept even though the distribution failed.
	incomes, err := store.ListIncomes(ctx, testUser, "")
	if err != nil || len(incomes) != 1 {
		t.Fatalf("incomes = %v (err %v), want 1 row", incomes, err)
	}
	// No ledger rows and no audit entry were written.
	balances, _ := store.ListBalances(ctx, testUser, "")
	if len(balances) != 0 {
		t.Errorf("got %d balance rows, want 0", len(balances))
	}
	logs, _ := store.ListFinancialLogs(ctx, testUser, 10)
	if len(logs) != 0 {
		t.Errorf("got %d log rows, want 0", len(logs))
	}
}

func TestRecordIncome_UnknownCategory(t *testing.T) {
	ctx := context.Background()
	_, budget, _ := newEngine(t)

	_, err := budget.RecordIncome(ctx, testUser, "missing", decimal.NewFromInt(10), "")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
