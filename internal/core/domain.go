package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive   PeriodStatus = "ACTIVE"
	StatusClosed   PeriodStatus = "CLOSED"
	StatusArchived PeriodStatus = "ARCHIVED"
)

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTransfer   TransactionType = "TRANSFER"
)

// DefaultPeriodName is the name given to implicitly created periods.
const DefaultPeriodName = "Default Period"

type (
	PeriodStatus    string
	TransactionType string

	// ExpenseCategory is a budget bucket with a fixed percentage claim on
	// every deposit. Shares across a user's categories must sum to exactly
	// 100 before a distribution can succeed.
	ExpenseCategory struct {
		ID              string
		UserID          string
		Name            string
		PercentageShare decimal.Decimal
		Description     string
		CreatedAt       time.Time
	}

	// IncomeCategory is a plain label for classifying deposits.
	IncomeCategory struct {
		ID          string
		UserID      string
		Name        string
		Description string
		CreatedAt   time.Time
	}

	// BudgetPeriod is a named, time-bounded container isolating balances.
	// At most one period per user is active at any time.
	BudgetPeriod struct {
		ID        string
		UserID    string
		Name      string
		StartDate time.Time
		EndDate   time.Time // zero while the period is still open
		IsActive  bool
		Status    PeriodStatus
		CreatedAt time.Time
	}

	// MonthlyBalance is the ledger row for one (user, period, category,
	// month) key. ClosingBalance always equals
	// OpeningBalance + TotalDeposits - TotalWithdrawals.
	MonthlyBalance struct {
		ID               string
		UserID           string
		PeriodID         string
		CategoryID       string
		MonthYear        string
		OpeningBalance   decimal.Decimal
		TotalDeposits    decimal.Decimal
		TotalWithdrawals decimal.Decimal
		ClosingBalance   decimal.Decimal
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	// FinancialTransaction is one append-only audit log row. Balances holds
	// the closing balance snapshot of every expense category at the instant
	// the row was written. Rows are immutable once appended.
	FinancialTransaction struct {
		ID        string
		UserID    string
		Type      TransactionType
		RefID     string
		Amount    decimal.Decimal
		Balances  map[string]decimal.Decimal
		Timestamp time.Time
	}

	// Income is one recorded deposit, attached to the period that was
	// active when it was recorded.
	Income struct {
		ID         string
		UserID     string
		PeriodID   string
		CategoryID string
		Amount     decimal.Decimal
		Details    string
		CreatedAt  time.Time
	}

	// Expense is one recorded withdrawal against an expense category. The
	// row is created only after the ledger check-and-update succeeded.
	Expense struct {
		ID         string
		UserID     string
		PeriodID   string
		CategoryID string
		Amount     decimal.Decimal
		Details    string
		CreatedAt  time.Time
	}

	// Distribution is the per-category amount produced by applying
	// percentage shares to one deposit.
	Distribution struct {
		CategoryID   string
		CategoryName string
		Amount       decimal.Decimal
		MonthYear    string
	}
)

var (
	ErrEmptyName          = errors.New("name cannot be empty")
	ErrNameTooLong        = errors.New("name too long (max 100 characters)")
	ErrInvalidShare       = errors.New("percentage share must be between 0 and 100")
	ErrInvalidPeriodDates = errors.New("end date must be after start date")
)

func (c ExpenseCategory) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return ErrNameTooLong
	}
	if c.PercentageShare.IsNegative() || c.PercentageShare.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidShare
	}
	return nil
}

func (c IncomeCategory) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return ErrNameTooLong
	}
	return nil
}

func (p BudgetPeriod) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if p.StartDate.IsZero() {
		return errors.New("start date cannot be zero")
	}
	if !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
		return ErrInvalidPeriodDates
	}
	return nil
}

// ComputedClosing returns the closing balance implied by the row's other
// fields. It must always equal ClosingBalance.
func (b MonthlyBalance) ComputedClosing() decimal.Decimal {
	return b.OpeningBalance.Add(b.TotalDeposits).Sub(b.TotalWithdrawals)
}
