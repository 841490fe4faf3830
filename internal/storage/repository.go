// Package storage provides the SQLite persistence backend. Monetary
// values are stored as decimal strings and timestamps as RFC 3339 text;
// the multi-row ledger operations run inside a single write transaction.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ services.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection serializes the
	// read-modify-write transactions without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite3.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func newID() string {
	return uuid.NewString()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// --- expense categories ---

func (r *SQLiteRepository) CreateExpenseCategory(ctx context.Context, c core.ExpenseCategory) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expense_categories (id, user_id, name, percentage_share, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.PercentageShare.String(), c.Description, formatTime(c.CreatedAt))
	if isUniqueViolation(err) {
		return services.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert expense category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetExpenseCategory(ctx context.Context, userID, id string) (core.ExpenseCategory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, percentage_share, description, created_at
		 FROM expense_categories WHERE id = ? AND user_id = ?`, id, userID)
	return scanExpenseCategory(row)
}

func scanExpenseCategory(row *sql.Row) (core.ExpenseCategory, error) {
	var c core.ExpenseCategory
	var share, createdAt string
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &share, &c.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseCategory{}, services.ErrNotFound
	}
	if err != nil {
		return core.ExpenseCategory{}, fmt.Errorf("scan expense category: %w", err)
	}
	c.PercentageShare = parseDecimal(share)
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func (r *SQLiteRepository) UpdateExpenseCategory(ctx context.Context, c core.ExpenseCategory) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expense_categories SET name = ?, percentage_share = ?, description = ?
		 WHERE id = ? AND user_id = ?`,
		c.Name, c.PercentageShare.String(), c.Description, c.ID, c.UserID)
	if err != nil {
		return fmt.Errorf("update expense category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpenseCategory(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expense_categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListExpenseCategories(ctx context.Context, userID string) ([]core.ExpenseCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, percentage_share, description, created_at
		 FROM expense_categories WHERE user_id = ? ORDER BY name ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expense categories: %w", err)
	}
	defer rows.Close()

	var out []core.ExpenseCategory
	for rows.Next() {
		var c core.ExpenseCategory
		var share, createdAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &share, &c.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense category: %w", err)
		}
		c.PercentageShare = parseDecimal(share)
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- income categories ---

func (r *SQLiteRepository) CreateIncomeCategory(ctx context.Context, c core.IncomeCategory) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO income_categories (id, user_id, name, description, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Description, formatTime(c.CreatedAt))
	if isUniqueViolation(err) {
		return services.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert income category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetIncomeCategory(ctx context.Context, userID, id string) (core.IncomeCategory, error) {
	var c core.IncomeCategory
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, created_at
		 FROM income_categories WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IncomeCategory{}, services.ErrNotFound
	}
	if err != nil {
		return core.IncomeCategory{}, fmt.Errorf("get income category: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func (r *SQLiteRepository) DeleteIncomeCategory(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM income_categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete income category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListIncomeCategories(ctx context.Context, userID string) ([]core.IncomeCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, created_at
		 FROM income_categories WHERE user_id = ? ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list income categories: %w", err)
	}
	defer rows.Close()

	var out []core.IncomeCategory
	for rows.Next() {
		var c core.IncomeCategory
		var createdAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan income category: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- periods ---

const periodColumns = `id, user_id, name, start_date, end_date, is_active, status, created_at`

func scanPeriod(scan func(dest ...any) error) (core.BudgetPeriod, error) {
	var p core.BudgetPeriod
	var startDate, createdAt string
	var endDate sql.NullString
	var status string
	err := scan(&p.ID, &p.UserID, &p.Name, &startDate, &endDate, &p.IsActive, &status, &createdAt)
	if err != nil {
		return core.BudgetPeriod{}, err
	}
	p.StartDate = parseTime(startDate)
	if endDate.Valid {
		p.EndDate = parseTime(endDate.String)
	}
	p.Status = core.PeriodStatus(status)
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func (r *SQLiteRepository) GetActivePeriod(ctx context.Context, userID string) (core.BudgetPeriod, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+periodColumns+` FROM budget_periods WHERE user_id = ? AND is_active = 1 LIMIT 1`, userID)
	p, err := scanPeriod(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetPeriod{}, services.ErrNotFound
	}
	if err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("get active period: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) GetPeriod(ctx context.Context, userID, id string) (core.BudgetPeriod, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+periodColumns+` FROM budget_periods WHERE id = ? AND user_id = ?`, id, userID)
	p, err := scanPeriod(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetPeriod{}, services.ErrNotFound
	}
	if err != nil {
		return core.BudgetPeriod{}, fmt.Errorf("get period: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListPeriods(ctx context.Context, userID string) ([]core.BudgetPeriod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+periodColumns+` FROM budget_periods WHERE user_id = ? ORDER BY start_date DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetPeriod
	for rows.Next() {
		p, err := scanPeriod(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreatePeriod(ctx context.Context, p core.BudgetPeriod) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budget_periods (id, user_id, name, start_date, end_date, is_active, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, formatTime(p.StartDate), nullableTime(p.EndDate),
		p.IsActive, string(p.Status), formatTime(p.CreatedAt))
	if isUniqueViolation(err) {
		return services.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert period: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ClosePeriod(ctx context.Context, params services.ClosePeriodParams) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE budget_periods SET status = ?, is_active = 0, end_date = ?
		 WHERE id = ? AND user_id = ?`,
		string(core.StatusClosed), formatTime(params.EndDate), params.PeriodID, params.UserID)
	if err != nil {
		return fmt.Errorf("close period: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return services.ErrNotFound
	}

	np := params.NewPeriod
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO budget_periods (id, user_id, name, start_date, end_date, is_active, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		np.ID, np.UserID, np.Name, formatTime(np.StartDate), nullableTime(np.EndDate),
		np.IsActive, string(np.Status), formatTime(np.CreatedAt)); err != nil {
		if isUniqueViolation(err) {
			return services.ErrConflict
		}
		return fmt.Errorf("insert new period: %w", err)
	}

	for _, b := range params.SeedBalances {
		if err := insertBalance(ctx, tx, b); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit close period: %w", err)
	}
	return nil
}

// --- monthly balances ---

const balanceColumns = `id, user_id, period_id, category_id, month_year,
	opening_balance, total_deposits, total_withdrawals, closing_balance, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (core.MonthlyBalance, error) {
	var b core.MonthlyBalance
	var opening, deposits, withdrawals, closing, createdAt, updatedAt string
	err := row.Scan(&b.ID, &b.UserID, &b.PeriodID, &b.CategoryID, &b.MonthYear,
		&opening, &deposits, &withdrawals, &closing, &createdAt, &updatedAt)
	if err != nil {
		return core.MonthlyBalance{}, err
	}
	b.OpeningBalance = parseDecimal(opening)
	b.TotalDeposits = parseDecimal(deposits)
	b.TotalWithdrawals = parseDecimal(withdrawals)
	b.ClosingBalance = parseDecimal(closing)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertBalance(ctx context.Context, e execer, b core.MonthlyBalance) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO monthly_balances (id, user_id, period_id, category_id, month_year,
		   opening_balance, total_deposits, total_withdrawals, closing_balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.PeriodID, b.CategoryID, b.MonthYear,
		b.OpeningBalance.String(), b.TotalDeposits.String(), b.TotalWithdrawals.String(),
		b.ClosingBalance.String(), formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if isUniqueViolation(err) {
		return services.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	return nil
}

func updateBalance(ctx context.Context, e execer, b core.MonthlyBalance) error {
	_, err := e.ExecContext(ctx,
		`UPDATE monthly_balances
		 SET total_deposits = ?, total_withdrawals = ?, closing_balance = ?, updated_at = ?
		 WHERE id = ?`,
		b.TotalDeposits.String(), b.TotalWithdrawals.String(), b.ClosingBalance.String(),
		formatTime(b.UpdatedAt), b.ID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getBalance(ctx context.Context, q querier, key services.BalanceKey) (core.MonthlyBalance, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM monthly_balances
		 WHERE user_id = ? AND period_id = ? AND category_id = ? AND month_year = ?`,
		key.UserID, key.PeriodID, key.CategoryID, key.MonthYear)
	b, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyBalance{}, services.ErrNotFound
	}
	if err != nil {
		return core.MonthlyBalance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) GetBalance(ctx context.Context, key services.BalanceKey) (core.MonthlyBalance, error) {
	return getBalance(ctx, r.db, key)
}

func (r *SQLiteRepository) ListBalances(ctx context.Context, userID, monthYear string) ([]core.MonthlyBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM monthly_balances WHERE user_id = ?`
	args := []any{userID}
	if monthYear != "" {
		query += ` AND month_year = ?`
		args = append(args, monthYear)
	}
	query += ` ORDER BY month_year DESC, category_id ASC`
	return r.listBalances(ctx, query, args...)
}

func (r *SQLiteRepository) ListPeriodBalances(ctx context.Context, userID, periodID string) ([]core.MonthlyBalance, error) {
	return r.listBalances(ctx,
		`SELECT `+balanceColumns+` FROM monthly_balances
		 WHERE user_id = ? AND period_id = ? ORDER BY month_year DESC, category_id ASC`,
		userID, periodID)
}

func (r *SQLiteRepository) listBalances(ctx context.Context, query string, args ...any) ([]core.MonthlyBalance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ApplyBalanceDelta(ctx context.Context, key services.BalanceKey, depositDelta, withdrawalDelta decimal.Decimal) (core.MonthlyBalance, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.MonthlyBalance{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	b, err := getBalance(ctx, tx, key)
	switch {
	case err == nil:
		b.TotalDeposits = b.TotalDeposits.Add(depositDelta)
		b.TotalWithdrawals = b.TotalWithdrawals.Add(withdrawalDelta)
		b.ClosingBalance = b.ComputedClosing()
		b.UpdatedAt = now
		if err := updateBalance(ctx, tx, b); err != nil {
			return core.MonthlyBalance{}, err
		}
	case errors.Is(err, services.ErrNotFound):
		opening := decimal.Zero
		if previous, perr := core.PreviousMonthKey(key.MonthYear); perr == nil {
			prevKey := key
			prevKey.MonthYear = previous
			if prev, gerr := getBalance(ctx, tx, prevKey); gerr == nil {
				opening = prev.ClosingBalance
			} else if !errors.Is(gerr, services.ErrNotFound) {
				return core.MonthlyBalance{}, gerr
			}
		}
		b = core.MonthlyBalance{
			ID:               newID(),
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
		if err := insertBalance(ctx, tx, b); err != nil {
			return core.MonthlyBalance{}, err
		}
	default:
		return core.MonthlyBalance{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.MonthlyBalance{}, fmt.Errorf("commit balance delta: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) TransferBalance(ctx context.Context, params services.TransferParams) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	fromKey := services.BalanceKey{
		UserID:     params.UserID,
		PeriodID:   params.PeriodID,
		CategoryID: params.FromCategoryID,
		MonthYear:  params.MonthYear,
	}
	from, err := getBalance(ctx, tx, fromKey)
	if errors.Is(err, services.ErrNotFound) {
		return core.ErrSourceBalanceNotFound
	}
	if err != nil {
		return err
	}
	if from.ClosingBalance.LessThan(params.Amount) {
		return &core.InsufficientFundsError{
			CategoryID: params.FromCategoryID,
			Available:  from.ClosingBalance,
			Requested:  params.Amount,
		}
	}

	now := time.Now().UTC()
	from.TotalWithdrawals = from.TotalWithdrawals.Add(params.Amount)
	from.ClosingBalance = from.ComputedClosing()
	from.UpdatedAt = now
	if err := updateBalance(ctx, tx, from); err != nil {
		return err
	}

	toKey := services.BalanceKey{
		UserID:     params.UserID,
		PeriodID:   params.PeriodID,
		CategoryID: params.ToCategoryID,
		MonthYear:  params.MonthYear,
	}
	to, err := getBalance(ctx, tx, toKey)
	switch {
	case err == nil:
		to.TotalDeposits = to.TotalDeposits.Add(params.Amount)
		to.ClosingBalance = to.ComputedClosing()
		to.UpdatedAt = now
		if err := updateBalance(ctx, tx, to); err != nil {
			return err
		}
	case errors.Is(err, services.ErrNotFound):
		to = core.MonthlyBalance{
			ID:            newID(),
			UserID:        params.UserID,
			PeriodID:      params.PeriodID,
			CategoryID:    params.ToCategoryID,
			MonthYear:     params.MonthYear,
			TotalDeposits: params.Amount,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		to.ClosingBalance = to.ComputedClosing()
		if err := insertBalance(ctx, tx, to); err != nil {
			return err
		}
	default:
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

// --- financial log ---

func (r *SQLiteRepository) AppendFinancialLog(ctx context.Context, ft core.FinancialTransaction) error {
	snapshot, err := json.Marshal(ft.Balances)
	if err != nil {
		return fmt.Errorf("marshal balance snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO financial_transactions (id, user_id, transaction_type, ref_id, amount, balances, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ft.ID, ft.UserID, string(ft.Type), ft.RefID, ft.Amount.String(), string(snapshot), formatTime(ft.Timestamp))
	if err != nil {
		return fmt.Errorf("insert financial transaction: %w", err)
	}
	return nil
}

func scanFinancialTransaction(row rowScanner) (core.FinancialTransaction, error) {
	var ft core.FinancialTransaction
	var txType, amount, balances, timestamp string
	if err := row.Scan(&ft.ID, &ft.UserID, &txType, &ft.RefID, &amount, &balances, &timestamp); err != nil {
		return core.FinancialTransaction{}, err
	}
	ft.Type = core.TransactionType(txType)
	ft.Amount = parseDecimal(amount)
	ft.Timestamp = parseTime(timestamp)
	if err := json.Unmarshal([]byte(balances), &ft.Balances); err != nil {
		return core.FinancialTransaction{}, fmt.Errorf("unmarshal balance snapshot: %w", err)
	}
	return ft, nil
}

func (r *SQLiteRepository) LatestFinancialLog(ctx context.Context, userID string) (core.FinancialTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, transaction_type, ref_id, amount, balances, timestamp
		 FROM financial_transactions WHERE user_id = ?
		 ORDER BY timestamp DESC, rowid DESC LIMIT 1`, userID)
	ft, err := scanFinancialTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FinancialTransaction{}, services.ErrNotFound
	}
	if err != nil {
		return core.FinancialTransaction{}, fmt.Errorf("get latest financial transaction: %w", err)
	}
	return ft, nil
}

func (r *SQLiteRepository) ListFinancialLogs(ctx context.Context, userID string, limit int) ([]core.FinancialTransaction, error) {
	query := `SELECT id, user_id, transaction_type, ref_id, amount, balances, timestamp
		 FROM financial_transactions WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list financial transactions: %w", err)
	}
	defer rows.Close()

	var out []core.FinancialTransaction
	for rows.Next() {
		ft, err := scanFinancialTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan financial transaction: %w", err)
		}
		out = append(out, ft)
	}
	return out, rows.Err()
}

// --- incomes and expenses ---

func (r *SQLiteRepository) CreateIncome(ctx context.Context, in core.Income) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO incomes (id, user_id, period_id, category_id, amount, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.UserID, in.PeriodID, in.CategoryID, in.Amount.String(), in.Details, formatTime(in.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert income: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListIncomes(ctx context.Context, userID, periodID string) ([]core.Income, error) {
	query := `SELECT id, user_id, period_id, category_id, amount, details, created_at
		 FROM incomes WHERE user_id = ?`
	args := []any{userID}
	if periodID != "" {
		query += ` AND period_id = ?`
		args = append(args, periodID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var out []core.Income
	for rows.Next() {
		var in core.Income
		var amount, createdAt string
		if err := rows.Scan(&in.ID, &in.UserID, &in.PeriodID, &in.CategoryID, &amount, &in.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		in.Amount = parseDecimal(amount)
		in.CreatedAt = parseTime(createdAt)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, period_id, category_id, amount, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.PeriodID, e.CategoryID, e.Amount.String(), e.Details, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID, periodID string) ([]core.Expense, error) {
	query := `SELECT id, user_id, period_id, category_id, amount, details, created_at
		 FROM expenses WHERE user_id = ?`
	args := []any{userID}
	if periodID != "" {
		query += ` AND period_id = ?`
		args = append(args, periodID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var e core.Expense
		var amount, createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.PeriodID, &e.CategoryID, &amount, &e.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Amount = parseDecimal(amount)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
