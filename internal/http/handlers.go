package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListPeriods(r.Context(), "readiness-probe"); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// mapError translates engine errors to HTTP status codes.
func mapError(w http.ResponseWriter, err error) {
	var ife *core.InsufficientFundsError
	switch {
	case errors.As(err, &ife):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":         ife.Error(),
			"category_id":   ife.CategoryID,
			"category_name": ife.CategoryName,
			"available":     ife.Available,
			"requested":     ife.Requested,
		})
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrConflict),
		errors.Is(err, core.ErrActivePeriodExists),
		errors.Is(err, core.ErrPeriodAlreadyClosed),
		errors.Is(err, core.ErrPeriodClosedForTransfers):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrInvalidConfiguration),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrSameCategory),
		errors.Is(err, core.ErrNoActivePeriod),
		errors.Is(err, core.ErrSourceBalanceNotFound),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrInvalidShare),
		errors.Is(err, core.ErrInvalidPeriodDates):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// --- incomes ---

type createIncomeRequest struct {
	CategoryID string `json:"category_id"`
	Amount     string `json:"amount"`
	Details    string `json:"details"`
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req createIncomeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.budget.RecordIncome(r.Context(), userID(r), req.CategoryID, amount, sanitizeInput(req.Details))
	if err != nil {
		mapError(w, err)
		return
	}

	resp := map[string]any{
		"income":        incomeDTO(result.Income),
		"distributions": distributionDTOs(result.Distributions),
	}
	if result.DistributionErr != nil {
		// The income row is kept; the caller decides how to resolve the
		// failed distribution.
		resp["distribution_error"] = result.DistributionErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	incomes, err := s.store.ListIncomes(r.Context(), userID(r), r.URL.Query().Get("period_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(incomes))
	for _, in := range incomes {
		out = append(out, incomeDTO(in))
	}
	writeJSON(w, http.StatusOK, out)
}

func incomeDTO(in core.Income) map[string]any {
	return map[string]any{
		"id":          in.ID,
		"period_id":   in.PeriodID,
		"category_id": in.CategoryID,
		"amount":      in.Amount,
		"details":     in.Details,
		"created_at":  in.CreatedAt,
	}
}

func distributionDTOs(distributions []core.Distribution) []map[string]any {
	out := make([]map[string]any, 0, len(distributions))
	for _, d := range distributions {
		out = append(out, map[string]any{
			"category_id":   d.CategoryID,
			"category_name": d.CategoryName,
			"amount":        d.Amount,
			"month_year":    d.MonthYear,
		})
	}
	return out
}

// --- expenses ---

type createExpenseRequest struct {
	CategoryID string `json:"category_id"`
	Amount     string `json:"amount"`
	Details    string `json:"details"`
	Date       string `json:"date"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := s.budget.CreateExpense(r.Context(), userID(r), req.CategoryID, amount, sanitizeInput(req.Details), date)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expenseDTO(expense))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.store.ListExpenses(r.Context(), userID(r), r.URL.Query().Get("period_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, expenseDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func expenseDTO(e core.Expense) map[string]any {
	return map[string]any{
		"id":          e.ID,
		"period_id":   e.PeriodID,
		"category_id": e.CategoryID,
		"amount":      e.Amount,
		"details":     e.Details,
		"created_at":  e.CreatedAt,
	}
}

// --- transfers ---

type transferRequest struct {
	FromCategoryID string `json:"from_category_id"`
	ToCategoryID   string `json:"to_category_id"`
	Amount         string `json:"amount"`
	MonthYear      string `json:"month_year"`
}

func (s *Server) handleTransferBalance(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	monthYear := req.MonthYear
	if monthYear == "" {
		monthYear = core.MonthKey(time.Now())
	}

	if err := s.budget.Transfer(r.Context(), userID(r), req.FromCategoryID, req.ToCategoryID, amount, monthYear); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from_category_id": req.FromCategoryID,
		"to_category_id":   req.ToCategoryID,
		"amount":           amount,
		"month_year":       monthYear,
	})
}

// --- balances ---

func (s *Server) handleAvailableBalance(w http.ResponseWriter, r *http.Request) {
	categoryID := r.URL.Query().Get("category_id")
	if categoryID == "" {
		writeError(w, http.StatusBadRequest, "missing category_id")
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	available, err := s.budget.AvailableBalance(r.Context(), userID(r), categoryID, date)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category_id": categoryID,
		"month_year":  core.MonthKey(date),
		"available":   available,
	})
}

func (s *Server) handleMonthlyBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.store.ListBalances(r.Context(), userID(r), r.URL.Query().Get("month_year"))
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(balances))
	for _, b := range balances {
		out = append(out, map[string]any{
			"id":                b.ID,
			"period_id":         b.PeriodID,
			"category_id":       b.CategoryID,
			"month_year":        b.MonthYear,
			"opening_balance":   b.OpeningBalance,
			"total_deposits":    b.TotalDeposits,
			"total_withdrawals": b.TotalWithdrawals,
			"closing_balance":   b.ClosingBalance,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFinancialLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	logs, err := s.ledger.ListLogs(r.Context(), userID(r), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(logs))
	for _, tx := range logs {
		out = append(out, financialLogDTO(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePeriodLogs lists the log rows that fall inside the period's date
// window, newest first. Log rows carry no period key, so the window is the
// filter.
func (s *Server) handlePeriodLogs(w http.ResponseWriter, r *http.Request) {
	period, err := s.store.GetPeriod(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		mapError(w, err)
		return
	}

	logs, err := s.ledger.ListLogs(r.Context(), userID(r), 0)
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(logs))
	for _, tx := range logs {
		if tx.Timestamp.Before(period.StartDate) {
			continue
		}
		if !period.EndDate.IsZero() && tx.Timestamp.After(period.EndDate) {
			continue
		}
		out = append(out, financialLogDTO(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

func financialLogDTO(tx core.FinancialTransaction) map[string]any {
	return map[string]any{
		"id":               tx.ID,
		"transaction_type": tx.Type,
		"ref_id":           tx.RefID,
		"amount":           tx.Amount,
		"balances":         tx.Balances,
		"timestamp":        tx.Timestamp,
	}
}

// --- categories ---

type expenseCategoryRequest struct {
	Name            string `json:"name"`
	PercentageShare string `json:"percentage_share"`
	Description     string `json:"description"`
}

func (s *Server) handleCreateExpenseCategory(w http.ResponseWriter, r *http.Request) {
	var req expenseCategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	share, err := decimal.NewFromString(req.PercentageShare)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid percentage_share")
		return
	}

	category := core.ExpenseCategory{
		ID:              uuid.NewString(),
		UserID:          userID(r),
		Name:            sanitizeInput(req.Name),
		PercentageShare: share,
		Description:     sanitizeInput(req.Description),
		CreatedAt:       time.Now().UTC(),
	}
	if err := category.Validate(); err != nil {
		mapError(w, err)
		return
	}
	if err := s.store.CreateExpenseCategory(r.Context(), category); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expenseCategoryDTO(category))
}

func (s *Server) handleListExpenseCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListExpenseCategories(r.Context(), userID(r))
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(categories))
	for _, c := range categories {
		out = append(out, expenseCategoryDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateExpenseCategory(w http.ResponseWriter, r *http.Request) {
	var req expenseCategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	share, err := decimal.NewFromString(req.PercentageShare)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid percentage_share")
		return
	}

	existing, err := s.store.GetExpenseCategory(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		mapError(w, err)
		return
	}
	existing.Name = sanitizeInput(req.Name)
	existing.PercentageShare = share
	existing.Description = sanitizeInput(req.Description)
	if err := existing.Validate(); err != nil {
		mapError(w, err)
		return
	}
	if err := s.store.UpdateExpenseCategory(r.Context(), existing); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expenseCategoryDTO(existing))
}

func (s *Server) handleDeleteExpenseCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteExpenseCategory(r.Context(), userID(r), r.PathValue("id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func expenseCategoryDTO(c core.ExpenseCategory) map[string]any {
	return map[string]any{
		"id":               c.ID,
		"name":             c.Name,
		"percentage_share": c.PercentageShare,
		"description":      c.Description,
		"created_at":       c.CreatedAt,
	}
}

type incomeCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateIncomeCategory(w http.ResponseWriter, r *http.Request) {
	var req incomeCategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	category := core.IncomeCategory{
		ID:          uuid.NewString(),
		UserID:      userID(r),
		Name:        sanitizeInput(req.Name),
		Description: sanitizeInput(req.Description),
		CreatedAt:   time.Now().UTC(),
	}
	if err := category.Validate(); err != nil {
		mapError(w, err)
		return
	}
	if err := s.store.CreateIncomeCategory(r.Context(), category); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, incomeCategoryDTO(category))
}

func (s *Server) handleListIncomeCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListIncomeCategories(r.Context(), userID(r))
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(categories))
	for _, c := range categories {
		out = append(out, incomeCategoryDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteIncomeCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteIncomeCategory(r.Context(), userID(r), r.PathValue("id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func incomeCategoryDTO(c core.IncomeCategory) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"name":        c.Name,
		"description": c.Description,
		"created_at":  c.CreatedAt,
	}
}

// --- periods ---

func (s *Server) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.periods.ListPeriods(r.Context(), userID(r))
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(periods))
	for _, p := range periods {
		dto := periodDTO(p.BudgetPeriod)
		dto["income_count"] = p.IncomeCount
		dto["expense_count"] = p.ExpenseCount
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

type createPeriodRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (s *Server) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req createPeriodRequest
	if !decodeBody(w, r, &req) {
		return
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var endDate time.Time
	if req.EndDate != "" {
		if endDate, err = parseDate(req.EndDate); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	period, err := s.periods.CreatePeriod(r.Context(), userID(r), sanitizeInput(req.Name), startDate, endDate)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, periodDTO(period))
}

func (s *Server) handleActivePeriod(w http.ResponseWriter, r *http.Request) {
	period, err := s.periods.GetActivePeriod(r.Context(), userID(r))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, periodDTO(period))
}

type closePeriodRequest struct {
	NewName          string `json:"new_name"`
	NewStartDate     string `json:"new_start_date"`
	TransferBalances bool   `json:"transfer_balances"`
}

func (s *Server) handleClosePeriod(w http.ResponseWriter, r *http.Request) {
	var req closePeriodRequest
	if !decodeBody(w, r, &req) {
		return
	}
	newStart, err := parseDate(req.NewStartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	newName := sanitizeInput(req.NewName)
	if newName == "" {
		newName = "Period starting " + newStart.Format("2006-01-02")
	}

	closed, opened, err := s.periods.ClosePeriod(r.Context(), userID(r), r.PathValue("id"), newName, newStart, req.TransferBalances)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"closed_period": periodDTO(closed),
		"new_period":    periodDTO(opened),
	})
}

func (s *Server) handlePeriodStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.periods.Stats(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		mapError(w, err)
		return
	}

	byCategory := func(totals []services.CategoryTotal) []map[string]any {
		out := make([]map[string]any, 0, len(totals))
		for _, t := range totals {
			out = append(out, map[string]any{
				"category_id":   t.CategoryID,
				"category_name": t.CategoryName,
				"total":         t.Total,
				"count":         t.Count,
			})
		}
		return out
	}
	balances := make([]map[string]any, 0, len(stats.CurrentBalances))
	for _, b := range stats.CurrentBalances {
		balances = append(balances, map[string]any{
			"category_id":     b.CategoryID,
			"category_name":   b.CategoryName,
			"closing_balance": b.ClosingBalance,
			"month_year":      b.MonthYear,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period":               periodDTO(stats.Period),
		"total_income":         stats.TotalIncome,
		"total_expenses":       stats.TotalExpenses,
		"net_balance":          stats.NetBalance,
		"income_count":         stats.IncomeCount,
		"expense_count":        stats.ExpenseCount,
		"incomes_by_category":  byCategory(stats.IncomesByCategory),
		"expenses_by_category": byCategory(stats.ExpensesByCategory),
		"current_balances":     balances,
	})
}

func periodDTO(p core.BudgetPeriod) map[string]any {
	dto := map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"start_date": p.StartDate,
		"is_active":  p.IsActive,
		"status":     p.Status,
		"created_at": p.CreatedAt,
	}
	if !p.EndDate.IsZero() {
		dto["end_date"] = p.EndDate
	}
	return dto
}
