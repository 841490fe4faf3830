// Package http exposes the budgeting engine as a JSON API. Identity is
// carried in the X-User-ID header; all amounts travel as decimal strings.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/log"
	"bilancio/internal/services"
)

type Server struct {
	http.Server
	budget      *services.BudgetService
	periods     *services.PeriodService
	ledger      *services.LedgerService
	store       services.Store
	rateLimiter *rateLimiter
	logger      *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, budget *services.BudgetService, periods *services.PeriodService, ledger *services.LedgerService, store services.Store) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		budget:      budget,
		periods:     periods,
		ledger:      ledger,
		store:       store,
		rateLimiter: newRateLimiter(),
		logger:      log.Component(log.ComponentHTTP),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /incomes", s.withMiddleware(s.handleCreateIncome))
	mux.HandleFunc("GET /incomes", s.withMiddleware(s.handleListIncomes))
	mux.HandleFunc("POST /expenses", s.withMiddleware(s.handleCreateExpense))
	mux.HandleFunc("GET /expenses", s.withMiddleware(s.handleListExpenses))
	mux.HandleFunc("POST /transfer-balance", s.withMiddleware(s.handleTransferBalance))

	mux.HandleFunc("GET /available-balance", s.withMiddleware(s.handleAvailableBalance))
	mux.HandleFunc("GET /monthly-balances", s.withMiddleware(s.handleMonthlyBalances))
	mux.HandleFunc("GET /financial-logs", s.withMiddleware(s.handleFinancialLogs))

	mux.HandleFunc("POST /expense-categories", s.withMiddleware(s.handleCreateExpenseCategory))
	mux.HandleFunc("GET /expense-categories", s.withMiddleware(s.handleListExpenseCategories))
	mux.HandleFunc("PUT /expense-categories/{id}", s.withMiddleware(s.handleUpdateExpenseCategory))
	mux.HandleFunc("DELETE /expense-categories/{id}", s.withMiddleware(s.handleDeleteExpenseCategory))
	mux.HandleFunc("POST /income-categories", s.withMiddleware(s.handleCreateIncomeCategory))
	mux.HandleFunc("GET /income-categories", s.withMiddleware(s.handleListIncomeCategories))
	mux.HandleFunc("DELETE /income-categories/{id}", s.withMiddleware(s.handleDeleteIncomeCategory))

	mux.HandleFunc("GET /periods", s.withMiddleware(s.handleListPeriods))
	mux.HandleFunc("POST /periods", s.withMiddleware(s.handleCreatePeriod))
	mux.HandleFunc("GET /periods/active", s.withMiddleware(s.handleActivePeriod))
	mux.HandleFunc("POST /periods/{id}/close", s.withMiddleware(s.handleClosePeriod))
	mux.HandleFunc("GET /periods/{id}/stats", s.withMiddleware(s.handlePeriodStats))
	mux.HandleFunc("GET /periods/{id}/logs", s.withMiddleware(s.handlePeriodLogs))

	return s
}

// withMiddleware adds security headers, rate limiting, identity checks,
// and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		s.logger.InfoContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		// Mutating requests are rate limited per client.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}

		if userID(r) == "" {
			writeError(w, http.StatusBadRequest, "missing "+userIDHeader+" header")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		s.logger.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, duration.Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
