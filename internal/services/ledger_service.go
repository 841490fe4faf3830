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

// EventPublisher pushes committed ledger events to the export pipeline.
// A nil publisher disables publishing; append failures never propagate
// back into the request.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, userID, refID string, txType core.TransactionType, amount decimal.Decimal) error
}

// LedgerService appends the immutable financial transaction log: one
// cumulative balance snapshot per deposit, withdrawal, or transfer.
type LedgerService struct {
	store     Store
	publisher EventPublisher
	logger    *log.Logger
}

func NewLedgerService(store Store, publisher EventPublisher) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
		logger:    log.Component(log.ComponentLedger),
	}
}

// LogFinancial rolls the previous snapshot forward with the given entries
// and appends a new immutable row. No-op when there are no entries or the
// user has no expense categories. The caller must have committed the
// ledger mutation this entry describes before calling.
func (s *LedgerService) LogFinancial(ctx context.Context, entries []core.LedgerEntry, userID, refID string, txType core.TransactionType, totalAmount decimal.Decimal) error {
	if len(entries) == 0 {
		return nil
	}

	categories, err := s.store.ListExpenseCategories(ctx, userID)
	if err != nil {
		return fmt.Errorf("list expense categories: %w", err)
	}
	if len(categories) == 0 {
		return nil
	}
	categoryIDs := make([]string, 0, len(categories))
	for _, c := range categories {
		categoryIDs = append(categoryIDs, c.ID)
	}

	var previous map[string]decimal.Decimal
	latest, err := s.store.LatestFinancialLog(ctx, userID)
	switch {
	case err == nil:
		previous = latest.Balances
	case errors.Is(err, ErrNotFound):
		// First entry for this user; start from an empty snapshot.
	default:
		return fmt.Errorf("get latest financial log: %w", err)
	}

	row := core.FinancialTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      txType,
		RefID:     refID,
		Amount:    totalAmount,
		Balances:  core.RollForwardSnapshot(previous, categoryIDs, entries, totalAmount),
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.AppendFinancialLog(ctx, row); err != nil {
		return fmt.Errorf("append financial log: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishLedgerEvent(ctx, userID, refID, txType, totalAmount); err != nil {
			// The log row is committed; the export pipeline catches up
			// on its periodic pass.
			s.logger.ErrorContext(ctx, "Failed to publish ledger event",
				log.FieldUserID, userID,
				log.FieldRefID, refID,
				log.FieldTransactionType, string(txType),
				log.FieldError, err)
		}
	}
	return nil
}

// ListLogs returns the user's most recent log rows, newest first.
func (s *LedgerService) ListLogs(ctx context.Context, userID string, limit int) ([]core.FinancialTransaction, error) {
	rows, err := s.store.ListFinancialLogs(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list financial logs: %w", err)
	}
	return rows, nil
}
