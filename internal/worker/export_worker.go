// Package worker exports balance reports to the configured sheet, driven
// by ledger events and a periodic full pass.
package worker

import (
	"context"
	"fmt"

	"bilancio/internal/amqp"
	"bilancio/internal/log"
	"bilancio/internal/services"
	"bilancio/internal/sheets"
)

type ExportWorker struct {
	store    services.Store
	exporter sheets.BalanceExporter
	logger   *log.Logger
}

func NewExportWorker(store services.Store, exporter sheets.BalanceExporter) *ExportWorker {
	return &ExportWorker{
		store:    store,
		exporter: exporter,
		logger:   log.Component(log.ComponentWorker),
	}
}

// HandleLedgerEvent re-exports the affected user's balance report. The
// message only identifies the user; current state always comes from the
// database, so redelivered events are harmless.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		log.FieldUserID, msg.UserID,
		log.FieldRefID, msg.RefID,
		log.FieldTransactionType, string(msg.Transaction))

	if err := w.ExportUser(ctx, msg.UserID); err != nil {
		return fmt.Errorf("export balances for user %s: %w", msg.UserID, err)
	}
	return nil
}

// ExportUser writes the user's current balance report.
func (w *ExportWorker) ExportUser(ctx context.Context, userID string) error {
	balances, err := w.store.ListBalances(ctx, userID, "")
	if err != nil {
		return fmt.Errorf("list balances: %w", err)
	}

	categories, err := w.store.ListExpenseCategories(ctx, userID)
	if err != nil {
		return fmt.Errorf("list expense categories: %w", err)
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	rows := make([]sheets.BalanceRow, 0, len(balances))
	for _, b := range balances {
		rows = append(rows, sheets.BalanceRow{
			CategoryName: categoryName(names, b.CategoryID),
			Balance:      b,
		})
	}

	if err := w.exporter.ExportBalances(ctx, userID, rows); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Exported balance report", log.FieldUserID, userID, "rows", len(rows))
	return nil
}

// ExportAll runs the periodic full pass over the configured users. Errors
// are logged per user; the pass continues.
func (w *ExportWorker) ExportAll(ctx context.Context, userIDs []string) {
	for _, userID := range userIDs {
		if err := w.ExportUser(ctx, userID); err != nil {
			w.logger.ErrorContext(ctx, "Periodic export failed", log.FieldUserID, userID, log.FieldError, err)
		}
	}
}

func categoryName(names map[string]string, categoryID string) string {
	if name, ok := names[categoryID]; ok {
		return name
	}
	return categoryID
}
