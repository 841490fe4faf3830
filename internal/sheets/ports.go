// Package sheets defines the outbound report export port.
package sheets

import (
	"context"

	"bilancio/internal/core"
)

// BalanceRow is one exported line of the balance report.
type BalanceRow struct {
	CategoryName string
	Balance      core.MonthlyBalance
}

// BalanceExporter writes a user's current balance report to an external
// sheet, replacing the previous export.
type BalanceExporter interface {
	ExportBalances(ctx context.Context, userID string, rows []BalanceRow) error
}
