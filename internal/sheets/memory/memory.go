// Package memory is an in-memory BalanceExporter used in development and
// tests.
package memory

import (
	"context"
	"sync"

	ports "bilancio/internal/sheets"
)

type Exporter struct {
	mu      sync.Mutex
	exports map[string][]ports.BalanceRow
}

var _ ports.BalanceExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{exports: make(map[string][]ports.BalanceRow)}
}

func (e *Exporter) ExportBalances(_ context.Context, userID string, rows []ports.BalanceRow) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := make([]ports.BalanceRow, len(rows))
	copy(snapshot, rows)
	e.exports[userID] = snapshot
	return nil
}

// Exported returns the last export for the user, or nil.
func (e *Exporter) Exported(userID string) []ports.BalanceRow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports[userID]
}
