package core

import "github.com/shopspring/decimal"

// LedgerEntry is one per-category adjustment feeding the financial
// transaction log.
type LedgerEntry struct {
	CategoryID string
	Amount     decimal.Decimal
	Increment  bool
}

// RollForwardSnapshot derives the next audit snapshot from the previous
// one. Categories the user has now but that are missing from the previous
// snapshot are seeded at zero, so the log self-heals when categories are
// added between entries.
//
// Increments add the entry amount. Decrements subtract the transaction's
// TOTAL amount (not the per-entry amount), floored at zero. That matches
// the historical behavior of the log and is intentionally preserved; the
// authoritative non-negativity check lives in the balance ledger, this is
// a display/audit snapshot.
func RollForwardSnapshot(prev map[string]decimal.Decimal, categoryIDs []string, entries []LedgerEntry, totalAmount decimal.Decimal) map[string]decimal.Decimal {
	next := make(map[string]decimal.Decimal, len(categoryIDs))
	for id, v := range prev {
		next[id] = v
	}
	for _, id := range categoryIDs {
		if _, ok := next[id]; !ok {
			next[id] = decimal.Zero
		}
	}

	for _, e := range entries {
		current, ok := next[e.CategoryID]
		if !ok || current.IsNegative() {
			// Entries for categories the user no longer has are skipped.
			continue
		}
		if e.Increment {
			next[e.CategoryID] = current.Add(e.Amount)
			continue
		}
		adjusted := current.Sub(totalAmount)
		if adjusted.IsPositive() {
			next[e.CategoryID] = adjusted
		} else {
			next[e.CategoryID] = decimal.Zero
		}
	}
	return next
}
