package core

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ValidateShares checks that the given categories can receive a
// distribution: the set must be non-empty and the percentage shares must
// sum to exactly 100 (decimal-exact, no tolerance).
func ValidateShares(categories []ExpenseCategory) error {
	if len(categories) == 0 {
		return ErrInvalidConfiguration
	}
	total := decimal.Zero
	for _, c := range categories {
		total = total.Add(c.PercentageShare)
	}
	if !total.Equal(hundred) {
		return InvalidConfigurationError(total)
	}
	return nil
}

// Share computes amount * pct / 100 in exact decimal arithmetic.
// Division by 100 is an exponent shift, so no precision is lost and the
// shares of a 100%-sum always add back up to the original amount.
func Share(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// ComputeDistributions produces one Distribution per category, in the
// order the categories were given. Zero-share categories still get an
// entry with a zero amount.
func ComputeDistributions(categories []ExpenseCategory, amount decimal.Decimal, date time.Time) []Distribution {
	monthYear := MonthKey(date)
	out := make([]Distribution, 0, len(categories))
	for _, c := range categories {
		out = append(out, Distribution{
			CategoryID:   c.ID,
			CategoryName: c.Name,
			Amount:       Share(amount, c.PercentageShare),
			MonthYear:    monthYear,
		})
	}
	return out
}
