package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Operation-level failures. All are detected before any mutation; callers
// can rely on the ledger being untouched when one of these is returned.
var (
	ErrInvalidConfiguration     = errors.New("expense category shares are not configured for distribution")
	ErrInvalidAmount            = errors.New("amount must be greater than zero")
	ErrNoActivePeriod           = errors.New("no active budget period found")
	ErrSourceBalanceNotFound    = errors.New("source category balance not found")
	ErrPeriodAlreadyClosed      = errors.New("period is already closed")
	ErrPeriodClosedForTransfers = errors.New("transfers are not allowed on a closed period")
	ErrSameCategory             = errors.New("cannot transfer to the same category")
	ErrActivePeriodExists       = errors.New("an active period already exists")
)

// InsufficientFundsError is returned when a withdrawal or transfer would
// drive a category's closing balance below zero.
type InsufficientFundsError struct {
	CategoryID   string
	CategoryName string
	Available    decimal.Decimal
	Requested    decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	name := e.CategoryName
	if name == "" {
		name = e.CategoryID
	}
	return fmt.Sprintf("insufficient funds in category %q: available %s, requested %s",
		name, e.Available.String(), e.Requested.String())
}

// IsInsufficientFunds reports whether err is an InsufficientFundsError.
func IsInsufficientFunds(err error) bool {
	var ife *InsufficientFundsError
	return errors.As(err, &ife)
}

// InvalidConfigurationError carries the offending share total so callers
// can render a precise message.
func InvalidConfigurationError(total decimal.Decimal) error {
	return fmt.Errorf("%w: total percentage share is %s%%, must equal 100%%",
		ErrInvalidConfiguration, total.String())
}
