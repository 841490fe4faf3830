package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const monthKeyLayout = "2006-01"

// MonthKey derives the "YYYY-MM" ledger key from a point in time.
// Dates are normalized to UTC before the year-month is taken.
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthKeyLayout)
}

// PreviousMonthKey returns the key of the calendar month immediately before
// the given one, wrapping year boundaries ("2025-01" -> "2024-12").
func PreviousMonthKey(key string) (string, error) {
	year, month, err := splitMonthKey(key)
	if err != nil {
		return "", err
	}
	month--
	if month == 0 {
		month = 12
		year--
	}
	return fmt.Sprintf("%04d-%02d", year, month), nil
}

// ValidMonthKey reports whether s is a well-formed "YYYY-MM" key.
func ValidMonthKey(s string) bool {
	_, _, err := splitMonthKey(s)
	return err == nil
}

func splitMonthKey(key string) (year, month int, err error) {
	parts := strings.SplitN(key, "-", 2)
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid month key %q: want YYYY-MM", key)
	}
	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid month key %q: month out of range", key)
	}
	return year, month, nil
}
