// internal/models/calendar.go
package models

import "fmt"

// EpochYear is the year whose January is month index 0.
const EpochYear = 2025

// MonthIndex converts a calendar year and month (1-12) to an absolute month
// index relative to January of EpochYear.
func MonthIndex(year, month int) int {
	return (year-EpochYear)*12 + (month - 1)
}

// YearMonth is the inverse of MonthIndex. Indices before the epoch map to
// earlier years.
func YearMonth(index int) (year, month int) {
	y := index / 12
	m := index % 12
	if m < 0 {
		m += 12
		y--
	}
	return EpochYear + y, m + 1
}

// MonthLabel formats an index as "2025-06".
func MonthLabel(index int) string {
	y, m := YearMonth(index)
	return fmt.Sprintf("%04d-%02d", y, m)
}

// ValidMonth reports whether month is a calendar month number.
func ValidMonth(month int) bool {
	return month >= 1 && month <= 12
}
