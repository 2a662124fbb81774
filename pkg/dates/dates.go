// Package dates resolves the year of month/day dates printed on event posters.
package dates

import (
	"fmt"
	"time"
)

// InferYear returns the most plausible year for an event in eventMonth as
// seen at now. Posters go up a few months ahead, so a late-year event seen in
// the first quarter belongs to last year and an early-year event seen in the
// last quarter belongs to next year. Everything else is the current year.
func InferYear(eventMonth int, now time.Time) int {
	year := now.Year()
	current := int(now.Month())

	earlyYear := current <= 3
	lateYear := current >= 10
	earlyEvent := eventMonth <= 3
	lateEvent := eventMonth >= 10

	switch {
	case earlyYear && lateEvent:
		return year - 1
	case lateYear && earlyEvent:
		return year + 1
	default:
		return year
	}
}

// ISO formats a date as YYYY-MM-DD without validating the calendar.
func ISO(year, month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// Resolve combines a bare month and day with InferYear.
func Resolve(month, day int, now time.Time) string {
	return ISO(InferYear(month, now), month, day)
}

// Valid reports whether s is a real YYYY-MM-DD calendar date.
func Valid(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}
