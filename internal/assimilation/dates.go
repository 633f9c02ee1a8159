package assimilation

import (
	"time"
)

// Dates are carried as YYYY-MM-DD strings in storage and as midnight-UTC
// time.Time values in the day loop. Lexicographic order on the string form
// matches calendar order, which the window queries rely on.

func parseDate(date string) (time.Time, error) {
	return time.Parse(time.DateOnly, date)
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

func addDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// daysBetween returns the whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	a = a.Truncate(24 * time.Hour)
	b = b.Truncate(24 * time.Hour)
	return int(b.Sub(a).Hours() / 24)
}

// today returns the current date at midnight UTC.
func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
