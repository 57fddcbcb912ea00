// Package dates provides day-granularity calendar arithmetic for loan terms.
package dates

import "time"

// Day builds a calendar date at midnight UTC.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time-of-day and timezone, leaving a calendar date.
func Truncate(t time.Time) time.Time {
	return Day(t.Year(), t.Month(), t.Day())
}

// AddMonths adds n whole calendar months to a date. The day of month is
// preserved unless the target month is shorter, in which case it clamps to
// the last valid day (Jan 31 + 1 month = Feb 28/29, never Mar 3).
func AddMonths(d time.Time, n int) time.Time {
	d = Truncate(d)
	year := d.Year()
	month := int(d.Month()) + n
	// Normalize month into 1..12, carrying into the year.
	year += (month - 1) / 12
	month = (month-1)%12 + 1
	if month < 1 {
		month += 12
		year--
	}
	day := d.Day()
	if last := daysInMonth(year, time.Month(month)); day > last {
		day = last
	}
	return Day(year, time.Month(month), day)
}

// MonthsBetween returns the number of whole calendar months from a to b.
// It only inspects year and month fields, which is exact for any b that was
// produced by AddMonths(a, k).
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// DaysBetween returns b - a in whole days.
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)).Hours() / 24)
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return Truncate(a).Equal(Truncate(b))
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
