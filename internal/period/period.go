// Package period derives the month window the dashboard and the context menu
// operate on. Month numbers outside 1..12 are normalized by rolling the year,
// so callers can navigate with naive month±1 arithmetic.
package period

import "time"

// Context describes one calendar month relative to "now".
type Context struct {
	Month     time.Month
	Year      int
	MonthName string // short name, e.g. "Jan"

	PrevMonth int // may be 0, meaning December of PrevYear
	NextMonth int // may be 13, meaning January of the following year
	PrevYear  int

	NowMonth time.Month
	NowYear  int

	// ReadOnly is set for months strictly in the past; budgeting actions are
	// gated off for them.
	ReadOnly bool
}

// Derive normalizes (month, year) and computes the navigation context.
// A year of zero defaults to the current wall-clock year. A month of zero is
// not a default: it rolls back to December of the prior year, which is what
// month-1 navigation from January produces. Callers wanting "this month" pass
// int(now.Month()) explicitly.
func Derive(month, year int, now time.Time) Context {
	if year == 0 {
		year = now.Year()
	}

	// divmod-style normalization: month 0 becomes December of the prior
	// year, month 13 becomes January of the next.
	yearOffset := (month - 1) / 12
	normalized := (month-1)%12 + 1
	if normalized <= 0 {
		normalized += 12
		yearOffset--
	}
	curYear := year + yearOffset
	cur := time.Date(curYear, time.Month(normalized), 1, 0, 0, 0, 0, time.UTC)

	prevYear := cur.Year()
	if cur.Month() == time.January {
		prevYear--
	}

	return Context{
		Month:     cur.Month(),
		Year:      cur.Year(),
		MonthName: cur.Month().String()[:3],
		PrevMonth: int(cur.Month()) - 1,
		NextMonth: int(cur.Month()) + 1,
		PrevYear:  prevYear,
		NowMonth:  now.Month(),
		NowYear:   now.Year(),
		ReadOnly: (cur.Year() == now.Year() && cur.Month() < now.Month()) ||
			cur.Year() < now.Year(),
	}
}

// Window returns the [start, end) range covering the context's month.
// When latest is set the window starts at now's day of month instead of the
// 1st, matching the "recent transactions" view.
func (c Context) Window(now time.Time, latest bool) (start, end time.Time) {
	day := 1
	if latest {
		day = now.Day()
	}
	start = time.Date(c.Year, c.Month, day, 0, 0, 0, 0, time.UTC)
	end = time.Date(c.Year, c.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return start, end
}

// SamePeriod reports whether t falls in the month/year of ref. This is the
// gate for budget assign/remove actions.
func SamePeriod(t, ref time.Time) bool {
	return t.Year() == ref.Year() && t.Month() == ref.Month()
}
