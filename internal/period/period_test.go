package period

import (
	"testing"
	"time"
)

var now = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func TestDeriveCurrentMonth(t *testing.T) {
	ctx := Derive(int(now.Month()), now.Year(), now)

	if ctx.Month != now.Month() || ctx.Year != now.Year() {
		t.Errorf("got %s %d, want %s %d", ctx.Month, ctx.Year, now.Month(), now.Year())
	}
	if ctx.ReadOnly {
		t.Error("current month must not be read-only")
	}
	if ctx.MonthName != "Jun" {
		t.Errorf("MonthName = %q, want Jun", ctx.MonthName)
	}
}

func TestDerivePreviousMonthRollover(t *testing.T) {
	ctx := Derive(0, 2025, now)

	if ctx.Month != time.December || ctx.Year != 2024 {
		t.Errorf("month 0 of 2025 should be Dec 2024, got %s %d", ctx.Month, ctx.Year)
	}
	if ctx.PrevMonth != 11 || ctx.NextMonth != 13 {
		t.Errorf("PrevMonth/NextMonth = %d/%d, want 11/13", ctx.PrevMonth, ctx.NextMonth)
	}
}

func TestDeriveNextMonthRollover(t *testing.T) {
	ctx := Derive(13, 2025, now)

	if ctx.Month != time.January || ctx.Year != 2026 {
		t.Errorf("month 13 of 2025 should be Jan 2026, got %s %d", ctx.Month, ctx.Year)
	}
	if ctx.PrevMonth != 0 || ctx.NextMonth != 2 {
		t.Errorf("PrevMonth/NextMonth = %d/%d, want 0/2", ctx.PrevMonth, ctx.NextMonth)
	}
	if ctx.PrevYear != 2025 {
		t.Errorf("PrevYear = %d, want 2025", ctx.PrevYear)
	}
}

func TestDeriveReadOnly(t *testing.T) {
	tests := []struct {
		month, year int
		want        bool
	}{
		{5, 2025, true},   // earlier this year
		{12, 2024, true},  // last year
		{6, 2025, false},  // current
		{12, 2025, false}, // future month this year
		{1, 2026, false},  // next year
	}
	for _, tt := range tests {
		ctx := Derive(tt.month, tt.year, now)
		if ctx.ReadOnly != tt.want {
			t.Errorf("Derive(%d, %d).ReadOnly = %v, want %v", tt.month, tt.year, ctx.ReadOnly, tt.want)
		}
	}
}

func TestWindow(t *testing.T) {
	ctx := Derive(12, 2025, now)
	start, end := ctx.Window(now, false)

	if start != time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("start = %v", start)
	}
	if end != time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("end = %v", end)
	}

	start, _ = ctx.Window(now, true)
	if start.Day() != now.Day() {
		t.Errorf("latest window should start on now's day, got %d", start.Day())
	}
}

func TestSamePeriod(t *testing.T) {
	ref := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	if !SamePeriod(time.Date(2025, time.June, 30, 23, 0, 0, 0, time.UTC), ref) {
		t.Error("same month/year should match")
	}
	if SamePeriod(time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC), ref) {
		t.Error("different month must not match")
	}
	if SamePeriod(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), ref) {
		t.Error("different year must not match")
	}
}
