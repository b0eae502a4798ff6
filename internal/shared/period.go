package shared

import (
	"strings"
	"time"
)

// Period is a reporting or listing window length.
type Period string

const (
	// PeriodDaily spans one day.
	PeriodDaily Period = "daily"
	// PeriodWeekly spans seven days.
	PeriodWeekly Period = "weekly"
	// PeriodMonthly spans thirty days.
	PeriodMonthly Period = "monthly"
)

// ParsePeriod validates raw, returning def when raw is empty.
func ParsePeriod(raw string, def Period) (Period, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return def, nil
	}
	switch p := Period(raw); p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return p, nil
	}
	return "", Validationf("unknown period %q, want daily, weekly or monthly", raw)
}

// Days returns the window length in days.
func (p Period) Days() int {
	switch p {
	case PeriodDaily:
		return 1
	case PeriodWeekly:
		return 7
	default:
		return 30
	}
}

// Window returns the half-open interval [start, end) beginning at the start
// of from's day.
func (p Period) Window(from time.Time) (time.Time, time.Time) {
	y, m, d := from.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, from.Location())
	return start, start.AddDate(0, 0, p.Days())
}

// ParseDay parses a YYYY-MM-DD date in UTC. Empty input yields the zero time.
func ParseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, Validationf("invalid date %q, want YYYY-MM-DD", raw)
	}
	return t, nil
}
