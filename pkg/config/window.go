package config

import (
	"fmt"
	"time"
)

const (
	monthLayout = "2006-01"
	dateLayout  = "2006-01-02"
)

// ParseMonth parses a "YYYY-MM" month into the first day of that month (UTC).
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ParseDate parses a "YYYY-MM-DD" date (UTC).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Months enumerates the calendar months of the window, first to last inclusive.
func (w WindowData) Months() ([]time.Time, error) {
	start, err := ParseMonth(w.StartMonth)
	if err != nil {
		return nil, fmt.Errorf("invalid start month %q: %w", w.StartMonth, err)
	}
	end, err := ParseMonth(w.EndMonth)
	if err != nil {
		return nil, fmt.Errorf("invalid end month %q: %w", w.EndMonth, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("window end %s precedes start %s", w.EndMonth, w.StartMonth)
	}
	var months []time.Time
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months, nil
}

// Reference returns the date ages are computed against.
func (w WindowData) Reference() (time.Time, error) {
	t, err := ParseDate(w.ReferenceDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reference date %q: %w", w.ReferenceDate, err)
	}
	return t, nil
}
