// Package timeutil provides time zone, period and date formatting helpers.
// School-facing dates take their zone as an argument; usage periods are
// always computed in UTC.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSchoolZone is used when no zone is configured.
const DefaultSchoolZone = "Europe/Paris"

// LoadZone loads the named zone, DefaultSchoolZone when name is empty.
func LoadZone(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultSchoolZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// Clock abstracts the current time so domain services can be tested.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return ClockFunc(time.Now) }

// FixedClock always returns t.
func FixedClock(t time.Time) Clock { return ClockFunc(func() time.Time { return t }) }

// ══════════════════════════════════════════════════════════════════════════════
// USAGE PERIODS
// ══════════════════════════════════════════════════════════════════════════════

// PeriodLayout is the layout of a usage period key.
const PeriodLayout = "2006-01"

// Period returns the UTC calendar month of t as "YYYY-MM".
func Period(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("%04d-%02d", u.Year(), int(u.Month()))
}

// PeriodEnd returns the first instant after the UTC month containing t.
func PeriodEnd(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// ParsePeriod validates a "YYYY-MM" period key.
func ParsePeriod(s string) (time.Time, error) {
	return time.ParseInLocation(PeriodLayout, s, time.UTC)
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERABLE DATES
// ══════════════════════════════════════════════════════════════════════════════

// Accepted deliverable date layouts, most specific first.
var deliverableLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDeliverableDate parses a deliverable due date. Dates without an explicit
// offset are interpreted in loc (UTC when nil).
func ParseDeliverableDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range deliverableLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, value)
		} else {
			t, err = time.ParseInLocation(layout, value, orUTC(loc))
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

var frenchMonths = [...]string{
	"", "janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// MonthNameFr returns the lower-case French name for a month.
func MonthNameFr(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return frenchMonths[m]
}

// FormatFrenchLong formats t as "15 mars 2026" in loc (UTC when nil).
func FormatFrenchLong(t time.Time, loc *time.Location) string {
	s := t.In(orUTC(loc))
	return fmt.Sprintf("%d %s %d", s.Day(), MonthNameFr(s.Month()), s.Year())
}
