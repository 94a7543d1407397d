package model

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// StoreLayout is the minute-precision civil format written to disk.
	StoreLayout = "2006-01-02 15:04"
	// ISOLayout is the local ISO-8601 format used in operation results.
	ISOLayout = "2006-01-02T15:04:05"

	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var localLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// ParseLocal reads a civil timestamp in any of the accepted forms:
// "YYYY-MM-DD HH:MM", "YYYY-MM-DDTHH:MM[:SS]" or "YYYY-MM-DD". A trailing
// "Z" or numeric offset is discarded and the wall clock is kept, so the
// result is always the given wall time in loc.
func ParseLocal(s string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.Local
	}
	v = stripOffset(strings.Replace(v, "T", " ", 1))

	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// stripOffset removes "Z", "+hh:mm", "-hh:mm" or "+hhmm" after the date part.
func stripOffset(v string) string {
	if len(v) <= len(DateLayout) {
		return v
	}
	date, rest := v[:len(DateLayout)], v[len(DateLayout):]
	rest = strings.TrimSuffix(rest, "Z")
	if i := strings.IndexAny(rest, "+-"); i >= 0 {
		rest = rest[:i]
	}
	return date + rest
}

// ParseClock reads "HH:MM" into hour and minute.
func ParseClock(s string) (int, int, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// FormatStore renders t with minute precision for the on-disk store.
func FormatStore(t time.Time) string {
	return t.Format(StoreLayout)
}

// FormatISO renders t as local ISO-8601 without offset.
func FormatISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(ISOLayout)
}

// SameDay reports whether a and b fall on the same calendar date in a's zone.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DayStart returns midnight of t's calendar date in t's zone.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
