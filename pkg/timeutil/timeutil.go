// Package timeutil provides day-boundary helpers evaluated in the school's timezone.
package timeutil

import "time"

// StartOfDay returns 00:00:00 of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59 of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, loc)
}

// WholeDaysBetween counts whole days from the start of from's day to the end of to's day.
// A from later than to yields zero.
func WholeDaysBetween(from, to time.Time, loc *time.Location) int {
	start := StartOfDay(from, loc)
	end := EndOfDay(to, loc)
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours() / 24)
}
