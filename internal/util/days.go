package util

import "time"

// DaysBetween returns the calendar-day difference between two instants,
// evaluated in loc. The result is negative when to falls on an earlier
// calendar day than from. Fractional days truncate toward the earlier day
// boundary: this is date subtraction, not elapsed hours.
func DaysBetween(from, to time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	f := from.In(loc)
	t := to.In(loc)
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(td.Sub(fd).Hours() / 24)
}
