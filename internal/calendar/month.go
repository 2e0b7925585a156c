package calendar

import "time"

// Boundaries holds the first and last calendar day of a month, both at
// midnight in the location of the reference date.
type Boundaries struct {
	First time.Time
	Last  time.Time
}

// MonthBoundaries returns the first and last day of t's month.
func MonthBoundaries(t time.Time) Boundaries {
	y, m, _ := t.Date()
	return Boundaries{
		First: time.Date(y, m, 1, 0, 0, 0, 0, t.Location()),
		// Day 0 of the following month is the last day of this one.
		Last: time.Date(y, m+1, 0, 0, 0, 0, 0, t.Location()),
	}
}

// MonthOffset returns day 1 of the month offset months away from t.
// time.Date normalizes months outside 1..12 into the neighbouring years, so
// any offset is valid.
func MonthOffset(t time.Time, offset int) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+time.Month(offset), 1, 0, 0, 0, 0, t.Location())
}

// DaysIn returns the number of days in t's month.
func DaysIn(t time.Time) int {
	return MonthBoundaries(t).Last.Day()
}
