package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateKey identifies a calendar day by zero-based month index and day of
// month. The year is deliberately absent: a grid only ever spans its
// reference month plus the trailing days of the previous month and the
// leading days of the next one, so month/day is unique within one render.
// Keys must not be compared across renders of different months.
type DateKey struct {
	Month int
	Day   int
}

// KeyOf returns the key of t's calendar day in t's own location.
func KeyOf(t time.Time) DateKey {
	return DateKey{Month: int(t.Month()) - 1, Day: t.Day()}
}

// String renders the key as "month/day", e.g. "1/29" for February 29.
func (k DateKey) String() string {
	return strconv.Itoa(k.Month) + "/" + strconv.Itoa(k.Day)
}

// MarshalText lets DateKey serve as a JSON object key.
func (k DateKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the "month/day" form written by MarshalText.
func (k *DateKey) UnmarshalText(b []byte) error {
	month, day, ok := strings.Cut(string(b), "/")
	if !ok {
		return fmt.Errorf("calendar: invalid date key %q", b)
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return fmt.Errorf("calendar: invalid date key month %q: %w", b, err)
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return fmt.Errorf("calendar: invalid date key day %q: %w", b, err)
	}
	if m < 0 || m > 11 || d < 1 || d > 31 {
		return fmt.Errorf("calendar: date key out of range %q", b)
	}
	k.Month, k.Day = m, d
	return nil
}
