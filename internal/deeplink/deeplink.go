// Package deeplink builds the URLs a tapped day opens in a calendar app.
package deeplink

import (
	"fmt"
	"time"

	"calwidget/internal/calendar"
)

// Supported calendar apps.
const (
	AppCalshow     = "calshow"
	AppFantastical = "x-fantastical3"
	AppNone        = "none"
)

// appleEpoch is the reference date of calshow timestamps.
func appleEpoch(loc *time.Location) time.Time {
	return time.Date(2001, time.January, 1, 0, 0, 0, 0, loc)
}

// Year resolves the year of a grid key relative to ref. Only the
// December→January and January→December spillovers cross a year.
func Year(key calendar.DateKey, ref time.Time) int {
	refMonth := calendar.KeyOf(ref).Month
	switch {
	case refMonth == 11 && key.Month == 0:
		return ref.Year() + 1
	case refMonth == 0 && key.Month == 11:
		return ref.Year() - 1
	default:
		return ref.Year()
	}
}

// URL returns the link for the day identified by key, or "" for an
// unknown app.
func URL(app string, key calendar.DateKey, ref time.Time) string {
	year := Year(key, ref)
	switch app {
	case AppCalshow:
		day := time.Date(year, time.Month(key.Month+1), key.Day, 0, 0, 0, 0, ref.Location())
		secs := int64(day.Sub(appleEpoch(ref.Location())) / time.Second)
		return fmt.Sprintf("calshow:%d", secs)
	case AppFantastical:
		return fmt.Sprintf("%s://show/calendar/%d-%d-%d", app, year, key.Month+1, key.Day)
	default:
		return ""
	}
}

// Now returns the link that opens the app at t, used for the widget as a
// whole.
func Now(app string, t time.Time) string {
	if app != AppCalshow {
		return URL(app, calendar.KeyOf(t), t)
	}
	return fmt.Sprintf("calshow:%d", int64(t.Sub(appleEpoch(t.Location()))/time.Second))
}
