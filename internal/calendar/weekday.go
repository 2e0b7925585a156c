package calendar

import (
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// WeekdayNamer looks up the narrow display name of a weekday in a locale.
// internal/locale provides the CLDR-backed implementation.
type WeekdayNamer interface {
	WeekdayNarrow(locale string, weekday time.Weekday) (string, error)
}

// mondayFirst is the default display order.
var mondayFirst = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdayLabels returns the seven single-letter column headers in display
// order: Monday..Sunday, or Sunday..Saturday when sundayFirst is set.
func WeekdayLabels(namer WeekdayNamer, locale string, sundayFirst bool) ([7]string, error) {
	var labels [7]string
	upper := cases.Upper(language.Make(locale))

	for i, wd := range mondayFirst {
		name, err := namer.WeekdayNarrow(locale, wd)
		if err != nil {
			return labels, fmt.Errorf("calendar: weekday label %s: %w", wd, err)
		}
		labels[i] = upper.String(firstRune(name))
	}

	if sundayFirst {
		sunday := labels[6]
		copy(labels[1:], labels[:6])
		labels[0] = sunday
	}
	return labels, nil
}

func firstRune(s string) string {
	if s == "" {
		return ""
	}
	_, size := utf8.DecodeRuneInString(s)
	return s[:size]
}
