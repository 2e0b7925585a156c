// Package format turns single events into the short strings shown in the
// agenda list.
package format

import (
	"fmt"
	"strconv"
	"time"

	"calwidget/internal/locale"
	"calwidget/internal/model"
)

// Names is the subset of locale.Registry the formatters need.
type Names interface {
	Phrase(locale, key string, params ...string) (string, error)
	WeekdayAbbreviated(locale string, wd time.Weekday) (string, error)
	MonthWide(locale string, m time.Month) (string, error)
	TimeShort(locale string, t time.Time) (string, error)
}

// Formatter formats dates and events for one locale.
type Formatter struct {
	names  Names
	locale string
}

// New returns a Formatter for loc.
func New(names Names, loc string) *Formatter {
	return &Formatter{names: names, locale: loc}
}

// RelativeDay labels d relative to now's calendar day: empty for past
// days, "Today", "Tomorrow", "N days after" for two and three days out,
// and "Mon, March 18" beyond that.
func (f *Formatter) RelativeDay(d, now time.Time) (string, error) {
	diff := dayDiff(now, d)
	switch {
	case diff < 0:
		return "", nil
	case diff == 0:
		return f.names.Phrase(f.locale, locale.PhraseToday)
	case diff == 1:
		return f.names.Phrase(f.locale, locale.PhraseTomorrow)
	case diff <= 3:
		return f.names.Phrase(f.locale, locale.PhraseDaysAfter, strconv.Itoa(diff))
	}

	wd, err := f.names.WeekdayAbbreviated(f.locale, d.Weekday())
	if err != nil {
		return "", err
	}
	month, err := f.names.MonthWide(f.locale, d.Month())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s, %s %d", wd, month, d.Day()), nil
}

// Duration renders "start-end" for a timed event, either as 24-hour
// clock times or with the locale's short time pattern.
func (f *Formatter) Duration(start, end time.Time, clock24 bool) (string, error) {
	if clock24 {
		return start.Format("15:04") + "-" + end.Format("15:04"), nil
	}
	s, err := f.names.TimeShort(f.locale, start)
	if err != nil {
		return "", err
	}
	e, err := f.names.TimeShort(f.locale, end)
	if err != nil {
		return "", err
	}
	return s + "-" + e, nil
}

// AttendanceIcon is the bullet drawn before an event title.
func AttendanceIcon(a model.Attendance) string {
	switch a {
	case model.AttendanceAccepted:
		return "✓ "
	case model.AttendanceTentative:
		return "~ "
	case model.AttendanceDeclined:
		return "✘ "
	default:
		return "● "
	}
}

// dayDiff counts calendar days from a's day to b's day in a's location.
func dayDiff(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	// Noon anchors keep DST transitions from shifting the division.
	from := time.Date(ay, am, ad, 12, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 12, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
