package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calwidget/internal/log"
	"calwidget/internal/model"
)

// ParsedEvent is the normalized representation of a VEVENT. Recurrence
// expansion operates on this type.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	// Calendar is the display title of the feed the event came from.
	Calendar string

	// For all-day events Start/End carry only the calendar date, as UTC
	// midnights; they are re-anchored to the display zone on expansion.
	Start  time.Time
	End    time.Time
	AllDay bool
	// HasEnd is false when the VEVENT carried neither DTEND nor DURATION.
	HasEnd bool

	Cancelled  bool
	Attendance model.Attendance

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, if present
	IsOverride bool       // true if this VEVENT overrides one recurring instance
}

// ParseICS parses a single ICS payload. owner is the widget owner's email;
// when it matches an ATTENDEE the PARTSTAT becomes the event's Attendance.
//
// Invalid VEVENTs are logged and skipped; only an unreadable payload is an
// error.
func ParseICS(src Source, body []byte, owner string) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	title := src.Name
	if title == "" {
		title = calendarName(cal)
	}
	if title == "" {
		title = src.ID
	}

	events := make([]ParsedEvent, 0, len(cal.Events()))
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp, owner)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		ev.Calendar = title
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "calendar", title, "event_count", len(events))
	return events, nil
}

func calendarName(cal *ical.Calendar) string {
	for _, p := range cal.CalendarProperties {
		if strings.EqualFold(p.IANAToken, "X-WR-CALNAME") {
			return strings.TrimSpace(p.Value)
		}
	}
	return ""
}

func parseVEvent(src Source, ve *ical.VEvent, owner string) (ParsedEvent, error) {
	var out ParsedEvent
	out.Source = src

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("uid %s: missing DTSTART", out.UID)
	}
	start, allDay, err := parsePropTime(dtStart.Value, dtStart.ICalParameters)
	if err != nil {
		return out, fmt.Errorf("uid %s: DTSTART: %w", out.UID, err)
	}
	out.Start = start
	out.AllDay = allDay

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		end, _, err := parsePropTime(dtEnd.Value, dtEnd.ICalParameters)
		if err != nil {
			return out, fmt.Errorf("uid %s: DTEND: %w", out.UID, err)
		}
		out.End = end
		out.HasEnd = true
	} else if dur := ve.GetProperty(ical.ComponentPropertyDuration); dur != nil {
		d, err := parseDuration(dur.Value)
		if err != nil {
			return out, fmt.Errorf("uid %s: DURATION: %w", out.UID, err)
		}
		out.End = start.Add(d)
		out.HasEnd = true
	}
	if !out.HasEnd {
		out.End = defaultEnd(out.Start, out.AllDay)
	}
	if out.End.Before(out.Start) {
		out.End = out.Start
	}

	if owner != "" {
		out.Attendance = ownerAttendance(ve, owner)
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	// EXDATE can appear multiple times, each with a comma-separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, _, err := parsePropTime(part, p.ICalParameters); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); ridProp != nil {
		if t, _, err := parsePropTime(ridProp.Value, ridProp.ICalParameters); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// defaultEnd applies RFC 5545 3.6.1: a missing end is the start for a
// DATE-TIME and one day later for a DATE.
func defaultEnd(start time.Time, allDay bool) time.Time {
	if allDay {
		return start.AddDate(0, 0, 1)
	}
	return start
}

func ownerAttendance(ve *ical.VEvent, owner string) model.Attendance {
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		addr := strings.TrimPrefix(strings.TrimSpace(p.Value), "mailto:")
		addr = strings.TrimPrefix(addr, "MAILTO:")
		if !strings.EqualFold(addr, owner) {
			continue
		}
		if ps := p.ICalParameters[string(ical.ParameterParticipationStatus)]; len(ps) > 0 {
			return model.ParseAttendance(ps[0])
		}
		return model.AttendanceNeedsAction
	}
	return model.AttendanceNone
}

// parsePropTime parses a DATE or DATE-TIME value honoring VALUE=DATE and
// TZID. DATE values are returned as UTC midnights of that calendar date;
// floating DATE-TIMEs are read in time.Local.
func parsePropTime(v string, params map[string][]string) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	isDate := !strings.Contains(v, "T")
	if vs := params[string(ical.ParameterValue)]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}
	if isDate {
		if len(v) > 8 {
			v = v[:8]
		}
		t, err := time.ParseInLocation("20060102", v, time.UTC)
		return t, true, err
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	}

	loc := time.Local
	if tzs := params[string(ical.ParameterTzid)]; len(tzs) > 0 && tzs[0] != "" {
		if l, err := time.LoadLocation(strings.Trim(tzs[0], `"`)); err == nil {
			loc = l
		} else {
			appLog.Debug("ics unknown TZID; using local time", "tzid", tzs[0])
		}
	}
	t, err := time.ParseInLocation("20060102T150405", v, loc)
	return t, false, err
}

// parseDuration handles the RFC 5545 dur-value subset feeds emit in
// practice: [+-]P[nW][nD][T[nH][nM][nS]].
func parseDuration(v string) (time.Duration, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	neg := false
	switch {
	case strings.HasPrefix(v, "-"):
		neg = true
		v = v[1:]
	case strings.HasPrefix(v, "+"):
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") || len(v) < 3 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	v = v[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			inTime = true
			continue
		}
		if num == "" {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		n, _ := strconv.Atoi(num)
		num = ""
		unit := time.Duration(n)
		switch {
		case r == 'W' && !inTime:
			total += unit * 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			total += unit * 24 * time.Hour
		case r == 'H' && inTime:
			total += unit * time.Hour
		case r == 'M' && inTime:
			total += unit * time.Minute
		case r == 'S' && inTime:
			total += unit * time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q", v)
		}
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	if neg {
		total = -total
	}
	return total, nil
}
