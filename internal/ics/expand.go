package ics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calwidget/internal/log"
	"calwidget/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the half-open window [RangeStart, RangeEnd).
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps expansion of a single series. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded events and the series that were cut at
// the occurrence cap.
type ExpandResult struct {
	Events          []model.Event
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed VEVENTs into concrete events overlapping
// the configured range, sorted by start. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence (DAILY/WEEKLY/MONTHLY/YEARLY, etc.)
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides, including cancelled instances
//   - All-day semantics
//
// Timed events are converted into ExpandConfig.DisplayLocation; all-day
// events are placed at local midnights of their calendar dates there.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	out := make([]model.Event, 0)

	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseEvents {
			occ, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			out = append(out, occ...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	// Overrides whose series is missing from the feed still describe a
	// real instance.
	for uid, ov := range overridesByUID {
		if _, ok := baseByUID[uid]; ok {
			continue
		}
		for _, o := range ov {
			if e, ok := occurrence(o, o.Start, o.End, cfg); ok {
				out = append(out, e)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].InstanceKey < out[j].InstanceKey
	})
	sort.Strings(result.TruncatedEvents)

	result.Events = out
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	if ev.Cancelled {
		return nil, false
	}
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	if o, ok := findOverrideForStart(overrides, ev.Start); ok {
		ev = o
	}
	if e, ok := occurrence(ev, ev.Start, ev.End, cfg); ok {
		return []model.Event{e}
	}
	return nil
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	out := make([]model.Event, 0)
	hitCap := false

	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Error("expand: invalid RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Query a widened window in the series' own clock, then apply the
	// exact half-open overlap test on the display-zone result.
	dur := ev.End.Sub(ev.Start)
	qStart, qEnd := seriesWindow(ev, cfg)
	occTimes := set.Between(qStart.Add(-dur), qEnd, true)

	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range occTimes {
		inst := ev
		start, end := occStart, occStart.Add(dur)
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			inst = o
			start, end = o.Start, o.End
		}
		if e, ok := occurrence(inst, start, end, cfg); ok {
			e.InstanceKey = instanceKey(ev.UID, occStart, ev.AllDay)
			out = append(out, e)
		}
	}

	// Overrides moved into the window from an instance outside it.
	for _, o := range overrides {
		rid := *o.Recurrence
		if containsTime(occTimes, rid) {
			continue
		}
		if !rid.Before(qStart.Add(-dur)) && !rid.After(qEnd) {
			// In the query window but not generated: excluded or capped.
			continue
		}
		if e, ok := occurrence(o, o.Start, o.End, cfg); ok {
			e.InstanceKey = instanceKey(ev.UID, rid, ev.AllDay)
			out = append(out, e)
		}
	}

	return out, hitCap
}

// seriesWindow maps the range into the clock the series' DTSTART uses.
// All-day series run on UTC-midnight dates, so the display-zone window is
// converted to the matching calendar dates, padded by a day.
func seriesWindow(ev ParsedEvent, cfg ExpandConfig) (time.Time, time.Time) {
	if !ev.AllDay {
		return cfg.RangeStart.In(ev.Start.Location()), cfg.RangeEnd.In(ev.Start.Location())
	}
	rs := cfg.RangeStart.In(cfg.DisplayLocation)
	re := cfg.RangeEnd.In(cfg.DisplayLocation)
	return time.Date(rs.Year(), rs.Month(), rs.Day()-1, 0, 0, 0, 0, time.UTC),
		time.Date(re.Year(), re.Month(), re.Day()+1, 0, 0, 0, 0, time.UTC)
}

// findOverrideForStart finds an override whose RECURRENCE-ID is the same
// instant as instStart.
func findOverrideForStart(overrides []ParsedEvent, instStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.Equal(instStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func containsTime(ts []time.Time, t time.Time) bool {
	for _, x := range ts {
		if x.Equal(t) {
			return true
		}
	}
	return false
}

// occurrence builds the display-zone event for one instance and reports
// whether it overlaps the range. Cancelled instances never do.
func occurrence(ev ParsedEvent, start, end time.Time, cfg ExpandConfig) (model.Event, bool) {
	if ev.Cancelled {
		return model.Event{}, false
	}

	loc := cfg.DisplayLocation
	if ev.AllDay {
		start = anchorDate(start, loc)
		end = anchorDate(end, loc)
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
	} else {
		start = start.In(loc)
		end = end.In(loc)
	}

	if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return model.Event{}, false
	}

	return model.Event{
		SourceID:    ev.Source.ID,
		UID:         ev.UID,
		InstanceKey: instanceKey(ev.UID, start, ev.AllDay),
		Title:       ev.Summary,
		Calendar:    ev.Calendar,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       start,
		End:         end,
		Attendance:  ev.Attendance,
	}, true
}

// anchorDate places the calendar date carried by t (a UTC midnight) at
// midnight in loc.
func anchorDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func instanceKey(uid string, start time.Time, allDay bool) string {
	if allDay {
		return fmt.Sprintf("%s/%s", uid, start.Format("20060102"))
	}
	return fmt.Sprintf("%s/%s", uid, start.UTC().Format("20060102T150405Z"))
}

// overlaps is the half-open test [aStart,aEnd) ∩ [bStart,bEnd) ≠ ∅. A
// zero-length event overlaps when its instant lies in the range.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aStart.Before(bEnd) {
		return false
	}
	if aEnd.Equal(aStart) {
		return !aStart.Before(bStart)
	}
	return aEnd.After(bStart)
}
