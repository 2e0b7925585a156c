// Package density turns the events visible in a month grid into per-day
// occurrence counts and one global intensity scalar used to scale the
// heatmap markers.
package density

import (
	"context"
	"fmt"
	"slices"
	"time"

	"calwidget/internal/calendar"
	appLog "calwidget/internal/log"
	"calwidget/internal/model"
)

// MinIntensity is the floor applied to the intensity scalar. It is also
// the value reported when no events fall in the window.
const MinIntensity = 0.3

// EventSource returns all events overlapping the half-open range
// [start, end).
type EventSource interface {
	Between(ctx context.Context, start, end time.Time) ([]model.Event, error)
}

// Filter selects which events count toward the density map. An empty
// Calendars list keeps every calendar.
type Filter struct {
	Calendars            []string
	DiscountAllDayEvents bool
	ShowAllDayEvents     bool
}

// Map holds per-day occurrence counts. Only days with at least one event
// are present; a missing key means zero.
type Map map[calendar.DateKey]int

// Get returns the count for k, zero when absent.
func (m Map) Get(k calendar.DateKey) int {
	return m[k]
}

func (m Map) add(k calendar.DateKey) {
	m[k]++
}

// Result is the output of one aggregation.
type Result struct {
	Counts     Map       `json:"counts"`
	Intensity  float64   `json:"intensity"`
	Start      time.Time `json:"range_start"`
	End        time.Time `json:"range_end"`
	EventCount int       `json:"event_count"`
}

// Aggregator fetches events for a grid window and aggregates them.
type Aggregator struct {
	source EventSource
}

// NewAggregator returns an Aggregator reading events from source.
func NewAggregator(source EventSource) *Aggregator {
	return &Aggregator{source: source}
}

// Aggregate counts the events visible in ref's grid. extendToPrev and
// extendToNext are the spillover counts reported by the grid builder.
// A source failure fails the whole aggregation; nothing is retried.
func (a *Aggregator) Aggregate(ctx context.Context, ref time.Time, extendToPrev, extendToNext int, f Filter) (Result, error) {
	start, end := Window(ref, extendToPrev, extendToNext)

	events, err := a.source.Between(ctx, start, end)
	if err != nil {
		return Result{}, fmt.Errorf("density: fetch events %s..%s: %w",
			start.Format(time.DateOnly), end.Format(time.DateOnly), err)
	}

	kept := Trim(events, f)
	counts := Count(kept)
	intensity := Intensity(counts)

	appLog.Debug("density aggregated",
		"range_start", start.Format(time.DateOnly),
		"range_end", end.Format(time.DateOnly),
		"fetched", len(events),
		"kept", len(kept),
		"days", len(counts),
		"intensity", intensity,
	)

	return Result{
		Counts:     counts,
		Intensity:  intensity,
		Start:      start,
		End:        end,
		EventCount: len(kept),
	}, nil
}

// Window returns the fetch range for ref's grid: from extendToPrev days
// before the first of the month up to extendToNext days past the first of
// the next month. End is exclusive.
func Window(ref time.Time, extendToPrev, extendToNext int) (start, end time.Time) {
	first := calendar.MonthBoundaries(ref).First
	y, m, d := first.Date()
	start = time.Date(y, m, d-extendToPrev, 0, 0, 0, 0, first.Location())
	end = time.Date(y, m+1, d+extendToNext, 0, 0, 0, 0, first.Location())
	return start, end
}

// Trim applies the calendar allow-list and the all-day switches.
func Trim(events []model.Event, f Filter) []model.Event {
	dropAllDay := f.DiscountAllDayEvents || !f.ShowAllDayEvents
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if len(f.Calendars) > 0 && !slices.Contains(f.Calendars, ev.Calendar) {
			continue
		}
		if dropAllDay && ev.AllDay {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Count builds the density map. A timed event counts once on its start
// day. An all-day event counts once on every day from its start up to but
// excluding its end, and at least once on its start day.
func Count(events []model.Event) Map {
	m := make(Map)
	for _, ev := range events {
		if !ev.AllDay {
			m.add(calendar.KeyOf(ev.Start))
			continue
		}
		day := ev.Start
		for {
			m.add(calendar.KeyOf(day))
			day = day.AddDate(0, 0, 1)
			if !day.Before(ev.End) {
				break
			}
		}
	}
	return m
}

// Intensity is 1/(max-min+1) over the present counts, floored at
// MinIntensity. An empty map yields MinIntensity.
func Intensity(m Map) float64 {
	if len(m) == 0 {
		return MinIntensity
	}
	first := true
	var lo, hi int
	for _, n := range m {
		if first {
			lo, hi = n, n
			first = false
			continue
		}
		lo = min(lo, n)
		hi = max(hi, n)
	}
	v := 1 / float64(hi-lo+1)
	if v < MinIntensity {
		return MinIntensity
	}
	return v
}
