// Package agenda selects the upcoming events shown next to the month grid
// and lays them out into day groups within a fixed number of text lines.
package agenda

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"calwidget/internal/model"
)

// cancelledPrefix marks events some providers keep after cancellation.
const cancelledPrefix = "Canceled:"

// Line budgets per widget region.
const (
	DefaultLineLimit = 8
	LargeLeftLimit   = 16
	LargeRightLimit  = 12
)

// Large widgets show the first 8 events on the left and the next 4 under
// the grid.
const (
	largeLeftCount  = 8
	largeRightCount = 4
)

// Source is any provider of events in a time window.
type Source interface {
	Between(ctx context.Context, start, end time.Time) ([]model.Event, error)
}

// Options selects which events are upcoming.
type Options struct {
	OnlyToday     bool
	NextNumOfDays int
	// Calendars is an allow-list of calendar titles; empty allows all.
	Calendars        []string
	ShowAllDayEvents bool
}

// Window is the query range for now: the rest of today's calendar day when
// OnlyToday, otherwise [now, now+NextNumOfDays days).
func Window(now time.Time, opts Options) (time.Time, time.Time) {
	if opts.OnlyToday {
		y, m, d := now.Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 0, 1)
	}
	return now, now.AddDate(0, 0, opts.NextNumOfDays)
}

// Upcoming fetches and filters the agenda events for now, sorted by start.
//
// All-day events are kept when ShowAllDayEvents is set and they started
// within the last 24 hours. Timed events are kept while they have not
// ended and their title is not marked cancelled.
func Upcoming(ctx context.Context, src Source, now time.Time, opts Options) ([]model.Event, error) {
	start, end := Window(now, opts)
	events, err := src.Between(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("agenda: %w", err)
	}

	cutoff := now.AddDate(0, 0, -1)
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if len(opts.Calendars) > 0 && !slices.Contains(opts.Calendars, ev.Calendar) {
			continue
		}
		switch {
		case ev.AllDay:
			if opts.ShowAllDayEvents && ev.Start.After(cutoff) {
				out = append(out, ev)
			}
		case ev.End.After(now) && !strings.HasPrefix(ev.Title, cancelledPrefix):
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Split divides events between the two agenda regions of a large widget.
func Split(events []model.Event) (left, right []model.Event) {
	n := min(len(events), largeLeftCount)
	left = events[:n]
	rest := events[n:]
	right = rest[:min(len(rest), largeRightCount)]
	return left, right
}
