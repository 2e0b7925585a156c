package ics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "calwidget/internal/log"
	"calwidget/internal/metrics"
	"calwidget/internal/model"
)

// maxConcurrentFetches bounds parallel feed downloads.
const maxConcurrentFetches = 4

// Calendar serves the events of a set of ICS feeds for a time window.
// It satisfies the event source interfaces of the density and agenda
// packages.
type Calendar struct {
	fetcher *Fetcher
	sources []Source
	owner   string
	loc     *time.Location
}

// NewCalendar returns a Calendar over sources. owner is matched against
// ATTENDEE addresses; loc is the display timezone.
func NewCalendar(f *Fetcher, sources []Source, owner string, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{fetcher: f, sources: sources, owner: owner, loc: loc}
}

// Between returns every event overlapping [start, end), sorted by start.
// All feeds are fetched concurrently; if any feed fails the call fails
// with the joined errors.
func (c *Calendar) Between(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	perSource := make([][]model.Event, len(c.sources))
	errs := make([]error, len(c.sources))

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for i, src := range c.sources {
		g.Go(func() error {
			evs, err := c.load(ctx, src, start, end)
			perSource[i], errs[i] = evs, err
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var out []model.Event
	for _, evs := range perSource {
		out = append(out, evs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (c *Calendar) load(ctx context.Context, src Source, start, end time.Time) ([]model.Event, error) {
	res, err := c.fetcher.Fetch(ctx, src)
	if err != nil {
		metrics.RecordFetch(src.ID, metrics.OutcomeError)
		return nil, err
	}
	if res.FromCache {
		metrics.RecordFetch(src.ID, metrics.OutcomeCached)
	} else {
		metrics.RecordFetch(src.ID, metrics.OutcomeFresh)
	}

	parsed, err := ParseICS(src, res.Body, c.owner)
	if err != nil {
		return nil, err
	}
	exp, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: c.loc,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		return nil, fmt.Errorf("ics: expand %s: %w", src.ID, err)
	}
	metrics.SetFeedEvents(src.ID, len(exp.Events))
	metrics.AddTruncated(len(exp.TruncatedEvents))

	appLog.Debug("ics source loaded", "id", src.ID, "events", len(exp.Events), "from_cache", res.FromCache)
	return exp.Events, nil
}
