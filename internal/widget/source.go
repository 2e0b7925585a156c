package widget

import (
	"context"
	"time"

	"calwidget/internal/model"
)

// windowSource serves sub-windows of one prefetched event list so a render
// hits the feeds once for both the heatmap and the agenda.
type windowSource struct {
	events []model.Event
}

func (w windowSource) Between(_ context.Context, start, end time.Time) ([]model.Event, error) {
	out := make([]model.Event, 0, len(w.events))
	for _, ev := range w.events {
		if !ev.Start.Before(end) {
			continue
		}
		if ev.End.After(start) || (ev.End.Equal(ev.Start) && !ev.Start.Before(start)) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func union(aStart, aEnd, bStart, bEnd time.Time) (time.Time, time.Time) {
	start, end := aStart, aEnd
	if bStart.Before(start) {
		start = bStart
	}
	if bEnd.After(end) {
		end = bEnd
	}
	return start, end
}
