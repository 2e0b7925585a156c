package agenda

import (
	"time"

	"calwidget/internal/format"
	"calwidget/internal/model"
)

// LayoutOptions controls which detail lines an event may use.
type LayoutOptions struct {
	LineLimit          int
	ShowLocation       bool
	ShowTime           bool
	ShowCalendarBullet bool
	ShowAllDayIcon     bool
	Clock24Hour        bool
	// CompleteTitle lets titles wrap instead of being cut to one line.
	CompleteTitle bool
	// DetailOpacity is applied to the location and time lines.
	DetailOpacity float64
}

// Item is one laid-out event.
type Item struct {
	Title    string `json:"title"`
	Bullet   string `json:"bullet,omitempty"`
	Calendar string `json:"calendar"`
	Location string `json:"location,omitempty"`
	Time     string `json:"time,omitempty"`
	AllDay   bool   `json:"all_day"`
	// AllDayIcon is set when the all-day marker should be drawn.
	AllDayIcon    bool      `json:"all_day_icon,omitempty"`
	CompleteTitle bool      `json:"complete_title,omitempty"`
	DetailOpacity float64   `json:"detail_opacity"`
	Start         time.Time `json:"start"`
	// Lines is how many text lines the item occupies.
	Lines int `json:"lines"`
}

// Group is the events sharing one relative-day label.
type Group struct {
	Label string `json:"label"`
	// Date is the start of the first event in the group.
	Date  time.Time `json:"date"`
	Items []Item    `json:"items"`
}

// Layout groups events by relative day and fits them into
// opts.LineLimit lines. A group header costs one line and is only opened
// while more than one line is left. An event costs one line for the title,
// one for its location (only offered with three or more lines left) and
// one for its time (timed events, only offered with two or more left).
func Layout(events []model.Event, now time.Time, f *format.Formatter, opts LayoutOptions) ([]Group, error) {
	limit := opts.LineLimit
	if limit <= 0 {
		limit = DefaultLineLimit
	}

	var groups []Group
	index := make(map[string]int)
	spaceLeft := limit

	for i := 0; spaceLeft > 0 && i < len(events); i++ {
		ev := events[i]

		// Events already under way are listed under today.
		labelAt := ev.Start
		if labelAt.Before(now) {
			labelAt = now
		}
		label, err := f.RelativeDay(labelAt, now)
		if err != nil {
			return nil, err
		}

		gi, ok := index[label]
		if !ok {
			if spaceLeft <= 1 {
				break
			}
			groups = append(groups, Group{Label: label, Date: ev.Start})
			gi = len(groups) - 1
			index[label] = gi
			spaceLeft--
		}

		item, err := layoutEvent(ev, f, opts, spaceLeft)
		if err != nil {
			return nil, err
		}
		groups[gi].Items = append(groups[gi].Items, item)
		spaceLeft -= item.Lines
	}
	return groups, nil
}

func layoutEvent(ev model.Event, f *format.Formatter, opts LayoutOptions, spaceLeft int) (Item, error) {
	item := Item{
		Title:      ev.Title,
		Calendar:   ev.Calendar,
		AllDay:     ev.AllDay,
		AllDayIcon: opts.ShowAllDayIcon && ev.AllDay,
		Start:      ev.Start,
		Lines:      1,

		CompleteTitle: opts.CompleteTitle,
		DetailOpacity: opts.DetailOpacity,
	}
	if opts.ShowCalendarBullet {
		item.Bullet = format.AttendanceIcon(ev.Attendance)
	}
	if opts.ShowLocation && spaceLeft >= 3 && ev.Location != "" {
		item.Location = ev.Location
		item.Lines++
	}
	if opts.ShowTime && spaceLeft >= 2 && !ev.AllDay {
		d, err := f.Duration(ev.Start, ev.End, opts.Clock24Hour)
		if err != nil {
			return Item{}, err
		}
		item.Time = d
		item.Lines++
	}
	return item, nil
}

// Lines totals the lines used by groups, headers included.
func Lines(groups []Group) int {
	n := 0
	for _, g := range groups {
		n++
		for _, it := range g.Items {
			n += it.Lines
		}
	}
	return n
}
