package widget

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"calwidget/internal/agenda"
	"calwidget/internal/calendar"
	"calwidget/internal/config"
	"calwidget/internal/deeplink"
	"calwidget/internal/density"
	"calwidget/internal/format"
	"calwidget/internal/locale"
	appLog "calwidget/internal/log"
	"calwidget/internal/metrics"
	"calwidget/internal/model"
)

// Renderer builds views from an event source.
type Renderer struct {
	names  *locale.Registry
	source density.EventSource
}

// NewRenderer returns a Renderer using names for localized text and
// source for events.
func NewRenderer(names *locale.Registry, source density.EventSource) *Renderer {
	return &Renderer{names: names, source: source}
}

// Render builds the view for now under cfg. The grid is built first so
// the heatmap window can include the visible spillover days; events for
// both the heatmap and the agenda are then fetched in one call.
func (r *Renderer) Render(ctx context.Context, now time.Time, cfg *config.Config) (view View, err error) {
	started := time.Now()
	defer func() { metrics.ObserveRender(started, err) }()

	now = now.In(cfg.Location())
	showCal, showAgenda := parts(cfg)

	view = View{
		Family:     cfg.WidgetFamily,
		Type:       cfg.WidgetType,
		Flipped:    cfg.Flipped,
		Now:        now,
		Link:       deeplink.Now(cfg.CalendarApp, now),
		Theme:      cfg.Theme,
		ShowAgenda: showAgenda,
	}

	gridRes, err := calendar.NewBuilder(r.names).Build(now, calendar.Options{
		Locale:            cfg.Locale,
		ShowPrevMonth:     cfg.ShowPrevMonth,
		ShowNextMonth:     cfg.ShowNextMonth,
		StartWeekOnSunday: cfg.StartWeekOnSunday,
	})
	if err != nil {
		return View{}, fmt.Errorf("widget: grid: %w", err)
	}

	agendaOpts := agenda.Options{
		OnlyToday:        cfg.ShowEventsOnlyForToday,
		NextNumOfDays:    cfg.NextNumOfDays,
		Calendars:        cfg.CalFilter,
		ShowAllDayEvents: cfg.ShowAllDayEvents,
	}

	dStart, dEnd := density.Window(now, gridRes.DaysFromPrevMonth, gridRes.DaysFromNextMonth)
	aStart, aEnd := agenda.Window(now, agendaOpts)
	start, end := union(dStart, dEnd, aStart, aEnd)
	events, err := r.source.Between(ctx, start, end)
	if err != nil {
		return View{}, fmt.Errorf("widget: events: %w", err)
	}
	src := windowSource{events: events}

	if showCal {
		res, err := density.NewAggregator(src).Aggregate(ctx, now,
			gridRes.DaysFromPrevMonth, gridRes.DaysFromNextMonth, density.Filter{
				Calendars:            cfg.CalFilter,
				DiscountAllDayEvents: cfg.DiscountAllDayEvents,
				ShowAllDayEvents:     cfg.ShowAllDayEvents,
			})
		if err != nil {
			return View{}, fmt.Errorf("widget: density: %w", err)
		}
		grid, err := r.grid(now, cfg, gridRes, res)
		if err != nil {
			return View{}, err
		}
		view.Calendar = grid
	}

	if showAgenda {
		upcoming, err := agenda.Upcoming(ctx, src, now, agendaOpts)
		if err != nil {
			return View{}, err
		}
		if err := r.agenda(&view, now, cfg, upcoming); err != nil {
			return View{}, err
		}
	}

	appLog.Debug("widget rendered", "family", cfg.WidgetFamily, "type", cfg.WidgetType,
		"events", len(events), "took", time.Since(started))
	return view, nil
}

// parts reports which of the grid and the agenda the layout shows.
func parts(cfg *config.Config) (showCal, showAgenda bool) {
	if cfg.WidgetFamily == "small" {
		return cfg.WidgetType != "events", cfg.WidgetType == "events"
	}
	return true, true
}

func (r *Renderer) grid(now time.Time, cfg *config.Config, gr calendar.GridResult, res density.Result) (*Grid, error) {
	month, err := r.names.MonthWide(cfg.Locale, now.Month())
	if err != nil {
		return nil, fmt.Errorf("widget: month name: %w", err)
	}
	tag := language.Make(cfg.Locale)
	th := cfg.Theme

	out := &Grid{
		Month:             cases.Upper(tag).String(month),
		DaysFromPrevMonth: gr.DaysFromPrevMonth,
		DaysFromNextMonth: gr.DaysFromNextMonth,
		Density:           res,
	}

	for col := range gr.Grid {
		weekend := calendar.IsWeekend(col, cfg.StartWeekOnSunday)
		h := Header{Text: gr.Grid[col][0].String(), Weekend: weekend, Color: th.TextColor, Opacity: 1}
		if weekend {
			h.Color, h.Opacity = th.WeekendLetterColor, th.WeekendLetterOpacity
		}
		out.Headers = append(out.Headers, h)
	}

	today := calendar.KeyOf(now)
	for row := 1; row < gr.Grid.Rows(); row++ {
		cells := make([]Cell, 0, len(gr.Grid))
		for col := range gr.Grid {
			cells = append(cells, r.cell(gr.Grid, col, row, now, today, cfg, res))
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

func (r *Renderer) cell(g calendar.Grid, col, row int, now time.Time, today calendar.DateKey, cfg *config.Config, res density.Result) Cell {
	th := cfg.Theme
	src := g.Cell(col, row)
	weekend := calendar.IsWeekend(col, cfg.StartWeekOnSunday)

	if !src.IsDay() {
		return Cell{Text: src.String(), Weekend: weekend, TextColor: th.TextColor}
	}

	key := src.Key
	c := Cell{
		Text:     strconv.Itoa(key.Day),
		Key:      &key,
		Day:      true,
		Weekend:  weekend,
		InMonth:  g.InReferenceMonth(col, row, now),
		FullSize: true,
	}
	if cfg.IndividualDateTargets {
		c.Link = deeplink.URL(cfg.CalendarApp, key, now)
	}

	if key == today {
		c.Today = true
		c.TextColor = th.TodayTextColor
		if cfg.MarkToday {
			c.CircleColor, c.Opacity = th.TodayCircleColor, 1
		} else {
			c.Bold = true
		}
		return c
	}

	c.FullSize = !cfg.SmallerPrevNextMonth || c.InMonth
	switch {
	case !c.InMonth:
		c.TextColor = th.TextColorPrevNextMonth
	case weekend:
		c.TextColor = th.WeekendDateColor
	default:
		c.TextColor = th.WeekdayTextColor
	}
	if cfg.ShowEventCircles {
		c.CircleColor = th.EventCircleColor
		c.Opacity = min(float64(res.Counts.Get(key))*res.Intensity, 1)
	}
	return c
}

func (r *Renderer) agenda(view *View, now time.Time, cfg *config.Config, events []model.Event) error {
	f := format.New(r.names, cfg.Locale)
	opts := agenda.LayoutOptions{
		LineLimit:          agenda.DefaultLineLimit,
		ShowLocation:       cfg.ShowEventLocation,
		ShowTime:           cfg.ShowEventTime,
		ShowCalendarBullet: cfg.ShowCalendarBullet,
		ShowAllDayIcon:     cfg.ShowIconForAllDayEvents,
		Clock24Hour:        cfg.Clock24Hour,
		CompleteTitle:      cfg.ShowCompleteTitle,
		DetailOpacity:      cfg.Theme.EventDateTimeOpacity,
	}

	main := events
	if cfg.WidgetFamily == "large" {
		var secondary []model.Event
		main, secondary = agenda.Split(events)

		opts.LineLimit = agenda.LargeRightLimit
		groups, err := agenda.Layout(secondary, now, f, opts)
		if err != nil {
			return fmt.Errorf("widget: agenda: %w", err)
		}
		view.Secondary = r.linkGroups(groups, now, cfg)
		opts.LineLimit = agenda.LargeLeftLimit
	}

	groups, err := agenda.Layout(main, now, f, opts)
	if err != nil {
		return fmt.Errorf("widget: agenda: %w", err)
	}
	view.Agenda = r.linkGroups(groups, now, cfg)

	if len(main) == 0 {
		wd, err := r.names.WeekdayWide(cfg.Locale, now.Weekday())
		if err != nil {
			return fmt.Errorf("widget: weekday name: %w", err)
		}
		view.Empty = &Empty{Day: strconv.Itoa(now.Day()), Weekday: wd}
	}
	return nil
}

func (r *Renderer) linkGroups(groups []agenda.Group, now time.Time, cfg *config.Config) []Group {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, Group{
			Group: g,
			Link:  deeplink.URL(cfg.CalendarApp, calendar.KeyOf(g.Date), now),
		})
	}
	return out
}
