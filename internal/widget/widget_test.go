package widget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calwidget/internal/calendar"
	"calwidget/internal/config"
	"calwidget/internal/locale"
	"calwidget/internal/model"
)

type fakeSource struct {
	events     []model.Event
	err        error
	calls      int
	start, end time.Time
}

func (f *fakeSource) Between(_ context.Context, start, end time.Time) ([]model.Event, error) {
	f.calls++
	f.start, f.end = start, end
	return f.events, f.err
}

var now = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

func at(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 0, 0, 0, time.UTC)
}

func ev(title string, start time.Time) model.Event {
	return model.Event{Title: title, Calendar: "Work", Start: start, End: start.Add(time.Hour)}
}

func renderer(t *testing.T, src *fakeSource) *Renderer {
	t.Helper()
	reg, err := locale.NewRegistry()
	require.NoError(t, err)
	return NewRenderer(reg, src)
}

func TestRenderMediumWidget(t *testing.T) {
	src := &fakeSource{events: []model.Event{
		ev("standup", at(12, 9)),
		ev("review", at(12, 14)),
		ev("retro", at(13, 9)),
		ev("brunch", at(16, 9)),
	}}
	cfg := config.DefaultConfig()

	view, err := renderer(t, src).Render(context.Background(), now, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, time.Date(2024, time.February, 26, 0, 0, 0, 0, time.UTC), src.start)
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), src.end)

	grid := view.Calendar
	require.NotNil(t, grid)
	assert.Equal(t, "MARCH", grid.Month)
	require.Len(t, grid.Headers, 7)
	assert.Equal(t, "M", grid.Headers[0].Text)
	assert.True(t, grid.Headers[6].Weekend)
	assert.Equal(t, cfg.Theme.WeekendLetterOpacity, grid.Headers[6].Opacity)
	assert.Equal(t, 4, grid.DaysFromPrevMonth)
	assert.Equal(t, 0, grid.DaysFromNextMonth)
	require.Len(t, grid.Rows, 5)

	feb26 := grid.Rows[0][0]
	assert.Equal(t, "26", feb26.Text)
	assert.False(t, feb26.InMonth)
	assert.Equal(t, cfg.Theme.TextColorPrevNextMonth, feb26.TextColor)

	mar2 := grid.Rows[0][5]
	assert.True(t, mar2.InMonth)
	assert.True(t, mar2.Weekend)
	assert.Equal(t, cfg.Theme.WeekendDateColor, mar2.TextColor)

	// Two events on the 12th, one on the 13th: intensity 1/2.
	assert.Equal(t, 0.5, grid.Density.Intensity)
	assert.Equal(t, 1.0, grid.Rows[2][1].Opacity)
	assert.Equal(t, 0.5, grid.Rows[2][2].Opacity)
	assert.Equal(t, 0.0, grid.Rows[2][3].Opacity)

	today := grid.Rows[2][4]
	assert.True(t, today.Today)
	assert.Equal(t, &calendar.DateKey{Month: 2, Day: 15}, today.Key)
	assert.Equal(t, cfg.Theme.TodayCircleColor, today.CircleColor)
	assert.Equal(t, 1.0, today.Opacity)
	assert.Empty(t, today.Link)

	assert.True(t, view.ShowAgenda)
	require.Len(t, view.Agenda, 1)
	assert.Equal(t, "Tomorrow", view.Agenda[0].Label)
	assert.Equal(t, "brunch", view.Agenda[0].Items[0].Title)
	assert.NotEmpty(t, view.Agenda[0].Link)
	assert.Nil(t, view.Empty)
	assert.NotEmpty(t, view.Link)
}

func TestRenderDateTargets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.IndividualDateTargets = true
	cfg.CalendarApp = "x-fantastical3"
	cfg.MarkToday = false
	cfg.SmallerPrevNextMonth = true

	view, err := renderer(t, &fakeSource{}).Render(context.Background(), now, cfg)
	require.NoError(t, err)

	feb26 := view.Calendar.Rows[0][0]
	assert.Equal(t, "x-fantastical3://show/calendar/2024-2-26", feb26.Link)
	assert.False(t, feb26.FullSize)

	today := view.Calendar.Rows[2][4]
	assert.True(t, today.Bold)
	assert.Empty(t, today.CircleColor)
}

func TestRenderSmallEventsWidget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WidgetFamily = "small"
	cfg.WidgetType = "events"

	view, err := renderer(t, &fakeSource{}).Render(context.Background(), now, cfg)
	require.NoError(t, err)
	assert.Nil(t, view.Calendar)
	assert.True(t, view.ShowAgenda)
	assert.Empty(t, view.Agenda)
	require.NotNil(t, view.Empty)
	assert.Equal(t, "15", view.Empty.Day)
	assert.Equal(t, "Friday", view.Empty.Weekday)
}

func TestRenderSmallCalendarWidget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WidgetFamily = "small"

	view, err := renderer(t, &fakeSource{}).Render(context.Background(), now, cfg)
	require.NoError(t, err)
	assert.NotNil(t, view.Calendar)
	assert.False(t, view.ShowAgenda)
	assert.Nil(t, view.Empty)
}

func TestRenderLargeSplitsAgenda(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WidgetFamily = "large"
	cfg.ShowEventTime = false
	cfg.ShowEventLocation = false

	var events []model.Event
	for i := range 10 {
		events = append(events, ev("e", at(15, 11).Add(time.Duration(i)*10*time.Minute)))
	}

	view, err := renderer(t, &fakeSource{events: events}).Render(context.Background(), now, cfg)
	require.NoError(t, err)
	require.Len(t, view.Agenda, 1)
	assert.Len(t, view.Agenda[0].Items, 8)
	require.Len(t, view.Secondary, 1)
	assert.Len(t, view.Secondary[0].Items, 2)
}

func TestRenderErrors(t *testing.T) {
	boom := errors.New("feed down")
	_, err := renderer(t, &fakeSource{err: boom}).Render(context.Background(), now, config.DefaultConfig())
	assert.ErrorIs(t, err, boom)

	cfg := config.DefaultConfig()
	cfg.Locale = "am-ET"
	_, err = renderer(t, &fakeSource{}).Render(context.Background(), now, cfg)
	assert.ErrorIs(t, err, locale.ErrUnsupportedLocale)
}

func TestRenderUsesConfiguredTimezone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timezone = "Asia/Tokyo"
	// 20:00 UTC on the 15th is already the 16th in Tokyo.
	view, err := renderer(t, &fakeSource{}).Render(context.Background(), at(15, 20), cfg)
	require.NoError(t, err)
	assert.Equal(t, 16, view.Now.Day())
	assert.Equal(t, "16", view.Calendar.Rows[2][5].Text)
	assert.True(t, view.Calendar.Rows[2][5].Today)
}

func TestWindowSource(t *testing.T) {
	src := windowSource{events: []model.Event{
		ev("before", at(1, 8)),
		ev("inside", at(1, 9)),
		ev("at-end", at(1, 10)),
		{Title: "instant", Start: at(1, 9), End: at(1, 9)},
	}}
	got, err := src.Between(context.Background(), at(1, 9), at(1, 10))
	require.NoError(t, err)
	var titles []string
	for _, e := range got {
		titles = append(titles, e.Title)
	}
	assert.Equal(t, []string{"inside", "instant"}, titles)
}
