package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calwidget/internal/model"
)

func feed(events ...string) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\nX-WR-CALNAME:Family\r\n")
	for _, e := range events {
		b.WriteString("BEGIN:VEVENT\r\n")
		for _, line := range strings.Split(strings.TrimSpace(e), "\n") {
			b.WriteString(strings.TrimSpace(line))
			b.WriteString("\r\n")
		}
		b.WriteString("END:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

func expand(t *testing.T, body []byte, start, end time.Time, loc *time.Location) []model.Event {
	t.Helper()
	parsed, err := ParseICS(Source{ID: "home"}, body, "me@example.com")
	require.NoError(t, err)
	res, err := ExpandOccurrences(parsed, ExpandConfig{DisplayLocation: loc, RangeStart: start, RangeEnd: end})
	require.NoError(t, err)
	return res.Events
}

func TestParseICSFields(t *testing.T) {
	body := feed(`
UID:a
SEQUENCE:2
SUMMARY:Standup
DESCRIPTION:Daily sync
LOCATION:Room 1
DTSTART;TZID=Europe/Berlin:20240311T090000
DTEND;TZID=Europe/Berlin:20240311T091500
ATTENDEE;PARTSTAT=TENTATIVE:mailto:Me@Example.com
ATTENDEE;PARTSTAT=ACCEPTED:mailto:other@example.com
`, `
UID:b
SUMMARY:Holiday
DTSTART;VALUE=DATE:20240312
STATUS:CANCELLED
`, `
SUMMARY:no uid
DTSTART:20240312T100000Z
`)

	events, err := ParseICS(Source{ID: "home"}, body, "me@example.com")
	require.NoError(t, err)
	require.Len(t, events, 2)

	a := events[0]
	assert.Equal(t, "a", a.UID)
	assert.Equal(t, 2, a.Seq)
	assert.Equal(t, "Standup", a.Summary)
	assert.Equal(t, "Daily sync", a.Description)
	assert.Equal(t, "Room 1", a.Location)
	assert.Equal(t, "Family", a.Calendar)
	assert.False(t, a.AllDay)
	assert.Equal(t, 15*time.Minute, a.End.Sub(a.Start))
	assert.Equal(t, "Europe/Berlin", a.Start.Location().String())
	assert.Equal(t, model.AttendanceTentative, a.Attendance)

	b := events[1]
	assert.True(t, b.AllDay)
	assert.True(t, b.Cancelled)
	assert.False(t, b.HasEnd)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), b.Start)
	assert.Equal(t, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), b.End)
}

func TestParseICSCalendarTitle(t *testing.T) {
	body := feed("UID:x\nDTSTART:20240312T100000Z")

	events, err := ParseICS(Source{ID: "id", Name: "Configured"}, body, "")
	require.NoError(t, err)
	assert.Equal(t, "Configured", events[0].Calendar)

	bare := []byte(strings.Replace(string(body), "X-WR-CALNAME:Family\r\n", "", 1))
	events, err = ParseICS(Source{ID: "id"}, bare, "")
	require.NoError(t, err)
	assert.Equal(t, "id", events[0].Calendar)
}

func TestParseICSErrors(t *testing.T) {
	_, err := ParseICS(Source{ID: "x"}, nil, "")
	assert.Error(t, err)
	_, err = ParseICS(Source{ID: "x"}, []byte("   \n"), "")
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"PT1H30M": 90 * time.Minute,
		"P1D":     24 * time.Hour,
		"P1W":     7 * 24 * time.Hour,
		"-PT15M":  -15 * time.Minute,
		"P1DT2H":  26 * time.Hour,
	}
	for in, want := range cases {
		got, err := parseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "1H", "PT", "PTH", "P1H"} {
		_, err := parseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestExpandSingleTimedEvent(t *testing.T) {
	body := feed("UID:a\nSUMMARY:Call\nDTSTART:20240315T230000Z\nDURATION:PT30M")
	tokyo, _ := time.LoadLocation("Asia/Tokyo")
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, tokyo)
	end := time.Date(2024, 4, 1, 0, 0, 0, 0, tokyo)

	got := expand(t, body, start, end, tokyo)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, 3, 16, 8, 0, 0, 0, tokyo), got[0].Start)
	assert.Equal(t, 16, got[0].Start.Day())
	assert.Equal(t, "Family", got[0].Calendar)
}

func TestExpandAllDayAnchoredToDisplayZone(t *testing.T) {
	body := feed("UID:a\nSUMMARY:Trip\nDTSTART;VALUE=DATE:20240311\nDTEND;VALUE=DATE:20240314")
	ny, _ := time.LoadLocation("America/New_York")
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, ny)
	end := time.Date(2024, 4, 1, 0, 0, 0, 0, ny)

	got := expand(t, body, start, end, ny)
	require.Len(t, got, 1)
	assert.True(t, got[0].AllDay)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, ny), got[0].Start)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, ny), got[0].End)
}

func TestExpandHalfOpenRange(t *testing.T) {
	body := feed(
		"UID:before\nDTSTART:20240301T080000Z\nDTEND:20240301T090000Z",
		"UID:at-end\nDTSTART:20240301T100000Z\nDTEND:20240301T110000Z",
		"UID:inside\nDTSTART:20240301T093000Z\nDTEND:20240301T094500Z",
		"UID:instant\nDTSTART:20240301T090000Z",
	)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	got := expand(t, body, start, end, time.UTC)
	var uids []string
	for _, e := range got {
		uids = append(uids, e.UID)
	}
	assert.Equal(t, []string{"instant", "inside"}, uids)
}

func TestExpandRecurringWithExdateAndOverrides(t *testing.T) {
	body := feed(`
UID:weekly
SUMMARY:Gym
DTSTART:20240304T180000Z
DTEND:20240304T190000Z
RRULE:FREQ=WEEKLY;COUNT=6
EXDATE:20240311T180000Z
`, `
UID:weekly
RECURRENCE-ID:20240318T180000Z
SUMMARY:Gym (moved)
DTSTART:20240319T070000Z
DTEND:20240319T080000Z
`, `
UID:weekly
RECURRENCE-ID:20240325T180000Z
SUMMARY:Gym
DTSTART:20240325T180000Z
DTEND:20240325T190000Z
STATUS:CANCELLED
`)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	got := expand(t, body, start, end, time.UTC)
	var days []int
	for _, e := range got {
		days = append(days, e.Start.Day())
	}
	// 4th, 11th excluded, 18th moved to the 19th, 25th cancelled.
	assert.Equal(t, []int{4, 19}, days)
	assert.Equal(t, "Gym (moved)", got[1].Title)
	assert.Equal(t, "weekly/20240318T180000Z", got[1].InstanceKey)
}

func TestExpandRecurringAllDay(t *testing.T) {
	body := feed("UID:bin\nSUMMARY:Bins\nDTSTART;VALUE=DATE:20240228\nRRULE:FREQ=DAILY;COUNT=3")
	seoul, _ := time.LoadLocation("Asia/Seoul")
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, seoul)
	end := time.Date(2024, 4, 1, 0, 0, 0, 0, seoul)

	got := expand(t, body, start, end, seoul)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, seoul), got[0].Start)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, seoul), got[0].End)
}

func TestExpandCap(t *testing.T) {
	body := feed("UID:often\nDTSTART:20240301T000000Z\nDTEND:20240301T000100Z\nRRULE:FREQ=MINUTELY")
	parsed, err := ParseICS(Source{ID: "x"}, body, "")
	require.NoError(t, err)

	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:               time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		MaxOccurrencesPerEvent: 10,
	})
	require.NoError(t, err)
	assert.Len(t, res.Events, 10)
	assert.Equal(t, []string{"often"}, res.TruncatedEvents)
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	now := time.Now()
	_, err := ExpandOccurrences(nil, ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestFetcherConditionalGet(t *testing.T) {
	body := feed("UID:a\nDTSTART:20240312T100000Z")
	var hits, notModified atomic.Int32
	fail := atomic.Bool{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "home", URL: srv.URL + "/secret-token.ics"}
	ctx := context.Background()

	first, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, body, first.Body)

	second, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, body, second.Body)
	assert.Equal(t, int32(1), notModified.Load())

	fail.Store(true)
	third, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.Equal(t, body, third.Body)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetcherErrorsWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/304" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	_, err := f.Fetch(context.Background(), Source{ID: "a", URL: srv.URL + "/missing"})
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), Source{ID: "b", URL: srv.URL + "/304"})
	assert.ErrorIs(t, err, ErrNotModifiedNoCache)

	_, err = f.Fetch(context.Background(), Source{ID: "c"})
	assert.Error(t, err)
}

func TestFetcherFileURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.ics")
	body := feed("UID:a\nDTSTART:20240312T100000Z")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	res, err := NewFetcher(t.TempDir(), nil).Fetch(context.Background(), Source{ID: "l", URL: "file://" + path})
	require.NoError(t, err)
	assert.Equal(t, body, res.Body)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://cal.example.com/...(redacted)", redactURL("https://cal.example.com/private/abc123/basic.ics?token=x"))
	assert.Equal(t, "file://...(redacted)", redactURL("file:///home/me/cal.ics"))
	assert.Equal(t, "ics://...(redacted)", redactURL("no scheme"))
}

func TestCalendarBetween(t *testing.T) {
	dir := t.TempDir()
	work := filepath.Join(dir, "work.ics")
	home := filepath.Join(dir, "home.ics")
	require.NoError(t, os.WriteFile(work, feed("UID:w\nSUMMARY:Review\nDTSTART:20240312T150000Z\nDTEND:20240312T160000Z"), 0o600))
	require.NoError(t, os.WriteFile(home, feed("UID:h\nSUMMARY:Dinner\nDTSTART:20240312T080000Z\nDTEND:20240312T090000Z"), 0o600))

	cal := NewCalendar(NewFetcher(t.TempDir(), nil), []Source{
		{ID: "work", URL: "file://" + work, Name: "Work"},
		{ID: "home", URL: "file://" + home},
	}, "", time.UTC)

	got, err := cal.Between(context.Background(),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Dinner", got[0].Title)
	assert.Equal(t, "Family", got[0].Calendar)
	assert.Equal(t, "home", got[0].SourceID)
	assert.Equal(t, "Review", got[1].Title)
	assert.Equal(t, "Work", got[1].Calendar)
}

func TestCalendarBetweenFailsOnAnyFeed(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.ics")
	require.NoError(t, os.WriteFile(ok, feed("UID:a\nDTSTART:20240312T100000Z"), 0o600))

	cal := NewCalendar(NewFetcher(t.TempDir(), nil), []Source{
		{ID: "ok", URL: "file://" + ok},
		{ID: "gone", URL: "file://" + filepath.Join(dir, "missing.ics")},
	}, "", time.UTC)

	_, err := cal.Between(context.Background(), time.Time{}, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
