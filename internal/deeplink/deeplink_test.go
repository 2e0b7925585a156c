package deeplink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"calwidget/internal/calendar"
)

func TestYear(t *testing.T) {
	dec := time.Date(2024, time.December, 20, 0, 0, 0, 0, time.UTC)
	jan := time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2025, Year(calendar.DateKey{Month: 0, Day: 3}, dec))
	assert.Equal(t, 2024, Year(calendar.DateKey{Month: 11, Day: 3}, dec))
	assert.Equal(t, 2024, Year(calendar.DateKey{Month: 11, Day: 30}, jan))
	assert.Equal(t, 2025, Year(calendar.DateKey{Month: 1, Day: 1}, jan))
}

func TestURL(t *testing.T) {
	ref := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, "x-fantastical3://show/calendar/2024-3-15",
		URL(AppFantastical, calendar.DateKey{Month: 2, Day: 15}, ref))
	// 2001-01-02 is exactly one day after the epoch.
	assert.Equal(t, "calshow:86400",
		URL(AppCalshow, calendar.DateKey{Month: 0, Day: 2}, time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.Empty(t, URL(AppNone, calendar.DateKey{Month: 2, Day: 15}, ref))
	assert.Empty(t, URL("gcal", calendar.DateKey{Month: 2, Day: 15}, ref))
}

func TestNow(t *testing.T) {
	at := time.Date(2001, time.January, 1, 0, 1, 30, 0, time.UTC)
	assert.Equal(t, "calshow:90", Now(AppCalshow, at))
	assert.Equal(t, "x-fantastical3://show/calendar/2001-1-1", Now(AppFantastical, at))
}
