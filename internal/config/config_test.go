package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestParseKeepsBooleanDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
locale: de
start_week_on_sunday: true
show_next_month: false
cal_filter: [Work]
ics:
  - url: https://example.com/work.ics
    name: Work
`))
	require.NoError(t, err)

	assert.Equal(t, "de", cfg.Locale)
	assert.True(t, cfg.StartWeekOnSunday)
	assert.False(t, cfg.ShowNextMonth)
	// Not mentioned in the file: defaults survive.
	assert.True(t, cfg.ShowPrevMonth)
	assert.True(t, cfg.ShowAllDayEvents)
	assert.Equal(t, 7, cfg.NextNumOfDays)
	assert.Equal(t, []string{"Work"}, cfg.CalFilter)
	require.Len(t, cfg.ICS, 1)
	assert.Equal(t, "Work", cfg.ICS[0].ID)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "no_such_option: true\n",
		"bad app":         "calendar_app: outlook\n",
		"bad family":      "widget_family: huge\n",
		"bad timezone":    "timezone: Mars/Olympus\n",
		"bad cron":        "refresh: every minute\n",
		"bad ics url":     "ics:\n  - url: not a url\n",
		"too many days":   "next_num_of_days: 400\n",
		"bad owner email": "owner_email: nobody\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Locale = "ja-JP"
	cfg.DiscountAllDayEvents = true
	cfg.ICS = []ICSConfig{{URL: "file:///tmp/home.ics", Name: "Home"}}

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Seoul"
	assert.Equal(t, "Asia/Seoul", cfg.Location().String())

	cfg.Timezone = "Nowhere/Special"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestWatchReloadsOnSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, Save(path, DefaultConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { changes <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	cfg := DefaultConfig()
	cfg.Locale = "fr"
	require.NoError(t, Save(path, cfg))

	select {
	case got := <-changes:
		assert.Equal(t, "fr", got.Locale)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}

	cancel()
	require.NoError(t, <-done)
}
