package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint (http, https or file).
	URL string `yaml:"url" json:"url" validate:"required,url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is the calendar title. It is what cal_filter matches against;
	// when empty the feed's X-WR-CALNAME is used.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Theme carries the widget colors.
type Theme struct {
	Background             string  `yaml:"background" json:"background"`
	TextColor              string  `yaml:"text_color" json:"text_color"`
	TodayTextColor         string  `yaml:"today_text_color" json:"today_text_color"`
	TodayCircleColor       string  `yaml:"today_circle_color" json:"today_circle_color"`
	EventCircleColor       string  `yaml:"event_circle_color" json:"event_circle_color"`
	WeekdayTextColor       string  `yaml:"weekday_text_color" json:"weekday_text_color"`
	WeekendLetterColor     string  `yaml:"weekend_letter_color" json:"weekend_letter_color"`
	WeekendLetterOpacity   float64 `yaml:"weekend_letter_opacity" json:"weekend_letter_opacity" validate:"gte=0,lte=1"`
	WeekendDateColor       string  `yaml:"weekend_date_color" json:"weekend_date_color"`
	TextColorPrevNextMonth string  `yaml:"text_color_prev_next_month" json:"text_color_prev_next_month"`
	EventDateTimeOpacity   float64 `yaml:"event_date_time_opacity" json:"event_date_time_opacity" validate:"gte=0,lte=1"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the widget page and API.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// Timezone is the IANA timezone events are displayed in.
	Timezone string `yaml:"timezone" json:"timezone" validate:"required,timezone"`

	// Locale drives weekday letters, month names and relative-day phrases
	// (e.g. "en-US", "de", "ja-JP"). It is not validated here; an
	// unsupported value fails the render.
	Locale string `yaml:"locale" json:"locale"`

	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info error"`

	// Month grid.
	StartWeekOnSunday bool `yaml:"start_week_on_sunday" json:"start_week_on_sunday"`
	ShowPrevMonth     bool `yaml:"show_prev_month" json:"show_prev_month"`
	ShowNextMonth     bool `yaml:"show_next_month" json:"show_next_month"`
	MarkToday         bool `yaml:"mark_today" json:"mark_today"`
	ShowEventCircles  bool `yaml:"show_event_circles" json:"show_event_circles"`
	// SmallerPrevNextMonth draws spillover days with a smaller marker.
	SmallerPrevNextMonth  bool `yaml:"smaller_prev_next_month" json:"smaller_prev_next_month"`
	IndividualDateTargets bool `yaml:"individual_date_targets" json:"individual_date_targets"`

	// Event filtering, shared by the heatmap and the agenda.
	CalFilter            []string `yaml:"cal_filter" json:"cal_filter"`
	DiscountAllDayEvents bool     `yaml:"discount_all_day_events" json:"discount_all_day_events"`
	ShowAllDayEvents     bool     `yaml:"show_all_day_events" json:"show_all_day_events"`

	// Agenda.
	ShowEventsOnlyForToday  bool `yaml:"show_events_only_for_today" json:"show_events_only_for_today"`
	NextNumOfDays           int  `yaml:"next_num_of_days" json:"next_num_of_days" validate:"gte=1,lte=365"`
	ShowEventLocation       bool `yaml:"show_event_location" json:"show_event_location"`
	ShowEventTime           bool `yaml:"show_event_time" json:"show_event_time"`
	ShowCalendarBullet      bool `yaml:"show_calendar_bullet" json:"show_calendar_bullet"`
	ShowIconForAllDayEvents bool `yaml:"show_icon_for_all_day_events" json:"show_icon_for_all_day_events"`
	ShowCompleteTitle       bool `yaml:"show_complete_title" json:"show_complete_title"`
	Clock24Hour             bool `yaml:"clock_24_hour" json:"clock_24_hour"`

	// CalendarApp selects the deep link scheme: "calshow",
	// "x-fantastical3" or "none".
	CalendarApp string `yaml:"calendar_app" json:"calendar_app" validate:"oneof=calshow x-fantastical3 none"`

	// Widget layout.
	WidgetFamily string `yaml:"widget_family" json:"widget_family" validate:"oneof=small medium large"`
	WidgetType   string `yaml:"widget_type" json:"widget_type" validate:"oneof=cal events"`
	Flipped      bool   `yaml:"flipped" json:"flipped"`

	Theme Theme `yaml:"theme" json:"theme"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") for
	// re-rendering and capturing the preview.
	RefreshCron string `yaml:"refresh" json:"refresh" validate:"required,cron"`

	// OwnerEmail identifies the widget owner among event attendees.
	OwnerEmail string `yaml:"owner_email" json:"owner_email" validate:"omitempty,email"`

	// CacheDir holds the ICS HTTP cache; PreviewPath the captured PNG.
	CacheDir    string `yaml:"cache_dir" json:"cache_dir"`
	PreviewPath string `yaml:"preview_path" json:"preview_path"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics" validate:"dive"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultLocale      = "en-US"
	defaultRefreshCron = "*/15 * * * *"
	defaultNextDays    = 7
	defaultCacheDir    = "/var/lib/calwidget/ics-cache"
	defaultPreviewPath = "/var/lib/calwidget/preview.png"
)

// DefaultTheme mirrors the widget's stock dark look.
func DefaultTheme() Theme {
	return Theme{
		Background:             "#000000",
		TextColor:              "#ffffff",
		TodayTextColor:         "#000000",
		TodayCircleColor:       "#FFB800",
		EventCircleColor:       "#1E5C7B",
		WeekdayTextColor:       "#ffffff",
		WeekendLetterColor:     "#FFB800",
		WeekendLetterOpacity:   1,
		WeekendDateColor:       "#FFB800",
		TextColorPrevNextMonth: "#9e9e9e",
		EventDateTimeOpacity:   0.7,
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                  defaultListen,
		Timezone:                defaultTimezone,
		Locale:                  defaultLocale,
		LogLevel:                "info",
		ShowPrevMonth:           true,
		ShowNextMonth:           true,
		MarkToday:               true,
		ShowEventCircles:        true,
		CalFilter:               []string{},
		ShowAllDayEvents:        true,
		NextNumOfDays:           defaultNextDays,
		ShowEventLocation:       true,
		ShowEventTime:           true,
		ShowCalendarBullet:      true,
		ShowIconForAllDayEvents: true,
		CalendarApp:             "calshow",
		WidgetFamily:            "medium",
		WidgetType:              "cal",
		Theme:                   DefaultTheme(),
		RefreshCron:             defaultRefreshCron,
		CacheDir:                defaultCacheDir,
		PreviewPath:             defaultPreviewPath,
		ICS:                     []ICSConfig{},
	}
}

// Normalize fills empty string and zero numeric fields so that partially
// written files still behave. Booleans are left alone: Load applies the
// defaults before decoding, so an omitted boolean keeps its default.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Locale == "" {
		c.Locale = defaultLocale
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.NextNumOfDays <= 0 {
		c.NextNumOfDays = defaultNextDays
	}
	if c.CalendarApp == "" {
		c.CalendarApp = "calshow"
	}
	if c.WidgetFamily == "" {
		c.WidgetFamily = "medium"
	}
	if c.WidgetType == "" {
		c.WidgetType = "cal"
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.PreviewPath == "" {
		c.PreviewPath = defaultPreviewPath
	}
	if c.CalFilter == nil {
		c.CalFilter = []string{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			if c.ICS[i].Name != "" {
				c.ICS[i].ID = c.ICS[i].Name
			} else {
				c.ICS[i].ID = c.ICS[i].URL
			}
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints after normalization.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Location resolves Timezone, falling back to UTC. Validate has already
// rejected unknown zone names for loaded configs.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - decode YAML over the defaults
//   - normalize and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	return Parse(data)
}

// Parse decodes a YAML document over DefaultConfig.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calwidget-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
