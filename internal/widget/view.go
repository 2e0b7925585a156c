// Package widget assembles the month grid, the event heatmap and the agenda
// into a single view model that the web layer renders.
package widget

import (
	"time"

	"calwidget/internal/agenda"
	"calwidget/internal/calendar"
	"calwidget/internal/config"
	"calwidget/internal/density"
)

// Header is a weekday letter above a grid column.
type Header struct {
	Text    string  `json:"text"`
	Weekend bool    `json:"weekend"`
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
}

// Cell is one grid slot below the header row.
type Cell struct {
	Text string `json:"text"`
	// Key is nil for blank cells.
	Key     *calendar.DateKey `json:"key,omitempty"`
	Day     bool              `json:"day"`
	Weekend bool              `json:"weekend"`
	InMonth bool              `json:"in_month"`
	Today   bool              `json:"today"`
	// Circle is drawn behind the number with the given opacity.
	CircleColor string  `json:"circle_color,omitempty"`
	Opacity     float64 `json:"opacity"`
	FullSize    bool    `json:"full_size"`
	TextColor   string  `json:"text_color"`
	Bold        bool    `json:"bold,omitempty"`
	Link        string  `json:"link,omitempty"`
}

// Grid is the month grid in row-major order.
type Grid struct {
	Month   string   `json:"month"`
	Headers []Header `json:"headers"`
	Rows    [][]Cell `json:"rows"`

	DaysFromPrevMonth int `json:"days_from_prev_month"`
	DaysFromNextMonth int `json:"days_from_next_month"`

	Density density.Result `json:"density"`
}

// Group is an agenda day group with its tap target.
type Group struct {
	agenda.Group
	Link string `json:"link,omitempty"`
}

// Empty is shown instead of the agenda when nothing is upcoming.
type Empty struct {
	Day     string `json:"day"`
	Weekday string `json:"weekday"`
}

// View is everything needed to draw one widget.
type View struct {
	Family  string `json:"family"`
	Type    string `json:"type"`
	Flipped bool   `json:"flipped"`

	Now  time.Time `json:"now"`
	Link string    `json:"link,omitempty"`

	Theme config.Theme `json:"theme"`

	// Calendar is nil when the widget shows only the agenda.
	Calendar *Grid `json:"calendar,omitempty"`

	// Agenda is the main event list; Secondary is the list under the grid
	// on large widgets.
	ShowAgenda bool    `json:"show_agenda"`
	Agenda     []Group `json:"agenda"`
	Secondary  []Group `json:"secondary,omitempty"`
	Empty      *Empty  `json:"empty,omitempty"`
}
