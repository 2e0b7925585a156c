// Package calendar builds the month grid shown by the widget: seven
// weekday columns, a single-letter header per column, the days of the
// reference month and optional spillover days of the neighbouring months.
package calendar

import (
	"time"
)

// CellKind distinguishes header labels, day cells and blank placeholders.
type CellKind uint8

const (
	CellBlank CellKind = iota
	CellLabel
	CellDay
)

// blankText is what a blank placeholder renders as.
const blankText = " "

// Cell is one slot of a weekday column.
type Cell struct {
	Kind  CellKind
	Label string  // set for CellLabel
	Key   DateKey // set for CellDay
}

// LabelCell returns a header cell showing text.
func LabelCell(text string) Cell { return Cell{Kind: CellLabel, Label: text} }

// DayCell returns the cell for day of the zero-based month.
func DayCell(month, day int) Cell {
	return Cell{Kind: CellDay, Key: DateKey{Month: month, Day: day}}
}

// BlankCell returns a placeholder for a slot with no date.
func BlankCell() Cell { return Cell{Kind: CellBlank} }

// IsDay reports whether the cell carries a date.
func (c Cell) IsDay() bool { return c.Kind == CellDay }

// String renders the cell as the widget's wire form: the header text, a
// single space for blanks, or "month/day".
func (c Cell) String() string {
	switch c.Kind {
	case CellLabel:
		return c.Label
	case CellDay:
		return c.Key.String()
	default:
		return blankText
	}
}

// MarshalText encodes the cell as its String form.
func (c Cell) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Column is the sequence of cells of one weekday. Index 0 is the header.
type Column []Cell

// Grid is column-major: Grid[i] is the i-th weekday in display order.
type Grid [7]Column

// Rows returns the common column length, header row included.
func (g Grid) Rows() int {
	return g.longest()
}

// Cell returns the cell at (col, row), or a blank when out of range.
func (g Grid) Cell(col, row int) Cell {
	if col < 0 || col >= len(g) || row < 0 || row >= len(g[col]) {
		return BlankCell()
	}
	return g[col][row]
}

func (g Grid) longest() int {
	n := 0
	for _, c := range g {
		if len(c) > n {
			n = len(c)
		}
	}
	return n
}

// Options controls grid construction.
type Options struct {
	Locale            string
	ShowPrevMonth     bool
	ShowNextMonth     bool
	StartWeekOnSunday bool
}

// GridResult is the built grid plus the number of real spillover days
// placed on each side. The event density window is derived from these
// counts, so they count only day cells, never blank placeholders.
type GridResult struct {
	Grid              Grid
	DaysFromPrevMonth int
	DaysFromNextMonth int
}

// lookaheadRowThreshold is the product rule that guarantees a row of
// next-month days: when next-month display is on and the longest column
// (header included) is shorter than this, one more row is added before
// padding. Only a four-week month reaches it.
const lookaheadRowThreshold = 6

// Builder assembles month grids. It is safe for concurrent use as long as
// the namer is.
type Builder struct {
	namer WeekdayNamer
}

// NewBuilder returns a Builder that takes weekday labels from namer.
func NewBuilder(namer WeekdayNamer) *Builder {
	return &Builder{namer: namer}
}

// Build lays out ref's month.
func (b *Builder) Build(ref time.Time, opts Options) (GridResult, error) {
	var res GridResult

	current := MonthBoundaries(ref)
	prev := MonthBoundaries(MonthOffset(ref, -1))
	next := MonthOffset(ref, 1)

	labels, err := WeekdayLabels(b.namer, opts.Locale, opts.StartWeekOnSunday)
	if err != nil {
		return res, err
	}

	var g Grid
	for i := range g {
		g[i] = Column{LabelCell(labels[i])}
	}

	lead := LeadingSlots(current.First.Weekday(), opts.StartWeekOnSunday)
	prevMonth := KeyOf(prev.Last).Month
	prevLast := prev.Last.Day()
	for i := 0; i < lead; i++ {
		if opts.ShowPrevMonth {
			g[i] = append(g[i], DayCell(prevMonth, prevLast-lead+1+i))
			res.DaysFromPrevMonth++
		} else {
			g[i] = append(g[i], BlankCell())
		}
	}

	col := lead
	month := KeyOf(ref).Month
	for day := 1; day <= current.Last.Day(); day++ {
		g[col] = append(g[col], DayCell(month, day))
		col = (col + 1) % len(g)
	}

	rows := g.longest()
	if opts.ShowNextMonth && rows < lookaheadRowThreshold {
		rows++
	}

	nextMonth := KeyOf(next).Month
	for short := countShort(g, rows); short > 0; col = (col + 1) % len(g) {
		if len(g[col]) >= rows {
			continue
		}
		if opts.ShowNextMonth {
			res.DaysFromNextMonth++
			g[col] = append(g[col], DayCell(nextMonth, res.DaysFromNextMonth))
		} else {
			g[col] = append(g[col], BlankCell())
		}
		short--
	}

	res.Grid = g
	return res, nil
}

// LeadingSlots is the number of slots in the first week that precede day 1
// of a month whose first day falls on first.
func LeadingSlots(first time.Weekday, sundayFirst bool) int {
	if sundayFirst {
		return int(first)
	}
	return (int(first) + 6) % 7
}

func countShort(g Grid, rows int) int {
	n := 0
	for _, c := range g {
		n += rows - len(c)
	}
	return n
}
