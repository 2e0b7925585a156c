package calendar

import "time"

// InReferenceMonth reports whether the cell at (col, row) is a day of ref's
// month. Headers, blanks and spillover days are not.
func (g Grid) InReferenceMonth(col, row int, ref time.Time) bool {
	c := g.Cell(col, row)
	return c.IsDay() && c.Key.Month == KeyOf(ref).Month
}

// IsWeekend reports whether display column col holds Saturday or Sunday.
func IsWeekend(col int, sundayFirst bool) bool {
	if sundayFirst {
		return col == 0 || col == 6
	}
	return col > 4
}
