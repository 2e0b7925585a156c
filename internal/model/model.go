package model

import (
	"strings"
	"time"
)

// Attendance is the widget owner's own participation status on an event.
type Attendance string

const (
	AttendanceNone        Attendance = ""
	AttendanceNeedsAction Attendance = "needs-action"
	AttendanceAccepted    Attendance = "accepted"
	AttendanceTentative   Attendance = "tentative"
	AttendanceDeclined    Attendance = "declined"
)

// ParseAttendance maps an iCalendar PARTSTAT value to an Attendance.
func ParseAttendance(partstat string) Attendance {
	switch strings.ToUpper(strings.TrimSpace(partstat)) {
	case "NEEDS-ACTION":
		return AttendanceNeedsAction
	case "ACCEPTED":
		return AttendanceAccepted
	case "TENTATIVE":
		return AttendanceTentative
	case "DECLINED":
		return AttendanceDeclined
	default:
		return AttendanceNone
	}
}

// Event is a single concrete occurrence delivered by an event source,
// after recurrence expansion and conversion to the display timezone.
type Event struct {
	SourceID string // calendar source ID from config
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies one occurrence of a recurring event.
	InstanceKey string

	Title       string
	Calendar    string // calendar title, matched against the calendar filter
	Description string
	Location    string

	AllDay bool

	// Start / End are in the display timezone. For all-day events both
	// are local midnights and End is exclusive.
	Start time.Time
	End   time.Time

	Attendance Attendance
}
