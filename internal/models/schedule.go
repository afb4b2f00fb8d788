package models

import (
	"fmt"
	"time"
)

// DayOfWeek is the closed set of weekday values shared by the conflict
// checker and the scan processor.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

// Valid returns true when the value is one of the seven days.
func (d DayOfWeek) Valid() bool {
	switch d {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return true
	default:
		return false
	}
}

// DayOfWeekFromTime maps a time.Time to its DayOfWeek.
func DayOfWeekFromTime(t time.Time) DayOfWeek {
	switch t.Weekday() {
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return Sunday
	}
}

// TimeOfDay is a minute-resolution time of day stored as minutes since
// midnight.
type TimeOfDay int

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(raw, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", raw, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("parse time of day %q: out of range", raw)
	}
	return TimeOfDay(hh*60 + mm), nil
}

// TimeOfDayFromTime truncates a timestamp to its minute of the day.
func TimeOfDayFromTime(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// String renders the value as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Valid reports whether the value falls within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < 24*60
}

// Overlaps reports whether two half-open time-of-day intervals intersect.
// Intervals that share only a boundary point do not overlap. Both
// intervals are assumed already validated (start < end) by the caller.
func Overlaps(startA, endA, startB, endB TimeOfDay) bool {
	return startA < endB && startB < endA
}

// ScheduleSlot is a recurring weekly teaching block.
type ScheduleSlot struct {
	ID           string    `db:"id" json:"id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	SectionID    *string   `db:"section_id" json:"section_id,omitempty"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	DayOfWeek    DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartMinute  TimeOfDay `db:"start_minute" json:"start_minute"`
	EndMinute    TimeOfDay `db:"end_minute" json:"end_minute"`
	GraceMinutes int       `db:"grace_minutes" json:"grace_minutes"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// LatestOnTime returns the last minute at which a scan still counts as
// on-time for this slot.
func (s ScheduleSlot) LatestOnTime() TimeOfDay {
	return s.StartMinute + TimeOfDay(s.GraceMinutes)
}

// StudentScheduleLink ties a student to a slot they are expected to attend.
type StudentScheduleLink struct {
	StudentID      string    `db:"student_id" json:"student_id"`
	ScheduleSlotID string    `db:"schedule_slot_id" json:"schedule_slot_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ScheduleConflict describes one existing slot colliding with a candidate.
type ScheduleConflict struct {
	SlotID      string    `db:"slot_id" json:"slot_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	TeacherName string    `db:"teacher_name" json:"teacher_name"`
	SectionID   *string   `db:"section_id" json:"section_id,omitempty"`
	DayOfWeek   DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartMinute TimeOfDay `db:"start_minute" json:"start_minute"`
	EndMinute   TimeOfDay `db:"end_minute" json:"end_minute"`
}

// TimeRange renders the conflict's interval for user-facing messages.
func (c ScheduleConflict) TimeRange() string {
	return c.StartMinute.String() + "-" + c.EndMinute.String()
}

// ScheduleConflictError is returned when a candidate slot collides with
// existing slots on the teacher or section axis. The message enumerates
// each conflicting slot because it is surfaced to the end user.
type ScheduleConflictError struct {
	Message          string             `json:"message"`
	TeacherConflicts []ScheduleConflict `json:"teacher_conflicts,omitempty"`
	SectionConflicts []ScheduleConflict `json:"section_conflicts,omitempty"`
}

// Error implements the error interface.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
