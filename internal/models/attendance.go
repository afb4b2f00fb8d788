package models

import "time"

// AttendanceStatus is the closed set of per-subject outcomes.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusExcused, AttendanceStatusAbsent:
		return true
	default:
		return false
	}
}

// Protected reports whether the status must never be replaced by the
// scan processor once set.
func (s AttendanceStatus) Protected() bool {
	return s == AttendanceStatusExcused || s == AttendanceStatusAbsent
}

// ScanAction tags what a biometric scan resolved to for the day.
type ScanAction string

const (
	ScanActionTimeIn  ScanAction = "TIME_IN"
	ScanActionTimeOut ScanAction = "TIME_OUT"
)

// DayAttendance is the single day-level record per student per date,
// holding the first and last scan of the day.
type DayAttendance struct {
	ID          string     `db:"id" json:"id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	Date        time.Time  `db:"date" json:"date"`
	TimeIn      time.Time  `db:"time_in" json:"time_in"`
	TimeOut     *time.Time `db:"time_out" json:"time_out,omitempty"`
	ValidatedBy string     `db:"validated_by" json:"validated_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// SubjectAttendance is one student's outcome for one subject on one date.
type SubjectAttendance struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	SubjectID   string           `db:"subject_id" json:"subject_id"`
	Date        time.Time        `db:"date" json:"date"`
	Status      AttendanceStatus `db:"status" json:"status"`
	ValidatedBy string           `db:"validated_by" json:"validated_by"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// ScanResult summarises what a processed scan did.
type ScanResult struct {
	Action        ScanAction        `json:"action"`
	DayRecord     *DayAttendance    `json:"day_record"`
	SubjectsSet   map[string]string `json:"subjects_set,omitempty"`
	SubjectErrors int               `json:"-"`
}
