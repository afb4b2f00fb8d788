package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors surfaced by repositories when Postgres constraints act
// as the second-line race guard behind the application-level checks.
var (
	// ErrSlotOverlap is returned when the schedule_slots exclusion
	// constraint rejects an overlapping interval that slipped past the
	// application-level conflict check.
	ErrSlotOverlap = errors.New("schedule slot overlaps an existing slot")

	// ErrDuplicateDayRecord is returned when the (student_id, date)
	// uniqueness constraint rejects a second day-level record.
	ErrDuplicateDayRecord = errors.New("day attendance record already exists")

	// ErrNoRowsAffected is returned by updates that matched nothing.
	ErrNoRowsAffected = errors.New("no rows affected")
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

func isConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pgUniqueViolation || pqErr.Code == pgExclusionViolation
}
