package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/twistedwarden/attendance-api/internal/models"
)

// StudentScheduleRepository owns the student-to-slot link table.
type StudentScheduleRepository struct {
	db *sqlx.DB
}

// NewStudentScheduleRepository constructs the repository.
func NewStudentScheduleRepository(db *sqlx.DB) *StudentScheduleRepository {
	return &StudentScheduleRepository{db: db}
}

// Link ties a student to a slot. Re-linking is a no-op.
func (r *StudentScheduleRepository) Link(ctx context.Context, studentID, slotID string) error {
	const query = `INSERT INTO student_schedules (student_id, schedule_slot_id, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (student_id, schedule_slot_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, studentID, slotID); err != nil {
		return fmt.Errorf("link student schedule: %w", err)
	}
	return nil
}

// Unlink removes the tie between a student and a slot.
func (r *StudentScheduleRepository) Unlink(ctx context.Context, studentID, slotID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM student_schedules WHERE student_id = $1 AND schedule_slot_id = $2", studentID, slotID); err != nil {
		return fmt.Errorf("unlink student schedule: %w", err)
	}
	return nil
}

// ListForStudentDay returns the slots a student is expected to attend on
// the given day of week, ordered by start time.
func (r *StudentScheduleRepository) ListForStudentDay(ctx context.Context, studentID string, day models.DayOfWeek) ([]models.ScheduleSlot, error) {
	const query = `SELECT ss.id, ss.teacher_id, ss.section_id, ss.subject_id, ss.day_of_week, ss.start_minute, ss.end_minute, ss.grace_minutes, ss.created_at, ss.updated_at
FROM schedule_slots ss
JOIN student_schedules link ON link.schedule_slot_id = ss.id
WHERE link.student_id = $1 AND ss.day_of_week = $2
ORDER BY ss.start_minute ASC`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, studentID, day); err != nil {
		return nil, fmt.Errorf("list student day slots: %w", err)
	}
	return slots, nil
}
