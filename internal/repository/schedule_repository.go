package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/twistedwarden/attendance-api/internal/models"
)

const slotColumns = "id, teacher_id, section_id, subject_id, day_of_week, start_minute, end_minute, grace_minutes, created_at, updated_at"

const conflictColumns = `ss.id AS slot_id, ss.subject_id, sub.name AS subject_name, ss.teacher_id, t.full_name AS teacher_name,
ss.section_id, ss.day_of_week, ss.start_minute, ss.end_minute`

// ScheduleRepository provides persistence for schedule slots.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// FindByID loads a slot by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_slots WHERE id = $1", slotColumns)
	var slot models.ScheduleSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListByTeacherAndDay returns all of a teacher's slots on a day, joined
// with subject and teacher names for conflict reporting. excludeID skips
// the slot being updated.
func (r *ScheduleRepository) ListByTeacherAndDay(ctx context.Context, teacherID string, day models.DayOfWeek, excludeID string) ([]models.ScheduleConflict, error) {
	query := fmt.Sprintf(`SELECT %s
FROM schedule_slots ss
JOIN subjects sub ON sub.id = ss.subject_id
JOIN teachers t ON t.id = ss.teacher_id
WHERE ss.teacher_id = $1 AND ss.day_of_week = $2 AND ($3 = '' OR ss.id <> $3)`, conflictColumns)
	var rows []models.ScheduleConflict
	if err := r.db.SelectContext(ctx, &rows, query, teacherID, day, excludeID); err != nil {
		return nil, fmt.Errorf("list slots by teacher and day: %w", err)
	}
	return rows, nil
}

// ListBySectionAndDay returns all of a section's slots on a day with the
// same join as ListByTeacherAndDay.
func (r *ScheduleRepository) ListBySectionAndDay(ctx context.Context, sectionID string, day models.DayOfWeek, excludeID string) ([]models.ScheduleConflict, error) {
	query := fmt.Sprintf(`SELECT %s
FROM schedule_slots ss
JOIN subjects sub ON sub.id = ss.subject_id
JOIN teachers t ON t.id = ss.teacher_id
WHERE ss.section_id = $1 AND ss.day_of_week = $2 AND ($3 = '' OR ss.id <> $3)`, conflictColumns)
	var rows []models.ScheduleConflict
	if err := r.db.SelectContext(ctx, &rows, query, sectionID, day, excludeID); err != nil {
		return nil, fmt.Errorf("list slots by section and day: %w", err)
	}
	return rows, nil
}

// ListByTeacher returns every slot taught by a teacher ordered by day and
// start time.
func (r *ScheduleRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_slots WHERE teacher_id = $1 ORDER BY day_of_week ASC, start_minute ASC", slotColumns)
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, teacherID); err != nil {
		return nil, fmt.Errorf("list slots by teacher: %w", err)
	}
	return slots, nil
}

// Create stores a new slot. Overlap rejections from the exclusion
// constraint surface as ErrSlotOverlap.
func (r *ScheduleRepository) Create(ctx context.Context, slot *models.ScheduleSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO schedule_slots (id, teacher_id, section_id, subject_id, day_of_week, start_minute, end_minute, grace_minutes, created_at, updated_at)
VALUES (:id, :teacher_id, :section_id, :subject_id, :day_of_week, :start_minute, :end_minute, :grace_minutes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("create schedule slot: %w", ErrSlotOverlap)
		}
		return fmt.Errorf("create schedule slot: %w", err)
	}
	return nil
}

// Update modifies an existing slot with the same overlap mapping as Create.
func (r *ScheduleRepository) Update(ctx context.Context, slot *models.ScheduleSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedule_slots SET teacher_id = :teacher_id, section_id = :section_id, subject_id = :subject_id,
day_of_week = :day_of_week, start_minute = :start_minute, end_minute = :end_minute, grace_minutes = :grace_minutes, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("update schedule slot: %w", ErrSlotOverlap)
		}
		return fmt.Errorf("update schedule slot: %w", err)
	}
	return nil
}

// Delete removes a slot by id.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM schedule_slots WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete schedule slot: %w", err)
	}
	return nil
}
