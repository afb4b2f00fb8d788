package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/twistedwarden/attendance-api/internal/models"
)

const subjectColumns = "id, student_id, subject_id, date, status, validated_by, created_at, updated_at"

// SubjectAttendanceRepository handles per-subject outcomes.
type SubjectAttendanceRepository struct {
	db *sqlx.DB
}

// NewSubjectAttendanceRepository constructs the repository.
func NewSubjectAttendanceRepository(db *sqlx.DB) *SubjectAttendanceRepository {
	return &SubjectAttendanceRepository{db: db}
}

// UpsertGuarded inserts or updates the (student, subject, date) row in a
// single statement, leaving EXCUSED and ABSENT rows untouched. The guard
// lives in SQL so concurrent writers cannot race past a read-then-write.
// Returns the stored row and false when the guard suppressed the write.
func (r *SubjectAttendanceRepository) UpsertGuarded(ctx context.Context, rec *models.SubjectAttendance) (*models.SubjectAttendance, bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO subject_attendance (id, student_id, subject_id, date, status, validated_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, subject_id, date)
DO UPDATE SET status = EXCLUDED.status, validated_by = EXCLUDED.validated_by, updated_at = EXCLUDED.updated_at
WHERE subject_attendance.status NOT IN ('EXCUSED', 'ABSENT')
RETURNING %s`, subjectColumns)
	var stored models.SubjectAttendance
	err := r.db.GetContext(ctx, &stored, query, rec.ID, rec.StudentID, rec.SubjectID, rec.Date, rec.Status, rec.ValidatedBy, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("upsert subject attendance: %w", err)
	}
	return &stored, true, nil
}

// Override unconditionally sets the row's status. Reserved for human
// reviewers; the scan processor must use UpsertGuarded.
func (r *SubjectAttendanceRepository) Override(ctx context.Context, rec *models.SubjectAttendance) (*models.SubjectAttendance, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO subject_attendance (id, student_id, subject_id, date, status, validated_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, subject_id, date)
DO UPDATE SET status = EXCLUDED.status, validated_by = EXCLUDED.validated_by, updated_at = EXCLUDED.updated_at
RETURNING %s`, subjectColumns)
	var stored models.SubjectAttendance
	if err := r.db.GetContext(ctx, &stored, query, rec.ID, rec.StudentID, rec.SubjectID, rec.Date, rec.Status, rec.ValidatedBy, rec.CreatedAt, rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("override subject attendance: %w", err)
	}
	return &stored, nil
}

// ListByStudentAndDate returns a student's subject outcomes for a date.
func (r *SubjectAttendanceRepository) ListByStudentAndDate(ctx context.Context, studentID string, date time.Time) ([]models.SubjectAttendance, error) {
	query := fmt.Sprintf("SELECT %s FROM subject_attendance WHERE student_id = $1 AND date = $2 ORDER BY subject_id ASC", subjectColumns)
	var rows []models.SubjectAttendance
	if err := r.db.SelectContext(ctx, &rows, query, studentID, date); err != nil {
		return nil, fmt.Errorf("list subject attendance: %w", err)
	}
	return rows, nil
}
