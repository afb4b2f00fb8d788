package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/twistedwarden/attendance-api/internal/models"
)

const dayColumns = "id, student_id, date, time_in, time_out, validated_by, created_at, updated_at"

// DayAttendanceRepository handles the single day-level record per
// student per date.
type DayAttendanceRepository struct {
	db *sqlx.DB
}

// NewDayAttendanceRepository constructs the repository.
func NewDayAttendanceRepository(db *sqlx.DB) *DayAttendanceRepository {
	return &DayAttendanceRepository{db: db}
}

// FindByStudentAndDate returns the day record for a student, or
// sql.ErrNoRows when the student has not scanned yet.
func (r *DayAttendanceRepository) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.DayAttendance, error) {
	query := fmt.Sprintf("SELECT %s FROM day_attendance WHERE student_id = $1 AND date = $2", dayColumns)
	var rec models.DayAttendance
	if err := r.db.GetContext(ctx, &rec, query, studentID, date); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts the first scan of the day. A concurrent first scan that
// already committed surfaces as ErrDuplicateDayRecord so the caller can
// retry as a time-out update.
func (r *DayAttendanceRepository) Create(ctx context.Context, rec *models.DayAttendance) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	const query = `INSERT INTO day_attendance (id, student_id, date, time_in, time_out, validated_by, created_at, updated_at)
VALUES (:id, :student_id, :date, :time_in, :time_out, :validated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("create day attendance: %w", ErrDuplicateDayRecord)
		}
		return fmt.Errorf("create day attendance: %w", err)
	}
	return nil
}

// StampTimeOut sets (or re-stamps; last scan wins) the day record's
// time_out and returns the updated row.
func (r *DayAttendanceRepository) StampTimeOut(ctx context.Context, studentID string, date time.Time, at time.Time, validatedBy string) (*models.DayAttendance, error) {
	query := fmt.Sprintf(`UPDATE day_attendance
SET time_out = $3, validated_by = $4, updated_at = $5
WHERE student_id = $1 AND date = $2
RETURNING %s`, dayColumns)
	var rec models.DayAttendance
	if err := r.db.GetContext(ctx, &rec, query, studentID, date, at, validatedBy, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &rec, nil
}

// History returns a student's day records within an optional date range,
// most recent first.
func (r *DayAttendanceRepository) History(ctx context.Context, studentID string, from, to *time.Time) ([]models.DayAttendance, error) {
	where := []string{"student_id = $1"}
	args := []interface{}{studentID}
	if from != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf("SELECT %s FROM day_attendance WHERE %s ORDER BY date DESC", dayColumns, strings.Join(where, " AND "))
	var rows []models.DayAttendance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("day attendance history: %w", err)
	}
	return rows, nil
}
