package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedwarden/attendance-api/internal/models"
)

func subjectRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "subject_id", "date", "status", "validated_by", "created_at", "updated_at"})
}

func TestUpsertGuardedApplied(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectAttendanceRepository(db)

	now := time.Now()
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	rows := subjectRows().AddRow("sa-1", "student-1", "subj-1", date, "PRESENT", "device-1", now, now)
	mock.ExpectQuery("INSERT INTO subject_attendance").
		WillReturnRows(rows)

	stored, applied, err := repo.UpsertGuarded(context.Background(), &models.SubjectAttendance{
		StudentID: "student-1",
		SubjectID: "subj-1",
		Date:      date,
		Status:    models.AttendanceStatusPresent,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.AttendanceStatusPresent, stored.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertGuardedSuppressedByProtectedStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectAttendanceRepository(db)

	// The conditional DO UPDATE matched a protected row, so the statement
	// returns nothing.
	mock.ExpectQuery("INSERT INTO subject_attendance").
		WillReturnError(sql.ErrNoRows)

	stored, applied, err := repo.UpsertGuarded(context.Background(), &models.SubjectAttendance{
		StudentID: "student-1",
		SubjectID: "subj-1",
		Date:      time.Now(),
		Status:    models.AttendanceStatusAbsent,
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Nil(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverrideReplacesAnyStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectAttendanceRepository(db)

	now := time.Now()
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	rows := subjectRows().AddRow("sa-1", "student-1", "subj-1", date, "PRESENT", "reviewer-1", now, now)
	mock.ExpectQuery("INSERT INTO subject_attendance").
		WillReturnRows(rows)

	stored, err := repo.Override(context.Background(), &models.SubjectAttendance{
		StudentID:   "student-1",
		SubjectID:   "subj-1",
		Date:        date,
		Status:      models.AttendanceStatusPresent,
		ValidatedBy: "reviewer-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "reviewer-1", stored.ValidatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStudentAndDate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectAttendanceRepository(db)

	now := time.Now()
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	rows := subjectRows().
		AddRow("sa-1", "student-1", "subj-1", date, "PRESENT", "device-1", now, now).
		AddRow("sa-2", "student-1", "subj-2", date, "ABSENT", "device-1", now, now)
	mock.ExpectQuery("SELECT .* FROM subject_attendance").
		WithArgs("student-1", date).
		WillReturnRows(rows)

	recs, err := repo.ListByStudentAndDate(context.Background(), "student-1", date)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
