package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedwarden/attendance-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func conflictRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"slot_id", "subject_id", "subject_name", "teacher_id", "teacher_name", "section_id", "day_of_week", "start_minute", "end_minute"})
}

func TestListByTeacherAndDay(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	rows := conflictRows().
		AddRow("slot-1", "subj-1", "Mathematics", "teacher-1", "Reyes", nil, "MONDAY", 540, 600)
	mock.ExpectQuery("SELECT .* FROM schedule_slots ss").
		WithArgs("teacher-1", models.Monday, "").
		WillReturnRows(rows)

	conflicts, err := repo.ListByTeacherAndDay(context.Background(), "teacher-1", models.Monday, "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Mathematics", conflicts[0].SubjectName)
	assert.Equal(t, models.TimeOfDay(540), conflicts[0].StartMinute)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBySectionAndDayExcludesSlot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectQuery("SELECT .* FROM schedule_slots ss").
		WithArgs("section-1", models.Friday, "slot-3").
		WillReturnRows(conflictRows())

	conflicts, err := repo.ListBySectionAndDay(context.Background(), "section-1", models.Friday, "slot-3")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec("INSERT INTO schedule_slots").WillReturnResult(sqlmock.NewResult(1, 1))

	slot := &models.ScheduleSlot{
		TeacherID:    "teacher-1",
		SubjectID:    "subj-1",
		DayOfWeek:    models.Monday,
		StartMinute:  540,
		EndMinute:    600,
		GraceMinutes: 15,
	}
	err := repo.Create(context.Background(), slot)
	require.NoError(t, err)
	assert.NotEmpty(t, slot.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleCreateExclusionViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec("INSERT INTO schedule_slots").
		WillReturnError(&pq.Error{Code: "23P01"})

	err := repo.Create(context.Background(), &models.ScheduleSlot{TeacherID: "teacher-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSlotOverlap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleUpdateExclusionViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec("UPDATE schedule_slots").
		WillReturnError(&pq.Error{Code: "23P01"})

	err := repo.Update(context.Background(), &models.ScheduleSlot{ID: "slot-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSlotOverlap))
}

func TestScheduleFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "section_id", "subject_id", "day_of_week", "start_minute", "end_minute", "grace_minutes", "created_at", "updated_at"}).
		AddRow("slot-1", "teacher-1", nil, "subj-1", "MONDAY", 540, 600, 15, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, teacher_id, section_id, subject_id, day_of_week, start_minute, end_minute, grace_minutes, created_at, updated_at FROM schedule_slots WHERE id = $1")).
		WithArgs("slot-1").
		WillReturnRows(rows)

	slot, err := repo.FindByID(context.Background(), "slot-1")
	require.NoError(t, err)
	assert.Equal(t, models.Monday, slot.DayOfWeek)
	assert.Nil(t, slot.SectionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
