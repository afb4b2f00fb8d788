package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedwarden/attendance-api/internal/models"
)

func dayRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "date", "time_in", "time_out", "validated_by", "created_at", "updated_at"})
}

func TestDayFindByStudentAndDateNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDayAttendanceRepository(db)

	mock.ExpectQuery("SELECT .* FROM day_attendance").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByStudentAndDate(context.Background(), "student-1", time.Now())
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestDayCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDayAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO day_attendance").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.DayAttendance{StudentID: "student-1", Date: time.Now(), TimeIn: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateDayRecord))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDayStampTimeOut(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDayAttendanceRepository(db)

	now := time.Now()
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	rows := dayRows().AddRow("day-1", "student-1", date, now.Add(-8*time.Hour), now, "device-1", now, now)
	mock.ExpectQuery("UPDATE day_attendance").
		WillReturnRows(rows)

	rec, err := repo.StampTimeOut(context.Background(), "student-1", date, now, "device-1")
	require.NoError(t, err)
	require.NotNil(t, rec.TimeOut)
	assert.Equal(t, "day-1", rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDayHistoryRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDayAttendanceRepository(db)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	rows := dayRows().
		AddRow("day-2", "student-1", from.AddDate(0, 0, 1), now, nil, "device-1", now, now).
		AddRow("day-1", "student-1", from, now, now, "device-1", now, now)
	mock.ExpectQuery("SELECT .* FROM day_attendance WHERE student_id").
		WithArgs("student-1", from, to).
		WillReturnRows(rows)

	recs, err := repo.History(context.Background(), "student-1", &from, &to)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
