package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedwarden/attendance-api/internal/models"
	"github.com/twistedwarden/attendance-api/internal/repository"
	appErrors "github.com/twistedwarden/attendance-api/pkg/errors"
)

type mockDayRepo struct {
	records    map[string]models.DayAttendance
	createErr  error
	stamped    []time.Time
	stampErr   error
}

func dayKey(studentID string, date time.Time) string {
	return studentID + ":" + date.Format("2006-01-02")
}

func (m *mockDayRepo) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.DayAttendance, error) {
	if r, ok := m.records[dayKey(studentID, date)]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDayRepo) Create(ctx context.Context, rec *models.DayAttendance) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.records == nil {
		m.records = make(map[string]models.DayAttendance)
	}
	rec.ID = "day-new"
	m.records[dayKey(rec.StudentID, rec.Date)] = *rec
	return nil
}

func (m *mockDayRepo) StampTimeOut(ctx context.Context, studentID string, date, at time.Time, validatedBy string) (*models.DayAttendance, error) {
	if m.stampErr != nil {
		return nil, m.stampErr
	}
	m.stamped = append(m.stamped, at)
	rec := m.records[dayKey(studentID, date)]
	rec.TimeOut = &at
	m.records[dayKey(studentID, date)] = rec
	return &rec, nil
}

func (m *mockDayRepo) History(ctx context.Context, studentID string, from, to *time.Time) ([]models.DayAttendance, error) {
	var out []models.DayAttendance
	for _, r := range m.records {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockSubjectRepo struct {
	existing   map[string]models.SubjectAttendance
	upserts    []models.SubjectAttendance
	upsertErr  map[string]error
	overridden *models.SubjectAttendance
}

func (m *mockSubjectRepo) UpsertGuarded(ctx context.Context, rec *models.SubjectAttendance) (*models.SubjectAttendance, bool, error) {
	if err, ok := m.upsertErr[rec.SubjectID]; ok {
		return nil, false, err
	}
	if current, ok := m.existing[rec.SubjectID]; ok && current.Status.Protected() {
		return nil, false, nil
	}
	if m.existing == nil {
		m.existing = make(map[string]models.SubjectAttendance)
	}
	m.existing[rec.SubjectID] = *rec
	m.upserts = append(m.upserts, *rec)
	return rec, true, nil
}

func (m *mockSubjectRepo) Override(ctx context.Context, rec *models.SubjectAttendance) (*models.SubjectAttendance, error) {
	m.overridden = rec
	return rec, nil
}

func (m *mockSubjectRepo) ListByStudentAndDate(ctx context.Context, studentID string, date time.Time) ([]models.SubjectAttendance, error) {
	var out []models.SubjectAttendance
	for _, r := range m.existing {
		out = append(out, r)
	}
	return out, nil
}

type mockStudents struct {
	students map[string]*models.Student
}

func (m *mockStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockDevices struct {
	devices map[string]*models.Device
}

func (m *mockDevices) FindBySerial(ctx context.Context, serial string) (*models.Device, error) {
	if d, ok := m.devices[serial]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

type mockSlotReader struct {
	slots []models.ScheduleSlot
	err   error
}

func (m *mockSlotReader) ListForStudentDay(ctx context.Context, studentID string, day models.DayOfWeek) ([]models.ScheduleSlot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.slots, nil
}

type mockNotifier struct {
	calls []models.ScanAction
}

func (m *mockNotifier) NotifyScan(ctx context.Context, student *models.Student, action models.ScanAction, at time.Time) {
	m.calls = append(m.calls, action)
}

// scanAt is 2025-06-02 (a Monday) at the given clock time.
func scanAt(hh, mm int) time.Time {
	return time.Date(2025, 6, 2, hh, mm, 0, 0, time.UTC)
}

func newScanFixture(slots []models.ScheduleSlot) (*AttendanceService, *mockDayRepo, *mockSubjectRepo, *mockNotifier) {
	days := &mockDayRepo{}
	subjects := &mockSubjectRepo{}
	notifier := &mockNotifier{}
	students := &mockStudents{students: map[string]*models.Student{
		"student-1": {ID: "student-1", FullName: "Juan Dela Cruz"},
	}}
	devices := &mockDevices{devices: map[string]*models.Device{
		"SN-01": {ID: "device-1", SerialNumber: "SN-01", Active: true},
	}}
	reader := &mockSlotReader{slots: slots}
	svc := NewAttendanceService(days, subjects, students, devices, reader, nil, notifier, nil, time.Minute, nil, nil)
	return svc, days, subjects, notifier
}

func mondaySlots() []models.ScheduleSlot {
	return []models.ScheduleSlot{
		{ID: "slot-math", SubjectID: "math", DayOfWeek: models.Monday, StartMinute: 480, EndMinute: 540, GraceMinutes: 15},    // 08:00-09:00
		{ID: "slot-sci", SubjectID: "science", DayOfWeek: models.Monday, StartMinute: 555, EndMinute: 615, GraceMinutes: 15},  // 09:15-10:15
		{ID: "slot-fil", SubjectID: "filipino", DayOfWeek: models.Monday, StartMinute: 780, EndMinute: 840, GraceMinutes: 15}, // 13:00-14:00
	}
}

func TestRecordScanFirstScanOnTime(t *testing.T) {
	svc, days, subjects, notifier := newScanFixture(mondaySlots())

	at := scanAt(8, 5)
	result, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01",
		StudentID:    "student-1",
		At:           &at,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ScanActionTimeIn, result.Action)
	require.NotNil(t, result.DayRecord)
	assert.Equal(t, at, result.DayRecord.TimeIn)
	assert.Nil(t, result.DayRecord.TimeOut)
	assert.Empty(t, days.stamped)

	// 08:05 is inside Math's grace window, and the later slots have not
	// started yet, so the whole day opens as present.
	assert.Equal(t, map[string]string{"math": "PRESENT", "science": "PRESENT", "filipino": "PRESENT"}, result.SubjectsSet)
	assert.Len(t, subjects.upserts, 3)
	assert.Equal(t, []models.ScanAction{models.ScanActionTimeIn}, notifier.calls)
}

func TestRecordScanLateArrival(t *testing.T) {
	svc, _, _, _ := newScanFixture(mondaySlots())

	at := scanAt(8, 30)
	result, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01",
		StudentID:    "student-1",
		At:           &at,
	})
	require.NoError(t, err)
	assert.Equal(t, "LATE", result.SubjectsSet["math"])
	assert.Equal(t, "PRESENT", result.SubjectsSet["science"])
}

func TestRecordScanArrivalAfterSlotEnded(t *testing.T) {
	svc, _, subjects, _ := newScanFixture(mondaySlots())

	at := scanAt(9, 5)
	result, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01",
		StudentID:    "student-1",
		At:           &at,
	})
	require.NoError(t, err)

	// Math already ended at 09:00, no record for it.
	assert.NotContains(t, result.SubjectsSet, "math")
	for _, u := range subjects.upserts {
		assert.NotEqual(t, "math", u.SubjectID)
	}
}

func TestRecordScanGraceBoundary(t *testing.T) {
	svc, _, _, _ := newScanFixture(mondaySlots())

	// Exactly start + grace still counts as present.
	at := scanAt(8, 15)
	result, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01",
		StudentID:    "student-1",
		At:           &at,
	})
	require.NoError(t, err)
	assert.Equal(t, "PRESENT", result.SubjectsSet["math"])
}

func TestRecordScanSecondScanMarksFutureSlotsAbsent(t *testing.T) {
	svc, days, _, notifier := newScanFixture(mondaySlots())

	firstAt := scanAt(8, 5)
	_, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01", StudentID: "student-1", At: &firstAt,
	})
	require.NoError(t, err)

	// Leaves at 08:50: Math (started 08:00) keeps its arrival status,
	// Science (09:15) and Filipino (13:00) have not started and go absent.
	secondAt := scanAt(8, 50)
	result, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01", StudentID: "student-1", At: &secondAt,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ScanActionTimeOut, result.Action)
	require.NotNil(t, result.DayRecord.TimeOut)
	assert.Equal(t, secondAt, *result.DayRecord.TimeOut)
	assert.Equal(t, map[string]string{"science": "ABSENT", "filipino": "ABSENT"}, result.SubjectsSet)
	assert.Len(t, days.stamped, 1)
	assert.Equal(t, []models.ScanAction{models.ScanActionTimeIn, models.ScanActionTimeOut}, notifier.calls)
}

func TestRecordScanRepeatedTimeOutLastWins(t *testing.T) {
	svc, days, _, _ := newScanFixture(nil)

	firstAt := scanAt(7, 45)
	_, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01", StudentID: "student-1", At: &firstAt,
	})
	require.NoError(t, err)

	for _, clock := range []time.Time{scanAt(12, 0), scanAt(16, 30)} {
		at := clock
		result, err := svc.RecordScan(context.Background(), RecordScanRequest{
			DeviceSerial: "SN-01", StudentID: "student-1", At: &at,
		})
		require.NoError(t, err)
		assert.Equal(t, models.ScanActionTimeOut, result.Action)
		assert.Equal(t, at, *result.DayRecord.TimeOut)
	}
	assert.Len(t, days.stamped, 2)
}

func TestRecordScanExcusedSurvivesCascade(t *testing.T) {
	svc, _, subjects, _ := newScanFixture(mondaySlots())
	subjects.existing = map[string]models.SubjectAttendance{
		"science": {SubjectID: "science", Status: models.AttendanceStatusExcused},
	}

	firstAt := scanAt(7, 45)
	_, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01", StudentID: "student-1", At: &firstAt,
	})
	require.NoError(t, err)

	secondAt := scanAt(8, 50)
	result, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01", StudentID: "student-1", At: &secondAt,
	})
	require.NoError(t, err)

	// The guard suppressed the absent write for the excused subject.
	assert.NotContains(t, result.SubjectsSet, "science")
	assert.Equal(t, models.AttendanceStatusExcused, subjects.existing["science"].Status)
	assert.Equal(t, "ABSENT", result.SubjectsSet["filipino"])
}

func TestRecordScanDuplicateCreateBecomesTimeOut(t *testing.T) {
	svc, days, _, _ := newScanFixture(nil)
	at := scanAt(8, 0)
	days.records = map[string]models.DayAttendance{}
	days.createErr = fmt.Errorf("insert day record: %w", repository.ErrDuplicateDayRecord)

	result, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01", StudentID: "student-1", At: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ScanActionTimeOut, result.Action)
	assert.Len(t, days.stamped, 1)
}

func TestRecordScanUnknownDevice(t *testing.T) {
	svc, _, _, notifier := newScanFixture(nil)

	_, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-99", StudentID: "student-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, notifier.calls)
}

func TestRecordScanUnknownStudent(t *testing.T) {
	svc, _, _, _ := newScanFixture(nil)

	_, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01", StudentID: "ghost",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRecordScanSubjectWriteFailureIsNonFatal(t *testing.T) {
	svc, _, subjects, notifier := newScanFixture(mondaySlots())
	subjects.upsertErr = map[string]error{"math": errors.New("write timeout")}

	at := scanAt(8, 5)
	result, err := svc.RecordScan(context.Background(), RecordScanRequest{
		DeviceSerial: "SN-01", StudentID: "student-1", At: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ScanActionTimeIn, result.Action)
	assert.Equal(t, 1, result.SubjectErrors)
	assert.Len(t, notifier.calls, 1)
}

func TestOverrideSubjectReplacesProtected(t *testing.T) {
	svc, _, subjects, _ := newScanFixture(nil)

	rec, err := svc.OverrideSubject(context.Background(), OverrideRequest{
		StudentID:   "student-1",
		SubjectID:   "science",
		Date:        "2025-06-02",
		Status:      "PRESENT",
		ValidatedBy: "reviewer-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, rec.Status)
	require.NotNil(t, subjects.overridden)
	assert.Equal(t, "reviewer-1", subjects.overridden.ValidatedBy)
}

func TestOverrideSubjectRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _ := newScanFixture(nil)

	_, err := svc.OverrideSubject(context.Background(), OverrideRequest{
		StudentID:   "student-1",
		SubjectID:   "science",
		Date:        "2025-06-02",
		Status:      "MAYBE",
		ValidatedBy: "reviewer-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDayRecordNotFound(t *testing.T) {
	svc, _, _, _ := newScanFixture(nil)

	_, err := svc.DayRecord(context.Background(), "student-1", scanAt(8, 0))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
