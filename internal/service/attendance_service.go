package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/twistedwarden/attendance-api/internal/models"
	"github.com/twistedwarden/attendance-api/internal/repository"
	appErrors "github.com/twistedwarden/attendance-api/pkg/errors"
)

type dayAttendanceRepository interface {
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.DayAttendance, error)
	Create(ctx context.Context, rec *models.DayAttendance) error
	StampTimeOut(ctx context.Context, studentID string, date, at time.Time, validatedBy string) (*models.DayAttendance, error)
	History(ctx context.Context, studentID string, from, to *time.Time) ([]models.DayAttendance, error)
}

type subjectAttendanceRepository interface {
	UpsertGuarded(ctx context.Context, rec *models.SubjectAttendance) (*models.SubjectAttendance, bool, error)
	Override(ctx context.Context, rec *models.SubjectAttendance) (*models.SubjectAttendance, error)
	ListByStudentAndDate(ctx context.Context, studentID string, date time.Time) ([]models.SubjectAttendance, error)
}

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type deviceRegistry interface {
	FindBySerial(ctx context.Context, serial string) (*models.Device, error)
}

type studentScheduleReader interface {
	ListForStudentDay(ctx context.Context, studentID string, day models.DayOfWeek) ([]models.ScheduleSlot, error)
}

type scanNotifier interface {
	NotifyScan(ctx context.Context, student *models.Student, action models.ScanAction, at time.Time)
}

type slotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RecordScanRequest is one tap of an ID card at a gate device.
type RecordScanRequest struct {
	DeviceSerial string     `json:"device_serial" validate:"required"`
	StudentID    string     `json:"student_id" validate:"required"`
	At           *time.Time `json:"at"`
	ValidatedBy  string     `json:"validated_by"`
}

// OverrideRequest is a manual correction of one subject status by a
// reviewer.
type OverrideRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	SubjectID   string `json:"subject_id" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Status      string `json:"status" validate:"required"`
	ValidatedBy string `json:"validated_by" validate:"required"`
}

// AttendanceService turns gate scans into day records and per-subject
// statuses.
type AttendanceService struct {
	days      dayAttendanceRepository
	subjects  subjectAttendanceRepository
	students  studentDirectory
	devices   deviceRegistry
	schedules studentScheduleReader
	cache     slotCache
	notifier  scanNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewAttendanceService instantiates AttendanceService.
func NewAttendanceService(days dayAttendanceRepository, subjects subjectAttendanceRepository, students studentDirectory, devices deviceRegistry, schedules studentScheduleReader, cache slotCache, notifier scanNotifier, metrics *MetricsService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AttendanceService{
		days:      days,
		subjects:  subjects,
		students:  students,
		devices:   devices,
		schedules: schedules,
		cache:     cache,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// RecordScan applies one scan. The first scan of the student's day is a
// time-in, every later scan is a time-out; a repeated time-out simply
// re-stamps the departure, last one wins.
func (s *AttendanceService) RecordScan(ctx context.Context, req RecordScanRequest) (*models.ScanResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}

	device, err := s.devices.FindBySerial(ctx, req.DeviceSerial)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordScanMetric("unknown", "rejected")
			return nil, appErrors.Clone(appErrors.ErrNotFound, "device not recognized")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to resolve device")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordScanMetric("unknown", "rejected")
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to resolve student")
	}

	at := s.now()
	if req.At != nil {
		at = *req.At
	}
	validatedBy := req.ValidatedBy
	if validatedBy == "" {
		validatedBy = device.ID
	}

	existing, err := s.days.FindByStudentAndDate(ctx, student.ID, dateOnly(at))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to load day record")
	}

	var result *models.ScanResult
	if existing == nil {
		result, err = s.applyTimeIn(ctx, student, at, validatedBy)
	} else {
		result, err = s.applyTimeOut(ctx, student, at, validatedBy)
	}
	if err != nil {
		s.recordScanMetric("unknown", "failed")
		return nil, err
	}

	s.notifier.NotifyScan(ctx, student, result.Action, at)
	s.recordScanMetric(string(result.Action), "ok")
	s.logger.Info("scan processed",
		zap.String("student_id", student.ID),
		zap.String("device_id", device.ID),
		zap.String("action", string(result.Action)),
		zap.Time("at", at),
		zap.Int("subjects_set", len(result.SubjectsSet)),
		zap.Int("subject_errors", result.SubjectErrors),
	)
	return result, nil
}

func (s *AttendanceService) applyTimeIn(ctx context.Context, student *models.Student, at time.Time, validatedBy string) (*models.ScanResult, error) {
	rec := &models.DayAttendance{
		StudentID:   student.ID,
		Date:        dateOnly(at),
		TimeIn:      at,
		ValidatedBy: validatedBy,
	}
	if err := s.days.Create(ctx, rec); err != nil {
		// Another scan of the same student won the race for the first
		// record of the day. This scan is then the second one.
		if errors.Is(err, repository.ErrDuplicateDayRecord) {
			return s.applyTimeOut(ctx, student, at, validatedBy)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to create day record")
	}

	result := &models.ScanResult{
		Action:      models.ScanActionTimeIn,
		DayRecord:   rec,
		SubjectsSet: map[string]string{},
	}
	s.fanOutStatuses(ctx, student.ID, at, validatedBy, result, s.arrivalStatus)
	return result, nil
}

func (s *AttendanceService) applyTimeOut(ctx context.Context, student *models.Student, at time.Time, validatedBy string) (*models.ScanResult, error) {
	rec, err := s.days.StampTimeOut(ctx, student.ID, dateOnly(at), at, validatedBy)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to stamp time out")
	}

	result := &models.ScanResult{
		Action:      models.ScanActionTimeOut,
		DayRecord:   rec,
		SubjectsSet: map[string]string{},
	}
	s.fanOutStatuses(ctx, student.ID, at, validatedBy, result, s.departureStatus)
	return result, nil
}

// fanOutStatuses derives a status per scheduled subject and writes it
// through the guarded upsert. The day record is already committed at
// this point, so a failure here is logged and counted, never raised.
func (s *AttendanceService) fanOutStatuses(ctx context.Context, studentID string, at time.Time, validatedBy string, result *models.ScanResult, derive func(models.ScheduleSlot, models.TimeOfDay) (models.AttendanceStatus, bool)) {
	slots, err := s.daySlots(ctx, studentID, models.DayOfWeekFromTime(at))
	if err != nil {
		s.logger.Error("failed to resolve day slots for scan",
			zap.String("student_id", studentID),
			zap.Error(err),
		)
		result.SubjectErrors++
		return
	}

	minute := models.TimeOfDayFromTime(at)
	for _, slot := range slots {
		status, ok := derive(slot, minute)
		if !ok {
			continue
		}
		saved, applied, err := s.subjects.UpsertGuarded(ctx, &models.SubjectAttendance{
			StudentID:   studentID,
			SubjectID:   slot.SubjectID,
			Date:        dateOnly(at),
			Status:      status,
			ValidatedBy: validatedBy,
		})
		if err != nil {
			s.logger.Error("failed to write subject status",
				zap.String("student_id", studentID),
				zap.String("subject_id", slot.SubjectID),
				zap.String("status", string(status)),
				zap.Error(err),
			)
			result.SubjectErrors++
			continue
		}
		if applied {
			result.SubjectsSet[saved.SubjectID] = string(saved.Status)
		}
	}
}

// arrivalStatus maps an arrival minute onto a slot. Inside the grace
// window the student is present, until the slot ends they are late,
// and a slot already over gets no record at all.
func (s *AttendanceService) arrivalStatus(slot models.ScheduleSlot, minute models.TimeOfDay) (models.AttendanceStatus, bool) {
	switch {
	case minute <= slot.LatestOnTime():
		return models.AttendanceStatusPresent, true
	case minute <= slot.EndMinute:
		return models.AttendanceStatusLate, true
	default:
		return "", false
	}
}

// departureStatus marks every slot that has not started yet as absent.
// The cutoff is the departure minute, not the slot end, so a student
// leaving mid-slot keeps whatever they earned on arrival.
func (s *AttendanceService) departureStatus(slot models.ScheduleSlot, minute models.TimeOfDay) (models.AttendanceStatus, bool) {
	if slot.StartMinute >= minute {
		return models.AttendanceStatusAbsent, true
	}
	return "", false
}

// daySlots returns the student's slots for the weekday, serving from
// cache when it can.
func (s *AttendanceService) daySlots(ctx context.Context, studentID string, day models.DayOfWeek) ([]models.ScheduleSlot, error) {
	key := fmt.Sprintf("schedule:student:%s:%s", studentID, day)

	if s.cache != nil {
		var cached []models.ScheduleSlot
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.recordCacheMetric(true)
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("schedule cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.recordCacheMetric(false)
	}

	slots, err := s.schedules.ListForStudentDay(ctx, studentID, day)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, slots, s.cacheTTL); err != nil {
			s.logger.Warn("schedule cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return slots, nil
}

// DayRecord returns the day record for one student and date.
func (s *AttendanceService) DayRecord(ctx context.Context, studentID string, date time.Time) (*models.DayAttendance, error) {
	rec, err := s.days.FindByStudentAndDate(ctx, studentID, dateOnly(date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no attendance record for that date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to load day record")
	}
	return rec, nil
}

// History lists the student's day records, newest first, optionally
// bounded by a date range.
func (s *AttendanceService) History(ctx context.Context, studentID string, from, to *time.Time) ([]models.DayAttendance, error) {
	recs, err := s.days.History(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to load attendance history")
	}
	return recs, nil
}

// SubjectStatuses lists the per-subject statuses for one student and
// date.
func (s *AttendanceService) SubjectStatuses(ctx context.Context, studentID string, date time.Time) ([]models.SubjectAttendance, error) {
	recs, err := s.subjects.ListByStudentAndDate(ctx, studentID, dateOnly(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to load subject statuses")
	}
	return recs, nil
}

// OverrideSubject lets a reviewer set a subject status directly. Unlike
// scan-driven writes it replaces protected statuses too.
func (s *AttendanceService) OverrideSubject(ctx context.Context, req OverrideRequest) (*models.SubjectAttendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	status := models.AttendanceStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid attendance status %q", req.Status))
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}

	rec, err := s.subjects.Override(ctx, &models.SubjectAttendance{
		StudentID:   req.StudentID,
		SubjectID:   req.SubjectID,
		Date:        date,
		Status:      status,
		ValidatedBy: req.ValidatedBy,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to override subject status")
	}
	return rec, nil
}

func (s *AttendanceService) recordScanMetric(action, result string) {
	if s.metrics != nil {
		s.metrics.RecordScan(action, result)
	}
}

func (s *AttendanceService) recordCacheMetric(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(hit)
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
