package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/twistedwarden/attendance-api/internal/models"
	"github.com/twistedwarden/attendance-api/internal/repository"
	appErrors "github.com/twistedwarden/attendance-api/pkg/errors"
)

type scheduleRepository interface {
	FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error)
	ListByTeacherAndDay(ctx context.Context, teacherID string, day models.DayOfWeek, excludeID string) ([]models.ScheduleConflict, error)
	ListBySectionAndDay(ctx context.Context, sectionID string, day models.DayOfWeek, excludeID string) ([]models.ScheduleConflict, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleSlot, error)
	Create(ctx context.Context, slot *models.ScheduleSlot) error
	Update(ctx context.Context, slot *models.ScheduleSlot) error
	Delete(ctx context.Context, id string) error
}

type studentScheduleLinker interface {
	Link(ctx context.Context, studentID, slotID string) error
	Unlink(ctx context.Context, studentID, slotID string) error
}

type scheduleCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// SlotRequest describes the payload for creating or updating a slot.
type SlotRequest struct {
	TeacherID    string  `json:"teacher_id" validate:"required"`
	SectionID    *string `json:"section_id"`
	SubjectID    string  `json:"subject_id" validate:"required"`
	DayOfWeek    string  `json:"day_of_week" validate:"required"`
	StartTime    string  `json:"start_time" validate:"required"`
	EndTime      string  `json:"end_time" validate:"required"`
	GraceMinutes *int    `json:"grace_minutes"`
}

// ConflictReport groups overlapping slots by axis.
type ConflictReport struct {
	TeacherConflicts []models.ScheduleConflict
	SectionConflicts []models.ScheduleConflict
}

// Empty reports whether no axis found a conflict.
func (r ConflictReport) Empty() bool {
	return len(r.TeacherConflicts) == 0 && len(r.SectionConflicts) == 0
}

// ScheduleService validates and writes schedule slots.
type ScheduleService struct {
	repo         scheduleRepository
	links        studentScheduleLinker
	cache        scheduleCacheInvalidator
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	defaultGrace int
}

// NewScheduleService instantiates ScheduleService.
func NewScheduleService(repo scheduleRepository, links studentScheduleLinker, cache scheduleCacheInvalidator, metrics *MetricsService, defaultGrace int, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultGrace <= 0 {
		defaultGrace = 15
	}
	return &ScheduleService{repo: repo, links: links, cache: cache, metrics: metrics, validator: validate, logger: logger, defaultGrace: defaultGrace}
}

// ListByTeacher returns every slot a teacher owns.
func (s *ScheduleService) ListByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleSlot, error) {
	slots, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to list teacher slots")
	}
	return slots, nil
}

// Create validates a candidate slot and stores it when conflict-free.
func (s *ScheduleService) Create(ctx context.Context, req SlotRequest) (*models.ScheduleSlot, error) {
	slot, err := s.buildSlot(req)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNoConflict(ctx, slot, ""); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, s.mapWriteError(ctx, err, slot, "")
	}
	s.invalidateSlotCache(ctx)
	return slot, nil
}

// Update re-validates and replaces an existing slot, excluding it from
// its own conflict check.
func (s *ScheduleService) Update(ctx context.Context, id string, req SlotRequest) (*models.ScheduleSlot, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to load schedule slot")
	}

	slot, err := s.buildSlot(req)
	if err != nil {
		return nil, err
	}
	slot.ID = existing.ID
	slot.CreatedAt = existing.CreatedAt

	if err := s.ensureNoConflict(ctx, slot, slot.ID); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, slot); err != nil {
		return nil, s.mapWriteError(ctx, err, slot, slot.ID)
	}
	s.invalidateSlotCache(ctx)
	return slot, nil
}

// Delete removes a slot.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to load schedule slot")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to delete schedule slot")
	}
	s.invalidateSlotCache(ctx)
	return nil
}

// LinkStudent ties a student to a slot they are expected to attend.
func (s *ScheduleService) LinkStudent(ctx context.Context, studentID, slotID string) error {
	if studentID == "" || slotID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student id and slot id are required")
	}
	if _, err := s.repo.FindByID(ctx, slotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to load schedule slot")
	}
	if err := s.links.Link(ctx, studentID, slotID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to link student schedule")
	}
	s.invalidateSlotCache(ctx)
	return nil
}

// UnlinkStudent removes a student-slot tie.
func (s *ScheduleService) UnlinkStudent(ctx context.Context, studentID, slotID string) error {
	if studentID == "" || slotID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student id and slot id are required")
	}
	if err := s.links.Unlink(ctx, studentID, slotID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to unlink student schedule")
	}
	s.invalidateSlotCache(ctx)
	return nil
}

// CheckConflicts fetches the candidate's teacher and section slot sets
// for the day and filters them through the overlap rule. The two
// queries have no ordering dependency and run concurrently.
func (s *ScheduleService) CheckConflicts(ctx context.Context, teacherID string, sectionID *string, day models.DayOfWeek, start, end models.TimeOfDay, excludeID string) (*ConflictReport, error) {
	var (
		wg          sync.WaitGroup
		teacherRows []models.ScheduleConflict
		sectionRows []models.ScheduleConflict
		teacherErr  error
		sectionErr  error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		teacherRows, teacherErr = s.repo.ListByTeacherAndDay(ctx, teacherID, day, excludeID)
	}()

	if sectionID != nil && *sectionID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sectionRows, sectionErr = s.repo.ListBySectionAndDay(ctx, *sectionID, day, excludeID)
		}()
	}
	wg.Wait()

	// A storage failure is never treated as "no conflict".
	if teacherErr != nil {
		return nil, appErrors.Wrap(teacherErr, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "schedule conflict check failed")
	}
	if sectionErr != nil {
		return nil, appErrors.Wrap(sectionErr, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "schedule conflict check failed")
	}

	report := &ConflictReport{}
	for _, row := range teacherRows {
		if models.Overlaps(start, end, row.StartMinute, row.EndMinute) {
			report.TeacherConflicts = append(report.TeacherConflicts, row)
		}
	}
	for _, row := range sectionRows {
		if models.Overlaps(start, end, row.StartMinute, row.EndMinute) {
			report.SectionConflicts = append(report.SectionConflicts, row)
		}
	}
	return report, nil
}

// buildSlot applies the validation sequence: required fields, day
// enumeration, time format, then interval ordering.
func (s *ScheduleService) buildSlot(req SlotRequest) (*models.ScheduleSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}

	day := models.DayOfWeek(strings.ToUpper(req.DayOfWeek))
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid day of week %q", req.DayOfWeek))
	}

	start, err := models.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start time, expected HH:MM")
	}
	end, err := models.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end time, expected HH:MM")
	}
	if start >= end {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}

	grace := s.defaultGrace
	if req.GraceMinutes != nil {
		if *req.GraceMinutes < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "grace minutes must not be negative")
		}
		grace = *req.GraceMinutes
	}

	sectionID := req.SectionID
	if sectionID != nil && *sectionID == "" {
		sectionID = nil
	}

	return &models.ScheduleSlot{
		TeacherID:    req.TeacherID,
		SectionID:    sectionID,
		SubjectID:    req.SubjectID,
		DayOfWeek:    day,
		StartMinute:  start,
		EndMinute:    end,
		GraceMinutes: grace,
	}, nil
}

func (s *ScheduleService) ensureNoConflict(ctx context.Context, slot *models.ScheduleSlot, excludeID string) error {
	report, err := s.CheckConflicts(ctx, slot.TeacherID, slot.SectionID, slot.DayOfWeek, slot.StartMinute, slot.EndMinute, excludeID)
	if err != nil {
		return err
	}
	if report.Empty() {
		return nil
	}
	return s.conflictError(report)
}

// conflictError builds the user-facing rejection enumerating every
// conflicting slot.
func (s *ScheduleService) conflictError(report *ConflictReport) error {
	var parts []string
	for _, c := range report.TeacherConflicts {
		parts = append(parts, fmt.Sprintf("teacher already booked for %s %s", c.SubjectName, c.TimeRange()))
		s.metrics.RecordScheduleConflict("teacher")
	}
	for _, c := range report.SectionConflicts {
		parts = append(parts, fmt.Sprintf("section already scheduled for %s %s with %s", c.SubjectName, c.TimeRange(), c.TeacherName))
		s.metrics.RecordScheduleConflict("section")
	}

	domainErr := &models.ScheduleConflictError{
		Message:          "schedule conflict: " + strings.Join(parts, "; "),
		TeacherConflicts: report.TeacherConflicts,
		SectionConflicts: report.SectionConflicts,
	}
	return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, domainErr.Message)
}

// mapWriteError reclassifies the database's own overlap rejection as the
// same conflict error the application-level check produces. The
// constraint is the race guard behind a check-then-write that is not
// atomic by construction.
func (s *ScheduleService) mapWriteError(ctx context.Context, err error, slot *models.ScheduleSlot, excludeID string) error {
	if !errors.Is(err, repository.ErrSlotOverlap) {
		return appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to write schedule slot")
	}

	report, checkErr := s.CheckConflicts(ctx, slot.TeacherID, slot.SectionID, slot.DayOfWeek, slot.StartMinute, slot.EndMinute, excludeID)
	if checkErr == nil && !report.Empty() {
		return s.conflictError(report)
	}

	s.logger.Warn("slot overlap constraint fired but re-check found no rows",
		zap.String("teacher_id", slot.TeacherID),
		zap.String("day", string(slot.DayOfWeek)),
	)
	return appErrors.Clone(appErrors.ErrConflict, "schedule slot overlaps an existing slot")
}

func (s *ScheduleService) invalidateSlotCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "schedule:student:*"); err != nil {
		s.logger.Warn("failed to invalidate schedule cache", zap.Error(err))
	}
}
