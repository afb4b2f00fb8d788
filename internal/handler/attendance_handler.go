package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/twistedwarden/attendance-api/internal/service"
	appErrors "github.com/twistedwarden/attendance-api/pkg/errors"
	"github.com/twistedwarden/attendance-api/pkg/response"
)

// AttendanceHandler wires HTTP endpoints to the attendance service.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler creates a new handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// RecordScan godoc
// @Summary Record a gate scan
// @Description Process one biometric scan into a day record and per-subject statuses
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.RecordScanRequest true "Scan payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/scans [post]
func (h *AttendanceHandler) RecordScan(c *gin.Context) {
	var req service.RecordScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}

	result, err := h.service.RecordScan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// DayRecord godoc
// @Summary Day attendance record
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/students/{studentId}/day [get]
func (h *AttendanceHandler) DayRecord(c *gin.Context) {
	date, err := dateParam(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}

	rec, err := h.service.DayRecord(c.Request.Context(), c.Param("studentId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// SubjectStatuses godoc
// @Summary Per-subject statuses for a date
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /attendance/students/{studentId}/subjects [get]
func (h *AttendanceHandler) SubjectStatuses(c *gin.Context) {
	date, err := dateParam(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}

	recs, err := h.service.SubjectStatuses(c.Request.Context(), c.Param("studentId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, recs, nil)
}

// History godoc
// @Summary Day attendance history
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/students/{studentId}/history [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from date, expected YYYY-MM-DD"))
			return
		}
		from = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to date, expected YYYY-MM-DD"))
			return
		}
		to = &t
	}

	recs, err := h.service.History(c.Request.Context(), c.Param("studentId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, recs, nil)
}

// OverrideSubject godoc
// @Summary Manually set a subject status
// @Description Reviewer correction that replaces protected statuses too
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.OverrideRequest true "Override payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/overrides [post]
func (h *AttendanceHandler) OverrideSubject(c *gin.Context) {
	var req service.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && req.ValidatedBy == "" {
		req.ValidatedBy = claims.UserID
	}

	rec, err := h.service.OverrideSubject(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

func dateParam(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}
	return t, nil
}
