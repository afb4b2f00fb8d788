package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/twistedwarden/attendance-api/internal/service"
	appErrors "github.com/twistedwarden/attendance-api/pkg/errors"
	"github.com/twistedwarden/attendance-api/pkg/response"
)

// ScheduleHandler wires HTTP endpoints to the schedule service.
type ScheduleHandler struct {
	service *service.ScheduleService
}

// NewScheduleHandler creates a new handler.
func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// Create godoc
// @Summary Create schedule slot
// @Description Create a weekly teaching slot after conflict validation
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.SlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}

	slot, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, slot)
}

// Update godoc
// @Summary Update schedule slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body service.SlotRequest true "Slot payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}

	slot, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Delete schedule slot
// @Tags Schedules
// @Produce json
// @Param id path string true "Slot ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListByTeacher godoc
// @Summary List a teacher's slots
// @Tags Schedules
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/teacher/{teacherId} [get]
func (h *ScheduleHandler) ListByTeacher(c *gin.Context) {
	slots, err := h.service.ListByTeacher(c.Request.Context(), c.Param("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

type linkRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	SlotID    string `json:"slot_id" binding:"required"`
}

// LinkStudent godoc
// @Summary Link a student to a slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body linkRequest true "Link payload"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /schedules/links [post]
func (h *ScheduleHandler) LinkStudent(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid link payload"))
		return
	}
	if err := h.service.LinkStudent(c.Request.Context(), req.StudentID, req.SlotID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UnlinkStudent godoc
// @Summary Unlink a student from a slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body linkRequest true "Link payload"
// @Success 204
// @Router /schedules/links [delete]
func (h *ScheduleHandler) UnlinkStudent(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid link payload"))
		return
	}
	if err := h.service.UnlinkStudent(c.Request.Context(), req.StudentID, req.SlotID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
