package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	"github.com/bonjohen/cedar-terrace-sub001/internal/service"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/response"
)

// ViolationHandler exposes violation lifecycle endpoints.
type ViolationHandler struct {
	violations *service.ViolationService
	timeline   *service.TimelineService
}

// NewViolationHandler constructs a violation handler.
func NewViolationHandler(violations *service.ViolationService, timeline *service.TimelineService) *ViolationHandler {
	return &ViolationHandler{violations: violations, timeline: timeline}
}

// List godoc
// @Summary List violations
// @Tags Violations
// @Produce json
// @Param vehicle_id query string false "Filter by vehicle"
// @Param position_id query string false "Filter by position"
// @Param category query string false "Filter by category"
// @Param status query string false "Comma-separated statuses"
// @Param open query bool false "Open violations only"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /violations [get]
func (h *ViolationHandler) List(c *gin.Context) {
	var q dto.ViolationQuery
	q.VehicleID = c.Query("vehicle_id")
	q.PositionID = c.Query("position_id")
	q.Category = models.ViolationCategory(strings.ToUpper(c.Query("category")))
	q.OpenOnly = c.Query("open") == "true"
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			q.Status = append(q.Status, models.ViolationStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		q.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		q.Offset = offset
	}

	violations, err := h.violations.List(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, violations, nil)
}

// Get godoc
// @Summary Get a violation with its event log
// @Tags Violations
// @Produce json
// @Param id path string true "Violation ID"
// @Success 200 {object} response.Envelope
// @Router /violations/{id} [get]
func (h *ViolationHandler) Get(c *gin.Context) {
	violation, err := h.violations.GetWithEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, violation, nil)
}

// ApplyEvent godoc
// @Summary Apply a lifecycle event to a violation
// @Tags Violations
// @Accept json
// @Produce json
// @Param id path string true "Violation ID"
// @Param payload body dto.ApplyEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /violations/{id}/events [post]
func (h *ViolationHandler) ApplyEvent(c *gin.Context) {
	var req dto.ApplyEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	event, err := h.violations.ApplyEvent(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Evaluate godoc
// @Summary Run a timeline evaluation for one violation
// @Tags Violations
// @Produce json
// @Param id path string true "Violation ID"
// @Success 200 {object} response.Envelope
// @Router /violations/{id}/evaluate [post]
func (h *ViolationHandler) Evaluate(c *gin.Context) {
	result, err := h.timeline.EvaluateViolation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
