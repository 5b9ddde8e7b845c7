package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	"github.com/bonjohen/cedar-terrace-sub001/internal/service"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/response"
)

// ObservationHandler exposes observation submission and lookup endpoints.
type ObservationHandler struct {
	service *service.ObservationService
}

// NewObservationHandler constructs an observation handler.
func NewObservationHandler(svc *service.ObservationService) *ObservationHandler {
	return &ObservationHandler{service: svc}
}

// Submit godoc
// @Summary Submit an observation
// @Tags Observations
// @Accept json
// @Produce json
// @Param payload body dto.SubmitObservationRequest true "Observation payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "idempotent replay"
// @Router /observations [post]
func (h *ObservationHandler) Submit(c *gin.Context) {
	var req dto.SubmitObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.service.Submit(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.JSON(c, status, result, nil)
}

// Get godoc
// @Summary Get an observation with its evidence
// @Tags Observations
// @Produce json
// @Param id path string true "Observation ID"
// @Success 200 {object} response.Envelope
// @Router /observations/{id} [get]
func (h *ObservationHandler) Get(c *gin.Context) {
	observation, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, observation, nil)
}

// LookupVehicle godoc
// @Summary Look up a vehicle by plate and jurisdiction
// @Tags Vehicles
// @Produce json
// @Param plate query string true "License plate"
// @Param jurisdiction query string true "Issuing jurisdiction"
// @Success 200 {object} response.Envelope
// @Router /vehicles [get]
func (h *ObservationHandler) LookupVehicle(c *gin.Context) {
	vehicle, err := h.service.GetVehicleByPlate(c.Request.Context(), c.Query("plate"), c.Query("jurisdiction"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vehicle, nil)
}

// GetVehicle godoc
// @Summary Get a vehicle profile
// @Tags Vehicles
// @Produce json
// @Param id path string true "Vehicle ID"
// @Success 200 {object} response.Envelope
// @Router /vehicles/{id} [get]
func (h *ObservationHandler) GetVehicle(c *gin.Context) {
	vehicle, err := h.service.GetVehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vehicle, nil)
}
