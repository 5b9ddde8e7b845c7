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

// PositionHandler exposes parking position registry endpoints.
type PositionHandler struct {
	service *service.PositionService
}

// NewPositionHandler constructs a position handler.
func NewPositionHandler(svc *service.PositionService) *PositionHandler {
	return &PositionHandler{service: svc}
}

// Create godoc
// @Summary Register a parking position
// @Tags Positions
// @Accept json
// @Produce json
// @Param payload body dto.CreatePositionRequest true "Position payload"
// @Success 201 {object} response.Envelope
// @Router /positions [post]
func (h *PositionHandler) Create(c *gin.Context) {
	var req dto.CreatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	position, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, position)
}

// List godoc
// @Summary List parking positions
// @Tags Positions
// @Produce json
// @Param site query string false "Filter by site"
// @Param type query string false "Filter by position type"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /positions [get]
func (h *PositionHandler) List(c *gin.Context) {
	var filter models.PositionFilter
	filter.Site = c.Query("site")
	filter.Type = models.PositionType(strings.ToUpper(c.Query("type")))
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}

	positions, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, positions, nil)
}

// Get godoc
// @Summary Get a parking position
// @Tags Positions
// @Produce json
// @Param id path string true "Position ID"
// @Success 200 {object} response.Envelope
// @Router /positions/{id} [get]
func (h *PositionHandler) Get(c *gin.Context) {
	position, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, position, nil)
}

// Locate godoc
// @Summary Find the position containing a point
// @Tags Positions
// @Produce json
// @Param site query string true "Site"
// @Param lat query number true "Latitude"
// @Param lng query number true "Longitude"
// @Success 200 {object} response.Envelope
// @Router /positions/locate [get]
func (h *PositionHandler) Locate(c *gin.Context) {
	site := c.Query("site")
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if site == "" || latErr != nil || lngErr != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "site, lat, and lng are required"))
		return
	}

	position, err := h.service.Locate(c.Request.Context(), site, lat, lng)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, position, nil)
}

// Delete godoc
// @Summary Soft-delete a parking position
// @Tags Positions
// @Produce json
// @Param id path string true "Position ID"
// @Success 204
// @Router /positions/{id} [delete]
func (h *PositionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
