package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	"github.com/bonjohen/cedar-terrace-sub001/internal/service"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/response"
)

// NoticeHandler exposes notice issuance, lookup, and reprint endpoints.
type NoticeHandler struct {
	service *service.NoticeService
}

// NewNoticeHandler constructs a notice handler.
func NewNoticeHandler(svc *service.NoticeService) *NoticeHandler {
	return &NoticeHandler{service: svc}
}

// Issue godoc
// @Summary Issue a notice for a violation
// @Tags Notices
// @Accept json
// @Produce json
// @Param payload body dto.IssueNoticeRequest true "Issuance payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "idempotent replay"
// @Router /notices [post]
func (h *NoticeHandler) Issue(c *gin.Context) {
	var req dto.IssueNoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.service.Issue(c.Request.Context(), req, actorFromContext(c))
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
// @Summary Get a notice
// @Tags Notices
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Router /notices/{id} [get]
func (h *NoticeHandler) Get(c *gin.Context) {
	notice, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notice, nil)
}

// Document godoc
// @Summary Download the printable notice document
// @Tags Notices
// @Produce application/pdf
// @Param id path string true "Notice ID"
// @Success 200 {file} binary
// @Router /notices/{id}/document [get]
func (h *NoticeHandler) Document(c *gin.Context) {
	doc, err := h.service.RenderDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=notice-%s.pdf", c.Param("id")))
	c.Data(http.StatusOK, "application/pdf", doc)
}

// ResolveQR godoc
// @Summary Resolve a scanned QR token to its notice
// @Tags Notices
// @Produce json
// @Param token path string true "QR token"
// @Success 200 {object} response.Envelope
// @Router /notices/qr/{token} [get]
func (h *NoticeHandler) ResolveQR(c *gin.Context) {
	notice, err := h.service.GetByQRToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notice, nil)
}
