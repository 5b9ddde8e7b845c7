package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bonjohen/cedar-terrace-sub001/internal/service"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/response"
)

// EvidenceHandler exposes evidence photo upload and retrieval endpoints.
type EvidenceHandler struct {
	service *service.EvidenceService
}

// NewEvidenceHandler constructs an evidence handler.
func NewEvidenceHandler(svc *service.EvidenceService) *EvidenceHandler {
	return &EvidenceHandler{service: svc}
}

// Upload godoc
// @Summary Upload an evidence photo
// @Tags Evidence
// @Accept multipart/form-data
// @Produce json
// @Param photo formData file true "Photo file"
// @Success 201 {object} response.Envelope
// @Router /evidence/photos [post]
func (h *EvidenceHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("photo")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "photo file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "cannot read photo"))
		return
	}
	defer file.Close()

	result, err := h.service.Upload(fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GetPhoto godoc
// @Summary Fetch an evidence photo via a signed token
// @Tags Evidence
// @Produce image/jpeg
// @Param token path string true "Signed photo token"
// @Success 200 {file} binary
// @Router /evidence/photos/{token} [get]
func (h *EvidenceHandler) GetPhoto(c *gin.Context) {
	file, err := h.service.OpenByToken(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.File(file.Name())
}
