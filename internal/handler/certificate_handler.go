package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/pkg/response"
)

type certificateService interface {
	MakeCertificates(ctx context.Context, caller string, courseID uint64, req models.CertificateRequest) (*models.CertificateResult, error)
	Certificates(ctx context.Context, courseID uint64) ([]string, error)
}

// CertificateHandler exposes course finalisation.
type CertificateHandler struct {
	certificates certificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certificates certificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// Make godoc
// @Summary Finalise a course into certificates
// @Description Burns unsold places, revokes failing students' units and points the course URI at the certificate metadata.
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body models.CertificateRequest true "Certificate URI"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/certificates [post]
func (h *CertificateHandler) Make(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	var req models.CertificateRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.certificates.MakeCertificates(c.Request.Context(), caller, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// List godoc
// @Summary Certificate holders of a course
// @Tags Certificates
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	holders, err := h.certificates.Certificates(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, holders)
}
