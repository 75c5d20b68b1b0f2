package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/pkg/response"
)

type reportService interface {
	CourseReport(ctx context.Context, caller string, courseID uint64, format models.ReportFormat) (*models.ReportFile, error)
}

// ReportHandler exposes rendered course reports.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// CourseReport godoc
// @Summary Download course results
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Course ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /courses/{id}/report [get]
func (h *ReportHandler) CourseReport(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	file, err := h.reports.CourseReport(c.Request.Context(), caller, id, models.ReportFormat(c.DefaultQuery("format", string(models.ReportFormatCSV))))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}
