package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/pkg/response"
)

type evaluationService interface {
	Evaluate(ctx context.Context, caller string, courseID uint64, req models.EvaluateRequest) (*models.EvaluationRecord, error)
	IsStudentEvaluated(ctx context.Context, courseID uint64, student string) (bool, error)
	Evaluations(ctx context.Context, courseID uint64) ([]models.EvaluationRecord, error)
	Results(ctx context.Context, courseID uint64) (*models.CourseResults, bool, error)
}

// EvaluationHandler exposes marking endpoints.
type EvaluationHandler struct {
	evaluations evaluationService
}

// NewEvaluationHandler constructs EvaluationHandler.
func NewEvaluationHandler(evaluations evaluationService) *EvaluationHandler {
	return &EvaluationHandler{evaluations: evaluations}
}

// Evaluate godoc
// @Summary Record a student's mark
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body models.EvaluateRequest true "Mark"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/evaluations [post]
func (h *EvaluationHandler) Evaluate(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	var req models.EvaluateRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.evaluations.Evaluate(c.Request.Context(), caller, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// List godoc
// @Summary List evaluation records of a course
// @Tags Evaluations
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/evaluations [get]
func (h *EvaluationHandler) List(c *gin.Context) {
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	records, err := h.evaluations.Evaluations(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, records)
}

// IsEvaluated godoc
// @Summary Check whether a student has been marked
// @Tags Evaluations
// @Produce json
// @Param id path int true "Course ID"
// @Param address path string true "Student"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/evaluations/{address} [get]
func (h *EvaluationHandler) IsEvaluated(c *gin.Context) {
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	student := c.Param("address")
	evaluated, err := h.evaluations.IsStudentEvaluated(c.Request.Context(), id, student)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"course_id": id, "student": student, "evaluated": evaluated})
}

// Results godoc
// @Summary Passed and failed students of a course
// @Tags Evaluations
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/results [get]
func (h *EvaluationHandler) Results(c *gin.Context) {
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	results, cacheHit, err := h.evaluations.Results(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, results, cacheHit)
}
