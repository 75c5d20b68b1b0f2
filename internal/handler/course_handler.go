package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/pkg/response"
)

type courseService interface {
	CreateCourse(ctx context.Context, caller string, req models.CreateCourseRequest) (*models.Course, error)
	RemovePlaces(ctx context.Context, caller string, courseID uint64, req models.RemovePlacesRequest) (*models.Course, error)
	SetUpEvaluator(ctx context.Context, caller string, courseID uint64, evaluator string) error
	RemoveEvaluator(ctx context.Context, caller string, courseID uint64, evaluator string) error
	SetCourseURI(ctx context.Context, caller string, courseID uint64, req models.CourseURIRequest) error
	SetLimits(ctx context.Context, caller string, limits models.Limits) (*models.Limits, error)
	Course(ctx context.Context, courseID uint64) (*models.CourseSummary, bool, error)
	URI(ctx context.Context, courseID uint64) (string, error)
	Contract(ctx context.Context) (*models.ContractInfo, error)
	Evaluators(ctx context.Context, courseID uint64) ([]string, error)
	Students(ctx context.Context, courseID uint64) ([]string, error)
}

// CourseHandler exposes course inventory endpoints.
type CourseHandler struct {
	courses courseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses courseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// Create godoc
// @Summary Create a course or add places to it
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body models.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req models.CreateCourseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.courses.CreateCourse(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Get godoc
// @Summary Course summary
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	summary, cacheHit, err := h.courses.Course(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, summary, cacheHit)
}

// URI godoc
// @Summary Course metadata URI
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/uri [get]
func (h *CourseHandler) URI(c *gin.Context) {
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	uri, err := h.courses.URI(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"course_id": id, "uri": uri})
}

// SetURI godoc
// @Summary Replace course metadata URI
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body models.CourseURIRequest true "URI payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/uri [put]
func (h *CourseHandler) SetURI(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	var req models.CourseURIRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.courses.SetCourseURI(c.Request.Context(), caller, id, req); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"course_id": id, "uri": req.URI})
}

// RemovePlaces godoc
// @Summary Burn unsold places
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body models.RemovePlacesRequest true "Removal payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/places/remove [post]
func (h *CourseHandler) RemovePlaces(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	var req models.RemovePlacesRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.courses.RemovePlaces(c.Request.Context(), caller, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// Evaluators godoc
// @Summary List course evaluators
// @Tags Evaluators
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/evaluators [get]
func (h *CourseHandler) Evaluators(c *gin.Context) {
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	evaluators, err := h.courses.Evaluators(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, evaluators)
}

// AddEvaluator godoc
// @Summary Assign an evaluator
// @Tags Evaluators
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body models.AddressRequest true "Evaluator"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/evaluators [post]
func (h *CourseHandler) AddEvaluator(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	var req models.AddressRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.courses.SetUpEvaluator(c.Request.Context(), caller, id, req.Address); err != nil {
		response.Error(c, err)
		return
	}
	h.respondEvaluators(c, http.StatusCreated, id)
}

// RemoveEvaluator godoc
// @Summary Unassign an evaluator
// @Tags Evaluators
// @Produce json
// @Param id path int true "Course ID"
// @Param address path string true "Evaluator"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/evaluators/{address} [delete]
func (h *CourseHandler) RemoveEvaluator(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	if err := h.courses.RemoveEvaluator(c.Request.Context(), caller, id, c.Param("address")); err != nil {
		response.Error(c, err)
		return
	}
	h.respondEvaluators(c, http.StatusOK, id)
}

func (h *CourseHandler) respondEvaluators(c *gin.Context, status int, id uint64) {
	evaluators, err := h.courses.Evaluators(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, evaluators)
}

// Students godoc
// @Summary List enrolled students
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/students [get]
func (h *CourseHandler) Students(c *gin.Context) {
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	students, err := h.courses.Students(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, students)
}

// Contract godoc
// @Summary Collection metadata and limits
// @Tags Contract
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /contract [get]
func (h *CourseHandler) Contract(c *gin.Context) {
	info, err := h.courses.Contract(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, info)
}

// SetLimits godoc
// @Summary Replace course quotas
// @Tags Contract
// @Accept json
// @Produce json
// @Param payload body models.Limits true "Limits"
// @Success 200 {object} response.Envelope
// @Router /settings/limits [put]
func (h *CourseHandler) SetLimits(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req models.Limits
	if !bindJSON(c, &req) {
		return
	}
	limits, err := h.courses.SetLimits(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, limits)
}
