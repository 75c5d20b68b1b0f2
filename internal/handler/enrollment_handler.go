package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/pkg/response"
)

type enrollmentService interface {
	BuyPlace(ctx context.Context, caller string, courseID uint64, req models.EnrollmentRequest) (*models.Enrollment, error)
	TransferPlace(ctx context.Context, caller string, courseID uint64, req models.TransferRequest) error
	SetApprovalForAll(ctx context.Context, caller string, req models.ApprovalRequest) error
	IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error)
	CoursesOf(ctx context.Context, account string) ([]uint64, error)
	BalanceOf(ctx context.Context, account string, courseID uint64) (*models.Balance, error)
}

// EnrollmentHandler exposes place purchase and ledger endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// BuyPlace godoc
// @Summary Pay the fee and enroll in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body models.EnrollmentRequest true "Paid value"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/enrollments [post]
func (h *EnrollmentHandler) BuyPlace(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	var req models.EnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.BuyPlace(c.Request.Context(), caller, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// TransferPlace godoc
// @Summary Deliver a place unit to an enrolled student
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body models.TransferRequest true "Student"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/transfers [post]
func (h *EnrollmentHandler) TransferPlace(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := courseIDParam(c)
	if !ok {
		return
	}
	var req models.TransferRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if err := h.enrollments.TransferPlace(ctx, caller, id, req); err != nil {
		response.Error(c, err)
		return
	}
	balance, err := h.enrollments.BalanceOf(ctx, req.Student, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, balance)
}

// SetApproval godoc
// @Summary Approve or revoke an operator for the caller
// @Tags Ledger
// @Accept json
// @Produce json
// @Param payload body models.ApprovalRequest true "Approval"
// @Success 200 {object} response.Envelope
// @Router /approvals [put]
func (h *EnrollmentHandler) SetApproval(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req models.ApprovalRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.enrollments.SetApprovalForAll(c.Request.Context(), caller, req); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"owner": caller, "operator": req.Operator, "approved": req.Approved})
}

// IsApproved godoc
// @Summary Check operator approval
// @Tags Ledger
// @Produce json
// @Param address path string true "Owner"
// @Param operator path string true "Operator"
// @Success 200 {object} response.Envelope
// @Router /accounts/{address}/approvals/{operator} [get]
func (h *EnrollmentHandler) IsApproved(c *gin.Context) {
	owner, operator := c.Param("address"), c.Param("operator")
	approved, err := h.enrollments.IsApprovedForAll(c.Request.Context(), owner, operator)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"owner": owner, "operator": operator, "approved": approved})
}

// CoursesOf godoc
// @Summary Courses an account enrolled in
// @Tags Ledger
// @Produce json
// @Param address path string true "Account"
// @Success 200 {object} response.Envelope
// @Router /accounts/{address}/courses [get]
func (h *EnrollmentHandler) CoursesOf(c *gin.Context) {
	courses, err := h.enrollments.CoursesOf(c.Request.Context(), c.Param("address"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, courses)
}

// BalanceOf godoc
// @Summary Place units held by an account
// @Tags Ledger
// @Produce json
// @Param address path string true "Account"
// @Param courseId path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /accounts/{address}/balances/{courseId} [get]
func (h *EnrollmentHandler) BalanceOf(c *gin.Context) {
	id, ok := uintParam(c, "courseId")
	if !ok {
		return
	}
	balance, err := h.enrollments.BalanceOf(c.Request.Context(), c.Param("address"), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, balance)
}
