package service_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

func TestEnrollmentServiceBuyPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedCourse(t, 1, 10, 100)

	enrollment, err := h.enrollments.BuyPlace(ctx, alice, 1, models.EnrollmentRequest{Value: 150})
	require.NoError(t, err)
	assert.Equal(t, alice, enrollment.Student)
	assert.Equal(t, uint64(150), enrollment.Paid)

	// The full paid value is custodied and no unit moves yet.
	treasury, err := h.treasury.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), treasury.Balance)
	assert.Zero(t, h.balance(t, alice, 1))

	courses, err := h.enrollments.CoursesOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, courses)

	students, err := h.courses.Students(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{alice}, students)
}

func TestEnrollmentServiceBuyPlaceFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedCourse(t, 1, 1, 100)
	_, err := h.courses.CreateCourse(ctx, admin, models.CreateCourseRequest{ID: 2, InitialSupply: 3})
	require.NoError(t, err)

	_, err = h.enrollments.BuyPlace(ctx, alice, 1, models.EnrollmentRequest{Value: 100})
	require.NoError(t, err)

	tests := []struct {
		name     string
		student  string
		courseID uint64
		value    uint64
		want     *appErrors.Error
	}{
		{"unknown course", bob, 9, 100, appErrors.ErrCourseNotFound},
		{"fee below price", bob, 1, 99, appErrors.ErrInsufficientFee},
		{"no evaluator", bob, 2, 0, appErrors.ErrNoEvaluatorAssigned},
		{"double enrollment", alice, 1, 100, appErrors.ErrAlreadyEnrolled},
		{"double enrollment without fee", alice, 1, 0, appErrors.ErrAlreadyEnrolled},
		{"evaluator enrolls", evaluator, 1, 100, appErrors.ErrEvaluatorCannotEnroll},
		{"sold out", bob, 1, 100, appErrors.ErrNoPlacesAvailable},
		{"value at sentinel", bob, 1, math.MaxInt64, appErrors.ErrAmountTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := h.store.Snapshot()
			_, err := h.enrollments.BuyPlace(ctx, tc.student, tc.courseID, models.EnrollmentRequest{Value: tc.value})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, before, h.store.Snapshot())
		})
	}
}

func TestEnrollmentServiceFeeFailureCarriesAmounts(t *testing.T) {
	h := newHarness(t)
	h.seedCourse(t, 1, 5, 100)

	_, err := h.enrollments.BuyPlace(context.Background(), alice, 1, models.EnrollmentRequest{Value: 40})
	require.Error(t, err)
	details := appErrors.FromError(err).Details
	assert.Equal(t, uint64(40), details["paid"])
	assert.Equal(t, uint64(100), details["fee"])
}

func TestEnrollmentServiceTransferPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedCourse(t, 1, 3, 0)

	err := h.enrollments.TransferPlace(ctx, admin, 1, models.TransferRequest{Student: alice})
	assert.ErrorIs(t, err, appErrors.ErrCourseNotRegisteredForUser)

	_, err = h.enrollments.BuyPlace(ctx, alice, 1, models.EnrollmentRequest{})
	require.NoError(t, err)

	err = h.enrollments.TransferPlace(ctx, bob, 1, models.TransferRequest{Student: alice})
	assert.ErrorIs(t, err, appErrors.ErrRoleRequired)

	require.NoError(t, h.enrollments.TransferPlace(ctx, admin, 1, models.TransferRequest{Student: alice}))
	assert.Equal(t, uint64(1), h.balance(t, alice, 1))
	assert.Equal(t, uint64(2), h.balance(t, admin, 1))

	err = h.enrollments.TransferPlace(ctx, admin, 1, models.TransferRequest{Student: "0x0000000000000000000000000000000000000000"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidAddress)
}

func TestEnrollmentServiceApprovals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	approved, err := h.enrollments.IsApprovedForAll(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, approved)

	require.NoError(t, h.enrollments.SetApprovalForAll(ctx, alice, models.ApprovalRequest{Operator: bob, Approved: true}))
	approved, err = h.enrollments.IsApprovedForAll(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, approved)

	approved, err = h.enrollments.IsApprovedForAll(ctx, bob, alice)
	require.NoError(t, err)
	assert.False(t, approved)

	err = h.enrollments.SetApprovalForAll(ctx, alice, models.ApprovalRequest{Operator: alice, Approved: true})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEnrollmentServiceCoursesOfUnknownAccount(t *testing.T) {
	h := newHarness(t)
	courses, err := h.enrollments.CoursesOf(context.Background(), bob)
	require.NoError(t, err)
	assert.NotNil(t, courses)
	assert.Empty(t, courses)
}
