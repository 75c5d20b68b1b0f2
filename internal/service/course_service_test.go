package service_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/internal/service"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

func TestCourseServiceCreateCourseMintsToCreator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	course, err := h.courses.CreateCourse(ctx, admin, models.CreateCourseRequest{ID: 1, InitialSupply: 10, URI: "ipfs://one", Fee: 50})
	require.NoError(t, err)
	assert.Equal(t, admin, course.Creator)
	assert.Equal(t, uint64(10), course.TotalPlaces)
	assert.Equal(t, uint64(10), h.balance(t, admin, 1))

	// A second admin adds supply: the creator keeps the minted units and fee and uri follow the latest call.
	second := account(t, 42)
	require.NoError(t, h.roles.Grant(ctx, admin, models.RoleAdmin, second))
	course, err = h.courses.CreateCourse(ctx, second, models.CreateCourseRequest{ID: 1, InitialSupply: 5, URI: "ipfs://two", Fee: 70})
	require.NoError(t, err)
	assert.Equal(t, admin, course.Creator)
	assert.Equal(t, uint64(15), course.TotalPlaces)
	assert.Equal(t, uint64(70), course.FeePerPlace)
	assert.Equal(t, uint64(15), h.balance(t, admin, 1))
	assert.Zero(t, h.balance(t, second, 1))

	uri, err := h.courses.URI(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://two", uri)
}

func TestCourseServiceCreateCourseRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	before := h.store.Snapshot()

	_, err := h.courses.CreateCourse(ctx, alice, models.CreateCourseRequest{ID: 1, InitialSupply: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrRoleRequired)
	assert.Equal(t, before, h.store.Snapshot())
}

func TestCourseServiceCreateCourseValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.CreateCourseRequest
		want *appErrors.Error
	}{
		{"id at sentinel", models.CreateCourseRequest{ID: math.MaxInt64, InitialSupply: 1}, appErrors.ErrAmountTooLarge},
		{"supply at sentinel", models.CreateCourseRequest{ID: 1, InitialSupply: math.MaxInt64}, appErrors.ErrAmountTooLarge},
		{"fee above sentinel", models.CreateCourseRequest{ID: 1, InitialSupply: 1, Fee: math.MaxUint64}, appErrors.ErrAmountTooLarge},
		{"zero supply", models.CreateCourseRequest{ID: 1}, appErrors.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.courses.CreateCourse(ctx, admin, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := h.courses.CreateCourse(ctx, "not-an-address", models.CreateCourseRequest{ID: 1, InitialSupply: 1})
	assert.ErrorIs(t, err, appErrors.ErrInvalidAddress)
}

func TestCourseServiceEnforcesMaxPlaces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	limits, err := h.courses.SetLimits(ctx, admin, models.Limits{MaxEvaluatorsPerCourse: 5, MaxPlacesPerCourse: 10})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), limits.MaxPlacesPerCourse)

	_, err = h.courses.CreateCourse(ctx, admin, models.CreateCourseRequest{ID: 1, InitialSupply: 10})
	require.NoError(t, err)
	_, err = h.courses.CreateCourse(ctx, admin, models.CreateCourseRequest{ID: 1, InitialSupply: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrMaxPlacesReached)

	appErr := appErrors.FromError(err)
	assert.Equal(t, uint64(10), appErr.Details["total_places"])
	assert.Equal(t, uint64(10), h.balance(t, admin, 1))
}

func TestCourseServiceSetLimitsKeepsExistingCourses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.courses.CreateCourse(ctx, admin, models.CreateCourseRequest{ID: 1, InitialSupply: 8})
	require.NoError(t, err)

	_, err = h.courses.SetLimits(ctx, admin, models.Limits{MaxEvaluatorsPerCourse: 5, MaxPlacesPerCourse: 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrMaxPlacesReached)
	assert.Equal(t, uint64(8), appErrors.FromError(err).Details["largest_total_places"])

	limits, err := h.courses.Limits(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.DefaultMaxPlacesPerCourse, limits.MaxPlacesPerCourse)

	limits, err = h.courses.SetLimits(ctx, admin, models.Limits{MaxEvaluatorsPerCourse: 5, MaxPlacesPerCourse: 8})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), limits.MaxPlacesPerCourse)
}

func TestCourseServiceSetLimitsRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.courses.SetLimits(ctx, alice, models.Limits{MaxEvaluatorsPerCourse: 2, MaxPlacesPerCourse: 2})
	assert.ErrorIs(t, err, appErrors.ErrRoleRequired)
	_, err = h.courses.SetLimits(ctx, admin, models.Limits{MaxEvaluatorsPerCourse: 0, MaxPlacesPerCourse: 2})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	limits, err := h.courses.Limits(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.DefaultMaxEvaluatorsPerCourse, limits.MaxEvaluatorsPerCourse)
	assert.Equal(t, service.DefaultMaxPlacesPerCourse, limits.MaxPlacesPerCourse)
}

func TestCourseServiceEvaluatorQuotaBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.courses.CreateCourse(ctx, admin, models.CreateCourseRequest{ID: 1, InitialSupply: 10})
	require.NoError(t, err)

	const limit = service.DefaultMaxEvaluatorsPerCourse

	// max-1 assignments are accepted.
	for i := 1; i <= int(limit-1); i++ {
		require.NoError(t, h.courses.SetUpEvaluator(ctx, admin, 1, account(t, i)), "evaluator %d", i)
	}

	// The max-th assignment is rejected with the evaluator count in the details.
	err = h.courses.SetUpEvaluator(ctx, admin, 1, account(t, int(limit)))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrTooManyEvaluators)
	assert.Equal(t, int(limit-1), appErrors.FromError(err).Details["assigned"])

	// So is every one after it.
	err = h.courses.SetUpEvaluator(ctx, admin, 1, account(t, int(limit+1)))
	assert.ErrorIs(t, err, appErrors.ErrTooManyEvaluators)

	evaluators, err := h.courses.Evaluators(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, evaluators, int(limit-1))
	assert.Equal(t, account(t, 1), evaluators[0])

	// Freeing a slot admits one more.
	require.NoError(t, h.courses.RemoveEvaluator(ctx, admin, 1, account(t, 2)))
	require.NoError(t, h.courses.SetUpEvaluator(ctx, admin, 1, account(t, int(limit))))
}

func TestCourseServiceSetUpEvaluator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.courses.SetUpEvaluator(ctx, admin, 9, evaluator)
	assert.ErrorIs(t, err, appErrors.ErrCourseNotFound)

	h.seedCourse(t, 1, 10, 0)
	member, err := h.roles.HasRole(ctx, models.RoleEvaluator, evaluator)
	require.NoError(t, err)
	assert.True(t, member.Member)

	err = h.courses.SetUpEvaluator(ctx, admin, 1, evaluator)
	assert.ErrorIs(t, err, appErrors.ErrEvaluatorAlreadyAssigned)

	_, err = h.enrollments.BuyPlace(ctx, alice, 1, models.EnrollmentRequest{})
	require.NoError(t, err)
	err = h.courses.SetUpEvaluator(ctx, admin, 1, alice)
	assert.ErrorIs(t, err, appErrors.ErrStudentCannotBeEvaluator)

	err = h.courses.SetUpEvaluator(ctx, bob, 1, account(t, 7))
	assert.ErrorIs(t, err, appErrors.ErrRoleRequired)
}

func TestCourseServiceRemoveEvaluatorRevokesRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedCourse(t, 1, 10, 0)

	require.NoError(t, h.courses.RemoveEvaluator(ctx, admin, 1, evaluator))
	member, err := h.roles.HasRole(ctx, models.RoleEvaluator, evaluator)
	require.NoError(t, err)
	assert.False(t, member.Member)

	err = h.courses.RemoveEvaluator(ctx, admin, 1, evaluator)
	assert.ErrorIs(t, err, appErrors.ErrEvaluatorNotAssigned)

	evaluators, err := h.courses.Evaluators(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, evaluators)
}

func TestCourseServiceRemovePlaces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedCourse(t, 1, 10, 0)
	h.enroll(t, 1, alice, 0)

	course, err := h.courses.RemovePlaces(ctx, admin, 1, models.RemovePlacesRequest{From: admin, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), course.TotalPlaces)
	assert.Equal(t, uint64(5), h.balance(t, admin, 1))

	// One place is sold, so five remain unsold.
	_, err = h.courses.RemovePlaces(ctx, admin, 1, models.RemovePlacesRequest{From: admin, Quantity: 6})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrTooManyPlaces)
	assert.Equal(t, uint64(5), appErrors.FromError(err).Details["available"])

	// Burning from an account without units fails and leaves the supply untouched.
	before := h.store.Snapshot()
	_, err = h.courses.RemovePlaces(ctx, admin, 1, models.RemovePlacesRequest{From: bob, Quantity: 1})
	assert.ErrorIs(t, err, appErrors.ErrInsufficientBalance)
	assert.Equal(t, before, h.store.Snapshot())

	_, err = h.courses.RemovePlaces(ctx, admin, 2, models.RemovePlacesRequest{From: admin, Quantity: 1})
	assert.ErrorIs(t, err, appErrors.ErrCourseNotFound)
}

func TestCourseServiceURIAndContract(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	uri, err := h.courses.URI(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, uri)

	h.seedCourse(t, 3, 2, 0)
	require.NoError(t, h.courses.SetCourseURI(ctx, admin, 3, models.CourseURIRequest{URI: "ipfs://updated"}))
	uri, err = h.courses.URI(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://updated", uri)

	err = h.courses.SetCourseURI(ctx, admin, 4, models.CourseURIRequest{URI: "ipfs://missing"})
	assert.ErrorIs(t, err, appErrors.ErrCourseNotFound)

	info, err := h.courses.Contract(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://contract", info.ContractURI)
	assert.Equal(t, uint64(10), info.BaseCourseFee)
	assert.Equal(t, "ipfs://contract", h.courses.ContractURI())
}

func TestCourseServiceCourseSummaryUsesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cache := service.NewCacheService(newMapCache(), nil, time.Minute, nil, true)
	courses := service.NewCourseService(h.store, nil, nil, nil, cache, service.CourseConfig{})
	h.seedCourse(t, 1, 10, 0)

	summary, hit, err := courses.Course(ctx, 1)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{evaluator}, summary.Evaluators)
	assert.Empty(t, summary.Students)

	summary, hit, err = courses.Course(ctx, 1)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, uint64(10), summary.TotalPlaces)

	require.NoError(t, cache.InvalidateCourse(ctx, 1))
	_, hit, err = courses.Course(ctx, 1)
	require.NoError(t, err)
	assert.False(t, hit)

	_, _, err = courses.Course(ctx, 2)
	assert.ErrorIs(t, err, appErrors.ErrCourseNotFound)
}

func TestCourseServiceEmitsEventsOnCommitOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedCourse(t, 1, 10, 0)

	_, err := h.courses.CreateCourse(ctx, alice, models.CreateCourseRequest{ID: 2, InitialSupply: 1})
	require.Error(t, err)

	assert.Equal(t, []models.EventType{
		models.EventCourseCreated,
		models.EventEvaluatorAssigned,
	}, h.events.types())
}
