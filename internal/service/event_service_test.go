package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/internal/service"
	"github.com/noah-isme/course-cert-api/pkg/jobs"
)

type recordingSink struct {
	mu        sync.Mutex
	delivered []models.Event
	failures  int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func TestEventServiceDeliversInlineBeforeStart(t *testing.T) {
	sink := &recordingSink{}
	events := service.NewEventService([]service.EventSink{sink, service.NewLogSink(zap.NewNop())}, nil, service.NewMetricsService(), nil, jobs.QueueConfig{})

	events.Publish(context.Background(), models.Event{ID: "evt-1", Type: models.EventCourseCreated})
	assert.Equal(t, 1, sink.count())
}

func TestEventServiceRetriesFailedDeliveries(t *testing.T) {
	sink := &recordingSink{failures: 1}
	events := service.NewEventService([]service.EventSink{sink}, nil, nil, nil, jobs.QueueConfig{MaxRetries: 2, RetryDelay: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events.Start(ctx)
	defer events.Stop()

	events.Publish(ctx, models.Event{ID: "evt-1", Type: models.EventEnrollmentCreated})
	assert.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventServiceInvalidatesCourseCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cache := service.NewCacheService(newMapCache(), nil, time.Minute, nil, true)
	events := service.NewEventService(nil, cache, nil, nil, jobs.QueueConfig{})
	courses := service.NewCourseService(h.store, nil, nil, events, cache, service.CourseConfig{})
	enrollments := service.NewEnrollmentService(h.store, nil, nil, events)

	_, err := courses.CreateCourse(ctx, admin, models.CreateCourseRequest{ID: 1, InitialSupply: 3})
	require.NoError(t, err)
	require.NoError(t, courses.SetUpEvaluator(ctx, admin, 1, evaluator))

	summary, hit, err := courses.Course(ctx, 1)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, summary.Students)

	_, err = enrollments.BuyPlace(ctx, alice, 1, models.EnrollmentRequest{})
	require.NoError(t, err)

	summary, hit, err = courses.Course(ctx, 1)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{alice}, summary.Students)
}
