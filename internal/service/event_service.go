package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/pkg/jobs"
)

// EventSink delivers a committed event to one destination.
type EventSink interface {
	Name() string
	Deliver(ctx context.Context, event models.Event) error
}

type eventDelivery struct {
	sink  EventSink
	event models.Event
}

// EventService fans committed events out to sinks through the background queue and
// drops cached course views the events make stale.
type EventService struct {
	queue   *jobs.Queue
	sinks   []EventSink
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewEventService constructs an EventService. Call Start before publishing to
// deliver asynchronously; until then deliveries run inline.
func NewEventService(sinks []EventSink, cache *CacheService, metrics *MetricsService, logger *zap.Logger, queueCfg jobs.QueueConfig) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &EventService{sinks: sinks, cache: cache, metrics: metrics, logger: logger}
	queueCfg.Logger = logger
	queueCfg.OnDead = func(job jobs.Job, err error) {
		if d, ok := job.Payload.(eventDelivery); ok {
			logger.Error("event delivery abandoned",
				zap.String("sink", d.sink.Name()),
				zap.String("event_id", d.event.ID),
				zap.String("type", string(d.event.Type)),
				zap.Error(err),
			)
		}
	}
	svc.queue = jobs.NewQueue("course-events", svc.handle, queueCfg)
	return svc
}

// Start launches the delivery workers.
func (s *EventService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the delivery workers to exit.
func (s *EventService) Stop() {
	s.queue.Stop()
}

// Publish implements EventPublisher.
func (s *EventService) Publish(ctx context.Context, events ...models.Event) {
	for _, event := range events {
		s.metrics.RecordEvent(event.Type)
		if event.CourseID != nil && s.cache != nil {
			_ = s.cache.InvalidateCourse(ctx, *event.CourseID)
		}
		for _, sink := range s.sinks {
			job := jobs.Job{Type: fmt.Sprintf("%s:%s", sink.Name(), event.Type), Payload: eventDelivery{sink: sink, event: event}}
			if err := s.queue.Enqueue(job); err != nil {
				s.logger.Debug("event queue unavailable, delivering inline", zap.String("sink", sink.Name()), zap.Error(err))
				_ = s.handle(ctx, job)
			}
		}
	}
}

func (s *EventService) handle(ctx context.Context, job jobs.Job) error {
	d, ok := job.Payload.(eventDelivery)
	if !ok {
		return fmt.Errorf("unexpected event job payload %T", job.Payload)
	}
	err := d.sink.Deliver(ctx, d.event)
	s.metrics.RecordEventDelivery(d.sink.Name(), err)
	if err != nil {
		return fmt.Errorf("deliver %s to %s: %w", d.event.ID, d.sink.Name(), err)
	}
	return nil
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Name implements EventSink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements EventSink.
func (s *LogSink) Deliver(_ context.Context, event models.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("actor", event.Actor),
		zap.Time("occurred_at", event.OccurredAt),
		zap.Any("payload", event.Payload),
	}
	if event.CourseID != nil {
		fields = append(fields, zap.Uint64("course_id", *event.CourseID))
	}
	s.logger.Info("course event", fields...)
	return nil
}
