package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// DeadLetterFunc observes jobs that exhausted their retries.
type DeadLetterFunc func(Job, error)

// QueueConfig configures worker pool behaviour. Retries back off exponentially from
// RetryDelay up to MaxRetryDelay.
type QueueConfig struct {
	Workers       int
	BufferSize    int
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Logger        *zap.Logger
	OnDead        DeadLetterFunc
}

// Queue dispatches jobs to a fixed pool of goroutines. Stop drains jobs already
// buffered; jobs waiting for a retry at that point are dead-lettered.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.SugaredLogger

	jobs     chan Job
	runCtx   context.Context
	retryCtx context.Context
	cancel   context.CancelFunc
	workers  sync.WaitGroup
	retries  sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * cfg.RetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.Sugar().With("queue", name),
		jobs:    make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Calls after the first, or after Stop, are ignored.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.runCtx = ctx
	q.retryCtx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.workers.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Infow("queue started", "workers", q.cfg.Workers)
}

// Stop rejects new jobs, abandons pending retries and waits until buffered jobs are processed.
func (q *Queue) Stop() {
	q.mu.RLock()
	running := q.started && !q.stopped
	q.mu.RUnlock()
	if !running {
		return
	}
	q.cancel()

	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	q.retries.Wait()
	close(q.jobs)
	q.workers.Wait()
	q.logger.Infow("queue stopped")
}

// Enqueue pushes a job onto the queue, assigning an ID when missing. It blocks while
// the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.started || q.stopped {
		return fmt.Errorf("queue %s not running", q.name)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-q.retryCtx.Done():
		return fmt.Errorf("queue %s stopping: %w", q.name, q.retryCtx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) worker() {
	defer q.workers.Done()
	for job := range q.jobs {
		if err := q.handler(q.runCtx, job); err != nil {
			q.handleFailure(job, err)
		}
	}
}

// backoff returns the wait before the given retry attempt, starting at 1.
func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt && delay < q.cfg.MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > q.cfg.MaxRetryDelay {
		delay = q.cfg.MaxRetryDelay
	}
	return delay
}

func (q *Queue) deadLetter(job Job, err error) {
	q.logger.Errorw("job dead-lettered", "job_id", job.ID, "type", job.Type, "attempts", job.Attempt, "error", err)
	if q.cfg.OnDead != nil {
		q.cfg.OnDead(job, err)
	}
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	q.mu.RLock()
	retry := job.Attempt <= q.cfg.MaxRetries && !q.stopped
	if retry {
		q.retries.Add(1)
	}
	q.mu.RUnlock()
	if !retry {
		q.deadLetter(job, err)
		return
	}
	delay := q.backoff(job.Attempt)
	q.logger.Warnw("job failed, retrying", "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "delay", delay, "error", err)

	go func(j Job) {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.retryCtx.Done():
			q.deadLetter(j, err)
		case <-timer.C:
			if enqueueErr := q.Enqueue(j); enqueueErr != nil {
				q.deadLetter(j, err)
			}
		}
	}(job)
}
