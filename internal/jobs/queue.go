package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/wardenhq/warden/pkg/logger"
	"github.com/wardenhq/warden/pkg/metrics"
)

// ErrRetryLater signals a transient failure: the job is retried with
// exponential backoff instead of being dropped.
var ErrRetryLater = errors.New("retry later")

// Job is a unit of background work triggered by an account save. Jobs
// are fire and forget with respect to the save that enqueued them.
type Job struct {
	Kind string
	Run  func(ctx context.Context) error
}

// Queue executes jobs on a bounded worker pool. Enqueue never blocks
// the caller: when the buffer is full the job is dropped and counted.
type Queue struct {
	jobs chan Job

	workers     int
	jobTimeout  time.Duration
	maxRetries  uint64
	minInterval time.Duration

	mu     sync.Mutex
	closed bool

	workerWG sync.WaitGroup
	jobWG    sync.WaitGroup

	log *zap.Logger
}

// Option customises queue behaviour.
type Option func(*Queue)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBuffer sets the pending-job buffer size.
func WithBuffer(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.jobs = make(chan Job, n)
		}
	}
}

// WithJobTimeout bounds a single attempt of a job.
func WithJobTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.jobTimeout = d
		}
	}
}

// WithMaxRetries caps how often a transient failure is retried.
func WithMaxRetries(n uint64) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// WithRetryInterval sets the initial backoff interval, shortened in tests.
func WithRetryInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.minInterval = d
		}
	}
}

// NewQueue builds the queue and starts its workers.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		workers:     4,
		jobTimeout:  30 * time.Second,
		maxRetries:  5,
		minInterval: 500 * time.Millisecond,
		log:         logger.WithModule("jobs"),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.jobs == nil {
		q.jobs = make(chan Job, 256)
	}

	for i := 0; i < q.workers; i++ {
		q.workerWG.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue hands a job to the pool. It reports false when the queue is
// shut down or the buffer is full.
func (q *Queue) Enqueue(job Job) bool {
	if job.Run == nil {
		return false
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.jobWG.Add(1)

	select {
	case q.jobs <- job:
		q.mu.Unlock()
		return true
	default:
		q.jobWG.Done()
		q.mu.Unlock()
		metrics.BackgroundJobs.WithLabelValues(job.Kind, "dropped").Inc()
		q.log.Warn("job buffer full, dropping job", zap.String("kind", job.Kind))
		return false
	}
}

// Drain blocks until every accepted job has finished or the context
// expires. It does not stop the workers.
func (q *Queue) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.jobWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, lets the workers finish the backlog, and
// waits for them up to the context deadline.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.workerWG.Done()
	for job := range q.jobs {
		q.process(job)
		q.jobWG.Done()
	}
}

// process runs one job, retrying transient failures with exponential
// backoff. Any error other than ErrRetryLater is permanent.
func (q *Queue) process(job Job) {
	attempt := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
		defer cancel()

		err := job.Run(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRetryLater) {
			metrics.BackgroundJobs.WithLabelValues(job.Kind, "retry").Inc()
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = q.minInterval

	err := backoff.Retry(attempt, backoff.WithMaxRetries(policy, q.maxRetries))
	if err != nil {
		metrics.BackgroundJobs.WithLabelValues(job.Kind, "failed").Inc()
		q.log.Error("background job failed", zap.String("kind", job.Kind), zap.Error(err))
		return
	}
	metrics.BackgroundJobs.WithLabelValues(job.Kind, "ok").Inc()
}
