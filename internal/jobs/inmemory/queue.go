package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habahaba/roundup-savings/internal/jobs"
	"github.com/habahaba/roundup-savings/internal/savings"
	"github.com/rs/zerolog"
)

// finalAttemptTimeout bounds a final attempt run after the queue stopped.
const finalAttemptTimeout = 30 * time.Second

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs are lost on restart; records left pending by a crash stay pending
// until a provider webhook settles them.
type Queue struct {
	jobChan   chan *jobs.TransferJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers int
	backoff func(retry int) time.Duration
	log     zerolog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets how many jobs run concurrently.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBackoff sets the delay before retry number retry.
func WithBackoff(f func(retry int) time.Duration) Option {
	return func(q *Queue) { q.backoff = f }
}

// WithLogger sets the queue logger.
func WithLogger(log zerolog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishTransfer blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:   make(chan *jobs.TransferJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   5,
		log:       zerolog.Nop(),
		backoff: func(retry int) time.Duration {
			return time.Duration(retry) * time.Second
		},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Dispatch queues a transfer for transactionID and returns the job id.
func (q *Queue) Dispatch(ctx context.Context, transactionID string) (string, error) {
	job := &jobs.TransferJob{TransactionID: transactionID}
	if err := q.PublishTransfer(ctx, job); err != nil {
		return "", err
	}
	return job.JobID, nil
}

// PublishTransfer enqueues a transfer job for asynchronous processing.
func (q *Queue) PublishTransfer(ctx context.Context, job *jobs.TransferJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start launches the worker goroutines and returns immediately.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.TransferJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Error = err.Error()

		if !job.FinalAttempt() {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying

			retry := *job
			time.AfterFunc(q.backoff(retry.RetryCount), func() {
				retry.Status = jobs.JobStatusPending
				retry.StartedAt = nil
				retry.CompletedAt = nil
				if err := q.PublishTransfer(ctx, &retry); err != nil {
					q.runFinal(ctx, &retry, handler, err)
				}
			})
		} else {
			job.Status = jobs.JobStatusFailed
		}
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// runFinal runs a retry that could not be queued as the job's last attempt,
// so a failed charge still settles its transaction.
func (q *Queue) runFinal(ctx context.Context, job *jobs.TransferJob, handler jobs.JobHandler, cause error) {
	q.log.Error().
		Err(cause).
		Str("job_id", job.JobID).
		Str("transaction_id", job.TransactionID).
		Int("retry", job.RetryCount).
		Msg("Retry could not be queued, running final attempt")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalAttemptTimeout)
	defer cancel()

	job.RetryCount = job.MaxRetries
	q.processJob(ctx, job, handler)
}

// Stop stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher     = (*Queue)(nil)
	_ jobs.Consumer      = (*Queue)(nil)
	_ savings.Dispatcher = (*Queue)(nil)
)
