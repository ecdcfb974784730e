package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WorkerQueue runs jobs on a fixed worker pool. A failing job is retried with
// a fixed backoff until the attempt budget runs out, then handed to the
// handler's Dead hook.
type WorkerQueue struct {
	dispatcher  *Dispatcher
	logger      *zap.Logger
	workers     int
	jobTimeout  time.Duration
	maxAttempts int
	retryDelay  time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*WorkerQueue)

func WithWorkers(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(q *WorkerQueue) {
		if d > 0 {
			q.jobTimeout = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(q *WorkerQueue) {
		if d >= 0 {
			q.retryDelay = d
		}
	}
}

func NewWorkerQueue(dispatcher *Dispatcher, logger *zap.Logger, opts ...Option) *WorkerQueue {
	q := &WorkerQueue{
		dispatcher:  dispatcher,
		logger:      logger,
		workers:     4,
		jobTimeout:  3 * time.Minute,
		maxAttempts: 3,
		retryDelay:  10 * time.Second,
		ch:          make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *WorkerQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue worker started", zap.Int("worker_id", workerID))

				for job := range q.ch {
					q.process(job)
				}

				q.logger.Info("queue worker stopped", zap.Int("worker_id", workerID))
			}(i + 1)
		}
	})
}

func (q *WorkerQueue) process(job Job) {
	handler, err := q.dispatcher.handler(job.Type)
	if err != nil {
		q.logger.Error("dropping job", zap.String("type", job.Type), zap.Error(err))
		return
	}

	var lastErr error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
		lastErr = handler.Run(ctx, job)
		cancel()

		if lastErr == nil {
			q.logger.Info("job completed",
				zap.String("type", job.Type),
				zap.Int("attempt", attempt),
			)
			return
		}

		q.logger.Error("job attempt failed",
			zap.String("type", job.Type),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if attempt < q.maxAttempts {
			time.Sleep(q.retryDelay)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
	handler.Dead(ctx, job, lastErr)
	cancel()
}

func (q *WorkerQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", zap.String("type", job.Type))
		return nil
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue full, applying backpressure", zap.String("type", job.Type))
		q.ch <- job
	}
	return nil
}

func (q *WorkerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
