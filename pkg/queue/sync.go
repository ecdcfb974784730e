package queue

import (
	"context"
)

// SyncQueue runs every job inline on the enqueueing goroutine, with the same
// retry-then-dead semantics as WorkerQueue but no delay. Deterministic, for
// tests.
type SyncQueue struct {
	dispatcher  *Dispatcher
	maxAttempts int
}

func NewSyncQueue(dispatcher *Dispatcher, maxAttempts int) *SyncQueue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &SyncQueue{dispatcher: dispatcher, maxAttempts: maxAttempts}
}

func (q *SyncQueue) Enqueue(ctx context.Context, job Job) error {
	handler, err := q.dispatcher.handler(job.Type)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		lastErr = handler.Run(ctx, job)
		if lastErr == nil {
			return nil
		}
	}

	handler.Dead(ctx, job, lastErr)
	return nil
}

func (q *SyncQueue) Shutdown(context.Context) {}
