package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSyncQueueRetriesThenSucceeds(t *testing.T) {
	dispatcher := NewDispatcher()
	attempts := 0
	dispatcher.Register("flaky", HandlerFuncs(
		func(context.Context, Job) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		},
		func(context.Context, Job, error) {
			t.Fatal("dead hook must not fire when a retry succeeds")
		},
	))

	q := NewSyncQueue(dispatcher, 3)
	require.NoError(t, q.Enqueue(context.Background(), Job{Type: "flaky"}))
	assert.Equal(t, 3, attempts)
}

func TestSyncQueueDeadAfterBudgetExhausted(t *testing.T) {
	dispatcher := NewDispatcher()
	attempts := 0
	var deadCause error
	dispatcher.Register("doomed", HandlerFuncs(
		func(context.Context, Job) error {
			attempts++
			return errors.New("permanent")
		},
		func(_ context.Context, _ Job, cause error) {
			deadCause = cause
		},
	))

	q := NewSyncQueue(dispatcher, 2)
	require.NoError(t, q.Enqueue(context.Background(), Job{Type: "doomed"}))
	assert.Equal(t, 2, attempts)
	require.Error(t, deadCause)
	assert.Equal(t, "permanent", deadCause.Error())
}

func TestSyncQueueUnknownJobType(t *testing.T) {
	q := NewSyncQueue(NewDispatcher(), 1)
	err := q.Enqueue(context.Background(), Job{Type: "nobody-home"})
	require.Error(t, err)
}

func TestHandlerFuncsNilDead(t *testing.T) {
	h := HandlerFuncs(func(context.Context, Job) error { return nil }, nil)
	// Must not panic.
	h.Dead(context.Background(), Job{}, errors.New("x"))
}

func TestWorkerQueueProcessesAndDrains(t *testing.T) {
	dispatcher := NewDispatcher()
	var done atomic.Int32
	dispatcher.Register("work", HandlerFuncs(
		func(context.Context, Job) error {
			done.Add(1)
			return nil
		},
		nil,
	))

	q := NewWorkerQueue(dispatcher, zap.NewNop(), WithWorkers(2), WithRetryDelay(0))
	for i := 0; i < 8; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{Type: "work"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.EqualValues(t, 8, done.Load())
}

func TestWorkerQueueDeadLetter(t *testing.T) {
	dispatcher := NewDispatcher()
	var attempts, deads atomic.Int32
	dispatcher.Register("doomed", HandlerFuncs(
		func(context.Context, Job) error {
			attempts.Add(1)
			return errors.New("permanent")
		},
		func(context.Context, Job, error) {
			deads.Add(1)
		},
	))

	q := NewWorkerQueue(dispatcher, zap.NewNop(),
		WithWorkers(1),
		WithMaxAttempts(3),
		WithRetryDelay(time.Millisecond),
	)
	require.NoError(t, q.Enqueue(context.Background(), Job{Type: "doomed"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.EqualValues(t, 3, attempts.Load())
	assert.EqualValues(t, 1, deads.Load())
}

func TestWorkerQueueEnqueueAfterShutdown(t *testing.T) {
	q := NewWorkerQueue(NewDispatcher(), zap.NewNop(), WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)

	// Dropped with a warning instead of panicking on a closed channel.
	require.NoError(t, q.Enqueue(context.Background(), Job{Type: "late"}))
}
