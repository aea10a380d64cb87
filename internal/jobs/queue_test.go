package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()

	base := []Option{
		WithWorkers(2),
		WithRetryInterval(time.Millisecond),
		WithJobTimeout(time.Second),
	}
	q := NewQueue(append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Close(ctx)
	})
	return q
}

func drain(t *testing.T, q *Queue) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
}

func TestQueueRunsJobs(t *testing.T) {
	q := newTestQueue(t)

	var ran atomic.Int32
	ok := q.Enqueue(Job{Kind: "test", Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}})
	require.True(t, ok)

	drain(t, q)
	assert.Equal(t, int32(1), ran.Load())
}

func TestQueueRetriesTransientFailures(t *testing.T) {
	q := newTestQueue(t)

	var attempts atomic.Int32
	q.Enqueue(Job{Kind: "flaky", Run: func(context.Context) error {
		if attempts.Add(1) < 3 {
			return ErrRetryLater
		}
		return nil
	}})

	drain(t, q)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueueDoesNotRetryPermanentFailures(t *testing.T) {
	q := newTestQueue(t)

	var attempts atomic.Int32
	q.Enqueue(Job{Kind: "broken", Run: func(context.Context) error {
		attempts.Add(1)
		return errors.New("boom")
	}})

	drain(t, q)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t, WithMaxRetries(2))

	var attempts atomic.Int32
	q.Enqueue(Job{Kind: "hopeless", Run: func(context.Context) error {
		attempts.Add(1)
		return ErrRetryLater
	}})

	drain(t, q)
	assert.Equal(t, int32(3), attempts.Load(), "initial attempt plus two retries")
}

func TestQueueDropsWhenBufferFull(t *testing.T) {
	q := newTestQueue(t, WithWorkers(1), WithBuffer(1))

	release := make(chan struct{})
	q.Enqueue(Job{Kind: "blocker", Run: func(context.Context) error {
		<-release
		return nil
	}})

	// Give the single worker time to pick up the blocker, then fill the
	// buffer and overflow it.
	time.Sleep(50 * time.Millisecond)
	first := q.Enqueue(Job{Kind: "buffered", Run: func(context.Context) error { return nil }})
	second := q.Enqueue(Job{Kind: "overflow", Run: func(context.Context) error { return nil }})

	assert.True(t, first)
	assert.False(t, second)

	close(release)
	drain(t, q)
}

func TestQueueRejectsAfterClose(t *testing.T) {
	q := NewQueue(WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))

	ok := q.Enqueue(Job{Kind: "late", Run: func(context.Context) error { return nil }})
	assert.False(t, ok)
}

func TestQueueIgnoresNilRun(t *testing.T) {
	q := newTestQueue(t)
	assert.False(t, q.Enqueue(Job{Kind: "empty"}))
}
