package queue

import (
	"container/heap"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openclaw/go-common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func newTestQueue(t *testing.T, opts ...Option) *TaskQueue {
	t.Helper()
	opts = append([]Option{
		WithPollInterval(10 * time.Millisecond),
		WithQueueLogger(logger.NewTestLogger()),
	}, opts...)
	return New(context.Background(), opts...)
}

func TestSubmitReturnsImmediately(t *testing.T) {
	q := newTestQueue(t)

	id := q.Submit("unstarted", nil, PriorityNormal, 0)
	assert.NotEmpty(t, id)

	m := q.Metrics()
	assert.Equal(t, int64(1), m.Submitted)
	assert.Equal(t, 1, m.QueueDepth)
	assert.False(t, m.Running)
}

func TestPriorityOrdering(t *testing.T) {
	q := newTestQueue(t, WithWorkers(1))

	var mu sync.Mutex
	var order []string
	q.RegisterHandler("work", func(ctx context.Context, payload any) error {
		mu.Lock()
		order = append(order, payload.(string))
		mu.Unlock()
		return nil
	})

	// submit in reverse urgency before any worker runs
	q.Submit("work", "low", PriorityLow, 0)
	q.Submit("work", "normal", PriorityNormal, 0)
	q.Submit("work", "high", PriorityHigh, 0)

	q.Start()
	defer q.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return q.Metrics().Completed == 3
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high", "normal", "low"}, order)
}

func TestFIFOAmongEqualPriority(t *testing.T) {
	q := newTestQueue(t, WithWorkers(1))

	var mu sync.Mutex
	var order []int
	q.RegisterHandler("work", func(ctx context.Context, payload any) error {
		mu.Lock()
		order = append(order, payload.(int))
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		q.Submit("work", i, PriorityNormal, 0)
	}

	q.Start()
	defer q.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return q.Metrics().Completed == 5
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRetryExhaustion(t *testing.T) {
	q := newTestQueue(t, WithWorkers(1))

	var attempts atomic.Int64
	q.RegisterHandler("doomed", func(ctx context.Context, payload any) error {
		attempts.Add(1)
		return errors.New("always fails")
	})

	q.Submit("doomed", nil, PriorityHigh, 0)
	q.Start()
	defer q.Stop()

	// initial attempt + 3 retries, then dropped
	waitFor(t, 2*time.Second, func() bool {
		return attempts.Load() == 4 && q.Metrics().QueueDepth == 0
	})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(4), attempts.Load())

	m := q.Metrics()
	assert.Equal(t, int64(4), m.Failed)
	assert.Equal(t, int64(0), m.Completed)
}

func TestRetryDemotesPriority(t *testing.T) {
	q := newTestQueue(t)
	q.RegisterHandler("doomed", func(ctx context.Context, payload any) error {
		return errors.New("always fails")
	})

	id := q.Submit("doomed", nil, PriorityHigh, 0)

	// drive the worker loop by hand so each requeue can be inspected
	priorities := []Priority{PriorityHigh}
	for attempt := 0; attempt < 4; attempt++ {
		q.mu.Lock()
		require.Equal(t, 1, q.tasks.Len())
		task := heap.Pop(&q.tasks).(*Task)
		q.mu.Unlock()

		assert.Equal(t, id, task.ID)
		assert.Equal(t, attempt, task.Retries)
		q.process(q.log, task)

		q.mu.Lock()
		if q.tasks.Len() > 0 {
			priorities = append(priorities, q.tasks[0].Priority)
			assert.Equal(t, "always fails", q.tasks[0].LastError)
		}
		q.mu.Unlock()
	}

	// strictly less urgent after every failure, past PriorityLow if need be
	require.Equal(t, []Priority{PriorityHigh, PriorityNormal, PriorityLow, PriorityLow + 1}, priorities)

	// retries exhausted: the task is gone
	q.mu.Lock()
	assert.Equal(t, 0, q.tasks.Len())
	q.mu.Unlock()
}

func TestNoHandlerDropped(t *testing.T) {
	log := logger.NewTestLogger()
	q := New(context.Background(),
		WithWorkers(1),
		WithPollInterval(10*time.Millisecond),
		WithQueueLogger(log),
	)

	q.Submit("unregistered", nil, PriorityNormal, 0)
	q.Start()
	defer q.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return q.Metrics().QueueDepth == 0
	})
	waitFor(t, time.Second, func() bool {
		for _, entry := range log.Logs() {
			if entry.Severity == "WARNING" && strings.Contains(entry.Message, "no handler") {
				return true
			}
		}
		return false
	})

	// not retried, not counted as completed or failed
	m := q.Metrics()
	assert.Equal(t, int64(0), m.Completed)
	assert.Equal(t, int64(0), m.Failed)
}

func TestStopDrainsInFlight(t *testing.T) {
	q := newTestQueue(t, WithWorkers(1))

	var completed atomic.Bool
	started := make(chan struct{})
	q.RegisterHandler("slow", func(ctx context.Context, payload any) error {
		close(started)
		time.Sleep(150 * time.Millisecond)
		completed.Store(true)
		return nil
	})

	q.Submit("slow", nil, PriorityNormal, 0)
	q.Start()
	<-started

	q.Stop()
	assert.True(t, completed.Load(), "Stop must wait for the in-flight handler")
}

func TestNoHandlerStartsAfterStop(t *testing.T) {
	q := newTestQueue(t, WithWorkers(2))

	var started atomic.Int64
	q.RegisterHandler("work", func(ctx context.Context, payload any) error {
		started.Add(1)
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	for i := 0; i < 20; i++ {
		q.Submit("work", i, PriorityNormal, 0)
	}
	q.Start()
	waitFor(t, time.Second, func() bool { return started.Load() >= 2 })

	q.Stop()
	after := started.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, after, started.Load())
	assert.Less(t, after, int64(20), "queued tasks are abandoned on stop")
}

func TestDelayOccupiesOneWorkerOnly(t *testing.T) {
	q := newTestQueue(t, WithWorkers(2))

	var mu sync.Mutex
	var order []string
	q.RegisterHandler("work", func(ctx context.Context, payload any) error {
		mu.Lock()
		order = append(order, payload.(string))
		mu.Unlock()
		return nil
	})

	q.Submit("work", "delayed", PriorityHigh, 200*time.Millisecond)
	q.Submit("work", "prompt", PriorityLow, 0)

	q.Start()
	defer q.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return q.Metrics().Completed == 2
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"prompt", "delayed"}, order,
		"a delayed task must not block the other worker")
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	q := newTestQueue(t, WithWorkers(1), WithMaxRetries(0))

	var panics atomic.Int64
	q.RegisterHandler("explode", func(ctx context.Context, payload any) error {
		panics.Add(1)
		panic("kaboom")
	})
	var survived atomic.Bool
	q.RegisterHandler("after", func(ctx context.Context, payload any) error {
		survived.Store(true)
		return nil
	})

	q.Submit("explode", nil, PriorityNormal, 0)
	q.Submit("after", nil, PriorityNormal, 0)
	q.Start()
	defer q.Stop()

	waitFor(t, 2*time.Second, func() bool { return survived.Load() })
	assert.Equal(t, int64(1), panics.Load())
	assert.Equal(t, int64(1), q.Metrics().Failed)
}

func TestMetricsAverageProcessingTime(t *testing.T) {
	q := newTestQueue(t, WithWorkers(2))

	q.RegisterHandler("work", func(ctx context.Context, payload any) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	q.Submit("work", nil, PriorityNormal, 0)
	q.Submit("work", nil, PriorityNormal, 0)

	q.Start()
	waitFor(t, 2*time.Second, func() bool {
		return q.Metrics().Completed == 2
	})

	m := q.Metrics()
	assert.Equal(t, int64(2), m.Submitted)
	assert.GreaterOrEqual(t, m.AvgProcessingTime, 15*time.Millisecond)
	assert.Equal(t, 2, m.Workers)
	assert.True(t, m.Running)

	q.Stop()
	m = q.Metrics()
	assert.False(t, m.Running)
	assert.Equal(t, 0, m.Workers)
}

func TestRestartGivesHandlersLiveContext(t *testing.T) {
	q := newTestQueue(t, WithWorkers(1))

	ctxErrs := make(chan error, 2)
	q.RegisterHandler("work", func(ctx context.Context, payload any) error {
		ctxErrs <- ctx.Err()
		return nil
	})

	q.Submit("work", nil, PriorityNormal, 0)
	q.Start()
	waitFor(t, 2*time.Second, func() bool { return q.Metrics().Completed == 1 })
	q.Stop()

	// second run after a full stop: the handler context must not be the
	// cancelled one from the first run
	q.Submit("work", nil, PriorityNormal, 0)
	q.Start()
	waitFor(t, 2*time.Second, func() bool { return q.Metrics().Completed == 2 })
	q.Stop()

	for i := 0; i < 2; i++ {
		assert.NoError(t, <-ctxErrs)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	q := newTestQueue(t, WithWorkers(1))
	q.Start()
	q.Start()
	q.Stop()
	q.Stop()
}
