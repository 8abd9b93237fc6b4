package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openclaw/go-common/logger"
)

// DefaultWorkers is the default size of the worker pool.
const DefaultWorkers = 5

// DefaultMaxRetries is the default number of retries after the initial
// attempt. A task is attempted at most DefaultMaxRetries+1 times.
const DefaultMaxRetries = 3

// DefaultPollInterval bounds how long an idle worker sleeps before rechecking
// for work, so a stop signal is noticed promptly even without submissions.
const DefaultPollInterval = time.Second

// config holds the resolved configuration for a TaskQueue.
type config struct {
	workers      int
	maxRetries   int
	pollInterval time.Duration
	log          logger.Logger
}

// Option configures a TaskQueue.
type Option func(*config)

func defaultQueueConfig() config {
	return config{
		workers:      DefaultWorkers,
		maxRetries:   DefaultMaxRetries,
		pollInterval: DefaultPollInterval,
	}
}

// WithWorkers sets the number of worker goroutines Start launches.
// Defaults to DefaultWorkers.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithMaxRetries sets the number of retries after the initial attempt.
// Defaults to DefaultMaxRetries.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithPollInterval sets the idle worker wake interval.
// Defaults to DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithQueueLogger sets the logger used by workers.
func WithQueueLogger(log logger.Logger) Option {
	return func(c *config) { c.log = log }
}

// TaskQueue is a priority-ordered in-memory work queue drained by a fixed
// pool of workers. Construct with New, wire handlers with RegisterHandler,
// then Start. Queued work does not survive a process restart.
type TaskQueue struct {
	cfg    config
	log    logger.Logger
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	tasks    taskHeap
	handlers map[string]Handler
	seq      uint64
	running  bool
	stopped  bool
	stopCh   chan struct{}

	wake chan struct{}
	wg   sync.WaitGroup

	metrics metrics
}

// New returns a TaskQueue. No workers run until Start is called.
func New(parent context.Context, opts ...Option) *TaskQueue {
	cfg := defaultQueueConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.NewConsoleLogger()
	}
	ctx, cancel := context.WithCancel(parent)
	return &TaskQueue{
		cfg:      cfg,
		log:      cfg.log.WithPrefix("queue"),
		parent:   parent,
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[string]Handler),
		wake:     make(chan struct{}, 1),
	}
}

// RegisterHandler associates a task type with a handler. It must be called
// before a task of that type is dequeued: a task with no registered handler
// at execution time is logged and dropped, not retried.
func (q *TaskQueue) RegisterHandler(taskType string, handler Handler) {
	q.mu.Lock()
	q.handlers[taskType] = handler
	q.mu.Unlock()
}

// Submit enqueues a task and returns its id immediately. Submission always
// succeeds; there is no back-pressure signal. A non-zero delay is slept by
// the worker after dequeue, before the handler runs; it holds one worker
// slot but never blocks other workers from draining the queue.
func (q *TaskQueue) Submit(taskType string, payload any, priority Priority, delay time.Duration) string {
	task := &Task{
		ID:          uuid.NewString(),
		Type:        taskType,
		Payload:     payload,
		Priority:    priority,
		SubmittedAt: time.Now(),
		Delay:       delay,
	}
	q.mu.Lock()
	q.seq++
	task.seq = q.seq
	heap.Push(&q.tasks, task)
	q.mu.Unlock()
	q.metrics.submitted.Add(1)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return task.ID
}

// Start launches the worker pool. Calling Start on a running queue is a no-op.
func (q *TaskQueue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.stopped = false
	q.stopCh = make(chan struct{})
	if q.ctx.Err() != nil {
		// Stop cancelled the previous run context; a restarted queue must
		// hand handlers a live one
		q.ctx, q.cancel = context.WithCancel(q.parent)
	}
	q.mu.Unlock()

	q.metrics.workers.Store(int64(q.cfg.workers))
	for i := 0; i < q.cfg.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.log.Debug("started %d workers", q.cfg.workers)
}

// Stop signals every worker to finish its current task and exit, then waits
// for all of them. In-flight handlers run to completion; no new handler
// starts after Stop is called. Tasks still queued are left unprocessed.
func (q *TaskQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.stopped = true
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	q.metrics.workers.Store(0)
	q.cancel()
	q.log.Debug("stopped")
}

// Metrics returns a snapshot of the queue counters.
func (q *TaskQueue) Metrics() Metrics {
	q.mu.Lock()
	depth := q.tasks.Len()
	running := q.running
	q.mu.Unlock()
	return q.metrics.snapshot(depth, running)
}

func (q *TaskQueue) worker(id int) {
	defer q.wg.Done()
	log := q.log.With(map[string]interface{}{"worker": id})
	for {
		task := q.dequeue()
		if task == nil {
			return
		}
		q.process(log, task)
	}
}

// dequeue blocks until a task is available or stop is requested. Returns nil
// on stop. The stopped flag is checked under the queue lock so a worker never
// picks up new work once Stop has begun.
func (q *TaskQueue) dequeue() *Task {
	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return nil
		}
		if q.tasks.Len() > 0 {
			task := heap.Pop(&q.tasks).(*Task)
			q.mu.Unlock()
			return task
		}
		stopCh := q.stopCh
		q.mu.Unlock()
		select {
		case <-stopCh:
			return nil
		case <-q.wake:
		case <-time.After(q.cfg.pollInterval):
		}
	}
}

func (q *TaskQueue) process(log logger.Logger, task *Task) {
	if task.Delay > 0 {
		time.Sleep(task.Delay)
	}
	q.mu.Lock()
	handler, ok := q.handlers[task.Type]
	q.mu.Unlock()
	if !ok {
		log.Warn("no handler for task type %s, dropping task %s", task.Type, task.ID)
		return
	}

	start := time.Now()
	err := q.invoke(handler, task)
	if err == nil {
		q.metrics.complete(time.Since(start))
		return
	}

	q.metrics.failed.Add(1)
	if task.Retries < q.cfg.maxRetries {
		task.Retries++
		task.LastError = err.Error()
		task.Priority = task.Priority.demote()
		log.Warn("task %s (%s) failed, retry %d at priority %s: %v",
			task.ID, task.Type, task.Retries, task.Priority, err)
		q.requeue(task)
		return
	}
	log.Error("task %s (%s) dropped after %d attempts: %v",
		task.ID, task.Type, task.Retries+1, err)
}

// invoke runs the handler, converting a panic into an error so one bad task
// never kills a worker loop.
func (q *TaskQueue) invoke(handler Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(q.ctx, task.Payload)
}

// requeue puts a failed task back with its original id and sequence. Keeping
// the sequence preserves its place among equal-priority work submitted at the
// same time; the demoted priority is what pushes it behind fresh work.
func (q *TaskQueue) requeue(task *Task) {
	q.mu.Lock()
	heap.Push(&q.tasks, task)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
