package queue

import "sync"

// DefaultSeenLimit caps the idempotency registry. On overflow the oldest half
// of the recorded keys is forgotten, trading a small chance of re-processing
// a very old duplicate for bounded memory.
const DefaultSeenLimit = 10000

// IdempotentOption configures an IdempotentQueue.
type IdempotentOption func(*IdempotentQueue)

// WithSeenLimit sets the registry cap. Defaults to DefaultSeenLimit.
func WithSeenLimit(n int) IdempotentOption {
	return func(q *IdempotentQueue) {
		if n > 0 {
			q.limit = n
		}
	}
}

// IdempotentQueue wraps a TaskQueue so that a caller-supplied correlation key
// (a payment id, a webhook event id) is enqueued at most once within the
// registry's retention window.
type IdempotentQueue struct {
	*TaskQueue

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	limit int
}

// NewIdempotent wraps q with an at-most-once submission registry.
func NewIdempotent(q *TaskQueue, opts ...IdempotentOption) *IdempotentQueue {
	iq := &IdempotentQueue{
		TaskQueue: q,
		seen:      make(map[string]struct{}),
		limit:     DefaultSeenLimit,
	}
	for _, opt := range opts {
		opt(iq)
	}
	return iq
}

// SubmitIdempotent submits a task unless key was already submitted, in which
// case it returns ok=false and the caller must treat the call as a no-op.
// The key is recorded before the task is enqueued, closing the race between
// two near-simultaneous submissions of the same key.
func (q *IdempotentQueue) SubmitIdempotent(taskType string, payload any, key string, priority Priority) (string, bool) {
	q.mu.Lock()
	if _, dup := q.seen[key]; dup {
		q.mu.Unlock()
		q.log.Debug("skipping duplicate submission for key %s", key)
		return "", false
	}
	q.seen[key] = struct{}{}
	q.order = append(q.order, key)
	if len(q.order) > q.limit {
		q.evictOldestLocked()
	}
	q.mu.Unlock()

	return q.Submit(taskType, payload, priority, 0), true
}

// Seen reports whether key is currently in the registry.
func (q *IdempotentQueue) Seen(key string) bool {
	q.mu.Lock()
	_, ok := q.seen[key]
	q.mu.Unlock()
	return ok
}

// evictOldestLocked forgets the oldest half of the registry. Caller holds q.mu.
func (q *IdempotentQueue) evictOldestLocked() {
	half := len(q.order) / 2
	for _, key := range q.order[:half] {
		delete(q.seen, key)
	}
	q.order = append(q.order[:0:0], q.order[half:]...)
}
