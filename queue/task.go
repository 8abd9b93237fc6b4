package queue

import (
	"context"
	"fmt"
	"time"
)

// Priority orders tasks in the queue. Lower values are more urgent.
type Priority int

const (
	// PriorityHigh is for critical work: payment processing, security events.
	PriorityHigh Priority = 1
	// PriorityNormal is for standard work: machine operations, customer updates.
	PriorityNormal Priority = 2
	// PriorityLow is for background work: analytics, cleanup, cache warming.
	PriorityLow Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("low+%d", int(p-PriorityLow))
	}
}

// demote returns the next less-urgent priority. Demotion is unbounded: a task
// retried past PriorityLow keeps sorting behind fresh low-priority work. This
// is the retry fairness policy: repeatedly failing work falls behind fresh
// work of its original priority and never moves back up.
func (p Priority) demote() Priority {
	return p + 1
}

// Handler processes the payload of a dequeued task. A non-nil error triggers
// the retry policy. The context is the queue's run context; it is cancelled
// only after Stop has drained in-flight work.
type Handler func(ctx context.Context, payload any) error

// Task is a unit of background work. ID is assigned at submission and never
// changes; Priority only ever moves toward less urgent. Retries and LastError
// are mutated exclusively by the worker that dequeued the task.
type Task struct {
	ID          string
	Type        string
	Payload     any
	Priority    Priority
	SubmittedAt time.Time
	Delay       time.Duration
	Retries     int
	LastError   string

	// seq is assigned once at submission and breaks ties among equal
	// priorities. Wall-clock time cannot: two tasks submitted in the same
	// instant must still be strictly ordered.
	seq uint64
}

// taskHeap is a min-heap ordered by (priority, submission sequence).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*Task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}
