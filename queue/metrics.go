package queue

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a point-in-time snapshot of queue counters.
type Metrics struct {
	Submitted         int64         `json:"tasks_submitted"`
	Completed         int64         `json:"tasks_completed"`
	Failed            int64         `json:"tasks_failed"`
	QueueDepth        int           `json:"queue_depth"`
	Workers           int           `json:"workers"`
	Running           bool          `json:"running"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
}

type metrics struct {
	submitted atomic.Int64
	failed    atomic.Int64
	workers   atomic.Int64

	mu        sync.Mutex
	completed int64
	avg       time.Duration
}

// complete records a successful task and folds its duration into the running
// average: avg = (avg*(n-1) + sample) / n.
func (m *metrics) complete(d time.Duration) {
	m.mu.Lock()
	m.completed++
	n := m.completed
	m.avg = time.Duration((int64(m.avg)*(n-1) + int64(d)) / n)
	m.mu.Unlock()
}

func (m *metrics) snapshot(depth int, running bool) Metrics {
	m.mu.Lock()
	completed := m.completed
	avg := m.avg
	m.mu.Unlock()
	return Metrics{
		Submitted:         m.submitted.Load(),
		Completed:         completed,
		Failed:            m.failed.Load(),
		QueueDepth:        depth,
		Workers:           int(m.workers.Load()),
		Running:           running,
		AvgProcessingTime: avg,
	}
}
