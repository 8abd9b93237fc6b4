// Package queue provides an in-memory priority task queue drained by a fixed
// pool of workers. It decouples request handling from slow or unreliable
// side effects: control-plane calls to the machine provider, payment-webhook
// processing, cache warming.
//
// # Ordering
//
// The queue is a min-heap keyed by (priority, submission sequence). Among
// equal priorities tasks run in submission order; across priorities more
// urgent work is always dequeued first once it is in the queue, but a worker
// already executing a less urgent task is not preempted.
//
// # Retries
//
// A failing handler is retried up to the configured maximum (default 3
// retries after the initial attempt). Each retry demotes the task one
// priority step, so repeatedly failing work falls behind fresh work of its
// original priority. This demotion is deliberate policy, not an accident of
// reusing the priority field. After the final failure the task is dropped
// and only the failed counter records it. There is no dead-letter sink and
// no per-task timeout; both are known gaps to close before depending on this
// queue for work that must not be lost or that can hang.
//
// # Lifecycle
//
// Queues are explicit values: construct with New, inject where needed, call
// Start during process startup and Stop during shutdown. Stop is a graceful
// drain: in-flight handlers finish, no new handler starts, and tasks still
// queued are abandoned (queued work does not survive restarts either; both
// are accepted limitations of the single-process design).
//
// # Idempotent submission
//
// [IdempotentQueue] wraps a TaskQueue with a bounded registry of
// caller-supplied correlation keys, guaranteeing a given key is enqueued at
// most once within the registry's retention window:
//
//	pq := queue.NewIdempotent(queue.New(ctx, queue.WithWorkers(3)))
//	pq.RegisterHandler("payment_completed", handlePayment)
//	pq.Start()
//	if id, ok := pq.SubmitIdempotent("payment_completed", event, event.ID, queue.PriorityHigh); ok {
//	    log.Info("queued payment task %s", id)
//	}
package queue
