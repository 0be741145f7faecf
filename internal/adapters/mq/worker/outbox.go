package worker

import (
	"context"
	"time"

	"github.com/okian/gridduel/internal/adapters/mq/queue"
)

// Outbox pairs a bounded queue with its single worker.
type Outbox struct {
	q *queue.InMemoryQueue
	w *InMemoryWorker
}

// NewOutbox creates an outbox holding up to capacity pending ops.
func NewOutbox(capacity int, opts ...Option) *Outbox {
	q := queue.NewInMemoryQueue(queue.WithCapacity(capacity))
	return &Outbox{q: q, w: NewInMemoryWorker(q, opts...)}
}

// Start runs the worker until Drain or ctx cancellation.
func (o *Outbox) Start(ctx context.Context) { go o.w.Run(ctx) }

// Submit queues fn. It returns false if the op was dropped.
func (o *Outbox) Submit(ctx context.Context, name, key string, fn func(ctx context.Context) error) bool {
	return o.q.Enqueue(ctx, queue.Op{Name: name, Key: key, Run: fn, EnqueuedAt: time.Now()})
}

// Pending returns the number of ops not yet started.
func (o *Outbox) Pending(ctx context.Context) int { return o.q.Len(ctx) }

// Drain stops accepting ops and waits up to ctx for queued ops to finish.
func (o *Outbox) Drain(ctx context.Context) error { return o.w.Shutdown(ctx) }
