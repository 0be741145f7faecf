// Package queue holds fire-and-forget store writes until a worker runs them.
//
// Writes whose failure must not block the caller (moves, heartbeats, progress
// snapshots, teardown calls) are queued here and executed in order.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/gridduel/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Op is one deferred write.
type Op struct {
	// Name labels the op in logs and metrics, e.g. "submit_move".
	Name string
	// Key identifies the target document for logging.
	Key        string
	Run        func(ctx context.Context) error
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an op to the queue.
	// Returns false if the queue is full or closed and the op was dropped.
	Enqueue(ctx context.Context, op Op) bool

	// Dequeue returns the channel ops are delivered on, in enqueue order.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Op

	// Len returns the current number of queued ops.
	Len(ctx context.Context) int

	// Close stops accepting ops. Already queued ops are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	ops      chan Op
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ops = make(chan Op, q.capacity)
	return q
}

// Enqueue adds an op to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, op Op) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordOutboxDrop()
		metrics.RecordErrorByComponent("outbox", "closed")
		return false
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now()
	}

	select {
	case <-ctx.Done():
		metrics.RecordOutboxDrop()
		metrics.RecordErrorByComponent("outbox", "context_cancelled")
		return false
	default:
	}

	select {
	case q.ops <- op:
		metrics.RecordOutboxEnqueue()
		metrics.UpdateOutboxDepth(len(q.ops))
		return true
	default:
		metrics.RecordOutboxDrop()
		metrics.RecordErrorByComponent("outbox", "queue_full")
		return false
	}
}

// Dequeue returns the delivery channel.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Op {
	return q.ops
}

// Len returns the current number of queued ops.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.ops)
	metrics.UpdateOutboxDepth(size)
	return size
}

// Close stops accepting ops.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.ops)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
