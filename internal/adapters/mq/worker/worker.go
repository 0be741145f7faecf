// Package worker runs queued store writes in order on a single goroutine.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/gridduel/internal/adapters/mq/queue"
	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultOpTimeout = 5 * time.Second
)

// Queue defines how workers receive ops.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Op
	Close() error
}

// Worker executes queued ops.
type Worker interface {
	// Run executes ops until the queue is closed and drained or ctx is canceled.
	Run(ctx context.Context)

	// Shutdown closes the queue and waits for the remaining ops to run.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker. A single worker preserves enqueue order,
// which keeps a player's moves and the teardown sequence ordered.
type InMemoryWorker struct {
	queue     Queue
	name      string
	opTimeout time.Duration

	once sync.Once
	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		name:      "outbox",
		opTimeout: defaultOpTimeout,
		done:      make(chan struct{}),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop. Ops run under a context detached from ctx's
// cancellation so that teardown writes still complete; ctx only bounds how
// long the loop keeps pulling.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	ops := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case op, ok := <-ops:
			if !ok {
				return
			}
			w.process(ctx, op)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Shutdown closes the queue and waits for Run to drain it.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.once.Do(func() {
		if err := w.queue.Close(); err != nil {
			w.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	})

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one op. Failures are logged and counted, never retried.
func (w *InMemoryWorker) process(ctx context.Context, op queue.Op) {
	start := time.Now()
	defer func() {
		metrics.RecordOutboxLatency(float64(time.Since(start).Milliseconds()))
	}()
	if op.Run == nil {
		return
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opTimeout)
	defer cancel()

	if err := op.Run(opCtx); err != nil {
		metrics.RecordOutboxFailure(op.Name)
		metrics.RecordErrorByComponent("outbox", op.Name)
		w.logger.Warn(ctx, "outbox op failed",
			logger.String("op", op.Name),
			logger.String("key", op.Key),
			logger.Duration("queued", start.Sub(op.EnqueuedAt)),
			logger.Error(err),
		)
	}
}
