// Package worker drains a queue through a handler on a single goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// ErrStopped is returned by Shutdown when the worker had to be stopped before
// the queue was drained.
var ErrStopped = errors.New("worker stopped")

// Queue defines how workers receive items.
type Queue[T any] interface {
	Dequeue(ctx context.Context) <-chan T
}

// Handler processes a single item.
type Handler[T any] interface {
	Handle(ctx context.Context, item T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, item T) error

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, item T) error {
	return f(ctx, item)
}

// Worker processes items from a queue.
type Worker interface {
	// Run starts the worker loop until the queue closes or ctx is canceled.
	Run(ctx context.Context)

	// Shutdown closes the queue when it can be closed and waits for the items
	// already queued to be handled, bounded by ctx.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for items of type T.
type InMemoryWorker[T any] struct {
	queue   Queue[T]
	handler Handler[T]
	name    string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker[T any](queue Queue[T], handler Handler[T], opts ...Option) *InMemoryWorker[T] {
	cfg := settings{name: "worker"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get()
	}

	return &InMemoryWorker[T]{
		queue:   queue,
		handler: handler,
		name:    cfg.name,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  cfg.logger.Named(cfg.name),
	}
}

// Run starts the worker loop. It returns when the queue channel closes, ctx is
// canceled or Shutdown gives up waiting.
func (w *InMemoryWorker[T]) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.handler.Handle(ctx, item); err != nil {
				metrics.RecordWorkerError()
				w.logger.Error(ctx, "error handling item", logger.Error(err))
				continue
			}
			metrics.RecordWorkerProcessed()
		}
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker[T]) Done() <-chan struct{} {
	return w.done
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker[T]) Shutdown(ctx context.Context) error {
	if closer, ok := w.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			w.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.stopOnce.Do(func() { close(w.stop) })
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("%w: %w", ErrStopped, ctx.Err())
	}
}
