package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/rally/internal/adapters/mq/queue"
	"github.com/okian/rally/internal/adapters/mq/worker"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
)

// Pipeline errors. Both resolve the pending delivery as failed.
var (
	ErrBackpressure   = errors.New("delivery queue full")
	ErrPipelineClosed = errors.New("delivery pipeline closed")
)

const defaultQueueSize = 1024

// Pending is a submitted event whose delivery may still be in flight.
type Pending struct {
	event   model.MatchEvent
	done    chan struct{}
	once    sync.Once
	outcome model.Outcome
}

func newPending(ev model.MatchEvent) *Pending {
	return &Pending{event: ev, done: make(chan struct{})}
}

// Event returns the constructed event. It is available immediately.
func (p *Pending) Event() model.MatchEvent { return p.event }

// Done is closed once the outcome is known.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Outcome returns the outcome and whether it is known yet.
func (p *Pending) Outcome() (model.Outcome, bool) {
	select {
	case <-p.done:
		return p.outcome, true
	default:
		return model.Outcome{}, false
	}
}

// Wait blocks until the outcome is known or ctx ends. Ending ctx does not
// cancel the delivery.
func (p *Pending) Wait(ctx context.Context) (model.Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, nil
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	}
}

func (p *Pending) resolve(out model.Outcome) bool {
	resolved := false
	p.once.Do(func() {
		p.outcome = out
		close(p.done)
		resolved = true
	})
	return resolved
}

// Observer is told about every terminal outcome.
type Observer func(model.Outcome)

// Pipeline delivers submissions one at a time, in the order they were accepted,
// without making the submitter wait.
type Pipeline struct {
	dispatcher *Dispatcher
	queue      *queue.InMemoryQueue[*Pending]
	worker     *worker.InMemoryWorker[*Pending]
	logger     logger.Logger

	mu        sync.RWMutex
	observers []Observer
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*pipelineSettings)

type pipelineSettings struct {
	queueSize int
	logger    logger.Logger
	observers []Observer
}

// WithQueueSize bounds how many deliveries may wait.
func WithQueueSize(n int) PipelineOption {
	return func(s *pipelineSettings) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) PipelineOption {
	return func(s *pipelineSettings) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l logger.Logger) PipelineOption {
	return func(s *pipelineSettings) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewPipeline wires a queue and a single delivery worker around d.
func NewPipeline(d *Dispatcher, opts ...PipelineOption) *Pipeline {
	cfg := pipelineSettings{queueSize: defaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get()
	}

	p := &Pipeline{
		dispatcher: d,
		queue:      queue.NewInMemoryQueue[*Pending](queue.WithCapacity(cfg.queueSize)),
		logger:     cfg.logger.Named("pipeline"),
		observers:  cfg.observers,
	}
	p.worker = worker.NewInMemoryWorker[*Pending](
		p.queue,
		worker.HandlerFunc[*Pending](p.handle),
		worker.WithName("delivery"),
		worker.WithLogger(cfg.logger),
	)
	return p
}

// Start runs the delivery worker. Canceling ctx does not abort deliveries;
// use Shutdown.
func (p *Pipeline) Start(ctx context.Context) {
	go p.worker.Run(context.WithoutCancel(ctx))
}

// Observe registers another outcome observer.
func (p *Pipeline) Observe(o Observer) {
	if o == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// Submit builds the event now and queues its delivery. The returned handle
// carries the event at once; its outcome resolves later.
func (p *Pipeline) Submit(ctx context.Context, in model.MatchInput) (*Pending, error) {
	ev, err := p.dispatcher.Build(ctx, in)
	if err != nil {
		return nil, err
	}
	return p.Enqueue(ctx, ev), nil
}

// Enqueue queues delivery of an already built event.
func (p *Pipeline) Enqueue(ctx context.Context, ev model.MatchEvent) *Pending {
	pending := newPending(ev)
	if p.queue.Enqueue(context.WithoutCancel(ctx), pending) {
		return pending
	}

	cause := ErrBackpressure
	if p.queue.IsClosed() {
		cause = ErrPipelineClosed
	}
	p.logger.Error(ctx, "delivery not queued", logger.String("game_id", ev.GameID), logger.Error(cause))
	p.finish(pending, model.Failed(ev, cause))
	return pending
}

// Len returns the number of deliveries waiting.
func (p *Pipeline) Len(ctx context.Context) int {
	return p.queue.Len(ctx)
}

// Capacity returns the queue bound.
func (p *Pipeline) Capacity() int {
	return p.queue.Capacity()
}

// Shutdown stops accepting submissions and waits for queued deliveries,
// bounded by ctx. Deliveries still queued when ctx ends resolve as failed.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	err := p.worker.Shutdown(ctx)
	if err == nil {
		return nil
	}
	for pending := range p.queue.Dequeue(ctx) {
		p.finish(pending, model.Failed(pending.event, ErrPipelineClosed))
	}
	return err
}

func (p *Pipeline) handle(ctx context.Context, pending *Pending) error {
	p.finish(pending, p.dispatcher.Deliver(ctx, pending.event))
	return nil
}

func (p *Pipeline) finish(pending *Pending, out model.Outcome) {
	if !pending.resolve(out) {
		return
	}
	p.mu.RLock()
	observers := p.observers
	p.mu.RUnlock()
	for _, o := range observers {
		o(out)
	}
}
