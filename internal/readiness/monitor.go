// Package readiness tracks whether the analytics client can accept calls.
//
// The monitor flips from false to true exactly once and never back. It learns
// about readiness either from a callback the client fires or, when the client
// only exposes a flag, by polling that flag at a bounded interval.
package readiness

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// DefaultPollInterval is how often an Initialized flag is checked.
const DefaultPollInterval = 100 * time.Millisecond

// Source exposes an initialization flag.
type Source interface {
	Initialized() bool
}

// Notifier accepts a callback fired once initialization completes.
type Notifier interface {
	Ready(fn func())
}

// Monitor holds the readiness state.
type Monitor struct {
	ready atomic.Bool
	done  chan struct{}
	once  sync.Once

	mu   sync.Mutex
	subs []func()

	interval time.Duration
	logger   logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPollInterval sets the polling interval used for flag-only sources.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns a monitor in the not-ready state.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Get()
	}
	m.logger = m.logger.Named("readiness")
	metrics.SetAnalyticsReady(false)
	return m
}

// Ready reports the current state.
func (m *Monitor) Ready() bool {
	return m.ready.Load()
}

// Done is closed when the monitor becomes ready.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// MarkReady moves the monitor to ready. Only the first call has any effect.
func (m *Monitor) MarkReady() {
	m.once.Do(func() {
		m.mu.Lock()
		m.ready.Store(true)
		subs := m.subs
		m.subs = nil
		m.mu.Unlock()

		close(m.done)
		metrics.SetAnalyticsReady(true)
		m.logger.Info(context.Background(), "analytics client ready")

		for _, fn := range subs {
			fn()
		}
	})
}

// OnReady runs fn once the monitor is ready, immediately if it already is.
func (m *Monitor) OnReady(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	if m.ready.Load() {
		m.mu.Unlock()
		fn()
		return
	}
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Watch starts following src. A Notifier gets a one-shot callback registered;
// any other source has its flag polled until it reports true, ctx ends or the
// monitor is closed. Watch never blocks.
func (m *Monitor) Watch(ctx context.Context, src Source) {
	if src == nil || m.closed.Load() || m.Ready() {
		return
	}

	if n, ok := src.(Notifier); ok {
		n.Ready(m.MarkReady)
		return
	}

	m.wg.Add(1)
	go m.poll(ctx, src)
}

func (m *Monitor) poll(ctx context.Context, src Source) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if src.Initialized() {
			m.MarkReady()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
		}
	}
}

// Close stops any polling loop and waits for it to exit. It is safe to call
// more than once. The ready state is left untouched.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() {
		m.closed.Store(true)
		close(m.stop)
	})
	m.wg.Wait()
}
