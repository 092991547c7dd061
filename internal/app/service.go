// Package service wires the readiness monitor, the dispatcher and the match
// form into the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rally/internal/analytics"
	"github.com/okian/rally/internal/dispatch"
	"github.com/okian/rally/internal/domain/form"
	"github.com/okian/rally/internal/domain/gameid"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/readiness"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

var (
	// ErrNotStarted is returned by operations that need a started service.
	ErrNotStarted = errors.New("service not started")
	// ErrStopped is returned by Start once the service has been stopped.
	ErrStopped = errors.New("service stopped")
)

// Service implements the API dependencies of the match tracker.
type Service struct {
	mu sync.RWMutex

	// Core components
	client     analytics.Client
	monitor    *readiness.Monitor
	form       *form.Form
	dispatcher *dispatch.Dispatcher
	pipeline   *dispatch.Pipeline

	// Configuration
	clientMode   string
	writeKey     string
	apiHost      string
	pollInterval time.Duration
	queueSize    int
	idWindow     int

	// State
	started bool
	stopped bool

	// Outcome counters
	delivered atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64

	listenersMu sync.RWMutex
	listeners   []func(model.Outcome)

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithClient sets the analytics client. Without one every submission is skipped.
func WithClient(c analytics.Client) Option {
	return func(s *Service) {
		s.client = c
	}
}

// WithClientMode records which client strategy is in use, for stats.
func WithClientMode(mode string) Option {
	return func(s *Service) {
		if mode != "" {
			s.clientMode = mode
		}
	}
}

// WithWriteKey sets the key the client is loaded with.
func WithWriteKey(key string) Option {
	return func(s *Service) {
		s.writeKey = key
	}
}

// WithAPIHost sets the collection host the client is loaded with.
func WithAPIHost(host string) Option {
	return func(s *Service) {
		s.apiHost = host
	}
}

// WithPollInterval sets the readiness polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithQueueSize sets the maximum number of deliveries waiting.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithIDWindow sets how many recent game ids are checked for collisions.
func WithIDWindow(size int) Option {
	return func(s *Service) {
		s.idWindow = size
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		clientMode:   "none",
		pollInterval: readiness.DefaultPollInterval,
		queueSize:    1024,
		idWindow:     4096,
		form:         form.New(),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.client != nil && s.clientMode == "none" {
		s.clientMode = "custom"
	}

	s.monitor = readiness.New(
		readiness.WithPollInterval(s.pollInterval),
		readiness.WithLogger(s.logger),
	)
	return s
}

// Start builds the delivery pipeline, starts watching the client, loads it and
// records the initial page view. A stopped service cannot be restarted.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting match tracker...")

	var tracker dispatch.Tracker
	if s.client != nil {
		tracker = s.client
	}
	s.dispatcher = dispatch.New(tracker,
		dispatch.WithIDSource(gameid.New(gameid.WithWindow(s.idWindow))),
		dispatch.WithReadiness(s.monitor),
		dispatch.WithLogger(s.logger),
	)
	s.pipeline = dispatch.NewPipeline(s.dispatcher,
		dispatch.WithQueueSize(s.queueSize),
		dispatch.WithObserver(s.recordOutcome),
		dispatch.WithPipelineLogger(s.logger),
	)
	s.pipeline.Start(ctx)

	if s.client != nil {
		s.monitor.Watch(ctx, s.client)
		if err := s.client.Load(ctx, s.writeKey, analytics.Options{APIHost: s.apiHost}); err != nil {
			// The service keeps running; the client simply never becomes ready.
			s.logger.Error(ctx, "analytics client failed to load", logger.Error(err))
		} else if err := s.client.Page(ctx, "", nil); err != nil {
			s.logger.Warn(ctx, "initial page view not recorded", logger.Error(err))
		}
	} else {
		s.logger.Warn(ctx, "no analytics client configured, matches will not be tracked")
	}

	s.started = true
	s.logger.Info(ctx, "match tracker started",
		logger.String("client_mode", s.clientMode),
		logger.Int("queueSize", s.queueSize),
		logger.Int("idWindow", s.idWindow),
	)

	return nil
}

// Stop drains queued deliveries, bounded by ctx, and releases the readiness
// watcher and the client.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping match tracker...")

	err := s.pipeline.Shutdown(ctx)
	if err != nil {
		s.logger.Warn(ctx, "delivery queue not fully drained", logger.Error(err))
	}

	s.monitor.Close()

	if closer, ok := s.client.(interface{ Close() }); ok {
		closer.Close()
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "match tracker stopped")
	return err
}

// SubmitMatch records a match result. The event is built and the form reset
// before this returns; delivery continues in the background and its outcome
// is available on the returned handle.
func (s *Service) SubmitMatch(ctx context.Context, in model.MatchInput) (model.MatchEvent, *dispatch.Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return model.MatchEvent{}, nil, ErrNotStarted
	}

	var pending *dispatch.Pending
	ev, err := s.form.SubmitInput(ctx, in, func(ctx context.Context, in model.MatchInput) (model.MatchEvent, error) {
		p, err := s.pipeline.Submit(ctx, in)
		if err != nil {
			return model.MatchEvent{}, err
		}
		pending = p
		return p.Event(), nil
	})
	if err != nil {
		s.logger.Error(ctx, "failed to submit match", logger.Error(err))
		return model.MatchEvent{}, nil, err
	}

	s.logger.Debug(ctx, "match submitted", logger.String("game_id", ev.GameID))
	return ev, pending, nil
}

// LastResult returns the last submitted event.
func (s *Service) LastResult(_ context.Context) (model.MatchEvent, bool) {
	return s.form.Last()
}

// Ready reports whether the analytics client has finished initializing.
func (s *Service) Ready() bool {
	return s.monitor.Ready()
}

// OnReady runs fn when the analytics client becomes ready.
func (s *Service) OnReady(fn func()) {
	s.monitor.OnReady(fn)
}

// OnOutcome runs fn for every terminal delivery outcome.
func (s *Service) OnOutcome(fn func(model.Outcome)) {
	if fn == nil {
		return
	}
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) recordOutcome(o model.Outcome) {
	switch o.Status {
	case model.StatusDelivered:
		s.delivered.Add(1)
	case model.StatusSkipped:
		s.skipped.Add(1)
	case model.StatusFailed:
		s.failed.Add(1)
	}

	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(o)
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"client_mode": s.clientMode,
		"ready":       s.monitor.Ready(),
		"submissions": s.form.Submissions(),
		"delivered":   s.delivered.Load(),
		"skipped":     s.skipped.Load(),
		"failed":      s.failed.Load(),
		"queueSize":   s.queueSize,
	}

	if last, ok := s.form.Last(); ok {
		stats["lastGameId"] = last.GameID
	}

	if s.started {
		queueLen := s.pipeline.Len(context.Background())
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}
