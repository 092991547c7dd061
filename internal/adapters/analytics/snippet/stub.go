// Package snippet is the inline bootstrap strategy of the analytics client.
//
// A Stub is usable before the real library exists: calls made early are
// buffered in order. Load fetches the library in the background, replays the
// buffer into it and only then reports itself initialized.
package snippet

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/okian/rally/internal/adapters/analytics/htevents"
	"github.com/okian/rally/internal/analytics"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

const defaultBufferSize = 256

// Loader produces the loaded library the stub forwards to.
type Loader func(ctx context.Context, writeKey string, opts analytics.Options) (analytics.Client, error)

type callKind int

const (
	trackCall callKind = iota
	pageCall
)

type call struct {
	kind       callKind
	name       string
	properties map[string]string
}

func (c call) deliver(ctx context.Context, to analytics.Client) error {
	if c.kind == pageCall {
		return to.Page(ctx, c.name, c.properties)
	}
	return to.Track(ctx, c.name, c.properties)
}

// Stub implements analytics.Client by buffering until the library is loaded.
type Stub struct {
	loader     Loader
	loadDelay  time.Duration
	bufferSize int
	logger     logger.Logger

	mu          sync.Mutex
	invoked     bool
	initialized bool
	inner       analytics.Client
	buffer      []call
	waiters     []func()

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ analytics.Client = (*Stub)(nil)

// Option configures a Stub.
type Option func(*Stub)

// WithLoader replaces the library loader.
func WithLoader(l Loader) Option {
	return func(s *Stub) {
		if l != nil {
			s.loader = l
		}
	}
}

// WithLoadDelay waits before the library is fetched.
func WithLoadDelay(d time.Duration) Option {
	return func(s *Stub) {
		if d > 0 {
			s.loadDelay = d
		}
	}
}

// WithBufferSize bounds how many calls are held before load.
func WithBufferSize(n int) Option {
	return func(s *Stub) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Stub) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a stub. The default loader returns a loaded htevents client.
func New(opts ...Option) *Stub {
	s := &Stub{
		bufferSize: defaultBufferSize,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named("snippet")
	if s.loader == nil {
		s.loader = moduleLoader(s.logger)
	}
	return s
}

func moduleLoader(l logger.Logger) Loader {
	return func(ctx context.Context, writeKey string, opts analytics.Options) (analytics.Client, error) {
		c := htevents.New(htevents.WithLogger(l))
		if err := c.Load(ctx, writeKey, opts); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Load starts fetching the library and returns immediately. A second Load is
// logged and ignored.
func (s *Stub) Load(ctx context.Context, writeKey string, opts analytics.Options) error {
	if strings.TrimSpace(writeKey) == "" {
		return analytics.ErrMissingWriteKey
	}

	s.mu.Lock()
	if s.invoked {
		s.mu.Unlock()
		s.logger.Error(ctx, "snippet included twice")
		return nil
	}
	s.invoked = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.fetch(context.WithoutCancel(ctx), writeKey, opts)
	return nil
}

func (s *Stub) fetch(ctx context.Context, writeKey string, opts analytics.Options) {
	defer s.wg.Done()

	if s.loadDelay > 0 {
		timer := time.NewTimer(s.loadDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.stop:
			return
		}
	}

	inner, err := s.loader(ctx, writeKey, opts)
	if err != nil {
		s.mu.Lock()
		dropped := len(s.buffer)
		s.buffer = nil
		s.mu.Unlock()
		metrics.UpdateSnippetBuffered(0)
		s.logger.Error(ctx, "analytics library failed to load",
			logger.Int("dropped_calls", dropped),
			logger.Error(err),
		)
		return
	}

	for {
		s.mu.Lock()
		if len(s.buffer) == 0 {
			s.inner = inner
			s.initialized = true
			waiters := s.waiters
			s.waiters = nil
			s.mu.Unlock()
			metrics.UpdateSnippetBuffered(0)
			s.logger.Info(ctx, "analytics library loaded", logger.String("api_host", opts.Host()))
			for _, fn := range waiters {
				fn()
			}
			return
		}
		batch := s.buffer
		s.buffer = nil
		s.mu.Unlock()

		for _, c := range batch {
			metrics.RecordSnippetReplay()
			if err := c.deliver(ctx, inner); err != nil {
				s.logger.Error(ctx, "replayed call failed",
					logger.String("event", c.name),
					logger.Error(err),
				)
			}
		}
	}
}

// Ready runs fn once the library is loaded and the buffer replayed.
func (s *Stub) Ready(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		fn()
		return
	}
	s.waiters = append(s.waiters, fn)
	s.mu.Unlock()
}

// Initialized reports whether the library is loaded.
func (s *Stub) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Track forwards to the library once loaded. Earlier calls are buffered and
// accepted without error; their delivery result is only logged on replay, and
// they are dropped if the library never loads.
func (s *Stub) Track(ctx context.Context, event string, properties map[string]string) error {
	return s.enqueue(ctx, call{kind: trackCall, name: event, properties: properties})
}

// Page behaves like Track for page views.
func (s *Stub) Page(ctx context.Context, name string, properties map[string]string) error {
	return s.enqueue(ctx, call{kind: pageCall, name: name, properties: properties})
}

func (s *Stub) enqueue(ctx context.Context, c call) error {
	s.mu.Lock()
	if s.initialized {
		inner := s.inner
		s.mu.Unlock()
		return c.deliver(ctx, inner)
	}
	if len(s.buffer) >= s.bufferSize {
		s.mu.Unlock()
		return analytics.ErrBufferFull
	}
	props := make(map[string]string, len(c.properties))
	for k, v := range c.properties {
		props[k] = v
	}
	c.properties = props
	s.buffer = append(s.buffer, c)
	n := len(s.buffer)
	s.mu.Unlock()

	metrics.UpdateSnippetBuffered(n)
	return nil
}

// Buffered returns the number of calls waiting for the library.
func (s *Stub) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Close abandons a pending delayed load and waits for the loader to finish.
func (s *Stub) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}
