// Package htevents is the module strategy of the analytics client: it posts
// track and page calls straight to the collection API over HTTP.
package htevents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rally/internal/analytics"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// Library identification sent in every message context.
const (
	LibraryName    = "rally-go"
	LibraryVersion = "1.0.0"
)

const (
	trackPath      = "/v1/track"
	pagePath       = "/v1/page"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// ErrUnexpectedStatus is returned when the collection API answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("htevents: unexpected status")

// TrackMessage is the JSON body of a track or page call. Event is set for
// track, Name for page.
type TrackMessage struct {
	Type        string            `json:"type"`
	Event       string            `json:"event,omitempty"`
	Name        string            `json:"name,omitempty"`
	Properties  map[string]string `json:"properties"`
	MessageID   string            `json:"messageId"`
	AnonymousID string            `json:"anonymousId"`
	Timestamp   string            `json:"timestamp"`
	Context     MessageContext    `json:"context"`
}

// MessageContext identifies the sending library.
type MessageContext struct {
	Library Library `json:"library"`
}

// Library names the sender.
type Library struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Client implements analytics.Client against the HTTP track API.
type Client struct {
	httpClient  *http.Client
	now         func() time.Time
	anonymousID string
	logger      logger.Logger

	mu       sync.Mutex
	loaded   bool
	writeKey string
	baseURL  string
	waiters  []func()
}

var _ analytics.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTimeout bounds every track request.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.httpClient.Timeout = d
		}
	}
}

// WithClock overrides the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		if now != nil {
			cl.now = now
		}
	}
}

// WithAnonymousID fixes the anonymous id instead of generating one.
func WithAnonymousID(id string) Option {
	return func(cl *Client) {
		if id != "" {
			cl.anonymousID = id
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New builds an unloaded client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		now:         time.Now,
		anonymousID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get()
	}
	c.logger = c.logger.Named("htevents")
	return c
}

// Load validates the write key and resolves the API base URL. Later calls are no-ops.
func (c *Client) Load(ctx context.Context, writeKey string, opts analytics.Options) error {
	if strings.TrimSpace(writeKey) == "" {
		return analytics.ErrMissingWriteKey
	}

	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return nil
	}
	c.loaded = true
	c.writeKey = writeKey
	c.baseURL = baseURLFor(opts.Host())
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	c.logger.Info(ctx, "analytics client loaded", logger.String("api", c.baseURL))
	for _, fn := range waiters {
		fn()
	}
	return nil
}

// Ready runs fn once Load has completed.
func (c *Client) Ready(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		fn()
		return
	}
	c.waiters = append(c.waiters, fn)
	c.mu.Unlock()
}

// Initialized reports whether Load has completed.
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Track posts one track message and waits for the response.
func (c *Client) Track(ctx context.Context, event string, properties map[string]string) error {
	return c.send(ctx, trackPath, TrackMessage{Type: "track", Event: event, Properties: properties})
}

// Page posts one page view and waits for the response.
func (c *Client) Page(ctx context.Context, name string, properties map[string]string) error {
	return c.send(ctx, pagePath, TrackMessage{Type: "page", Name: name, Properties: properties})
}

func (c *Client) send(ctx context.Context, path string, msg TrackMessage) error {
	c.mu.Lock()
	loaded, writeKey, baseURL := c.loaded, c.writeKey, c.baseURL
	c.mu.Unlock()
	if !loaded {
		return analytics.ErrNotLoaded
	}

	if msg.Properties == nil {
		msg.Properties = map[string]string{}
	}
	msg.MessageID = uuid.NewString()
	msg.AnonymousID = c.anonymousID
	msg.Timestamp = model.FormatTimestamp(c.now())
	msg.Context = MessageContext{Library: Library{Name: LibraryName, Version: LibraryVersion}}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Type, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", msg.Type, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(writeKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordTrackResponse("error")
		return fmt.Errorf("post %s: %w", msg.Type, err)
	}
	defer resp.Body.Close()

	metrics.RecordTrackResponse(strconv.Itoa(resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug(ctx, msg.Type+" delivered",
		logger.String("event", msg.Event+msg.Name),
		logger.String("message_id", msg.MessageID),
	)
	return nil
}

// baseURLFor accepts a bare host or a full base URL.
func baseURLFor(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}
