// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Analytics client strategies.
const (
	ClientModule  = "module"
	ClientSnippet = "snippet"
	ClientNone    = "none"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ClientMode picks the analytics client strategy: module, snippet or none.
	ClientMode string `koanf:"client_mode"`

	// WriteKey authenticates against the collection API.
	WriteKey string `koanf:"write_key"`

	// APIHost is the collection host, or a full base URL.
	APIHost string `koanf:"api_host"`

	// ReadyPollIntervalMS is used when the client only exposes an initialized flag.
	ReadyPollIntervalMS int `koanf:"ready_poll_interval_ms"`

	// SnippetLoadDelayMS delays the background library fetch of the snippet client.
	SnippetLoadDelayMS int `koanf:"snippet_load_delay_ms"`

	// SnippetBufferSize bounds calls held by the snippet client before load.
	SnippetBufferSize int `koanf:"snippet_buffer_size"`

	// DeliveryQueueSize bounds deliveries waiting for the worker.
	DeliveryQueueSize int `koanf:"delivery_queue_size"`

	// TrackTimeoutMS bounds one track request of the module client.
	TrackTimeoutMS int `koanf:"track_timeout_ms"`

	// IDWindow is how many recent game ids are checked for collisions.
	IDWindow int `koanf:"id_window"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		ClientMode:          ClientNone,
		APIHost:             "us-east-1.hightouch-events.com",
		ReadyPollIntervalMS: 100,
		SnippetLoadDelayMS:  0,
		SnippetBufferSize:   256,
		DeliveryQueueSize:   1024,
		TrackTimeoutMS:      10_000,
		IDWindow:            4096,
	}
}

// Validate checks the config and returns an error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.ClientMode {
	case ClientModule, ClientSnippet:
		if strings.TrimSpace(c.WriteKey) == "" {
			return fmt.Errorf("%w: write_key is required for client_mode %q", ErrInvalidConfig, c.ClientMode)
		}
	case ClientNone:
	default:
		return fmt.Errorf("%w: unknown client_mode %q", ErrInvalidConfig, c.ClientMode)
	}
	if c.ReadyPollIntervalMS <= 0 {
		return fmt.Errorf("%w: ready_poll_interval_ms must be positive", ErrInvalidConfig)
	}
	if c.DeliveryQueueSize <= 0 {
		return fmt.Errorf("%w: delivery_queue_size must be positive", ErrInvalidConfig)
	}
	if c.SnippetBufferSize <= 0 {
		return fmt.Errorf("%w: snippet_buffer_size must be positive", ErrInvalidConfig)
	}
	if c.TrackTimeoutMS <= 0 {
		return fmt.Errorf("%w: track_timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.SnippetLoadDelayMS < 0 {
		return fmt.Errorf("%w: snippet_load_delay_ms must not be negative", ErrInvalidConfig)
	}
	if c.IDWindow <= 0 {
		return fmt.Errorf("%w: id_window must be positive", ErrInvalidConfig)
	}
	return nil
}

// ReadyPollInterval returns ReadyPollIntervalMS as a duration.
func (c *Config) ReadyPollInterval() time.Duration {
	return time.Duration(c.ReadyPollIntervalMS) * time.Millisecond
}

// SnippetLoadDelay returns SnippetLoadDelayMS as a duration.
func (c *Config) SnippetLoadDelay() time.Duration {
	return time.Duration(c.SnippetLoadDelayMS) * time.Millisecond
}

// TrackTimeout returns TrackTimeoutMS as a duration.
func (c *Config) TrackTimeout() time.Duration {
	return time.Duration(c.TrackTimeoutMS) * time.Millisecond
}
