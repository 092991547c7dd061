// Package analytics defines the contract every analytics client strategy meets.
//
// Two strategies exist: an imported module that talks to the collection API
// directly, and an inline bootstrap stub that buffers calls until the real
// library has loaded. Callers only ever see this interface.
package analytics

import (
	"context"
	"errors"
)

// DefaultAPIHost is the collection host used when none is configured.
const DefaultAPIHost = "us-east-1.hightouch-events.com"

// Sentinel errors shared by client implementations.
var (
	ErrMissingWriteKey = errors.New("analytics: missing write key")
	ErrNotLoaded       = errors.New("analytics: client not loaded")
	ErrBufferFull      = errors.New("analytics: pre-load buffer full")
)

// Options configure Load.
type Options struct {
	APIHost string
}

// Host returns the configured API host or the default.
func (o Options) Host() string {
	if o.APIHost == "" {
		return DefaultAPIHost
	}
	return o.APIHost
}

// Client is an analytics client.
type Client interface {
	// Load initializes the client. Calling it more than once is a no-op.
	Load(ctx context.Context, writeKey string, opts Options) error

	// Ready registers fn to run once initialization completes. If the client is
	// already initialized fn runs right away.
	Ready(fn func())

	// Track delivers one named event with a flat property map.
	Track(ctx context.Context, event string, properties map[string]string) error

	// Page records one page view. An empty name means the current page.
	Page(ctx context.Context, name string, properties map[string]string) error

	// Initialized reports whether initialization has completed.
	Initialized() bool
}
