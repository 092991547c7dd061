// Package mocks provides a testify mock of analytics.Client.
package mocks

import (
	"context"

	"github.com/okian/rally/internal/analytics"
	"github.com/stretchr/testify/mock"
)

// Client is a mock analytics.Client.
type Client struct {
	mock.Mock
}

var _ analytics.Client = (*Client)(nil)

// Load records the call and returns the configured error.
func (m *Client) Load(ctx context.Context, writeKey string, opts analytics.Options) error {
	args := m.Called(ctx, writeKey, opts)
	return args.Error(0)
}

// Ready records the call. Use Run on the expectation to fire fn.
func (m *Client) Ready(fn func()) {
	m.Called(fn)
}

// Track records the call and returns the configured error.
func (m *Client) Track(ctx context.Context, event string, properties map[string]string) error {
	args := m.Called(ctx, event, properties)
	return args.Error(0)
}

// Page records the call and returns the configured error.
func (m *Client) Page(ctx context.Context, name string, properties map[string]string) error {
	args := m.Called(ctx, name, properties)
	return args.Error(0)
}

// Initialized returns the configured flag.
func (m *Client) Initialized() bool {
	args := m.Called()
	return args.Bool(0)
}
