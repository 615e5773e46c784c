// File: client/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/control"
)

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics attaches byte counters to the client socket.
func WithMetrics(m *control.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}
