// File: socket/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/control"
)

// DefaultDrainTimeout bounds the graceful-close drain.
const DefaultDrainTimeout = time.Second

type options struct {
	timeout      time.Duration
	drainTimeout time.Duration
	log          *zap.Logger
	metrics      *control.Metrics
}

// Option customizes a Socket.
type Option func(*options)

// WithTimeout sets the idle timeout applied to every reactor registration.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithDrainTimeout sets the receive timeout used while draining on graceful close.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) { o.drainTimeout = d }
}

// WithLogger sets the socket logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics exports byte counters.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
