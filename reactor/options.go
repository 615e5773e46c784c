// File: reactor/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/control"
)

const (
	// DefaultPollInterval bounds one readiness wait.
	DefaultPollInterval = 10 * time.Millisecond
	// DefaultMaxEvents bounds the readiness tuples taken per pass.
	DefaultMaxEvents = 256
)

type options struct {
	backend      Backend
	log          *zap.Logger
	metrics      *control.Metrics
	pollInterval time.Duration
	maxEvents    int
}

// Option customizes a Multiplexer.
type Option func(*options)

// WithBackend injects a readiness backend instead of the platform default.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithLogger sets the reactor logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics attaches reactor collectors.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPollInterval overrides the bounded wait of each self-scheduled pass.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithMaxEvents overrides the readiness batch size.
func WithMaxEvents(n int) Option {
	return func(o *options) { o.maxEvents = n }
}
