// File: resolver/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package resolver

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/control"
)

const (
	// DefaultTTL is how long a cached resolution stays valid.
	DefaultTTL = 6 * time.Hour
	// DefaultConnectTimeout bounds the probe race per address family.
	DefaultConnectTimeout = 2000 * time.Millisecond
	// DefaultCacheSize bounds the number of cached keys.
	DefaultCacheSize = 1024
)

type options struct {
	ttl            time.Duration
	connectTimeout time.Duration
	cacheSize      int
	clock          clock.Clock
	lookup         LookupFunc
	nameservers    []string
	log            *zap.Logger
	metrics        *control.Metrics
}

// Option customizes a Resolver.
type Option func(*options)

// WithTTL overrides the cache TTL.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithConnectTimeout overrides the probe race budget.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

// WithCacheSize bounds the cache.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithClock sets the clock used for TTL bookkeeping.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLookup replaces the system lookup.
func WithLookup(fn LookupFunc) Option {
	return func(o *options) { o.lookup = fn }
}

// WithNameservers queries the given servers ("host:port") directly instead of
// the system resolver.
func WithNameservers(servers ...string) Option {
	return func(o *options) { o.nameservers = servers }
}

// WithLogger sets the resolver logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics attaches resolver collectors.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
