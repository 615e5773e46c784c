// File: facade/hioload.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Core aggregates the runtime context every socket, server and client needs:
// the worker scheduler, the reactor, the caching resolver, metrics and debug
// probes. It is constructed explicitly and torn down explicitly; nothing in
// the library keeps hidden process-wide state besides the base logger.

// Package facade assembles the scheduler, reactor, resolver and metrics into
// one Core and builds servers and clients on top of it.
package facade

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/adapters"
	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/client"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/internal/concurrency"
	"github.com/momentics/hioload-net/internal/logging"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/resolver"
	"github.com/momentics/hioload-net/server"
)

// Config holds parameters immutable per run.
type Config struct {
	NumWorkers      int
	PollInterval    time.Duration
	MaxEvents       int
	ResolverTTL     time.Duration
	ConnectTimeout  time.Duration
	CacheSize       int
	Nameservers     []string // empty selects the system resolver
	CPUAffinity     bool     // pin executor workers to CPUs
	ShutdownTimeout time.Duration

	// Registerer receives the metrics collectors. Nil creates a private registry.
	Registerer prometheus.Registerer
	// Logger becomes the base logger for every subsystem when set.
	Logger *zap.Logger
}

// DefaultConfig returns a baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		NumWorkers:      4,
		PollInterval:    reactor.DefaultPollInterval,
		MaxEvents:       reactor.DefaultMaxEvents,
		ResolverTTL:     resolver.DefaultTTL,
		ConnectTimeout:  resolver.DefaultConnectTimeout,
		CacheSize:       resolver.DefaultCacheSize,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Core is the central runtime context.
type Core struct {
	config   *Config
	log      *zap.Logger
	exec     *adapters.ExecutorAdapter
	mux      *reactor.Multiplexer
	resolver *resolver.Resolver
	metrics  *control.Metrics
	registry *prometheus.Registry
	probes   *control.DebugProbes

	mu     sync.Mutex
	closed bool
}

var _ api.GracefulShutdown = (*Core)(nil)

// New builds and starts a Core. The reactor is listening on return.
func New(cfg *Config) (*Core, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger != nil {
		logging.SetLogger(cfg.Logger)
	}
	c := &Core{config: cfg, log: logging.Logger("facade"), probes: control.NewDebugProbes()}

	reg := cfg.Registerer
	if reg == nil {
		c.registry = prometheus.NewRegistry()
		reg = c.registry
	}
	m, err := control.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics init error: %w", err)
	}
	c.metrics = m

	var eopts []concurrency.Option
	if cfg.CPUAffinity {
		eopts = append(eopts, concurrency.WithCPUAffinity())
	}
	c.exec = adapters.NewExecutorAdapter(cfg.NumWorkers, nil, logging.Logger("executor"), eopts...)
	c.mux, err = reactor.New(c.exec,
		reactor.WithLogger(logging.Logger("reactor")),
		reactor.WithMetrics(m),
		reactor.WithPollInterval(cfg.PollInterval),
		reactor.WithMaxEvents(cfg.MaxEvents),
	)
	if err != nil {
		c.exec.Close()
		return nil, fmt.Errorf("reactor init error: %w", err)
	}

	ropts := []resolver.Option{
		resolver.WithLogger(logging.Logger("resolver")),
		resolver.WithMetrics(m),
		resolver.WithTTL(cfg.ResolverTTL),
		resolver.WithConnectTimeout(cfg.ConnectTimeout),
		resolver.WithCacheSize(cfg.CacheSize),
	}
	if len(cfg.Nameservers) > 0 {
		ropts = append(ropts, resolver.WithNameservers(cfg.Nameservers...))
	}
	c.resolver, err = resolver.New(ropts...)
	if err != nil {
		_ = c.mux.Close()
		c.exec.Close()
		return nil, fmt.Errorf("resolver init error: %w", err)
	}

	c.probes.RegisterProbe("executor", func() any { return c.exec.Stats() })
	c.probes.RegisterProbe("reactor.pending", func() any { return c.mux.Pending() })
	c.probes.RegisterProbe("resolver.cached", func() any { return c.resolver.Len() })

	c.mux.Listen()
	c.log.Info("started", zap.Int("workers", c.exec.NumWorkers()))
	return c, nil
}

// Scheduler returns the task scheduler shared by all components.
func (c *Core) Scheduler() api.Scheduler { return c.exec }

// Executor exposes worker-pool controls.
func (c *Core) Executor() *adapters.ExecutorAdapter { return c.exec }

// Reactor returns the multiplexer.
func (c *Core) Reactor() *reactor.Multiplexer { return c.mux }

// Resolver returns the caching resolver.
func (c *Core) Resolver() *resolver.Resolver { return c.resolver }

// Metrics returns the collectors.
func (c *Core) Metrics() *control.Metrics { return c.metrics }

// Gatherer returns the private registry, or nil when Config.Registerer was set.
func (c *Core) Gatherer() prometheus.Gatherer {
	if c.registry == nil {
		return nil
	}
	return c.registry
}

// Probes returns the debug probe registry.
func (c *Core) Probes() api.Debug { return c.probes }

// NewServer builds a server wired to this core.
func (c *Core) NewServer(h server.Handler, opts ...server.ServerOption) (*server.Server, error) {
	base := []server.ServerOption{
		server.WithLogger(logging.Logger("server")),
		server.WithMetrics(c.metrics),
		server.WithProbes(c.probes),
	}
	return server.New(c.exec, c.mux, c.resolver, h, append(base, opts...)...)
}

// NewClient builds a client wired to this core.
func (c *Core) NewClient(cfg client.Config, opts ...client.Option) (*client.Client, error) {
	base := []client.Option{
		client.WithLogger(logging.Logger("client")),
		client.WithMetrics(c.metrics),
	}
	return client.New(c.exec, c.mux, c.resolver, cfg, append(base, opts...)...)
}

func (c *Core) stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mux.Unlisten()
	err := c.mux.Close()
	c.exec.Close()
	c.resolver.Flush()
	return err
}

// Shutdown stops the reactor, cancelling pending continuations, then drains
// the executor. It gives up after ShutdownTimeout. Later calls are no-ops.
func (c *Core) Shutdown() error {
	done := make(chan error, 1)
	go func() {
		done <- c.stop()
	}()
	select {
	case err := <-done:
		if err != nil {
			c.log.Warn("shutdown", zap.Error(err))
		}
		return err
	case <-time.After(c.config.ShutdownTimeout):
		return fmt.Errorf("shutdown timeout after %v", c.config.ShutdownTimeout)
	}
}

// Close is Shutdown.
func (c *Core) Close() error { return c.Shutdown() }
