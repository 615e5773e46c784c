// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/logging"
	"github.com/momentics/hioload-net/pool"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/resolver"
	"github.com/momentics/hioload-net/socket"
)

const (
	unlistenPoll = 10 * time.Millisecond
	poolProbe    = "server.pool"
)

// New builds an idle server. Accepted work runs on sched, sockets suspend on
// mux and listen addresses are resolved through res.
func New(sched api.Scheduler, mux *reactor.Multiplexer, res *resolver.Resolver, handler Handler, opts ...ServerOption) (*Server, error) {
	if sched == nil || mux == nil || res == nil {
		return nil, api.ErrInvalidArgument
	}
	if handler == nil {
		handler = BaseHandler{}
	}
	s := &Server{sched: sched, mux: mux, resolver: res, handler: handler}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logging.Logger("server")
	}
	return s, nil
}

// State returns the lifecycle state.
func (s *Server) State() State { return State(s.state.Load()) }

// Router returns the active configuration, or nil.
func (s *Server) Router() *Router {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router
}

// Listeners returns the configured listeners.
func (s *Server) Listeners() []*Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Listener(nil), s.listeners...)
}

// Stats returns pool occupancy and lifetime counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	conns := s.conns
	s.mu.Unlock()
	st := Stats{Refused: s.refused.Load()}
	if conns != nil {
		ps := conns.Stats()
		st.Active, st.Inactive, st.Allocated = ps.Active, ps.Inactive, ps.Allocated
	}
	return st
}

// Configure resolves, binds and listens on every host and builds the TLS
// contexts. Any failure closes what was opened and leaves the server idle
// and unconfigured.
func (s *Server) Configure(router *Router) error {
	if s.State() != StateIdle {
		return ErrBadState
	}
	if err := router.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.router != nil {
		return ErrAlreadyConfigured
	}
	r := router.withDefaults()

	contexts := make(map[string]*tls.Config, len(r.Certificates))
	for _, c := range r.Certificates {
		cfg, err := c.tlsConfig()
		if err != nil {
			s.log.Error("configure", zap.String("certificate", c.Name), zap.Error(err))
			return err
		}
		contexts[c.Name] = cfg
	}

	listeners := make([]*Listener, len(r.Hosts))
	g, ctx := errgroup.WithContext(context.Background())
	for i, h := range r.Hosts {
		i, h := i, h
		g.Go(func() error {
			l, err := s.bind(ctx, h, r.Backlog)
			if err != nil {
				return err
			}
			if h.TLS {
				l.tls = contexts[h.Certificate]
			}
			listeners[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var closeErr error
		for _, l := range listeners {
			if l != nil {
				closeErr = multierr.Append(closeErr, l.sock.Close(false))
			}
		}
		s.log.Error("configure", zap.String("router", r.Name), zap.Error(err))
		if closeErr != nil {
			s.log.Warn("configure cleanup", zap.Error(closeErr))
		}
		return err
	}

	s.router = r
	s.listeners = listeners
	s.conns = pool.NewSets(r.Backlog, s.allocate, (*Connection).reset, nil)
	s.log.Info("configured", zap.String("router", r.Name), zap.Int("listeners", len(listeners)))
	return nil
}

func (s *Server) bind(ctx context.Context, h RemoteHost, backlog int) (*Listener, error) {
	fail := func(step string, err error) error {
		return api.NewError(api.ErrCodeConfig, step).WithContext("host", h.Name).Wrap(err)
	}
	addr, err := s.resolver.Resolve(ctx, resolver.TCP(h.Hostname, strconv.Itoa(h.Port), resolver.ModeListen))
	if err != nil {
		return nil, fail("resolve", err)
	}
	sock, err := socket.Open(addr.Family(), addr.SocketType(), addr.Protocol(), s.mux, socket.WithLogger(s.log), socket.WithMetrics(s.metrics))
	if err != nil {
		return nil, fail("open", err)
	}
	steps := []func() error{
		func() error { return sock.SetReuseAddr(true) },
		func() error { return sock.Bind(addr.Sockaddr()) },
		func() error { return sock.Listen(backlog) },
		func() error { return sock.SetNonblock(true) },
		sock.SetCloexec,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = sock.Close(false)
			return nil, fail("listen", err)
		}
	}
	return &Listener{host: h, addr: addr, sock: sock}, nil
}

func (s *Server) allocate() *Connection {
	s.metrics.ConnectionAllocated()
	return &Connection{srv: s}
}

// Listen starts the accept loop on every listener.
func (s *Server) Listen() error {
	s.mu.Lock()
	listeners := s.listeners
	configured := s.router != nil
	s.mu.Unlock()
	if !configured {
		return ErrNotConfigured
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateWorking)) {
		return ErrBadState
	}
	s.mux.Listen()
	if s.probes != nil {
		s.probes.RegisterProbe(poolProbe, func() any { return s.Stats() })
	}
	s.handler.OnListen(s)
	for _, l := range listeners {
		l := l
		err := l.sock.AcceptAsync(
			func(fd int, sa unix.Sockaddr) { s.onAccept(l, fd, sa) },
			func(st api.Status) {
				if s.State() == StateWorking {
					s.log.Warn("accept loop ended", zap.String("host", l.Name()), zap.Stringer("status", st))
				}
			},
		)
		if err != nil && socket.IsFatal(err) {
			s.log.Warn("accept", zap.String("host", l.Name()), zap.Error(err))
		}
	}
	s.log.Info("listening", zap.Int("listeners", len(listeners)))
	return nil
}

func (s *Server) onAccept(l *Listener, fd int, sa unix.Sockaddr) {
	if err := s.sched.Submit(func() { s.accept(l, fd, sa) }); err != nil {
		unix.Close(fd)
	}
}

// accept runs as a scheduled task for every connection pulled off a backlog.
func (s *Server) accept(l *Listener, fd int, sa unix.Sockaddr) {
	s.mu.Lock()
	r, conns := s.router, s.conns
	s.mu.Unlock()
	if r == nil {
		unix.Close(fd)
		return
	}
	sock := socket.New(fd, s.mux,
		socket.WithTimeout(r.Timeout),
		socket.WithDrainTimeout(r.Linger),
		socket.WithLogger(s.log),
		socket.WithMetrics(s.metrics),
	)
	if s.State() != StateWorking || (r.MaxConnections > 0 && conns.Stats().Active >= r.MaxConnections) {
		s.refused.Add(1)
		s.metrics.ConnectionRefused()
		s.log.Debug("connection refused", zap.String("host", l.Name()), zap.Stringer("state", s.State()))
		sock.CloseAsync(func() {})
		return
	}

	c, reused := conns.Pop()
	if !reused {
		c.Data = s.handler.AllocateConnection(l)
	}
	c.bind(s, l, sock, socket.AddrPortOf(sa))
	s.updatePoolMetrics()

	err := multierr.Combine(sock.SetNoDelay(true), sock.SetKeepAlive(true), sock.SetNonblock(true))
	if err != nil {
		s.log.Debug("socket options", zap.Uint64("socket", sock.Handle()), zap.Error(err))
	}

	if l.tls == nil {
		s.begin(c, r)
		return
	}
	if err := sock.Secure(l.tls, "", true); err != nil {
		s.handshakeFailed(c, err)
		return
	}
	_ = sock.HandshakeAsync(func(err error) {
		if err != nil {
			s.handshakeFailed(c, err)
			return
		}
		s.begin(c, r)
	})
}

func (s *Server) handshakeFailed(c *Connection, err error) {
	s.metrics.HandshakeFailed()
	s.log.Warn("tls handshake failed",
		zap.String("host", c.listener.Name()),
		zap.Stringer("conn", c.id),
		zap.Stringer("peer", c.peer),
		zap.Error(err))
	c.Close()
}

func (s *Server) begin(c *Connection, r *Router) {
	c.frame = Frame{
		Payload:   c.frame.Payload[:0],
		Start:     s.sched.Now(),
		Timeout:   r.Timeout,
		KeepAlive: r.KeepAlive,
	}
	s.handler.OnBegin(c)
}

// release returns c to the pool once its socket is gone.
func (s *Server) release(c *Connection) {
	s.mu.Lock()
	conns := s.conns
	s.mu.Unlock()
	if conns == nil {
		return
	}
	if err := conns.Push(c); err != nil {
		s.log.Debug("release", zap.Error(err))
	}
	s.updatePoolMetrics()
}

func (s *Server) updatePoolMetrics() {
	if s.metrics == nil {
		return
	}
	st := s.Stats()
	s.metrics.Pool(st.Active, st.Inactive)
}

// Unlisten stops accepting, closes every active connection and waits up to
// timeout for them to drain, then closes the listeners and drops the router.
// A stall is logged and reported but does not block past timeout.
func (s *Server) Unlisten(timeout time.Duration) error {
	if !s.state.CompareAndSwap(int32(StateWorking), int32(StateStopping)) {
		return ErrBadState
	}
	s.mu.Lock()
	conns, listeners := s.conns, s.listeners
	s.mu.Unlock()

	var errs error
	deadline := time.Now().Add(timeout)
	for {
		active := conns.Active()
		for _, c := range active {
			c.Close()
		}
		conns.Drain()
		st := conns.Stats()
		if st.Active == 0 && st.Inactive == 0 {
			break
		}
		if time.Now().After(deadline) {
			s.log.Error("shutdown stalled", zap.Int("active", st.Active), zap.Duration("timeout", timeout))
			errs = fmt.Errorf("%w: %d connections", ErrShutdownStalled, st.Active)
			break
		}
		time.Sleep(unlistenPoll)
	}

	for _, l := range listeners {
		errs = multierr.Append(errs, l.sock.Close(false))
	}
	s.handler.OnUnlisten(s)
	if s.probes != nil {
		s.probes.UnregisterProbe(poolProbe)
	}
	s.mux.Unlisten()

	s.mu.Lock()
	s.router = nil
	s.listeners = nil
	s.conns = nil
	s.mu.Unlock()
	s.state.Store(int32(StateIdle))
	s.log.Info("unlistened", zap.Error(errs))
	return errs
}
