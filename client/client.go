// File: client/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/internal/logging"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/resolver"
	"github.com/momentics/hioload-net/socket"
)

// DefaultTimeout is the idle timeout applied to the connected socket.
const DefaultTimeout = 30 * time.Second

var (
	// ErrClosed is reported by Connect on a destroyed client.
	ErrClosed = errors.New("client: closed")
	// ErrBusy is reported by Connect while a socket is already attached.
	ErrBusy = errors.New("client: already connected")
)

// Config describes the remote endpoint.
type Config struct {
	Host    string
	Service string

	// TLS enables a client handshake after connect. ServerName defaults to
	// Host; TLSConfig defaults to a TLS 1.2+ config using system roots.
	TLS        bool
	ServerName string
	TLSConfig  *tls.Config

	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// Client owns at most one connected socket at a time.
type Client struct {
	cfg      Config
	sched    api.Scheduler
	mux      *reactor.Multiplexer
	resolver *resolver.Resolver

	log     *zap.Logger
	metrics *control.Metrics

	mu        sync.Mutex
	sock      *socket.Socket
	connected atomic.Bool
	closed    atomic.Bool
}

// New validates cfg and builds an unconnected client.
func New(sched api.Scheduler, mux *reactor.Multiplexer, res *resolver.Resolver, cfg Config, opts ...Option) (*Client, error) {
	if sched == nil || mux == nil || res == nil || cfg.Host == "" || cfg.Service == "" {
		return nil, api.ErrInvalidArgument
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = resolver.DefaultConnectTimeout
	}
	if cfg.ServerName == "" {
		cfg.ServerName = cfg.Host
	}
	c := &Client{cfg: cfg, sched: sched, mux: mux, resolver: res}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logging.Logger("client")
	}
	return c, nil
}

// Socket returns the attached socket, or nil.
func (c *Client) Socket() *socket.Socket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock
}

// Connected reports whether the pipeline completed and the socket is still attached.
func (c *Client) Connected() bool { return c.connected.Load() }

// Connect runs the pipeline in the background. onConnected runs on the
// scheduler before the future resolves with StatusConnected.
func (c *Client) Connect(onConnected func(*socket.Socket)) *Future {
	f := newFuture()
	if c.closed.Load() {
		f.resolve(StatusClosed, ErrClosed)
		return f
	}
	c.mu.Lock()
	if c.sock != nil {
		c.mu.Unlock()
		f.resolve(StatusConnectFailed, ErrBusy)
		return f
	}
	c.mu.Unlock()

	q := resolver.TCP(c.cfg.Host, c.cfg.Service, resolver.ModeConnect)
	err := c.resolver.ResolveAsync(c.sched, q, func(addr *resolver.Address, err error) {
		if err != nil {
			c.log.Debug("resolve", zap.String("query", q.Key()), zap.Error(err))
			f.resolve(StatusResolveFailed, err)
			return
		}
		c.open(addr, f, onConnected)
	})
	if err != nil {
		f.resolve(StatusResolveFailed, err)
	}
	return f
}

func (c *Client) open(addr *resolver.Address, f *Future, onConnected func(*socket.Socket)) {
	sock, err := socket.Open(addr.Family(), addr.SocketType(), addr.Protocol(), c.mux,
		socket.WithTimeout(c.cfg.Timeout),
		socket.WithLogger(c.log),
		socket.WithMetrics(c.metrics),
	)
	if err != nil {
		f.resolve(StatusOpenFailed, err)
		return
	}
	c.mu.Lock()
	if c.sock != nil || c.closed.Load() {
		c.mu.Unlock()
		_ = sock.Close(false)
		if c.closed.Load() {
			f.resolve(StatusClosed, ErrClosed)
		} else {
			f.resolve(StatusConnectFailed, ErrBusy)
		}
		return
	}
	c.sock = sock
	c.mu.Unlock()
	_ = sock.SetNoDelay(true)

	_ = sock.ConnectAsync(addr.Sockaddr(), c.cfg.ConnectTimeout, func(err error) {
		if err != nil {
			c.abort(sock, f, StatusConnectFailed, err)
			return
		}
		if !c.cfg.TLS {
			c.established(sock, f, onConnected)
			return
		}
		c.handshake(sock, f, onConnected)
	})
}

func (c *Client) handshake(sock *socket.Socket, f *Future, onConnected func(*socket.Socket)) {
	cfg := c.cfg.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if err := sock.Secure(cfg, c.cfg.ServerName, false); err != nil {
		c.abort(sock, f, StatusHandshakeFailed, err)
		return
	}
	_ = sock.HandshakeAsync(func(err error) {
		if err != nil {
			c.metrics.HandshakeFailed()
			c.abort(sock, f, StatusHandshakeFailed, err)
			return
		}
		c.established(sock, f, onConnected)
	})
}

func (c *Client) established(sock *socket.Socket, f *Future, onConnected func(*socket.Socket)) {
	c.connected.Store(true)
	c.log.Debug("connected", zap.String("host", c.cfg.Host), zap.String("service", c.cfg.Service), zap.Bool("tls", sock.Secured()))
	if onConnected != nil {
		onConnected(sock)
	}
	f.resolve(StatusConnected, nil)
}

// abort closes sock in the background and resolves f once it is released.
func (c *Client) abort(sock *socket.Socket, f *Future, st Status, err error) {
	c.log.Debug("connect aborted", zap.String("host", c.cfg.Host), zap.Stringer("stage", st), zap.Error(err))
	c.detach(sock)
	sock.CloseAsync(func() { f.resolve(st, err) })
}

func (c *Client) detach(sock *socket.Socket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock != sock || sock == nil {
		return false
	}
	c.sock = nil
	c.connected.Store(false)
	return true
}

// Disconnect gracefully closes the attached socket. The future resolves with
// StatusClosed once the descriptor is released.
func (c *Client) Disconnect() *Future {
	f := newFuture()
	sock := c.Socket()
	if !c.detach(sock) {
		f.resolve(StatusClosed, nil)
		return f
	}
	sock.CloseAsync(func() { f.resolve(StatusClosed, nil) })
	return f
}

// Close destroys the client. A socket still attached is closed immediately
// and reported as a leak. Later Connect calls resolve with StatusClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	sock := c.Socket()
	if !c.detach(sock) {
		return nil
	}
	c.log.Warn("client destroyed while connected", zap.String("host", c.cfg.Host), zap.String("service", c.cfg.Service))
	if err := sock.Close(false); err != nil {
		return fmt.Errorf("client close: %w", err)
	}
	return nil
}
