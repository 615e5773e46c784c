// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"crypto/tls"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/internal/logging"
	"github.com/momentics/hioload-net/reactor"
)

var nextHandle atomic.Uint64

// Socket owns one OS descriptor and, once secured, one TLS session.
type Socket struct {
	fd     atomic.Int64
	handle reactor.Handle
	mux    *reactor.Multiplexer

	timeout      atomic.Int64
	drainTimeout time.Duration
	sent         atomic.Uint64
	received     atomic.Uint64

	mu       sync.Mutex
	userData any

	session   *tls.Conn
	transport *tlsTransport

	closing atomic.Bool
	closed  atomic.Bool
	log     *zap.Logger
	metrics *control.Metrics
}

// Open creates a non-blocking, close-on-exec socket bound to mux.
func Open(family, sotype, proto int, mux *reactor.Multiplexer, opts ...Option) (*Socket, error) {
	fd, err := openSocket(family, sotype, proto)
	if err != nil {
		return nil, err
	}
	return New(fd, mux, opts...), nil
}

// OpenDescriptor creates a bare non-blocking, close-on-exec descriptor that is
// not tied to any reactor. The caller owns it.
func OpenDescriptor(family, sotype, proto int) (int, error) {
	return openSocket(family, sotype, proto)
}

// New adopts fd. The descriptor is owned by the returned Socket from now on.
func New(fd int, mux *reactor.Multiplexer, opts ...Option) *Socket {
	o := options{drainTimeout: DefaultDrainTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Logger("socket")
	}
	s := &Socket{
		handle:       nextHandle.Add(1),
		mux:          mux,
		drainTimeout: o.drainTimeout,
		log:          o.log,
		metrics:      o.metrics,
	}
	s.fd.Store(int64(fd))
	s.timeout.Store(int64(o.timeout))
	return s
}

// Fd returns the descriptor, or -1 once closed.
func (s *Socket) Fd() int { return int(s.fd.Load()) }

// Handle is the stable identity the reactor keys registrations by.
func (s *Socket) Handle() reactor.Handle { return s.handle }

// Timeout is the idle timeout applied when interest is armed.
func (s *Socket) Timeout() time.Duration { return time.Duration(s.timeout.Load()) }

// SetTimeout changes the idle timeout for subsequent registrations.
func (s *Socket) SetTimeout(d time.Duration) { s.timeout.Store(int64(d)) }

// Multiplexer returns the reactor the socket suspends on.
func (s *Socket) Multiplexer() *reactor.Multiplexer { return s.mux }

// UserData returns the opaque back-reference set by the owner.
func (s *Socket) UserData() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userData
}

// SetUserData stores an opaque back-reference. The socket never uses it.
func (s *Socket) SetUserData(v any) {
	s.mu.Lock()
	s.userData = v
	s.mu.Unlock()
}

// BytesSent is the cumulative count of payload bytes accepted for sending.
func (s *Socket) BytesSent() uint64 { return s.sent.Load() }

// BytesReceived is the cumulative count of payload bytes read.
func (s *Socket) BytesReceived() uint64 { return s.received.Load() }

// SetMetrics exports byte counters to m.
func (s *Socket) SetMetrics(m *control.Metrics) { s.metrics = m }

// Closed reports whether the descriptor has been released.
func (s *Socket) Closed() bool { return s.closed.Load() }

// Secured reports whether a TLS session is attached.
func (s *Socket) Secured() bool { return s.session != nil }

// ConnectionState returns the TLS state of a secured socket.
func (s *Socket) ConnectionState() (tls.ConnectionState, bool) {
	if s.session == nil {
		return tls.ConnectionState{}, false
	}
	return s.session.ConnectionState(), true
}

// Peer returns the remote address.
func (s *Socket) Peer() (netip.AddrPort, error) {
	sa, err := unix.Getpeername(s.Fd())
	if err != nil {
		return netip.AddrPort{}, err
	}
	return AddrPortOf(sa), nil
}

// Local returns the bound local address.
func (s *Socket) Local() (netip.AddrPort, error) {
	sa, err := unix.Getsockname(s.Fd())
	if err != nil {
		return netip.AddrPort{}, err
	}
	return AddrPortOf(sa), nil
}

func (s *Socket) countSent(n int) {
	if n > 0 {
		s.sent.Add(uint64(n))
		s.metrics.BytesSent(n)
	}
}

func (s *Socket) countReceived(n int) {
	if n > 0 {
		s.received.Add(uint64(n))
		s.metrics.BytesReceived(n)
	}
}

// withTimeout presents the socket to the reactor with a different idle timeout.
type withTimeout struct {
	*Socket
	timeout time.Duration
}

func (w withTimeout) Timeout() time.Duration { return w.timeout }
