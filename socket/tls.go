// File: socket/tls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TLS session over the non-blocking descriptor. crypto/tls drives the record
// layer through tlsTransport, which either parks on reactor readiness (while
// the handshake runs) or reports ErrWouldBlock (afterwards). Write errors are
// sticky inside crypto/tls, so the transport always accepts ciphertext and
// queues what the kernel refused.

package socket

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/reactor"
)

type tlsTransport struct {
	s      *Socket
	parked atomic.Bool

	mu  sync.Mutex
	out bytes.Buffer
}

var _ net.Conn = (*tlsTransport)(nil)

func (t *tlsTransport) Read(b []byte) (int, error) {
	for {
		n, err := unix.Read(t.s.Fd(), b)
		switch {
		case err == nil && n == 0 && len(b) > 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		}
		if !IsTransient(classify(err)) {
			return 0, err
		}
		if !t.parked.Load() {
			return 0, ErrWouldBlock
		}
		if err := t.await(reactor.Readable); err != nil {
			return 0, err
		}
	}
}

func (t *tlsTransport) Write(b []byte) (int, error) {
	t.mu.Lock()
	t.out.Write(b)
	t.mu.Unlock()
	if !t.parked.Load() {
		if err := t.flush(); IsFatal(err) {
			return 0, err
		}
		return len(b), nil
	}
	for {
		err := t.flush()
		if err == nil {
			return len(b), nil
		}
		if IsFatal(err) {
			return 0, err
		}
		if err := t.await(reactor.Writable); err != nil {
			return 0, err
		}
	}
}

// flush writes queued ciphertext until the queue is empty or the kernel refuses.
func (t *tlsTransport) flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.out.Len() > 0 {
		n, err := unix.Write(t.s.Fd(), t.out.Bytes())
		if n > 0 {
			t.out.Next(n)
		}
		if err != nil {
			return classify(err)
		}
	}
	t.out.Reset()
	return nil
}

func (t *tlsTransport) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Len()
}

// await parks the calling goroutine until the reactor reports dir.
func (t *tlsTransport) await(dir reactor.Interest) error {
	ch := make(chan api.Status, 1)
	cb := func(st api.Status) { ch <- st }
	var err error
	if dir == reactor.Readable {
		err = t.s.mux.WhenReadable(t.s, cb)
	} else {
		err = t.s.mux.WhenWriteable(t.s, cb)
	}
	if err != nil {
		return err
	}
	if st := <-ch; !st.IsDone() {
		return statusError(st)
	}
	return nil
}

// Close is a no-op: the Socket owns the descriptor.
func (t *tlsTransport) Close() error { return nil }

func (t *tlsTransport) LocalAddr() net.Addr {
	ap, _ := t.s.Local()
	return net.TCPAddrFromAddrPort(ap)
}

func (t *tlsTransport) RemoteAddr() net.Addr {
	ap, _ := t.s.Peer()
	return net.TCPAddrFromAddrPort(ap)
}

func (t *tlsTransport) SetDeadline(time.Time) error      { return nil }
func (t *tlsTransport) SetReadDeadline(time.Time) error  { return nil }
func (t *tlsTransport) SetWriteDeadline(time.Time) error { return nil }

// Secure attaches a TLS session. For a client, hostname becomes the SNI name
// unless cfg already names one.
func (s *Socket) Secure(cfg *tls.Config, hostname string, server bool) error {
	if cfg == nil {
		return fmt.Errorf("%w: no tls config", ErrHandshake)
	}
	if s.session != nil {
		return api.ErrAlreadyExists
	}
	t := &tlsTransport{s: s}
	if server {
		s.session = tls.Server(t, cfg)
	} else {
		c := cfg.Clone()
		if c.ServerName == "" {
			c.ServerName = hostname
		}
		s.session = tls.Client(t, c)
	}
	s.transport = t
	return nil
}

// HandshakeAsync runs the TLS handshake without occupying a scheduler worker.
// cb fires exactly once, on the scheduler, with nil or an ErrHandshake-wrapped error.
func (s *Socket) HandshakeAsync(cb func(error)) error {
	if s.session == nil {
		cb(ErrNotSecure)
		return nil
	}
	s.transport.parked.Store(true)
	go func() {
		err := s.session.Handshake()
		s.transport.parked.Store(false)
		if err == nil {
			err = s.transport.flush()
			if IsTransient(err) {
				err = nil
			}
		}
		if err != nil {
			s.log.Debug("tls handshake", zap.Uint64("socket", s.handle), zap.Error(err))
			err = fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		if serr := s.mux.Scheduler().Submit(func() { cb(err) }); serr != nil {
			cb(err)
		}
	}()
	return ErrPending
}
