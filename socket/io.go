// File: socket/io.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Synchronous primitives. Each returns nil, ErrWouldBlock or a fatal error.

package socket

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Read reads up to len(p) bytes.
func (s *Socket) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	var (
		n   int
		err error
	)
	if s.session != nil {
		n, err = s.session.Read(p)
	} else {
		n, err = unix.Read(s.Fd(), p)
		if n < 0 {
			n = 0
		}
		if err == nil && n == 0 {
			err = io.EOF
		}
	}
	s.countReceived(n)
	if n > 0 && IsTransient(classify(err)) {
		err = nil
	}
	return n, classify(err)
}

// Write writes from p. On a secured socket all of p is accepted by the TLS
// session and any ciphertext the kernel refused stays queued until the next
// write or FlushPending.
func (s *Socket) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if s.session != nil {
		return s.writeSecure(p)
	}
	n, err := unix.Write(s.Fd(), p)
	if n < 0 {
		n = 0
	}
	s.countSent(n)
	if n > 0 && IsTransient(classify(err)) {
		err = nil
	}
	return n, classify(err)
}

func (s *Socket) writeSecure(p []byte) (int, error) {
	if err := s.transport.flush(); err != nil {
		return 0, err
	}
	n, err := s.session.Write(p)
	s.countSent(n)
	if err != nil {
		return n, classify(err)
	}
	if err := s.transport.flush(); IsFatal(err) {
		return n, err
	}
	return n, nil
}

// PendingOutput reports whether TLS ciphertext is still queued.
func (s *Socket) PendingOutput() bool {
	return s.transport != nil && s.transport.pending() > 0
}

// FlushPending pushes queued TLS ciphertext to the kernel.
func (s *Socket) FlushPending() error {
	if s.transport == nil {
		return nil
	}
	return s.transport.flush()
}

// Accept takes one connection off the backlog. The new descriptor is
// non-blocking and close-on-exec.
func (s *Socket) Accept() (int, unix.Sockaddr, error) {
	if s.closed.Load() {
		return -1, nil, ErrClosed
	}
	fd, sa, err := acceptSocket(s.Fd())
	if err != nil {
		if errors.Is(err, unix.ECONNABORTED) {
			return -1, nil, ErrWouldBlock
		}
		return -1, nil, classify(err)
	}
	return fd, sa, nil
}

// Connect starts a connection. In-progress is reported as ErrWouldBlock.
func (s *Socket) Connect(sa unix.Sockaddr) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := unix.Connect(s.Fd(), sa)
	switch {
	case err == nil, errors.Is(err, unix.EISCONN):
		return nil
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EALREADY),
		errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return ErrWouldBlock
	default:
		return fmt.Errorf("connect: %w", err)
	}
}

// Bind binds the socket to sa.
func (s *Socket) Bind(sa unix.Sockaddr) error {
	if err := unix.Bind(s.Fd(), sa); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	return nil
}

// Listen marks the socket passive.
func (s *Socket) Listen(backlog int) error {
	if err := unix.Listen(s.Fd(), backlog); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
