// File: socket/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
)

var (
	// ErrPending is returned by an async primitive that suspended on the reactor.
	ErrPending = errors.New("socket: operation pending")
	// ErrReset reports a broken connection; the socket must be torn down.
	ErrReset = errors.New("socket: connection reset")
	// ErrConnectTimeout reports that a non-blocking connect saw no writability in time.
	ErrConnectTimeout = errors.New("socket: connect timeout")
	// ErrClosed is returned for operations on a closed socket.
	ErrClosed = errors.New("socket: closed")
	// ErrHandshake reports a failed TLS negotiation.
	ErrHandshake = errors.New("socket: tls handshake failed")
	// ErrNotSecure is returned by TLS operations on a plaintext socket.
	ErrNotSecure = errors.New("socket: no tls session")

	errNoSendfile = errors.New("socket: sendfile unavailable")
)

// ErrWouldBlock is the transient outcome: retry once the reactor reports readiness.
// It satisfies net.Error with Temporary() == true.
var ErrWouldBlock error = wouldBlock{}

type wouldBlock struct{}

func (wouldBlock) Error() string   { return "socket: operation would block" }
func (wouldBlock) Timeout() bool   { return true }
func (wouldBlock) Temporary() bool { return true }

// IsTransient reports whether err only means "retry later".
func IsTransient(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

// IsFatal reports whether err requires tearing the connection down.
func IsFatal(err error) bool {
	return err != nil && !IsTransient(err) && !errors.Is(err, ErrPending)
}

// classify maps a raw syscall result into one of the three outcomes.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
		return ErrWouldBlock
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %w", ErrReset, io.EOF)
	case IsTransient(err), errors.Is(err, ErrReset), errors.Is(err, ErrClosed):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrReset, err)
	}
}

// statusError converts a non-completion reactor status into an error.
func statusError(st api.Status) error {
	switch st {
	case api.StatusTimeout:
		return api.ErrOperationTimeout
	case api.StatusCancel:
		return ErrClosed
	default:
		return ErrReset
	}
}

// StatusOf maps a fatal error onto the completion code reported to continuations.
func StatusOf(err error) api.Status {
	switch {
	case err == nil:
		return api.StatusFinish
	case errors.Is(err, api.ErrOperationTimeout), errors.Is(err, ErrConnectTimeout):
		return api.StatusTimeout
	case errors.Is(err, ErrClosed):
		return api.StatusCancel
	default:
		return api.StatusReset
	}
}
