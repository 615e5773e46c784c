// File: socket/close.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
)

// CancelEvents withdraws all reactor interest. Pending continuations fire with
// reason unless it is a completion status.
func (s *Socket) CancelEvents(reason api.Status) {
	if s.mux != nil {
		s.mux.Cancel(s, reason, true)
	}
}

// Close releases the descriptor and the TLS session. Interest is cancelled
// first. A graceful close switches to blocking mode, half-closes the send
// side and drains the peer until it closes or the drain timeout elapses.
// Graceful close blocks; run it as a background task.
func (s *Socket) Close(graceful bool) error {
	first := s.closing.CompareAndSwap(false, true)
	if s.closed.Load() {
		return nil
	}
	s.CancelEvents(api.StatusCancel)
	if graceful && first {
		s.drain()
	}
	return s.release()
}

func (s *Socket) drain() {
	fd := s.Fd()
	_ = unix.SetNonblock(fd, false)
	_ = s.SetRecvTimeout(s.drainTimeout)
	_ = s.SetSendTimeout(s.drainTimeout)
	if s.session != nil {
		_ = s.session.CloseWrite()
		_ = s.transport.flush()
	}
	if err := unix.Shutdown(fd, unix.SHUT_WR); err != nil {
		s.log.Debug("shutdown", zap.Uint64("socket", s.handle), zap.Error(err))
		return
	}
	buf := scratch.GetBuffer()
	defer scratch.PutBuffer(buf)
	deadline := time.Now().Add(s.drainTimeout)
	for time.Now().Before(deadline) {
		n, err := unix.Read(fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n <= 0 || err != nil {
			return
		}
	}
}

// now reads the clock the reactor measures timeouts against.
func (s *Socket) now() time.Time {
	if s.mux == nil {
		return time.Now()
	}
	return s.mux.Scheduler().Now()
}

func (s *Socket) release() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	fd := int(s.fd.Swap(-1))
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

type drainOp struct {
	asyncOp
	buf      []byte
	deadline time.Time
	cb       func()
}

// CloseAsync performs the graceful close through the reactor instead of
// blocking: queued TLS output is flushed, the send side is half-closed and the
// peer is drained until it closes or the drain timeout, counted from the
// call, elapses; on timeout the descriptor is reset with SO_LINGER 0. A
// non-positive drain timeout drains without a limit. cb
// runs once the descriptor is released. A second call only runs cb.
func (s *Socket) CloseAsync(cb func()) {
	if !s.closing.CompareAndSwap(false, true) || s.closed.Load() {
		cb()
		return
	}
	s.CancelEvents(api.StatusCancel)
	var deadline time.Time
	if s.drainTimeout > 0 {
		deadline = s.now().Add(s.drainTimeout)
	}
	s.SetTimeout(s.drainTimeout)
	if s.session != nil {
		_ = s.session.CloseWrite()
	}
	_ = s.WriteAsync(nil, func(st api.Status) {
		if !st.IsDone() || unix.Shutdown(s.Fd(), unix.SHUT_WR) != nil {
			_ = s.release()
			cb()
			return
		}
		op := &drainOp{asyncOp: asyncOp{s: s}, buf: scratch.GetBuffer(), deadline: deadline, cb: cb}
		_ = op.step()
	})
}

func (op *drainOp) step() error {
	for {
		_, err := op.s.Read(op.buf)
		if err != nil {
			if IsTransient(err) {
				if !op.deadline.IsZero() {
					left := op.deadline.Sub(op.s.now())
					if left <= 0 {
						op.finish(api.StatusTimeout)
						return nil
					}
					op.s.SetTimeout(left)
				}
				return op.suspend(op.s, opAwaitingReadable, op.resume, op.finish)
			}
			op.finish(api.StatusReset)
			return nil
		}
	}
}

func (op *drainOp) resume(st api.Status) {
	if op.wake(st, op.finish) {
		_ = op.step()
	}
}

func (op *drainOp) finish(st api.Status) {
	if !op.done() {
		return
	}
	scratch.PutBuffer(op.buf)
	if st == api.StatusTimeout {
		// peer outlived the drain timeout: reset on close
		_ = op.s.SetLinger(0)
	}
	if err := op.s.release(); err != nil {
		op.s.log.Debug("close", zap.Uint64("socket", op.s.handle), zap.Error(err))
	}
	op.cb()
}
