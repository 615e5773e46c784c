// File: socket/async.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Continuation-passing primitives. Every operation is a small state machine:
// it runs synchronously until the transport would block, arms the reactor for
// the needed direction and returns ErrPending; the reactor wake-up resumes it
// from where it stopped. The completion continuation fires exactly once.

package socket

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/pool"
	"github.com/momentics/hioload-net/reactor"
)

type opState uint8

const (
	opNotStarted opState = iota
	opAwaitingReadable
	opAwaitingWriteable
	opDone
)

const scratchSize = 64

var scratch = pool.NewBytePool(scratchSize)

// asyncOp is the bookkeeping shared by every primitive.
type asyncOp struct {
	s         *Socket
	state     opState
	suspended bool
}

func (o *asyncOp) completion() api.Status {
	if o.suspended {
		return api.StatusFinish
	}
	return api.StatusFinishSync
}

// suspend arms dir with resume. A failed registration is reported as Reset
// through fail.
func (o *asyncOp) suspend(p reactor.Pollable, dir opState, resume reactor.Callback, fail func(api.Status)) error {
	o.state = dir
	o.suspended = true
	var err error
	if dir == opAwaitingReadable {
		err = o.s.mux.WhenReadable(p, resume)
	} else {
		err = o.s.mux.WhenWriteable(p, resume)
	}
	if err != nil {
		fail(api.StatusReset)
		return nil
	}
	return ErrPending
}

// wake moves the operation out of its awaiting state, reporting whether it
// should keep running.
func (o *asyncOp) wake(st api.Status, fail func(api.Status)) bool {
	if o.state == opDone {
		return false
	}
	if !st.IsDone() {
		fail(st)
		return false
	}
	o.state = opNotStarted
	return true
}

func (o *asyncOp) done() bool {
	if o.state == opDone {
		return false
	}
	o.state = opDone
	return true
}

// ---- read ----

type readOp struct {
	asyncOp
	buf  []byte
	n    int
	some bool
	cb   func(int, api.Status)
}

// ReadAsync fills buf completely, then calls cb with the byte count.
func (s *Socket) ReadAsync(buf []byte, cb func(n int, st api.Status)) error {
	op := &readOp{asyncOp: asyncOp{s: s}, buf: buf, cb: cb}
	return op.step()
}

// ReadSomeAsync completes as soon as at least one byte was read.
func (s *Socket) ReadSomeAsync(buf []byte, cb func(n int, st api.Status)) error {
	op := &readOp{asyncOp: asyncOp{s: s}, buf: buf, some: true, cb: cb}
	return op.step()
}

func (op *readOp) step() error {
	for op.n < len(op.buf) {
		m, err := op.s.Read(op.buf[op.n:])
		op.n += m
		if err != nil {
			if !IsTransient(err) {
				op.finish(api.StatusReset)
				return nil
			}
			if op.some && op.n > 0 {
				break
			}
			return op.suspend(op.s, opAwaitingReadable, op.resume, op.finish)
		}
		if op.some {
			break
		}
	}
	op.finish(op.completion())
	return nil
}

func (op *readOp) resume(st api.Status) {
	if op.wake(st, op.finish) {
		_ = op.step()
	}
}

func (op *readOp) finish(st api.Status) {
	if op.done() {
		op.cb(op.n, st)
	}
}

// ---- write ----

type writeOp struct {
	asyncOp
	buf []byte
	off int
	cb  func(api.Status)
}

// WriteAsync writes all of buf. On a secured socket completion also waits for
// queued ciphertext to drain.
func (s *Socket) WriteAsync(buf []byte, cb func(st api.Status)) error {
	op := &writeOp{asyncOp: asyncOp{s: s}, buf: buf, cb: cb}
	return op.step()
}

func (op *writeOp) step() error {
	for op.off < len(op.buf) {
		n, err := op.s.Write(op.buf[op.off:])
		op.off += n
		if err != nil {
			if !IsTransient(err) {
				op.finish(api.StatusReset)
				return nil
			}
			return op.suspend(op.s, opAwaitingWriteable, op.resume, op.finish)
		}
	}
	if err := op.s.FlushPending(); err != nil {
		if !IsTransient(err) {
			op.finish(api.StatusReset)
			return nil
		}
		return op.suspend(op.s, opAwaitingWriteable, op.resume, op.finish)
	}
	op.finish(op.completion())
	return nil
}

func (op *writeOp) resume(st api.Status) {
	if op.wake(st, op.finish) {
		_ = op.step()
	}
}

func (op *writeOp) finish(st api.Status) {
	if op.done() {
		op.cb(st)
	}
}

// ---- read until ----

type readUntilOp struct {
	asyncOp
	delim   []byte
	matched int
	buf     []byte
	fill    int
	onData  func([]byte)
	cb      func(api.Status)
}

// ReadUntilAsync reads one byte at a time until delim has been seen, so no
// byte past the delimiter is consumed. Data, delimiter included, is handed to
// onData in chunks whenever the scratch buffer fills or the match completes.
func (s *Socket) ReadUntilAsync(delim []byte, onData func([]byte), cb func(st api.Status)) error {
	if len(delim) == 0 {
		return api.ErrInvalidArgument
	}
	op := &readUntilOp{
		asyncOp: asyncOp{s: s},
		delim:   delim,
		buf:     scratch.GetBuffer(),
		onData:  onData,
		cb:      cb,
	}
	return op.step()
}

func (op *readUntilOp) step() error {
	for {
		_, err := op.s.Read(op.buf[op.fill : op.fill+1])
		if err != nil {
			if !IsTransient(err) {
				op.finish(api.StatusReset)
				return nil
			}
			return op.suspend(op.s, opAwaitingReadable, op.resume, op.finish)
		}
		c := op.buf[op.fill]
		op.fill++
		op.advance(c)
		if op.matched == len(op.delim) {
			op.flush()
			op.finish(op.completion())
			return nil
		}
		if op.fill == len(op.buf) {
			op.flush()
		}
	}
}

// advance updates the partial-match index with the next byte, falling back
// to the longest delimiter prefix that still ends the seen bytes.
func (op *readUntilOp) advance(c byte) {
	if c == op.delim[op.matched] {
		op.matched++
		return
	}
	seen := append(op.delim[:op.matched:op.matched], c)
	k := op.matched
	for k > 0 && !bytes.HasSuffix(seen, op.delim[:k]) {
		k--
	}
	op.matched = k
}

func (op *readUntilOp) flush() {
	if op.fill > 0 && op.onData != nil {
		op.onData(op.buf[:op.fill])
	}
	op.fill = 0
}

func (op *readUntilOp) resume(st api.Status) {
	if op.wake(st, op.finish) {
		_ = op.step()
	}
}

func (op *readUntilOp) finish(st api.Status) {
	if !op.done() {
		return
	}
	if !st.IsDone() {
		op.flush()
	}
	scratch.PutBuffer(op.buf)
	op.buf = nil
	op.cb(st)
}

// ---- sendfile ----

type sendFileOp struct {
	asyncOp
	f      *os.File
	offset int64
	remain int
	chunk  []byte
	cb     func(api.Status)
}

const sendFileChunk = 32 << 10

// SendFileAsync sends count bytes of f starting at offset. Plaintext sockets
// use sendfile(2) where available; otherwise the file is copied through Write.
func (s *Socket) SendFileAsync(f *os.File, offset int64, count int, cb func(st api.Status)) error {
	op := &sendFileOp{asyncOp: asyncOp{s: s}, f: f, offset: offset, remain: count, cb: cb}
	return op.step()
}

func (op *sendFileOp) step() error {
	for op.remain > 0 {
		n, err := op.send()
		op.remain -= n
		if err != nil {
			if !IsTransient(err) {
				op.finish(api.StatusReset)
				return nil
			}
			return op.suspend(op.s, opAwaitingWriteable, op.resume, op.finish)
		}
		if n == 0 {
			// file shorter than requested
			op.finish(api.StatusReset)
			return nil
		}
	}
	if err := op.s.FlushPending(); err != nil {
		if !IsTransient(err) {
			op.finish(api.StatusReset)
			return nil
		}
		return op.suspend(op.s, opAwaitingWriteable, op.resume, op.finish)
	}
	op.finish(op.completion())
	return nil
}

func (op *sendFileOp) send() (int, error) {
	if op.s.session == nil && op.chunk == nil {
		n, err := sendfile(op.s.Fd(), int(op.f.Fd()), &op.offset, op.remain)
		if n > 0 {
			op.s.countSent(n)
		}
		if !errors.Is(err, errNoSendfile) && !errors.Is(err, unix.EINVAL) && !errors.Is(err, unix.ENOSYS) {
			if n > 0 && IsTransient(classify(err)) {
				err = nil
			}
			return n, classify(err)
		}
	}
	if op.chunk == nil {
		op.chunk = make([]byte, min(sendFileChunk, op.remain))
	}
	m, err := op.f.ReadAt(op.chunk[:min(len(op.chunk), op.remain)], op.offset)
	if m == 0 {
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrReset, err)
		}
		return 0, nil
	}
	n, err := op.s.Write(op.chunk[:m])
	op.offset += int64(n)
	return n, err
}

func (op *sendFileOp) resume(st api.Status) {
	if op.wake(st, op.finish) {
		_ = op.step()
	}
}

func (op *sendFileOp) finish(st api.Status) {
	if op.done() {
		op.chunk = nil
		op.cb(st)
	}
}

// ---- connect ----

type connectOp struct {
	asyncOp
	timeout time.Duration
	cb      func(error)
}

// ConnectAsync connects to sa. A reactor timeout is reported as
// ErrConnectTimeout and a cancellation as ECONNREFUSED, independent of the
// socket's idle timeout.
func (s *Socket) ConnectAsync(sa unix.Sockaddr, timeout time.Duration, cb func(error)) error {
	op := &connectOp{asyncOp: asyncOp{s: s}, timeout: timeout, cb: cb}
	err := s.Connect(sa)
	switch {
	case err == nil:
		op.finish(nil)
		return nil
	case IsTransient(err):
		return op.suspend(withTimeout{s, timeout}, opAwaitingWriteable, op.resume, op.fail)
	default:
		op.finish(err)
		return nil
	}
}

func (op *connectOp) resume(st api.Status) {
	if op.state == opDone {
		return
	}
	switch st {
	case api.StatusFinish, api.StatusFinishSync, api.StatusReset:
		if err := op.s.SocketError(); err != nil {
			op.finish(fmt.Errorf("connect: %w", err))
			return
		}
		if st == api.StatusReset {
			op.finish(fmt.Errorf("connect: %w", unix.ECONNREFUSED))
			return
		}
		op.finish(nil)
	default:
		op.fail(st)
	}
}

func (op *connectOp) fail(st api.Status) {
	switch st {
	case api.StatusTimeout:
		op.finish(ErrConnectTimeout)
	case api.StatusCancel:
		op.finish(fmt.Errorf("connect: %w", unix.ECONNREFUSED))
	default:
		op.finish(fmt.Errorf("connect: %w", ErrReset))
	}
}

func (op *connectOp) finish(err error) {
	if op.done() {
		op.cb(err)
	}
}

// ---- accept ----

type acceptOp struct {
	asyncOp
	onAccept func(fd int, sa unix.Sockaddr)
	cb       func(api.Status)
}

// AcceptAsync keeps pulling connections off the backlog, handing each to
// onAccept, until the listening socket fails or is cancelled; cb then
// reports why the loop ended.
func (s *Socket) AcceptAsync(onAccept func(fd int, sa unix.Sockaddr), cb func(st api.Status)) error {
	op := &acceptOp{asyncOp: asyncOp{s: s}, onAccept: onAccept, cb: cb}
	return op.step()
}

func (op *acceptOp) step() error {
	for {
		fd, sa, err := op.s.Accept()
		if err != nil {
			if !IsTransient(err) {
				op.finish(StatusOf(err))
				return nil
			}
			return op.suspend(op.s, opAwaitingReadable, op.resume, op.finish)
		}
		op.onAccept(fd, sa)
	}
}

func (op *acceptOp) resume(st api.Status) {
	if op.wake(st, op.finish) {
		_ = op.step()
	}
}

func (op *acceptOp) finish(st api.Status) {
	if op.done() {
		op.cb(st)
	}
}
