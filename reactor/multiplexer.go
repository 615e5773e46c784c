// File: reactor/multiplexer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multiplexer: per-socket interest registration, one-pass dispatch, timeout
// firing and self-scheduling onto the task scheduler.

package reactor

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/internal/logging"
	"github.com/momentics/hioload-net/internal/timeouts"
)

// ErrClosed is returned when arming interest on a closed Multiplexer.
var ErrClosed = errors.New("reactor: multiplexer closed")

// Handle is the stable, non-owning identity of a registered socket.
type Handle = timeouts.Handle

// Pollable is what the reactor needs to know about a socket.
type Pollable interface {
	Handle() Handle
	Fd() int
	// Timeout is the idle timeout applied when interest is armed; <= 0 disables it.
	Timeout() time.Duration
}

// Callback is a one-shot continuation fired with a completion status.
type Callback func(api.Status)

// subscription is the event record of one socket: callbacks plus armed directions.
type subscription struct {
	fd      int
	onRead  Callback
	onWrite Callback
	armed   Interest
}

type firing struct {
	onRead  Callback
	onWrite Callback
	status  api.Status
}

// Multiplexer owns the readiness backend and the timeout index.
type Multiplexer struct {
	sched   api.Scheduler
	backend Backend
	log     *zap.Logger
	metrics *control.Metrics

	pollInterval time.Duration

	mu       sync.Mutex
	subs     map[Handle]*subscription
	byFd     map[int]Handle
	timeouts *timeouts.Index

	dispatchMu sync.Mutex
	events     []Event

	listeners atomic.Int64
	running   atomic.Bool
	closed    atomic.Bool
}

// New creates a Multiplexer posting its continuations and polling passes onto sched.
func New(sched api.Scheduler, opts ...Option) (*Multiplexer, error) {
	if sched == nil {
		return nil, api.ErrInvalidArgument
	}
	o := options{
		pollInterval: DefaultPollInterval,
		maxEvents:    DefaultMaxEvents,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Logger("reactor")
	}
	if o.maxEvents <= 0 {
		o.maxEvents = DefaultMaxEvents
	}
	if o.backend == nil {
		b, err := NewBackend()
		if err != nil {
			return nil, err
		}
		o.backend = b
	}
	return &Multiplexer{
		sched:        sched,
		backend:      o.backend,
		log:          o.log,
		metrics:      o.metrics,
		pollInterval: o.pollInterval,
		subs:         make(map[Handle]*subscription),
		byFd:         make(map[int]Handle),
		timeouts:     timeouts.New(),
		events:       make([]Event, o.maxEvents),
	}, nil
}

// Scheduler returns the scheduler the reactor posts onto.
func (m *Multiplexer) Scheduler() api.Scheduler {
	return m.sched
}

// WhenReadable arms a one-shot readable continuation for p.
func (m *Multiplexer) WhenReadable(p Pollable, cb Callback) error {
	return m.arm(p, Readable, cb)
}

// WhenWriteable arms a one-shot writable continuation for p.
func (m *Multiplexer) WhenWriteable(p Pollable, cb Callback) error {
	return m.arm(p, Writable, cb)
}

func (m *Multiplexer) arm(p Pollable, dir Interest, cb Callback) error {
	if cb == nil {
		return api.ErrInvalidArgument
	}
	if m.closed.Load() {
		return ErrClosed
	}
	h, fd := p.Handle(), p.Fd()

	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[h]
	if !ok {
		if stale, taken := m.byFd[fd]; taken && stale != h {
			// fd was closed and reused without cancelling the old owner
			delete(m.subs, stale)
			m.timeouts.Remove(stale)
		}
		sub = &subscription{fd: fd}
	}
	want := sub.armed | dir
	var err error
	switch {
	case sub.armed == 0:
		err = m.backend.Add(fd, want)
	case want != sub.armed:
		err = m.backend.Modify(fd, want)
	}
	if err != nil {
		return err
	}
	if dir == Readable {
		sub.onRead = cb
	} else {
		sub.onWrite = cb
	}
	sub.armed = want
	m.subs[h] = sub
	m.byFd[fd] = h
	if to := p.Timeout(); to > 0 {
		m.timeouts.Set(h, m.sched.Now().Add(to))
	}
	return nil
}

// Armed reports which directions are currently armed for p.
func (m *Multiplexer) Armed(p Pollable) (read, write bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[p.Handle()]
	if !ok {
		return false, false
	}
	return sub.armed&Readable != 0, sub.armed&Writable != 0
}

// Deadline returns the timeout instant registered for p.
func (m *Multiplexer) Deadline(p Pollable) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeouts.Deadline(p.Handle())
}

// Pending returns the number of sockets with armed interest.
func (m *Multiplexer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Cancel withdraws both directions of p and clears its timeout entry. When fire
// is set and reason is not a completion status, the withdrawn continuations run
// with reason in one scheduled unit of work.
func (m *Multiplexer) Cancel(p Pollable, reason api.Status, fire bool) {
	h := p.Handle()
	m.mu.Lock()
	m.timeouts.Remove(h)
	f, ok := m.dropLocked(h)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.metrics.Cancelled()
	if fire && !reason.IsDone() {
		f.status = reason
		m.post(f)
	}
}

// dropLocked unregisters h from the backend and moves its callbacks out.
func (m *Multiplexer) dropLocked(h Handle) (firing, bool) {
	sub, ok := m.subs[h]
	if !ok {
		return firing{}, false
	}
	if err := m.backend.Remove(sub.fd); err != nil {
		m.log.Debug("backend remove", zap.Int("fd", sub.fd), zap.Error(err))
	}
	delete(m.subs, h)
	if m.byFd[sub.fd] == h {
		delete(m.byFd, sub.fd)
	}
	return firing{onRead: sub.onRead, onWrite: sub.onWrite}, true
}

// Dispatch performs one bounded wait on the backend, fires ready continuations,
// then fires Timeout for every expired entry. It returns the number of
// continuations scheduled.
func (m *Multiplexer) Dispatch(timeout time.Duration) (int, error) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	if m.closed.Load() {
		return 0, ErrClosed
	}

	wait := timeout
	m.mu.Lock()
	if next, ok := m.timeouts.Next(); ok {
		if until := next.Sub(m.sched.Now()); until < wait || wait < 0 {
			wait = max(until, 0)
		}
	}
	m.mu.Unlock()

	n, err := m.backend.Wait(m.events, wait)
	if err != nil {
		return 0, err
	}
	m.metrics.ReactorPass()

	var fired []firing
	m.mu.Lock()
	for i := 0; i < n; i++ {
		if f, ok := m.readyLocked(m.events[i]); ok {
			fired = append(fired, f)
		}
	}
	now := m.sched.Now()
	timedOut := m.timeouts.Expire(now, func(h Handle) {
		if f, ok := m.dropLocked(h); ok {
			f.status = api.StatusTimeout
			fired = append(fired, f)
		}
	})
	m.mu.Unlock()

	for i := 0; i < timedOut; i++ {
		m.metrics.TimeoutFired()
	}
	for _, f := range fired {
		m.post(f)
	}
	m.metrics.ReadyCallbacks(len(fired))
	return len(fired), nil
}

// readyLocked decides, for one readiness tuple, which continuations fire and
// whether the registration survives.
func (m *Multiplexer) readyLocked(ev Event) (firing, bool) {
	h, ok := m.byFd[ev.Fd]
	if !ok {
		return firing{}, false
	}
	sub := m.subs[h]
	if ev.Closed {
		m.timeouts.Remove(h)
		f, _ := m.dropLocked(h)
		f.status = api.StatusReset
		return f, true
	}

	var f firing
	var done Interest
	if ev.Readable && sub.armed&Readable != 0 {
		f.onRead, sub.onRead = sub.onRead, nil
		done |= Readable
	}
	if ev.Writable && sub.armed&Writable != 0 {
		f.onWrite, sub.onWrite = sub.onWrite, nil
		done |= Writable
	}
	if done == 0 {
		return firing{}, false
	}
	f.status = api.StatusFinish

	if rest := sub.armed &^ done; rest != 0 {
		// the other direction is still armed: keep the registration alive
		if err := m.backend.Modify(sub.fd, rest); err != nil {
			m.log.Debug("backend modify", zap.Int("fd", sub.fd), zap.Error(err))
		}
		sub.armed = rest
		return f, true
	}
	m.timeouts.Remove(h)
	m.dropLocked(h)
	return f, true
}

// post runs both continuations of f in one unit of work. If the scheduler
// refuses the task they run inline so that no continuation is lost.
func (m *Multiplexer) post(f firing) {
	if f.onRead == nil && f.onWrite == nil {
		return
	}
	task := func() {
		if f.onRead != nil {
			f.onRead(f.status)
		}
		if f.onWrite != nil {
			f.onWrite(f.status)
		}
	}
	if err := m.sched.Submit(task); err != nil {
		task()
	}
}

// Listen registers interest in the polling loop. The first listener starts it.
func (m *Multiplexer) Listen() {
	if m.listeners.Add(1) == 1 {
		m.kick()
	}
}

// Unlisten drops one listener. The loop stops after the pass in flight once none remain.
func (m *Multiplexer) Unlisten() {
	for {
		n := m.listeners.Load()
		if n <= 0 || m.listeners.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// Listening reports whether at least one party holds the polling loop.
func (m *Multiplexer) Listening() bool {
	return m.listeners.Load() > 0
}

func (m *Multiplexer) kick() {
	if m.closed.Load() || !m.running.CompareAndSwap(false, true) {
		return
	}
	if err := m.sched.Submit(m.loop); err != nil {
		m.running.Store(false)
		m.log.Warn("reactor loop not scheduled", zap.Error(err))
	}
}

// loop is one self-scheduled polling pass.
func (m *Multiplexer) loop() {
	if _, err := m.Dispatch(m.pollInterval); err != nil && !errors.Is(err, ErrClosed) {
		m.log.Warn("dispatch failed", zap.Error(err))
	}
	if m.Listening() && !m.closed.Load() {
		if err := m.sched.Submit(m.loop); err == nil {
			return
		}
	}
	m.running.Store(false)
	// a Listen racing with the store above saw running==true and did not post
	if m.Listening() {
		m.kick()
	}
}

// Close stops the loop, cancels every registration with StatusCancel and
// releases the backend.
func (m *Multiplexer) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	var pending []firing
	m.mu.Lock()
	for h := range m.subs {
		m.timeouts.Remove(h)
		if f, ok := m.dropLocked(h); ok {
			f.status = api.StatusCancel
			pending = append(pending, f)
		}
	}
	m.mu.Unlock()
	for _, f := range pending {
		m.post(f)
	}
	return m.backend.Close()
}
