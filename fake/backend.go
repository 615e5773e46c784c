// File: fake/backend.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-net/reactor"
)

// Call is one interest change seen by Backend.
type Call struct {
	Op       string
	Fd       int
	Interest reactor.Interest
}

// Backend records interest changes and replays scripted readiness.
type Backend struct {
	mu     sync.Mutex
	calls  []Call
	ready  []reactor.Event
	closed bool
}

var _ reactor.Backend = (*Backend)(nil)

func (b *Backend) Add(fd int, in reactor.Interest) error {
	b.record("add", fd, in)
	return nil
}

func (b *Backend) Modify(fd int, in reactor.Interest) error {
	b.record("mod", fd, in)
	return nil
}

func (b *Backend) Remove(fd int) error {
	b.record("del", fd, 0)
	return nil
}

func (b *Backend) record(op string, fd int, in reactor.Interest) {
	b.mu.Lock()
	b.calls = append(b.calls, Call{op, fd, in})
	b.mu.Unlock()
}

// Wait returns queued events without blocking.
func (b *Backend) Wait(events []reactor.Event, _ time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := copy(events, b.ready)
	b.ready = b.ready[n:]
	return n, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Push queues a readiness tuple for the next Wait.
func (b *Backend) Push(ev reactor.Event) {
	b.mu.Lock()
	b.ready = append(b.ready, ev)
	b.mu.Unlock()
}

// Calls returns the recorded interest changes.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Last returns the most recent interest change.
func (b *Backend) Last() Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.calls) == 0 {
		return Call{}
	}
	return b.calls[len(b.calls)-1]
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
