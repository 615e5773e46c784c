// File: client/future.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"context"
	"sync"
)

// Status is the outcome of a connect pipeline. Negative values name the
// stage that failed.
type Status int

const (
	StatusConnected       Status = 0
	StatusResolveFailed   Status = -1
	StatusOpenFailed      Status = -2
	StatusConnectFailed   Status = -3
	StatusHandshakeFailed Status = -4
	StatusClosed          Status = -5
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusResolveFailed:
		return "resolve failed"
	case StatusOpenFailed:
		return "open failed"
	case StatusConnectFailed:
		return "connect failed"
	case StatusHandshakeFailed:
		return "handshake failed"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Future resolves exactly once with a Status and, for failures, the cause.
type Future struct {
	once   sync.Once
	done   chan struct{}
	status Status
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(st Status, err error) {
	f.once.Do(func() {
		f.status, f.err = st, err
		close(f.done)
	})
}

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Status returns the resolved status. It is only meaningful after Done.
func (f *Future) Status() Status {
	<-f.done
	return f.status
}

// Err returns the failure cause, or nil.
func (f *Future) Err() error {
	<-f.done
	return f.err
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (Status, error) {
	select {
	case <-f.done:
		return f.status, f.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
