// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package server accepts connections for a set of virtual hosts, optionally
// terminates TLS, and hands each connection to a Handler. Connection objects
// are pooled across accepts.
package server

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/pool"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/resolver"
)

var (
	// ErrAlreadyConfigured is returned by Configure on a configured server.
	ErrAlreadyConfigured = errors.New("server: already configured")
	// ErrNotConfigured is returned by Listen before Configure succeeded.
	ErrNotConfigured = errors.New("server: not configured")
	// ErrBadState is returned when a lifecycle call does not match the current state.
	ErrBadState = errors.New("server: invalid state")
	// ErrShutdownStalled reports connections still active when Unlisten gave up.
	ErrShutdownStalled = errors.New("server: shutdown stalled")
)

// State is the server lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateWorking
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of the connection pool.
type Stats struct {
	Active    int
	Inactive  int
	Allocated int64
	Refused   int64
}

// Server accepts connections on every configured host and hands them to a Handler.
type Server struct {
	sched    api.Scheduler
	mux      *reactor.Multiplexer
	resolver *resolver.Resolver
	handler  Handler

	log     *zap.Logger
	metrics *control.Metrics
	probes  api.Debug

	state atomic.Int32

	mu        sync.Mutex
	router    *Router
	listeners []*Listener
	conns     *pool.Sets[*Connection]

	refused atomic.Int64
}
