// File: server/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/hioload-net/socket"
)

// Frame is the in-flight message state of one connection.
type Frame struct {
	Payload        []byte
	Start          time.Time
	Finish         time.Time
	Timeout        time.Duration
	KeepAlive      int
	CloseRequested bool
}

// Connection is one accepted connection. Connections are pooled and reused;
// Data survives reuse, everything else is reset.
type Connection struct {
	id       uuid.UUID
	srv      *Server
	sock     *socket.Socket
	listener *Listener
	peer     netip.AddrPort
	frame    Frame
	closing  atomic.Bool

	// Data is the value returned by Handler.AllocateConnection.
	Data any
}

// ID identifies the current accept; it changes every time the object is reused.
func (c *Connection) ID() uuid.UUID { return c.id }

// Socket returns the connection's socket.
func (c *Connection) Socket() *socket.Socket { return c.sock }

// Listener returns the listener that accepted the connection.
func (c *Connection) Listener() *Listener { return c.listener }

// Peer returns the remote address captured at accept time.
func (c *Connection) Peer() netip.AddrPort { return c.peer }

// Frame returns the mutable frame record.
func (c *Connection) Frame() *Frame { return &c.frame }

// Closing reports whether Close has been requested.
func (c *Connection) Closing() bool { return c.closing.Load() }

// NextFrame finishes the current frame and starts the next one, consuming one
// keep-alive credit. It returns false once the credits are spent or a close
// was requested; the caller should then Close.
func (c *Connection) NextFrame() bool {
	now := c.srv.sched.Now()
	c.frame.Finish = now
	if c.frame.CloseRequested || c.closing.Load() || c.frame.KeepAlive <= 1 {
		c.frame.KeepAlive = 0
		c.frame.CloseRequested = true
		return false
	}
	c.frame.KeepAlive--
	c.frame.Payload = c.frame.Payload[:0]
	c.frame.Start = now
	c.frame.Finish = time.Time{}
	return true
}

// Close gracefully closes the socket in the background, then runs
// Handler.OnEnd and returns the connection to the pool. Extra calls are no-ops.
func (c *Connection) Close() {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}
	c.sock.CloseAsync(func() {
		c.srv.handler.OnEnd(c)
		c.srv.release(c)
	})
}

func (c *Connection) bind(s *Server, l *Listener, sock *socket.Socket, peer netip.AddrPort) {
	c.id = uuid.New()
	c.srv = s
	c.listener = l
	c.sock = sock
	c.peer = peer
	c.closing.Store(false)
	sock.SetUserData(c)
}

func (c *Connection) reset() {
	c.id = uuid.Nil
	c.sock = nil
	c.listener = nil
	c.peer = netip.AddrPort{}
	c.frame = Frame{Payload: c.frame.Payload[:0]}
}
