// File: server/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

// Handler is the application strategy driven by the server.
type Handler interface {
	// AllocateConnection returns per-connection state for a newly allocated
	// Connection. It survives pooling and is exposed as Connection.Data.
	AllocateConnection(l *Listener) any
	// OnBegin runs once the connection is accepted (and, for TLS hosts, after
	// the handshake). The handler owns the connection until it calls Close.
	OnBegin(c *Connection)
	// OnEnd runs after the connection's socket is released, before pooling.
	OnEnd(c *Connection)
	OnListen(s *Server)
	OnUnlisten(s *Server)
}

// BaseHandler implements Handler with no-ops; embed it to override selectively.
type BaseHandler struct{}

func (BaseHandler) AllocateConnection(*Listener) any { return nil }
func (BaseHandler) OnBegin(c *Connection)            { c.Close() }
func (BaseHandler) OnEnd(*Connection)                {}
func (BaseHandler) OnListen(*Server)                 {}
func (BaseHandler) OnUnlisten(*Server)               {}
