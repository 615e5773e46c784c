// File: server/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"crypto/tls"
	"net/netip"

	"github.com/momentics/hioload-net/resolver"
	"github.com/momentics/hioload-net/socket"
)

// Listener binds one RemoteHost to a listening socket for the server's lifetime.
type Listener struct {
	host RemoteHost
	addr *resolver.Address
	sock *socket.Socket
	tls  *tls.Config
}

// Name is the host name from the router.
func (l *Listener) Name() string { return l.host.Name }

// Host returns the router entry.
func (l *Listener) Host() RemoteHost { return l.host }

// Address returns the resolved bind address.
func (l *Listener) Address() *resolver.Address { return l.addr }

// Socket returns the listening socket.
func (l *Listener) Socket() *socket.Socket { return l.sock }

// Secure reports whether accepted connections terminate TLS.
func (l *Listener) Secure() bool { return l.tls != nil }

// Bound returns the actual local address, useful with port 0.
func (l *Listener) Bound() netip.AddrPort {
	ap, _ := l.sock.Local()
	return ap
}
