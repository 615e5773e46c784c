// File: resolver/address.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package resolver

import (
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/socket"
)

// Address is a resolution result: every candidate plus the one chosen by policy.
type Address struct {
	candidates []netip.AddrPort
	usable     int
	sotype     int
	proto      int
}

// Candidates returns the full lookup result.
func (a *Address) Candidates() []netip.AddrPort {
	return append([]netip.AddrPort(nil), a.candidates...)
}

// Usable returns the chosen candidate.
func (a *Address) Usable() (netip.AddrPort, bool) {
	if a.usable < 0 || a.usable >= len(a.candidates) {
		return netip.AddrPort{}, false
	}
	return a.candidates[a.usable], true
}

// Sockaddr returns the chosen candidate as a sockaddr, or nil.
func (a *Address) Sockaddr() unix.Sockaddr {
	ap, ok := a.Usable()
	if !ok {
		return nil
	}
	return socket.SockaddrOf(ap)
}

// Family is AF_INET or AF_INET6 for the chosen candidate.
func (a *Address) Family() int {
	ap, _ := a.Usable()
	return socket.FamilyOf(ap)
}

// SocketType is SOCK_STREAM or SOCK_DGRAM.
func (a *Address) SocketType() int { return a.sotype }

// Protocol is IPPROTO_TCP or IPPROTO_UDP.
func (a *Address) Protocol() int { return a.proto }

func (a *Address) String() string {
	if ap, ok := a.Usable(); ok {
		return ap.String()
	}
	return "<unresolved>"
}
