// File: socket/addr.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"net/netip"

	"golang.org/x/sys/unix"
)

// AddrPortOf converts an inet sockaddr. Other families yield the zero value.
func AddrPortOf(sa unix.Sockaddr) netip.AddrPort {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port))
	default:
		return netip.AddrPort{}
	}
}

// SockaddrOf converts ap into the sockaddr of its family.
func SockaddrOf(ap netip.AddrPort) unix.Sockaddr {
	addr := ap.Addr()
	if addr.Is4() || addr.Is4In6() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.Unmap().As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16()}
}

// FamilyOf returns AF_INET or AF_INET6 for ap.
func FamilyOf(ap netip.AddrPort) int {
	if ap.Addr().Unmap().Is4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}
