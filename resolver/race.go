// File: resolver/race.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package resolver

import (
	"errors"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/socket"
)

// ErrUnreachable is returned when no connect-mode candidate became connectable.
var ErrUnreachable = errors.New("resolver: no reachable candidate")

type probe struct {
	fd    int
	index int
}

// probeListen creates and discards one socket for the first candidate.
func probeListen(cands []netip.AddrPort, sotype, proto int) (int, error) {
	fd, err := socket.OpenDescriptor(socket.FamilyOf(cands[0]), sotype, proto)
	if err != nil {
		return -1, err
	}
	unix.Close(fd)
	return 0, nil
}

// raceConnect issues a non-blocking connect per candidate and polls IPv4
// probes together, then IPv6 probes, each within budget. The first probe that
// turns writable without a pending socket error wins.
func raceConnect(cands []netip.AddrPort, sotype, proto int, budget time.Duration) (int, error) {
	for _, family := range []int{unix.AF_INET, unix.AF_INET6} {
		if idx, ok := raceFamily(cands, family, sotype, proto, budget); ok {
			return idx, nil
		}
	}
	return -1, ErrUnreachable
}

func raceFamily(cands []netip.AddrPort, family, sotype, proto int, budget time.Duration) (int, bool) {
	var probes []probe
	defer func() {
		for _, p := range probes {
			if p.fd >= 0 {
				unix.Close(p.fd)
			}
		}
	}()
	for i, c := range cands {
		if socket.FamilyOf(c) != family {
			continue
		}
		fd, err := socket.OpenDescriptor(family, sotype, proto)
		if err != nil {
			continue
		}
		err = unix.Connect(fd, socket.SockaddrOf(c))
		switch {
		case err == nil:
			unix.Close(fd)
			return i, true
		case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			probes = append(probes, probe{fd: fd, index: i})
		default:
			unix.Close(fd)
		}
	}

	deadline := time.Now().Add(budget)
	for len(probes) > 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return -1, false
		}
		pfds := make([]unix.PollFd, len(probes))
		for i, p := range probes {
			pfds[i] = unix.PollFd{Fd: int32(p.fd), Events: unix.POLLOUT}
		}
		n, err := unix.Poll(pfds, int(remaining.Milliseconds())+1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || n == 0 {
			return -1, false
		}
		alive := make([]probe, 0, len(probes))
		for i, p := range probes {
			if pfds[i].Revents == 0 {
				alive = append(alive, p)
				continue
			}
			soerr, err := unix.GetsockoptInt(p.fd, unix.SOL_SOCKET, unix.SO_ERROR)
			if err == nil && soerr == 0 && pfds[i].Revents&unix.POLLOUT != 0 {
				return p.index, true
			}
			unix.Close(p.fd)
			probes[i].fd = -1
		}
		probes = alive
	}
	return -1, false
}
