//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// File: socket/sys_bsd.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func openSocket(family, sotype, proto int) (int, error) {
	syscall.ForkLock.RLock()
	fd, err := unix.Socket(family, sotype, proto)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func acceptSocket(fd int) (int, unix.Sockaddr, error) {
	syscall.ForkLock.RLock()
	nfd, sa, err := unix.Accept(fd)
	if err == nil {
		unix.CloseOnExec(nfd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, nil, err
	}
	return nfd, sa, nil
}

// sendfile semantics differ across the BSDs; callers fall back to read/write.
func sendfile(_, _ int, _ *int64, _ int) (int, error) {
	return 0, errNoSendfile
}
