//go:build linux

// File: socket/sys_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import "golang.org/x/sys/unix"

func openSocket(family, sotype, proto int) (int, error) {
	return unix.Socket(family, sotype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
}

func acceptSocket(fd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}

func sendfile(outfd, infd int, offset *int64, count int) (int, error) {
	return unix.Sendfile(outfd, infd, offset, count)
}
