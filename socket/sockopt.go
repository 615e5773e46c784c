// File: socket/sockopt.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"time"

	"golang.org/x/sys/unix"
)

func boolint(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SetNonblock toggles O_NONBLOCK.
func (s *Socket) SetNonblock(on bool) error {
	return unix.SetNonblock(s.Fd(), on)
}

// SetCloexec marks the descriptor close-on-exec.
func (s *Socket) SetCloexec() error {
	_, err := unix.FcntlInt(uintptr(s.Fd()), unix.F_SETFD, unix.FD_CLOEXEC)
	return err
}

// SetNoDelay toggles TCP_NODELAY.
func (s *Socket) SetNoDelay(on bool) error {
	return unix.SetsockoptInt(s.Fd(), unix.IPPROTO_TCP, unix.TCP_NODELAY, boolint(on))
}

// SetKeepAlive toggles SO_KEEPALIVE.
func (s *Socket) SetKeepAlive(on bool) error {
	return unix.SetsockoptInt(s.Fd(), unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolint(on))
}

// SetReuseAddr toggles SO_REUSEADDR.
func (s *Socket) SetReuseAddr(on bool) error {
	return unix.SetsockoptInt(s.Fd(), unix.SOL_SOCKET, unix.SO_REUSEADDR, boolint(on))
}

// SetLinger sets SO_LINGER. A negative duration disables lingering.
func (s *Socket) SetLinger(d time.Duration) error {
	l := &unix.Linger{}
	if d >= 0 {
		l.Onoff = 1
		l.Linger = int32(d / time.Second)
	}
	return unix.SetsockoptLinger(s.Fd(), unix.SOL_SOCKET, unix.SO_LINGER, l)
}

// SetRecvTimeout sets SO_RCVTIMEO. It only affects blocking mode.
func (s *Socket) SetRecvTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(s.Fd(), unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// SetSendTimeout sets SO_SNDTIMEO. It only affects blocking mode.
func (s *Socket) SetSendTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(s.Fd(), unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
}

// SocketError reads and clears SO_ERROR.
func (s *Socket) SocketError() error {
	v, err := unix.GetsockoptInt(s.Fd(), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}
