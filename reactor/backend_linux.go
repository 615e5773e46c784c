//go:build linux

// File: reactor/backend_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based readiness backend.

package reactor

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Name of the compiled-in readiness facility.
const BackendName = "epoll"

// epollBackend is an epoll-based readiness backend.
type epollBackend struct {
	epfd int
	raw  []unix.EpollEvent
}

// NewBackend constructs the platform readiness backend for Linux.
func NewBackend() (Backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollBackend{epfd: epfd}, nil
}

func epollMask(in Interest) uint32 {
	var ev uint32
	if in&Readable != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if in&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (b *epollBackend) ctl(op, fd int, in Interest) error {
	ev := &unix.EpollEvent{Events: epollMask(in), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, op, fd, ev)
}

// Add registers fd with epoll. A stale registration left by a reused fd is modified instead.
func (b *epollBackend) Add(fd int, in Interest) error {
	err := b.ctl(unix.EPOLL_CTL_ADD, fd, in)
	if errors.Is(err, unix.EEXIST) {
		err = b.ctl(unix.EPOLL_CTL_MOD, fd, in)
	}
	if err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Modify updates the interest set of fd.
func (b *epollBackend) Modify(fd int, in Interest) error {
	if err := b.ctl(unix.EPOLL_CTL_MOD, fd, in); err != nil {
		return fmt.Errorf("epoll ctl mod fd %d: %w", fd, err)
	}
	return nil
}

// Remove deletes fd from the epoll set.
func (b *epollBackend) Remove(fd int) error {
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Wait waits for epoll events and translates them.
func (b *epollBackend) Wait(events []Event, timeout time.Duration) (int, error) {
	if cap(b.raw) < len(events) {
		b.raw = make([]unix.EpollEvent, len(events))
	}
	raw := b.raw[:len(events)]
	n, err := unix.EpollWait(b.epfd, raw, timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		ev := raw[i].Events
		events[i] = Event{
			Fd:       int(raw[i].Fd),
			Readable: ev&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: ev&unix.EPOLLOUT != 0,
			Closed:   ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
	}
	return n, nil
}

// Close closes the epoll instance.
func (b *epollBackend) Close() error {
	return unix.Close(b.epfd)
}
