//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// File: reactor/backend_bsd.go
// Author: momentics <momentics@gmail.com>
//
// kqueue(2)-based readiness backend for Darwin and the BSDs.

package reactor

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Name of the compiled-in readiness facility.
const BackendName = "kqueue"

type kqueueBackend struct {
	kq       int
	raw      []unix.Kevent_t
	interest map[int]Interest // filters currently installed per fd
	merged   map[int]int      // scratch: fd -> index into events
}

// NewBackend constructs the platform readiness backend for kqueue systems.
func NewBackend() (Backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue create: %w", err)
	}
	unix.CloseOnExec(kq)
	return &kqueueBackend{
		kq:       kq,
		interest: make(map[int]Interest),
		merged:   make(map[int]int),
	}, nil
}

func (b *kqueueBackend) apply(fd int, from, to Interest) error {
	var changes []unix.Kevent_t
	add := func(filter int16, flags uint16) {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, int(filter), int(flags))
		changes = append(changes, ev)
	}
	for _, d := range []struct {
		in     Interest
		filter int16
	}{{Readable, unix.EVFILT_READ}, {Writable, unix.EVFILT_WRITE}} {
		switch {
		case to&d.in != 0 && from&d.in == 0:
			add(d.filter, unix.EV_ADD|unix.EV_ENABLE)
		case to&d.in == 0 && from&d.in != 0:
			add(d.filter, unix.EV_DELETE)
		}
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	return err
}

// Add installs the read/write filters for fd.
func (b *kqueueBackend) Add(fd int, in Interest) error {
	if err := b.apply(fd, b.interest[fd], in); err != nil {
		return fmt.Errorf("kevent add fd %d: %w", fd, err)
	}
	b.interest[fd] = in
	return nil
}

// Modify switches the installed filters of fd to in.
func (b *kqueueBackend) Modify(fd int, in Interest) error {
	if err := b.apply(fd, b.interest[fd], in); err != nil {
		return fmt.Errorf("kevent mod fd %d: %w", fd, err)
	}
	b.interest[fd] = in
	return nil
}

// Remove deletes every filter installed for fd.
func (b *kqueueBackend) Remove(fd int) error {
	prev, ok := b.interest[fd]
	if !ok {
		return nil
	}
	delete(b.interest, fd)
	if err := b.apply(fd, prev, 0); err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("kevent del fd %d: %w", fd, err)
	}
	return nil
}

// Wait collects kevents and merges per-filter records into one Event per fd.
func (b *kqueueBackend) Wait(events []Event, timeout time.Duration) (int, error) {
	if cap(b.raw) < len(events) {
		b.raw = make([]unix.Kevent_t, len(events))
	}
	raw := b.raw[:len(events)]
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	n, err := unix.Kevent(b.kq, nil, raw, ts)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("kevent wait: %w", err)
	}
	clear(b.merged)
	out := 0
	for i := 0; i < n; i++ {
		ev := raw[i]
		fd := int(ev.Ident)
		idx, ok := b.merged[fd]
		if !ok {
			idx = out
			b.merged[fd] = idx
			events[idx] = Event{Fd: fd}
			out++
		}
		switch {
		case ev.Flags&unix.EV_ERROR != 0:
			events[idx].Closed = true
		case ev.Filter == unix.EVFILT_READ:
			events[idx].Readable = true
		case ev.Filter == unix.EVFILT_WRITE:
			events[idx].Writable = true
			if ev.Flags&unix.EV_EOF != 0 {
				events[idx].Closed = true
			}
		}
	}
	return out, nil
}

// Close closes the kqueue descriptor.
func (b *kqueueBackend) Close() error {
	return unix.Close(b.kq)
}
