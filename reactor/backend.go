// File: reactor/backend.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness backend contract.

package reactor

import "time"

// Interest is the set of readiness directions a descriptor is watched for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

func (i Interest) String() string {
	switch i {
	case Readable:
		return "r"
	case Writable:
		return "w"
	case Readable | Writable:
		return "rw"
	default:
		return "-"
	}
}

// Event is one readiness tuple returned by Backend.Wait.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Closed   bool // hang-up or error condition
}

// Backend is the OS readiness-notification facility.
type Backend interface {
	// Add starts watching fd for the given directions.
	Add(fd int, in Interest) error

	// Modify replaces the watched directions of fd.
	Modify(fd int, in Interest) error

	// Remove stops watching fd.
	Remove(fd int) error

	// Wait blocks at most timeout and fills events. Interrupted waits return 0, nil.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Close releases the backend descriptor.
	Close() error
}

func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := int(d / time.Millisecond)
	if ms == 0 && d > 0 {
		ms = 1
	}
	return ms
}
