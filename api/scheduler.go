// Package api
// Author: momentics
//
// Scheduler contract consumed by the reactor, sockets, server and client.

package api

import "time"

// Scheduler is the process-wide task scheduler the I/O core posts work onto.
// The core never starts polling goroutines of its own; it re-posts itself here.
type Scheduler interface {
	// Submit enqueues a unit of work.
	Submit(task func()) error

	// Now returns the current monotonic instant.
	Now() time.Time
}
