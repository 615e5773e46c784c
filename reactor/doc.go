// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness backend (epoll on Linux, kqueue on
// Darwin/BSD) and the Multiplexer that arms per-socket interest, fires
// continuations from one bounded polling pass, and walks the timeout index.
//
// The Multiplexer never owns a goroutine: while at least one party is
// listening it re-posts its own polling pass onto the api.Scheduler.
package reactor
