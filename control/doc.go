// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection layer for hioload-net.
//
// Provides concurrent-safe state handling primitives including:
//   - Prometheus collectors for the reactor, sockets, resolver and server pool
//   - Debug probe registration and state export
//
// Every Metrics method is safe on a nil receiver, so components can run without metrics.
package control
