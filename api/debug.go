// Package api
// Author: momentics
//
// Live debug introspection support for production workloads.

package api

// Debug exposes runtime introspection. Probes are sampled lazily by DumpState.
type Debug interface {
	// DumpState runs every probe and returns their results by name.
	DumpState() map[string]any

	// RegisterProbe adds or replaces a named probe.
	RegisterProbe(name string, fn func() any)

	// UnregisterProbe removes a probe; unknown names are ignored.
	UnregisterProbe(name string)
}
