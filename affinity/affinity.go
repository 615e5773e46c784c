// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_stub.go) guarded by build tags.

// Package affinity pins the calling goroutine's OS thread to a CPU.
package affinity

import "runtime"

// Pin locks the calling goroutine to its OS thread and pins that thread to
// cpuID. On unsupported platforms the thread stays locked and
// api.ErrNotSupported is returned.
func Pin(cpuID int) error {
	runtime.LockOSThread()
	return setAffinityPlatform(cpuID)
}

// Unpin releases the thread lock taken by Pin. The OS thread keeps its CPU
// mask; the runtime discards threads that exit locked, so callers pinning
// short-lived goroutines should not Unpin.
func Unpin() {
	runtime.UnlockOSThread()
}

// CPUs returns the number of logical CPUs available for pinning.
func CPUs() int {
	return runtime.NumCPU()
}
