//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

// File: reactor/backend_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"fmt"

	"github.com/momentics/hioload-net/api"
)

// Name of the compiled-in readiness facility.
const BackendName = "none"

// NewBackend returns an error for unsupported platforms.
func NewBackend() (Backend, error) {
	return nil, fmt.Errorf("reactor: %w on this platform", api.ErrNotSupported)
}
