// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Named zap loggers shared by all hioload-net subsystems.

// Package logging hands out named zap loggers derived from one replaceable base.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// Logger returns a logger named after subsystem. It is a no-op until SetLogger is called.
func Logger(subsystem string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(subsystem)
}

// SetLogger replaces the process base logger. Loggers already handed out keep the old core.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	mu.Unlock()
}
