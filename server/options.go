// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics attaches pool and handshake collectors.
func WithMetrics(m *control.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithProbes publishes pool stats under "server.pool" while the server listens.
func WithProbes(p api.Debug) ServerOption {
	return func(s *Server) {
		s.probes = p
	}
}
