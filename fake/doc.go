// Package fake
// Author: momentics <momentics@gmail.com>
//
// Test doubles: a manually stepped scheduler on a mock clock, a scripted
// readiness backend and throwaway TLS credentials.
package fake
