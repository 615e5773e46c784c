// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reuse primitives for the I/O core: a generic sync.Pool wrapper for scratch
// buffers and the Active/Inactive set pool backing server connections.
package pool
