// Package client
// Author: momentics <momentics@gmail.com>
//
// Connects a socket to a remote service through the resolve, open, connect
// and optional TLS handshake stages, reporting the outcome as a Future.
package client
