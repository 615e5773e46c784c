// File: cmd/hioload-echo/tls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import "crypto/tls"

func insecureTLS() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true} //nolint:gosec // opt-in via --insecure
}
