// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker-pool executor used as the default task scheduler for hioload-net.
// The reactor, the socket continuations and the server accept loop post
// their units of work here instead of owning goroutines.
package concurrency
