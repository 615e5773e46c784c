// Package socket
// Author: momentics <momentics@gmail.com>
//
// Socket owns one non-blocking OS descriptor and an optional TLS session. It
// exposes synchronous primitives that classify every outcome as success,
// would-block or fatal, and continuation-passing variants that suspend on the
// reactor instead of blocking a worker.
package socket
