package client_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/hioload-net/adapters"
	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/client"
	"github.com/momentics/hioload-net/fake"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/resolver"
	"github.com/momentics/hioload-net/socket"
)

const waitFor = 5 * time.Second

type deps struct {
	sched api.Scheduler
	mux   *reactor.Multiplexer
	res   *resolver.Resolver
}

func newDeps(t *testing.T) deps {
	t.Helper()
	log := zaptest.NewLogger(t)
	exec := adapters.NewExecutorAdapter(4, nil, log)
	mux, err := reactor.New(exec, reactor.WithLogger(log))
	if errors.Is(err, api.ErrNotSupported) {
		t.Skip("no readiness backend on this platform")
	}
	require.NoError(t, err)
	mux.Listen()
	res, err := resolver.New(resolver.WithLogger(log), resolver.WithConnectTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() {
		mux.Unlisten()
		_ = mux.Close()
		exec.Close()
	})
	return deps{sched: exec, mux: mux, res: res}
}

func (d deps) client(t *testing.T, cfg client.Config) *client.Client {
	t.Helper()
	c, err := client.New(d.sched, d.mux, d.res, cfg, client.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// serve accepts until the listener closes, running fn on every connection.
// Connect-mode resolution probes count as connections too.
func serve(t *testing.T, l net.Listener, fn func(net.Conn)) string {
	t.Helper()
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				fn(conn)
			}()
		}
	}()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
}

func echo(conn net.Conn) { _, _ = io.Copy(conn, conn) }

func wait(t *testing.T, f *client.Future) (client.Status, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	st, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "future never resolved")
	return st, err
}

func exchange(t *testing.T, s *socket.Socket, msg string) string {
	t.Helper()
	got := make([]byte, len(msg))
	done := make(chan api.Status, 1)
	_ = s.WriteAsync([]byte(msg), func(st api.Status) {
		if !st.IsDone() {
			done <- st
			return
		}
		_ = s.ReadAsync(got, func(_ int, st api.Status) { done <- st })
	})
	select {
	case st := <-done:
		require.True(t, st.IsDone(), "exchange ended with %v", st)
	case <-time.After(waitFor):
		t.Fatal("exchange never completed")
	}
	return string(got)
}

func TestConnectPlain(t *testing.T) {
	d := newDeps(t)
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := serve(t, l, echo)

	c := d.client(t, client.Config{Host: "127.0.0.1", Service: port})
	var sock *socket.Socket
	st, err := wait(t, c.Connect(func(s *socket.Socket) { sock = s }))
	require.NoError(t, err)
	require.Equal(t, client.StatusConnected, st)
	require.NotNil(t, sock)
	assert.Same(t, sock, c.Socket())
	assert.True(t, c.Connected())
	assert.Equal(t, "hello", exchange(t, sock, "hello"))

	busy := c.Connect(nil)
	st, err = wait(t, busy)
	assert.Equal(t, client.StatusConnectFailed, st)
	assert.ErrorIs(t, err, client.ErrBusy)

	st, _ = wait(t, c.Disconnect())
	assert.Equal(t, client.StatusClosed, st)
	assert.False(t, c.Connected())
	assert.Nil(t, c.Socket())
	assert.True(t, sock.Closed())
}

func TestConnectUnreachable(t *testing.T) {
	d := newDeps(t)
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
	require.NoError(t, l.Close())

	c := d.client(t, client.Config{Host: "127.0.0.1", Service: port})
	start := time.Now()
	st, err := wait(t, c.Connect(nil))
	assert.Equal(t, client.StatusResolveFailed, st)
	assert.ErrorIs(t, err, resolver.ErrUnreachable)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Nil(t, c.Socket())
}

func TestConnectTLS(t *testing.T) {
	d := newDeps(t)
	creds, err := fake.NewCredentials("localhost")
	require.NoError(t, err)
	l, err := tls.Listen("tcp4", "127.0.0.1:0", creds.ServerConfig())
	require.NoError(t, err)
	port := serve(t, l, echo)

	c := d.client(t, client.Config{
		Host:       "127.0.0.1",
		Service:    port,
		TLS:        true,
		ServerName: "localhost",
		TLSConfig:  creds.ClientConfig(),
	})
	var sock *socket.Socket
	st, err := wait(t, c.Connect(func(s *socket.Socket) { sock = s }))
	require.NoError(t, err)
	require.Equal(t, client.StatusConnected, st)
	cs, ok := sock.ConnectionState()
	require.True(t, ok)
	assert.True(t, cs.HandshakeComplete)
	assert.Equal(t, "localhost", cs.ServerName)
	assert.Equal(t, "over tls", exchange(t, sock, "over tls"))
}

func TestHandshakeFailure(t *testing.T) {
	d := newDeps(t)
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := serve(t, l, func(conn net.Conn) {
		_, _ = io.WriteString(conn, "HTTP/1.0 400 Bad Request\r\n\r\n")
	})

	c := d.client(t, client.Config{Host: "127.0.0.1", Service: port, TLS: true, ServerName: "localhost"})
	st, err := wait(t, c.Connect(nil))
	assert.Equal(t, client.StatusHandshakeFailed, st)
	assert.ErrorIs(t, err, socket.ErrHandshake)
	assert.False(t, c.Connected())
	assert.Nil(t, c.Socket())
}

func TestCloseWhileConnected(t *testing.T) {
	d := newDeps(t)
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := serve(t, l, echo)

	c := d.client(t, client.Config{Host: "127.0.0.1", Service: port})
	st, _ := wait(t, c.Connect(nil))
	require.Equal(t, client.StatusConnected, st)
	sock := c.Socket()

	require.NoError(t, c.Close())
	assert.True(t, sock.Closed())
	assert.False(t, c.Connected())
	require.NoError(t, c.Close())

	st, err = wait(t, c.Connect(nil))
	assert.Equal(t, client.StatusClosed, st)
	assert.ErrorIs(t, err, client.ErrClosed)
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	d := newDeps(t)
	_, err := client.New(d.sched, d.mux, d.res, client.Config{Host: "127.0.0.1"})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, err = client.New(nil, d.mux, d.res, client.Config{Host: "h", Service: "80"})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "connected", client.StatusConnected.String())
	assert.Equal(t, "handshake failed", client.StatusHandshakeFailed.String())
	assert.Equal(t, "unknown", client.Status(7).String())
}
