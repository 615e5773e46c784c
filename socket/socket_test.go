package socket_test

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/adapters"
	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/fake"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/socket"
)

const waitFor = 5 * time.Second

func newReactor(t *testing.T) *reactor.Multiplexer {
	t.Helper()
	log := zaptest.NewLogger(t)
	exec := adapters.NewExecutorAdapter(4, nil, log)
	mux, err := reactor.New(exec, reactor.WithLogger(log))
	if errors.Is(err, api.ErrNotSupported) {
		t.Skip("no readiness backend on this platform")
	}
	require.NoError(t, err)
	mux.Listen()
	t.Cleanup(func() {
		mux.Unlisten()
		_ = mux.Close()
		exec.Close()
	})
	return mux
}

// pair returns a Socket and the raw, blocking peer descriptor.
func pair(t *testing.T, mux *reactor.Multiplexer, opts ...socket.Option) (*socket.Socket, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	s := socket.New(fds[0], mux, opts...)
	t.Cleanup(func() {
		_ = s.Close(false)
		_ = unix.Close(fds[1])
	})
	return s, fds[1]
}

func recvStatus(t *testing.T, ch <-chan api.Status) api.Status {
	t.Helper()
	select {
	case st := <-ch:
		return st
	case <-time.After(waitFor):
		t.Fatal("continuation never fired")
		return 0
	}
}

func TestWriteAsyncCompletesSynchronously(t *testing.T) {
	mux := newReactor(t)
	s, peer := pair(t, mux)

	var got api.Status = -1
	err := s.WriteAsync([]byte("hello"), func(st api.Status) { got = st })
	require.NoError(t, err)
	assert.Equal(t, api.StatusFinishSync, got)
	assert.EqualValues(t, 5, s.BytesSent())

	buf := make([]byte, 5)
	n, err := unix.Read(peer, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestWriteAsyncSuspendsThenFinishes(t *testing.T) {
	mux := newReactor(t)
	s, peer := pair(t, mux)
	require.NoError(t, unix.SetsockoptInt(s.Fd(), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	payload := bytes.Repeat([]byte("x"), 1<<20)
	done := make(chan api.Status, 1)
	err := s.WriteAsync(payload, func(st api.Status) { done <- st })
	require.ErrorIs(t, err, socket.ErrPending)

	received := make(chan int, 1)
	go func() {
		buf := make([]byte, 64<<10)
		total := 0
		for total < len(payload) {
			n, err := unix.Read(peer, buf)
			if err != nil || n == 0 {
				break
			}
			total += n
		}
		received <- total
	}()

	assert.Equal(t, api.StatusFinish, recvStatus(t, done))
	assert.Equal(t, len(payload), <-received)
	assert.EqualValues(t, len(payload), s.BytesSent())
}

func TestReadAsyncResumesAcrossSuspensions(t *testing.T) {
	mux := newReactor(t)
	s, peer := pair(t, mux)

	buf := make([]byte, 5)
	done := make(chan api.Status, 1)
	var got atomic.Int64
	err := s.ReadAsync(buf, func(n int, st api.Status) {
		got.Store(int64(n))
		done <- st
	})
	require.ErrorIs(t, err, socket.ErrPending)

	_, err = unix.Write(peer, []byte("he"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = unix.Write(peer, []byte("llo"))
	require.NoError(t, err)

	assert.Equal(t, api.StatusFinish, recvStatus(t, done))
	assert.EqualValues(t, 5, got.Load())
	assert.Equal(t, "hello", string(buf))
	assert.EqualValues(t, 5, s.BytesReceived())
}

func TestReadSomeAsyncReturnsEarly(t *testing.T) {
	mux := newReactor(t)
	s, peer := pair(t, mux)

	_, err := unix.Write(peer, []byte("abc"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	var n int
	var st api.Status = -1
	require.NoError(t, s.ReadSomeAsync(buf, func(m int, status api.Status) { n, st = m, status }))
	assert.Equal(t, api.StatusFinishSync, st)
	assert.Equal(t, "abc", string(buf[:n]))
}

func TestReadAsyncTimesOut(t *testing.T) {
	mux := newReactor(t)
	s, _ := pair(t, mux, socket.WithTimeout(50*time.Millisecond))

	done := make(chan api.Status, 1)
	err := s.ReadAsync(make([]byte, 1), func(_ int, st api.Status) { done <- st })
	require.ErrorIs(t, err, socket.ErrPending)
	assert.Equal(t, api.StatusTimeout, recvStatus(t, done))

	_, armed := mux.Deadline(s)
	assert.False(t, armed)
}

func TestReadAsyncReportsResetOnPeerClose(t *testing.T) {
	mux := newReactor(t)
	s, peer := pair(t, mux)

	done := make(chan api.Status, 1)
	require.ErrorIs(t, s.ReadAsync(make([]byte, 4), func(_ int, st api.Status) { done <- st }), socket.ErrPending)
	require.NoError(t, unix.Shutdown(peer, unix.SHUT_WR))
	assert.Equal(t, api.StatusReset, recvStatus(t, done))
}

func TestCloseFiresPendingContinuationOnce(t *testing.T) {
	mux := newReactor(t)
	s, _ := pair(t, mux)

	var calls atomic.Int32
	done := make(chan api.Status, 2)
	err := s.ReadAsync(make([]byte, 1), func(_ int, st api.Status) {
		calls.Add(1)
		done <- st
	})
	require.ErrorIs(t, err, socket.ErrPending)

	require.NoError(t, s.Close(false))
	require.NoError(t, s.Close(false))
	assert.Equal(t, api.StatusCancel, recvStatus(t, done))
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, -1, s.Fd())

	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, socket.ErrClosed)
}

func TestReadUntilAsync(t *testing.T) {
	mux := newReactor(t)
	s, peer := pair(t, mux)

	var data bytes.Buffer
	done := make(chan api.Status, 1)
	err := s.ReadUntilAsync([]byte("aab"), func(p []byte) { data.Write(p) }, func(st api.Status) { done <- st })
	require.ErrorIs(t, err, socket.ErrPending)

	_, err = unix.Write(peer, []byte("xyaaab"))
	require.NoError(t, err)
	_, err = unix.Write(peer, []byte("tail"))
	require.NoError(t, err)

	assert.Equal(t, api.StatusFinish, recvStatus(t, done))
	assert.Equal(t, "xyaaab", data.String())

	rest := make([]byte, 4)
	n, err := s.Read(rest)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(rest[:n]), "nothing past the delimiter is consumed")
}

func TestReadUntilAsyncFlushesLongLines(t *testing.T) {
	mux := newReactor(t)
	s, peer := pair(t, mux)

	line := append(bytes.Repeat([]byte("z"), 200), "\r\n"...)
	_, err := unix.Write(peer, line)
	require.NoError(t, err)

	var chunks int
	var data bytes.Buffer
	var st api.Status = -1
	require.NoError(t, s.ReadUntilAsync([]byte("\r\n"), func(p []byte) {
		chunks++
		data.Write(p)
	}, func(status api.Status) { st = status }))
	assert.Equal(t, api.StatusFinishSync, st)
	assert.Equal(t, string(line), data.String())
	assert.Greater(t, chunks, 1)
}

func TestSendFileAsync(t *testing.T) {
	mux := newReactor(t)
	s, peer := pair(t, mux)

	content := bytes.Repeat([]byte("0123456789"), 10_000)
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	received := make(chan []byte, 1)
	want := content[10:]
	go func() {
		var out bytes.Buffer
		buf := make([]byte, 32<<10)
		for out.Len() < len(want) {
			n, err := unix.Read(peer, buf)
			if err != nil || n == 0 {
				break
			}
			out.Write(buf[:n])
		}
		received <- out.Bytes()
	}()

	done := make(chan api.Status, 1)
	err = s.SendFileAsync(f, 10, len(want), func(st api.Status) { done <- st })
	if err != nil {
		require.ErrorIs(t, err, socket.ErrPending)
	}
	assert.True(t, recvStatus(t, done).IsDone())
	assert.Equal(t, want, <-received)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestConnectAsyncRefusedWithinConnectTimeout(t *testing.T) {
	mux := newReactor(t)
	port := freePort(t)

	s, err := socket.Open(unix.AF_INET, unix.SOCK_STREAM, 0, mux, socket.WithTimeout(time.Minute))
	require.NoError(t, err)
	defer s.Close(false)

	start := time.Now()
	done := make(chan error, 1)
	_ = s.ConnectAsync(&unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}, 2*time.Second, func(err error) { done <- err })

	select {
	case err := <-done:
		assert.ErrorIs(t, err, unix.ECONNREFUSED)
	case <-time.After(waitFor):
		t.Fatal("connect never completed")
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAcceptAsyncAndConnect(t *testing.T) {
	mux := newReactor(t)

	ln, err := socket.Open(unix.AF_INET, unix.SOCK_STREAM, 0, mux)
	require.NoError(t, err)
	require.NoError(t, ln.SetReuseAddr(true))
	require.NoError(t, ln.Bind(&unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, ln.Listen(16))
	local, err := ln.Local()
	require.NoError(t, err)

	accepted := make(chan int, 1)
	ended := make(chan api.Status, 1)
	err = ln.AcceptAsync(func(fd int, _ unix.Sockaddr) { accepted <- fd }, func(st api.Status) { ended <- st })
	require.ErrorIs(t, err, socket.ErrPending)

	c, err := socket.Open(unix.AF_INET, unix.SOCK_STREAM, 0, mux)
	require.NoError(t, err)
	defer c.Close(false)
	connected := make(chan error, 1)
	_ = c.ConnectAsync(socket.SockaddrOf(local), time.Second, func(err error) { connected <- err })
	require.NoError(t, <-connected)

	select {
	case fd := <-accepted:
		peer := socket.New(fd, mux)
		ap, err := peer.Peer()
		require.NoError(t, err)
		assert.True(t, ap.Addr().IsLoopback())
		require.NoError(t, peer.Close(false))
	case <-time.After(waitFor):
		t.Fatal("no connection accepted")
	}

	require.NoError(t, ln.Close(false))
	assert.Equal(t, api.StatusCancel, recvStatus(t, ended))
}

func TestTLSHandshakeAndEcho(t *testing.T) {
	mux := newReactor(t)
	creds, err := fake.NewCredentials("localhost")
	require.NoError(t, err)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	srv := socket.New(fds[0], mux, socket.WithTimeout(waitFor))
	cli := socket.New(fds[1], mux, socket.WithTimeout(waitFor))
	defer srv.Close(false)
	defer cli.Close(false)

	require.NoError(t, srv.Secure(creds.ServerConfig(), "", true))
	require.NoError(t, cli.Secure(creds.ClientConfig(), "localhost", false))

	results := make(chan error, 2)
	require.ErrorIs(t, srv.HandshakeAsync(func(err error) { results <- err }), socket.ErrPending)
	require.ErrorIs(t, cli.HandshakeAsync(func(err error) { results <- err }), socket.ErrPending)
	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("handshake did not finish")
		}
	}
	state, ok := cli.ConnectionState()
	require.True(t, ok)
	assert.True(t, state.HandshakeComplete)

	buf := make([]byte, 4)
	read := make(chan api.Status, 1)
	_ = srv.ReadAsync(buf, func(_ int, st api.Status) { read <- st })
	wrote := make(chan api.Status, 1)
	_ = cli.WriteAsync([]byte("ping"), func(st api.Status) { wrote <- st })

	assert.True(t, recvStatus(t, wrote).IsDone())
	assert.True(t, recvStatus(t, read).IsDone())
	assert.Equal(t, "ping", string(buf))
}

func TestHandshakeAsyncWithoutSession(t *testing.T) {
	mux := newReactor(t)
	s, _ := pair(t, mux)

	var got error
	require.NoError(t, s.HandshakeAsync(func(err error) { got = err }))
	assert.ErrorIs(t, got, socket.ErrNotSecure)
	assert.ErrorIs(t, s.Secure(nil, "", false), socket.ErrHandshake)
}

func TestCloseAsyncDrainsPeer(t *testing.T) {
	mux := newReactor(t)
	s, peer := pair(t, mux, socket.WithDrainTimeout(time.Second))

	done := make(chan struct{})
	s.CloseAsync(func() { close(done) })

	buf := make([]byte, 8)
	n, err := unix.Read(peer, buf)
	require.NoError(t, err)
	assert.Zero(t, n, "peer observes the half-close")
	require.NoError(t, unix.Shutdown(peer, unix.SHUT_WR))

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("close never completed")
	}
	assert.True(t, s.Closed())

	called := false
	s.CloseAsync(func() { called = true })
	assert.True(t, called)
}

func TestCloseAsyncBoundsDrainAgainstTricklingPeer(t *testing.T) {
	mux := newReactor(t)
	s, peer := pair(t, mux, socket.WithDrainTimeout(100*time.Millisecond))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(30 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				if _, err := unix.Write(peer, []byte{'x'}); err != nil {
					return
				}
			}
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	done := make(chan struct{})
	start := time.Now()
	s.CloseAsync(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("trickling peer kept the socket open past the drain timeout")
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, s.Closed())
}

func TestGracefulCloseSendsCloseNotifyBeforeHalfClose(t *testing.T) {
	mux := newReactor(t)
	creds, err := fake.NewCredentials("localhost")
	require.NoError(t, err)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	srv := socket.New(fds[0], mux, socket.WithTimeout(waitFor), socket.WithDrainTimeout(100*time.Millisecond))
	cli := socket.New(fds[1], mux, socket.WithTimeout(waitFor))
	defer cli.Close(false)

	srvCfg := creds.ServerConfig()
	srvCfg.SessionTicketsDisabled = true
	require.NoError(t, srv.Secure(srvCfg, "", true))
	require.NoError(t, cli.Secure(creds.ClientConfig(), "localhost", false))

	results := make(chan error, 2)
	_ = srv.HandshakeAsync(func(err error) { results <- err })
	_ = cli.HandshakeAsync(func(err error) { results <- err })
	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("handshake did not finish")
		}
	}

	raw := make([]byte, 512)
	for {
		if _, err := unix.Read(fds[1], raw); err != nil {
			break
		}
	}

	closed := make(chan error, 1)
	go func() { closed <- srv.Close(true) }()

	var got int
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		n, err := unix.Read(fds[1], raw)
		if errors.Is(err, unix.EAGAIN) {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got += n
	}
	assert.Positive(t, got, "close_notify precedes the half-close")

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("graceful close never returned")
	}
}
