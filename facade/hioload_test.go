package facade_test

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/client"
	"github.com/momentics/hioload-net/facade"
	"github.com/momentics/hioload-net/server"
	"github.com/momentics/hioload-net/socket"
)

func newCore(t *testing.T) *facade.Core {
	t.Helper()
	cfg := facade.DefaultConfig()
	cfg.ShutdownTimeout = 5 * time.Second
	c, err := facade.New(cfg)
	if errors.Is(err, api.ErrNotSupported) {
		t.Skip("no readiness backend on this platform")
	}
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// Test the full lifecycle: task submission, probes, metrics and idempotent shutdown.
func TestCoreLifecycle(t *testing.T) {
	c := newCore(t)
	if !c.Reactor().Listening() {
		t.Error("reactor not listening after New")
	}

	var executed atomic.Bool
	if err := c.Scheduler().Submit(func() { executed.Store(true) }); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for !executed.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !executed.Load() {
		t.Error("executor failed to run task")
	}

	state := c.Probes().DumpState()
	for _, k := range []string{"executor", "reactor.pending", "resolver.cached"} {
		if _, ok := state[k]; !ok {
			t.Errorf("probe %q missing", k)
		}
	}

	if c.Gatherer() == nil {
		t.Fatal("private registry not created")
	}
	families, err := c.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) == 0 {
		t.Error("no metric families registered")
	}

	if err := c.Shutdown(); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
	if err := c.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error: %v", err)
	}
	if c.Reactor().Listening() {
		t.Error("reactor still listening after Shutdown")
	}
	if err := c.Scheduler().Submit(func() {}); !errors.Is(err, api.ErrSchedulerClosed) {
		t.Errorf("Submit after Shutdown = %v, want ErrSchedulerClosed", err)
	}
}

type echo struct{ server.BaseHandler }

func (echo) OnBegin(conn *server.Connection) {
	buf := make([]byte, 64)
	_ = conn.Socket().ReadSomeAsync(buf, func(n int, st api.Status) {
		if !st.IsDone() {
			conn.Close()
			return
		}
		_ = conn.Socket().WriteAsync(buf[:n], func(api.Status) { conn.Close() })
	})
}

func TestCoreServerAndClient(t *testing.T) {
	c := newCore(t)
	defer c.Shutdown()

	srv, err := c.NewServer(echo{})
	if err != nil {
		t.Fatal(err)
	}
	err = srv.Configure(&server.Router{
		Name:  "facade",
		Hosts: []server.RemoteHost{{Name: "local", Hostname: "127.0.0.1"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	defer srv.Unlisten(time.Second)
	port := strconv.Itoa(int(srv.Listeners()[0].Bound().Port()))

	cl, err := c.NewClient(client.Config{Host: "127.0.0.1", Service: port})
	if err != nil {
		t.Fatal(err)
	}
	defer cl.Close()

	reply := make(chan string, 1)
	f := cl.Connect(func(s *socket.Socket) {
		_ = s.WriteAsync([]byte("ping"), func(api.Status) {
			buf := make([]byte, 4)
			_ = s.ReadAsync(buf, func(n int, _ api.Status) { reply <- string(buf[:n]) })
		})
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := f.Wait(ctx)
	if err != nil || st != client.StatusConnected {
		t.Fatalf("Connect = %v, %v", st, err)
	}
	select {
	case got := <-reply:
		if got != "ping" {
			t.Errorf("echo = %q", got)
		}
	case <-ctx.Done():
		t.Fatal("no echo")
	}
	if _, ok := c.Probes().DumpState()["server.pool"]; !ok {
		t.Error("server pool probe not registered")
	}
	<-cl.Disconnect().Done()
}
