// File: cmd/hioload-echo/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-echo runs an echo server on the I/O core or dials one.

// Command hioload-echo serves or dials an echo service over the I/O core.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/client"
	"github.com/momentics/hioload-net/facade"
	"github.com/momentics/hioload-net/server"
	"github.com/momentics/hioload-net/socket"
)

var (
	version   = ""
	commit    = ""
	buildDate = ""
)

// go build -ldflags "-X main.version=v0.1.0 -X main.commit=$(git rev-parse --short HEAD)" -o hioload-echo ./cmd/hioload-echo

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "hioload-echo",
		Short:         "Echo server and client on the hioload-net I/O core",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.AddCommand(serveCmd(&verbose), dialCmd(&verbose))
	return root
}

func newCore(verbose bool) (*facade.Core, *zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := zcfg.Build()
	if err != nil {
		return nil, nil, err
	}
	cfg := facade.DefaultConfig()
	cfg.Logger = log
	core, err := facade.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return core, log, nil
}

// echoHandler writes back whatever each frame reads, honoring keep-alive credits.
type echoHandler struct {
	server.BaseHandler
	log *zap.Logger
}

func (h echoHandler) AllocateConnection(*server.Listener) any {
	buf := make([]byte, 16<<10)
	return &buf
}

func (h echoHandler) OnBegin(c *server.Connection) {
	h.read(c, *c.Data.(*[]byte))
}

func (h echoHandler) read(c *server.Connection, buf []byte) {
	_ = c.Socket().ReadSomeAsync(buf, func(n int, st api.Status) {
		if !st.IsDone() {
			c.Close()
			return
		}
		c.Frame().Payload = buf[:n]
		_ = c.Socket().WriteAsync(buf[:n], func(st api.Status) {
			if !st.IsDone() || !c.NextFrame() {
				c.Close()
				return
			}
			h.read(c, buf)
		})
	})
}

func (h echoHandler) OnEnd(c *server.Connection) {
	h.log.Debug("connection ended", zap.Stringer("peer", c.Peer()), zap.Uint64("sent", c.Socket().BytesSent()))
}

func serveCmd(verbose *bool) *cobra.Command {
	var (
		config   string
		host     string
		port     int
		shutdown time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an echo server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			router := &server.Router{
				Name:  "echo",
				Hosts: []server.RemoteHost{{Name: "default", Hostname: host, Port: port}},
			}
			if config != "" {
				r, err := server.LoadRouter(config)
				if err != nil {
					return err
				}
				router = r
			}

			core, log, err := newCore(*verbose)
			if err != nil {
				return err
			}
			defer core.Shutdown()
			defer log.Sync()

			srv, err := core.NewServer(echoHandler{log: log.Named("echo")})
			if err != nil {
				return err
			}
			if err := srv.Configure(router); err != nil {
				return err
			}
			if err := srv.Listen(); err != nil {
				return err
			}
			for _, l := range srv.Listeners() {
				fmt.Fprintf(cmd.OutOrStdout(), "listening %s on %s (tls=%t)\n", l.Name(), l.Bound(), l.Secure())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return srv.Unlisten(shutdown)
		},
	}
	cmd.Flags().StringVarP(&config, "config", "c", "", "router YAML file")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen host when no config is given")
	cmd.Flags().IntVarP(&port, "port", "p", 7007, "listen port when no config is given")
	cmd.Flags().DurationVar(&shutdown, "shutdown-timeout", 5*time.Second, "time allowed for connections to drain")
	return cmd
}

func dialCmd(verbose *bool) *cobra.Command {
	var (
		host       string
		port       int
		message    string
		secure     bool
		serverName string
		insecure   bool
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Send a message to an echo server and print the reply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, log, err := newCore(*verbose)
			if err != nil {
				return err
			}
			defer core.Shutdown()
			defer log.Sync()

			cfg := client.Config{Host: host, Service: strconv.Itoa(port), TLS: secure, ServerName: serverName}
			if secure && insecure {
				cfg.TLSConfig = insecureTLS()
			}
			c, err := core.NewClient(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			type result struct {
				reply []byte
				st    api.Status
			}
			done := make(chan result, 1)
			f := c.Connect(func(s *socket.Socket) {
				_ = s.WriteAsync([]byte(message), func(st api.Status) {
					if !st.IsDone() {
						done <- result{st: st}
						return
					}
					buf := make([]byte, len(message))
					_ = s.ReadAsync(buf, func(n int, st api.Status) { done <- result{buf[:n], st} })
				})
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st, err := f.Wait(ctx)
			if err != nil {
				return fmt.Errorf("dial %s:%d: %w", host, port, err)
			}
			if st != client.StatusConnected {
				return fmt.Errorf("dial %s:%d: %s", host, port, st)
			}
			select {
			case r := <-done:
				if !r.st.IsDone() {
					return fmt.Errorf("exchange: %s", r.st)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(r.reply))
			case <-ctx.Done():
				return ctx.Err()
			}
			<-c.Disconnect().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVarP(&port, "port", "p", 7007, "server port")
	cmd.Flags().StringVarP(&message, "message", "m", "hello", "message to send")
	cmd.Flags().BoolVar(&secure, "tls", false, "use TLS")
	cmd.Flags().StringVar(&serverName, "server-name", "", "TLS server name (defaults to host)")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall deadline")
	return cmd
}
