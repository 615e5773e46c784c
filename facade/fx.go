// File: facade/fx.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/internal/logging"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/resolver"
)

// Module provides a Core and its components to an fx application. The core
// is shut down by the application's stop hook.
func Module(cfg *Config) fx.Option {
	return fx.Module("hioload",
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logging.Logger("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		fx.Provide(func(lc fx.Lifecycle) (*Core, error) {
			c, err := New(cfg)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.StopHook(func(context.Context) error { return c.Shutdown() }))
			return c, nil
		}),
		fx.Provide(
			func(c *Core) api.Scheduler { return c.Scheduler() },
			func(c *Core) *reactor.Multiplexer { return c.Reactor() },
			func(c *Core) *resolver.Resolver { return c.Resolver() },
			func(c *Core) *control.Metrics { return c.Metrics() },
			func(c *Core) api.Debug { return c.Probes() },
		),
	)
}
