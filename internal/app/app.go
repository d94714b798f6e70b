// Package app wires the SDispatch demo server together with fx.
package app

import (
	"context"

	"github.com/Suhaibinator/SDispatch/internal/config"
	"github.com/Suhaibinator/SDispatch/internal/site"
	"github.com/Suhaibinator/SDispatch/pkg/console"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides every component of the server and registers the site's routes.
var Module = fx.Options(
	fx.Provide(config.ParseEnv),
	fx.Provide(NewLogger),
	fx.Provide(NewConsole),
	fx.Provide(NewMetricsRegistry),
	fx.Provide(NewRouter),
	fx.Provide(NewSite),
	fx.Provide(NewTracerProvider),
	fx.Provide(NewPropagator),
	fx.Provide(NewHandler),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(startServerHook),
)

// New creates the fx application. Extra options are applied after Module, so tests
// can replace components with fx.Replace or fx.Decorate.
func New(opts ...fx.Option) *fx.App {
	return fx.New(append([]fx.Option{fx.NopLogger, Module}, opts...)...)
}

// NewConsole creates the console the demo routes write to.
func NewConsole(env config.Env) *console.Console {
	return console.New(console.Options{Color: env.ConsoleColor, Level: env.LogLevel})
}

// NewMetricsRegistry creates the Prometheus registry served at the metrics path.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewSite creates the demo site.
func NewSite(env config.Env, con *console.Console, logger *zap.Logger) *site.Site {
	return site.New(site.Options{
		Version: env.Version,
		Console: con,
		Logger:  logger,
		APIKeys: env.APIKeys,
	})
}

func registerRoutes(lc fx.Lifecycle, r *router.Router, s *site.Site, con *console.Console, logger *zap.Logger) {
	s.Register(r)

	routes := lo.Map(r.Routes(), func(ri router.RouteInfo, _ int) string { return ri.String() })
	logger.Info("Routes registered", zap.Strings("routes", routes))

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			con.Success("SDispatch ready", zap.Int("routes", len(routes)))
			return nil
		},
		OnStop: func(context.Context) error {
			_ = con.Sync()
			return nil
		},
	})
}
