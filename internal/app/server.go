package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Suhaibinator/SDispatch/internal/config"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
)

// NewHandler returns the router wrapped with tracing. The metrics path is not traced.
func NewHandler(env config.Env, r *router.Router, tp trace.TracerProvider, prop propagation.TextMapPropagator) http.Handler {
	return withTracing(tp, prop, env.ServiceName, env.MetricsPath)(r)
}

// NewServer creates the HTTP server listening on PORT.
func NewServer(env config.Env, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", env.Port),
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// startServerHook binds the listener on start and drains the router before closing
// the server on stop.
func startServerHook(lc fx.Lifecycle, server *http.Server, r *router.Router, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", server.Addr)
			if err != nil {
				return errors.Wrapf(err, "listen on %s", server.Addr)
			}
			logger.Info("Starting server", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping server")
			if err := r.Shutdown(ctx); err != nil {
				logger.Warn("Router did not drain", zap.Error(err))
			}
			return server.Shutdown(ctx)
		},
	})
}
