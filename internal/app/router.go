package app

import (
	"net/http"

	"github.com/Suhaibinator/SDispatch/internal/config"
	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// consolePace caps /api/console, which writes to the terminal on every call.
const consolePace = 20

// NewRouter creates the dispatch kernel with the server's global middleware.
func NewRouter(env config.Env, logger *zap.Logger, reg *prometheus.Registry) *router.Router {
	mws := []common.Middleware{
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.CORS(middleware.CORSConfig{
			Origins: []string{"*"},
			Methods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			Headers: []string{"Content-Type", "Authorization", "X-API-Key", middleware.TraceIDHeader},
		}),
	}
	if env.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(middleware.RateLimitConfig{
			BucketName: "global",
			Limit:      env.RateLimit,
			Window:     env.RateWindow,
			Strategy:   middleware.StrategyIP,
		}, middleware.NewFixedWindowLimiter(), logger))
	}

	r := router.NewRouter(router.RouterConfig{
		Logger:            logger,
		GlobalMaxBodySize: env.MaxBodyBytes,
		IPConfig: &middleware.IPConfig{
			Source:     middleware.IPSourceXForwardedFor,
			TrustProxy: env.TrustProxy,
		},
		EnableMetrics: true,
		MetricsConfig: &router.MetricsConfig{
			Registry:  reg,
			Namespace: "sdispatch",
			Path:      env.MetricsPath,
		},
		EnableTraceID: true,
		Codecs:        []codec.Codec{codec.NewJSONCodec(), codec.NewProtoCodec()},
		Middlewares:   mws,
	})
	r.UseScoped("/api/console", middleware.Pace(consolePace))
	return r
}
