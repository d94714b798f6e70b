// Package middleware provides the hook and wrapping middleware shipped with the SDispatch framework,
// together with the registry the router uses to decide which of them apply to a request.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// SlowRequestThreshold is the duration above which Logging reports a request at Warn level.
const SlowRequestThreshold = time.Second

// Chain groups several middleware into a single wrapping middleware that runs them
// with the same ordering rules as the router.
func Chain(middlewares ...Middleware) Middleware {
	chain := common.NewMiddlewareChain(middlewares...)
	return common.Wrap(func(c *common.Context, next common.Next) common.Result {
		return chain.Then(func(*common.Context) common.Result { return next() })(c)
	})
}

// Recovery turns a panic in the rest of the chain into a failure result.
func Recovery(logger *zap.Logger) Middleware {
	return common.Wrap(func(c *common.Context, next common.Next) (res common.Result) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
				)
				res = common.Fail(errors.Newf("panic: %v", rec))
			}
		}()
		return next()
	})
}

// Logging logs every request once the rest of the chain has returned.
func Logging(logger *zap.Logger) Middleware {
	return common.Wrap(func(c *common.Context, next common.Next) common.Result {
		res := next()
		duration := time.Since(c.StartTime())
		status := StatusOf(c, res)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", duration),
		}
		if traceID := GetTraceID(c); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}

		switch {
		case status >= 500:
			logger.Error("Server error", append(fields, zap.String("remote_addr", c.Request().RemoteAddr))...)
		case status >= 400:
			logger.Warn("Client error", fields...)
		case duration > SlowRequestThreshold:
			logger.Warn("Slow request", fields...)
		default:
			logger.Debug("Request", fields...)
		}
		return res
	})
}

// StatusOf returns the status a result produces. For written results it asks the
// response writer, which the router wraps to record the status.
func StatusOf(c *common.Context, res common.Result) int {
	if !res.IsWritten() {
		return res.Status()
	}
	if sw, ok := c.ResponseWriter().(interface{ Status() int }); ok {
		return sw.Status()
	}
	return http.StatusOK
}

// CORSConfig lists the values sent in the Access-Control-Allow-* headers.
type CORSConfig struct {
	Origins []string
	Methods []string
	Headers []string
}

// CORS adds CORS headers to every response and answers preflight OPTIONS requests
// itself with an empty 204, skipping the handler.
func CORS(cfg CORSConfig) Middleware {
	return common.Wrap(func(c *common.Context, next common.Next) common.Result {
		w := c.ResponseWriter()
		if len(cfg.Origins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", strings.Join(cfg.Origins, ", "))
		}
		if len(cfg.Methods) > 0 {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.Methods, ", "))
		}
		if len(cfg.Headers) > 0 {
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.Headers, ", "))
		}

		if c.Method() == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return common.Written()
		}
		return next()
	})
}
