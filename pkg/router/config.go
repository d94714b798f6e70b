// Package router provides the SDispatch dispatch kernel: a route table, a middleware
// registry with hook and wrapping middleware, and the dispatch cycle that turns handler
// results into responses.
package router

import (
	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// MetricsConfig defines the configuration for Prometheus metrics.
type MetricsConfig struct {
	Registry  *prometheus.Registry // Registry the request metrics are registered with; a new one when nil
	Namespace string               // Namespace for metrics
	Subsystem string               // Subsystem for metrics
	Path      string               // When set, a GET route serving the registry (e.g. "/metrics")
}

// RouterConfig defines the global configuration for the router.
type RouterConfig struct {
	Logger            *zap.Logger          // Logger for all router operations
	GlobalMaxBodySize int64                // Maximum request body size in bytes; 0 for no limit
	IPConfig          *middleware.IPConfig // Configuration for client IP extraction
	EnableMetrics     bool                 // Enable metrics collection
	MetricsConfig     *MetricsConfig       // Metrics configuration (optional)
	EnableTraceID     bool                 // Assign trace IDs and include them in logs
	Codecs            []codec.Codec        // Response codecs, negotiated by Accept; JSON when empty
	Middlewares       []common.Middleware  // Global middlewares applied to all requests
	SubRouters        []SubRouterConfig    // Sub-routers with their own configurations
}

// SubRouterConfig defines a group of routes under a common path prefix. Its middlewares
// are registered scoped to the prefix, so they also run for unmatched paths below it.
type SubRouterConfig struct {
	PathPrefix  string              // Common path prefix for all routes in this sub-router
	Routes      []RouteConfig       // Routes in this sub-router
	Middlewares []common.Middleware // Middlewares applied to every path under the prefix
}

// RouteConfig defines a single route.
type RouteConfig struct {
	Path        string              // Route path (prefixed with the sub-router prefix if applicable)
	Methods     []string            // HTTP methods this route handles
	Handler     common.Handler      // Handler for the route
	Middlewares []common.Middleware // Middlewares wrapped around this route's handler only
}

// Middleware is an alias for common.Middleware.
type Middleware = common.Middleware

// HTTPError is an alias for common.HTTPError. Handlers return it through common.Fail to
// control the error response.
type HTTPError = common.HTTPError

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, reason, message string) *HTTPError {
	return common.NewHTTPError(statusCode, reason, message)
}
