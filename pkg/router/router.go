package router

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/metrics"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrRouteNotFound is returned by Table.Resolve when no binding matches.
	ErrRouteNotFound = errors.New("route not found")

	// ErrHandlerPanic marks failures produced by a recovered panic.
	ErrHandlerPanic = errors.New("handler panicked")
)

// Router is the dispatch kernel. It implements http.Handler.
//
// Routes and middleware are registered at boot. Registration is not safe for
// concurrent use and must finish before the router serves requests.
type Router struct {
	config     RouterConfig
	logger     *zap.Logger
	table      *Table
	registry   *middleware.Registry
	codecs     []codec.Codec
	wg         sync.WaitGroup
	shutdown   bool
	shutdownMu sync.RWMutex
}

// NewRouter creates a new Router with the given configuration.
//
// Global middleware is registered in this order: the trace ID hook (EnableTraceID),
// the client IP hook, the metrics middleware (EnableMetrics), then config.Middlewares.
// Sub-routers are registered last.
func NewRouter(config RouterConfig) *Router {
	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
	}

	codecs := config.Codecs
	if len(codecs) == 0 {
		codecs = []codec.Codec{codec.NewJSONCodec()}
	}

	r := &Router{
		config:   config,
		logger:   logger,
		table:    NewTable(),
		registry: middleware.NewRegistry(),
		codecs:   codecs,
	}

	if config.EnableTraceID {
		r.registry.Register("", middleware.TraceID())
	}
	r.registry.Register("", middleware.ClientIP(config.IPConfig))

	if config.EnableMetrics {
		r.enableMetrics()
	}

	for _, mw := range config.Middlewares {
		r.registry.Register("", mw)
	}

	for _, sr := range config.SubRouters {
		r.RegisterSubRouter(sr)
	}

	return r
}

func (r *Router) enableMetrics() {
	mc := r.config.MetricsConfig
	if mc == nil {
		mc = &MetricsConfig{}
	}
	reg := mc.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	col, err := metrics.NewCollector(reg, metrics.Config{Namespace: mc.Namespace, Subsystem: mc.Subsystem})
	if err != nil {
		r.logger.Error("Metrics disabled", zap.Error(err))
		return
	}
	r.registry.Register("", col.Middleware())

	if mc.Path != "" {
		r.GET(mc.Path, metrics.Handler(reg))
	}
}

// Handle registers handler for method and path. Middlewares, when given, wrap this
// handler only and run inside the registry's middleware. Route-local hooks are part of
// that inner chain, so they are skipped when a registry wrap short-circuits; register a
// hook with UseScoped to have it run for every matching request. Registering the same
// method and path again replaces the earlier handler.
func (r *Router) Handle(method, path string, handler common.Handler, middlewares ...Middleware) {
	if len(middlewares) > 0 {
		handler = common.NewMiddlewareChain(middlewares...).Then(handler)
	}
	r.table.Handle(method, path, handler)
}

// GET registers a GET route.
func (r *Router) GET(path string, handler common.Handler, middlewares ...Middleware) {
	r.Handle(http.MethodGet, path, handler, middlewares...)
}

// POST registers a POST route.
func (r *Router) POST(path string, handler common.Handler, middlewares ...Middleware) {
	r.Handle(http.MethodPost, path, handler, middlewares...)
}

// PUT registers a PUT route.
func (r *Router) PUT(path string, handler common.Handler, middlewares ...Middleware) {
	r.Handle(http.MethodPut, path, handler, middlewares...)
}

// PATCH registers a PATCH route.
func (r *Router) PATCH(path string, handler common.Handler, middlewares ...Middleware) {
	r.Handle(http.MethodPatch, path, handler, middlewares...)
}

// DELETE registers a DELETE route.
func (r *Router) DELETE(path string, handler common.Handler, middlewares ...Middleware) {
	r.Handle(http.MethodDelete, path, handler, middlewares...)
}

// RegisterRoute registers a route for each of its methods.
func (r *Router) RegisterRoute(route RouteConfig) {
	for _, method := range route.Methods {
		r.Handle(method, route.Path, route.Handler, route.Middlewares...)
	}
}

// RegisterSubRouter registers the sub-router's middleware scoped to its prefix and
// its routes below the prefix.
func (r *Router) RegisterSubRouter(sr SubRouterConfig) {
	for _, mw := range sr.Middlewares {
		r.registry.Register(sr.PathPrefix, mw)
	}
	for _, route := range sr.Routes {
		route.Path = sr.PathPrefix + route.Path
		r.RegisterRoute(route)
	}
}

// Use registers global middleware. Each value must be a common.Middleware or a function
// common.From accepts; anything else panics, since registration happens at boot.
func (r *Router) Use(middlewares ...any) {
	r.UseScoped("", middlewares...)
}

// UseScoped registers middleware that only runs for scope and the paths below it.
func (r *Router) UseScoped(scope string, middlewares ...any) {
	for _, fn := range middlewares {
		mw, err := common.From(fn)
		if err != nil {
			panic(errors.Wrapf(err, "router: register middleware for scope %q", scope))
		}
		r.registry.Register(scope, mw)
	}
}

// Routes lists every registered route, sorted by path and method.
func (r *Router) Routes() []RouteInfo {
	return r.table.Routes()
}

// Dispatch runs one dispatch cycle. It is the same as ServeHTTP.
func (r *Router) Dispatch(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}

// ServeHTTP implements the http.Handler interface.
//
// It resolves the route, composes the applicable middleware around the handler (or
// the not-found responder), runs the chain once and writes the result. Panics and
// failures inside the chain become 500 responses and never reach the server.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.wg.Add(1)

	r.shutdownMu.RLock()
	isShutdown := r.shutdown
	r.shutdownMu.RUnlock()

	if isShutdown {
		r.wg.Done()
		r.writeError(w, req, NewHTTPError(http.StatusServiceUnavailable, "unavailable", "Service Unavailable"))
		return
	}
	defer r.wg.Done()

	rw := &responseWriter{ResponseWriter: w}

	body, err := r.readBody(rw, req)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			r.logger.Warn("Request body too large",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int64("limit", maxErr.Limit),
			)
			r.writeError(rw, req, NewHTTPError(http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large"))
			return
		}
		r.logger.Warn("Failed to read request body", zap.Error(err), zap.String("path", req.URL.Path))
		r.writeError(rw, req, NewHTTPError(http.StatusBadRequest, "bad_request", "Failed to read request body"))
		return
	}

	handler, route, params, err := r.table.Resolve(req.Method, req.URL.Path)
	if err != nil {
		handler = r.notFound
	}

	c := common.NewContext(rw, req, body, route, params)
	chain := r.registry.Applicable(req.URL.Path)
	res := r.execute(c, chain.Then(handler))
	r.respond(c, rw, res)
}

// readBody reads the whole body, capped at GlobalMaxBodySize. The request body is
// replaced with the bytes read so handlers that write their own output can still read it.
func (r *Router) readBody(w http.ResponseWriter, req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	reader := io.Reader(req.Body)
	if r.config.GlobalMaxBodySize > 0 {
		reader = http.MaxBytesReader(w, req.Body, r.config.GlobalMaxBodySize)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// execute runs the composed chain, turning a panic into a failure result.
func (r *Router) execute(c *common.Context, h common.Handler) (res common.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic recovered", r.logFields(c,
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())),
			)...)
			res = common.Fail(errors.Mark(errors.Newf("panic: %v", rec), ErrHandlerPanic))
		}
	}()
	return h(c)
}

// respond writes the result. Nothing is written for Written results, or when the
// handler already started its own response.
func (r *Router) respond(c *common.Context, rw *responseWriter, res common.Result) {
	if res.IsWritten() {
		return
	}
	if rw.wroteHeader {
		r.logger.Error("Result dropped, response already started", r.logFields(c,
			zap.Int("status", rw.Status()),
			zap.Int("result_status", res.Status()),
		)...)
		return
	}

	payload := res.Data()
	if err := res.Err(); err != nil {
		payload = r.handleError(c, err)
	}

	cd := codec.Negotiate(c.Header().Get("Accept"), r.codecs...)
	out, err := cd.Encode(payload)
	if err != nil {
		r.logger.Error("Failed to encode response", r.logFields(c, zap.Error(err))...)
		r.writeError(rw, c.Request(), internalError())
		return
	}

	resp := common.Response{
		Status: res.Status(),
		Header: http.Header{"Content-Type": {cd.ContentType()}},
		Body:   out,
	}
	if err := resp.Write(rw); err != nil {
		r.logger.Debug("Failed to write response", r.logFields(c, zap.Error(err))...)
	}
}

// handleError logs a failure and returns the payload sent to the client. An *HTTPError
// with a valid status supplies the payload; any other error gets a generic one.
func (r *Router) handleError(c *common.Context, err error) *codec.Map {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if _, ok := common.StatusFromValue(httpErr.StatusCode); !ok {
			r.logger.Error("Handler error with invalid status", r.logFields(c,
				zap.Int("status", httpErr.StatusCode),
				zap.Error(err),
			)...)
			return internalError().Payload()
		}
		if httpErr.StatusCode >= http.StatusInternalServerError {
			r.logger.Error("Handler error", r.logFields(c, zap.Error(err))...)
		} else {
			r.logger.Warn("Handler error", r.logFields(c, zap.Error(err))...)
		}
		return httpErr.Payload()
	}

	// panics were logged with their stack in execute
	if !errors.Is(err, ErrHandlerPanic) {
		r.logger.Error("Handler error", r.logFields(c, zap.Error(err))...)
	}
	return internalError().Payload()
}

func internalError() *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, "internal_error", "Internal Server Error")
}

// writeError writes an error payload outside the middleware chain.
func (r *Router) writeError(w http.ResponseWriter, req *http.Request, e *HTTPError) {
	cd := codec.Negotiate(req.Header.Get("Accept"), r.codecs...)
	out, err := cd.Encode(e.Payload())
	if err != nil {
		cd = codec.NewJSONCodec()
		out, _ = cd.Encode(e.Payload())
	}

	resp := common.Response{
		Status: e.StatusCode,
		Header: http.Header{"Content-Type": {cd.ContentType()}},
		Body:   out,
	}
	if err := resp.Write(w); err != nil {
		r.logger.Debug("Failed to write response", zap.Error(err), zap.String("path", req.URL.Path))
	}
}

// notFound is the innermost handler for requests that matched no route.
func (r *Router) notFound(c *common.Context) common.Result {
	r.logger.Debug("Route not found", r.logFields(c)...)
	return common.JSON(
		"status", http.StatusNotFound,
		"error", "not_found",
		"path", c.Path(),
	)
}

func (r *Router) logFields(c *common.Context, extra ...zap.Field) []zap.Field {
	fields := make([]zap.Field, 0, len(extra)+3)
	if r.config.EnableTraceID {
		if traceID := middleware.GetTraceID(c); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
	}
	fields = append(fields,
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
	)
	return append(fields, extra...)
}

// Shutdown gracefully shuts down the router.
// It stops accepting new requests and waits for existing requests to complete.
// If the context is canceled before all requests complete, it returns the context's error.
func (r *Router) Shutdown(ctx context.Context) error {
	r.shutdownMu.Lock()
	r.shutdown = true
	r.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// responseWriter records whether and with which status the response was started.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// WriteHeader records the first status and forwards it.
func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.status = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write starts the response with 200 if needed and forwards b.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Status returns the status sent, or 200 when nothing was written yet.
func (rw *responseWriter) Status() int {
	if !rw.wroteHeader {
		return http.StatusOK
	}
	return rw.status
}

// Flush calls the underlying ResponseWriter.Flush if it implements http.Flusher.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying writer for http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
