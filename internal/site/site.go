// Package site registers the demo server's landing page and API routes.
package site

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/console"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"github.com/Suhaibinator/SDispatch/pkg/store"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Framework is reported by /api/health and shown on the landing page.
const Framework = "SDispatch"

//go:embed templates/index.html
var templates embed.FS

var landing = template.Must(template.ParseFS(templates, "templates/index.html"))

// Options configures a Site.
type Options struct {
	Version string
	Console *console.Console
	Logger  *zap.Logger
	Stats   *Stats
	// APIKeys guard the /admin area. With no keys every admin request is rejected.
	APIKeys []string
	// Now returns the current time; time.Now when nil.
	Now func() time.Time
}

// Site holds the demo handlers.
type Site struct {
	version string
	console *console.Console
	logger  *zap.Logger
	stats   *Stats
	db      *store.Accessor[*Stats]
	apiKeys []string
	now     func() time.Time
}

// New creates a Site.
func New(opts Options) *Site {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Console == nil {
		opts.Console = console.New(console.Options{})
	}
	if opts.Stats == nil {
		opts.Stats = NewStats()
	}
	return &Site{
		version: opts.Version,
		console: opts.Console,
		logger:  opts.Logger,
		stats:   opts.Stats,
		db:      store.NewAccessor(OpenStats(opts.Stats)),
		apiKeys: opts.APIKeys,
		now:     opts.Now,
	}
}

// Register adds the site's middleware and routes to r.
func (s *Site) Register(r *router.Router) {
	r.Use(s.stats.Counter())
	r.UseScoped("/api/stats", store.Inject(s.db, store.DefaultKey))

	r.GET("/", s.Landing)
	r.GET("/api/health", s.Health)
	r.GET("/api/features", s.Features)
	r.GET("/api/stats", s.Stats)
	r.RegisterRoute(router.RouteConfig{
		Path:    "/api/echo",
		Methods: []string{http.MethodGet, http.MethodPost},
		Handler: s.Echo,
	})
	r.GET("/api/console", s.ConsoleTest)

	keys := lo.SliceToMap(s.apiKeys, func(k string) (string, bool) { return k, true })
	r.RegisterSubRouter(router.SubRouterConfig{
		PathPrefix: "/admin",
		Middlewares: []common.Middleware{
			middleware.NewAPIKeyMiddleware(keys, "X-API-Key", "api_key", s.logger),
			middleware.RequireKey(middleware.AuthKey),
		},
		Routes: []router.RouteConfig{{
			Path:    "/routes",
			Methods: []string{http.MethodGet},
			Handler: s.adminRoutes(r),
		}},
	})

	s.stats.SetRoutes(len(r.Routes()))
}

// Health reports liveness.
func (s *Site) Health(*common.Context) common.Result {
	return common.JSON(
		"status", "ok",
		"framework", Framework,
		"version", s.version,
		"timestamp", s.now().UnixMilli(),
	)
}

// Features lists the framework's features.
func (s *Site) Features(*common.Context) common.Result {
	return common.JSON("features", lo.Map(Features, func(f Feature, _ int) any { return f.toMap() }))
}

// Stats reports figures read through the injected data handle.
func (s *Site) Stats(c *common.Context) common.Result {
	stats, err := store.From[*Stats](c, store.DefaultKey)
	if err != nil {
		return common.Fail(errors.Wrap(err, "stats"))
	}
	return common.JSON("stats", stats.Snapshot(s.now()))
}

// Echo returns what it received. A JSON body's "message" field is echoed back.
func (s *Site) Echo(c *common.Context) common.Result {
	res := common.JSON(
		"method", c.Method(),
		"path", c.Path(),
		"query", c.Request().URL.RawQuery,
	)
	if msg := c.BodyField("message"); msg.Exists() {
		res.Data().Set("message", msg.String())
	}
	if traceID := middleware.GetTraceID(c); traceID != "" {
		res.Data().Set("trace_id", traceID)
	}
	return res
}

// ConsoleTest writes one console line per level.
func (s *Site) ConsoleTest(c *common.Context) common.Result {
	path := zap.String("path", c.Path())
	s.console.Info("console test: info", path)
	s.console.Success("console test: success", path)
	s.console.Warn("console test: warn", path)
	s.console.Error("console test: error", path)
	return common.JSON("status", "ok", "logged", []any{"info", "success", "warn", "error"})
}

// Landing renders the HTML landing page.
func (s *Site) Landing(c *common.Context) common.Result {
	var buf bytes.Buffer
	err := landing.Execute(&buf, struct {
		Name     string
		Version  string
		Features []Feature
		Now      time.Time
	}{Framework, s.version, Features, s.now()})
	if err != nil {
		return common.Fail(errors.Wrap(err, "render landing page"))
	}

	w := c.ResponseWriter()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("Failed to write landing page", zap.Error(err))
	}
	return common.Written()
}

func (s *Site) adminRoutes(r *router.Router) common.Handler {
	return func(*common.Context) common.Result {
		routes := lo.Map(r.Routes(), func(ri router.RouteInfo, _ int) any { return ri.String() })
		return common.JSON("routes", routes)
	}
}
