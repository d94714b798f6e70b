package router

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestRouter(cfg RouterConfig) (*Router, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg.Logger = zap.New(core)
	return NewRouter(cfg), logs
}

func serve(r http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRouterEncodesStructuredResults(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	r.GET("/api/health", func(*common.Context) common.Result {
		return common.JSON("status", "ok", "framework", "SDispatch", "timestamp", int64(1700000000))
	})

	rr := serve(r, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	want := `{"status":"ok","framework":"SDispatch","timestamp":1700000000}`
	if rr.Body.String() != want {
		t.Errorf("Expected %s, got %s", want, rr.Body.String())
	}
}

func TestRouterStatusKeyOverridesStatus(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	r.POST("/items", func(*common.Context) common.Result {
		return common.JSON("status", 201, "id", 7)
	})

	rr := serve(r, http.MethodPost, "/items", "")
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status %d, got %d", http.StatusCreated, rr.Code)
	}
}

func TestRouterWrittenResult(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	r.GET("/", func(c *common.Context) common.Result {
		w := c.ResponseWriter()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<h1>hi</h1>"))
		return common.Written()
	})

	rr := serve(r, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "<h1>hi</h1>" {
		t.Errorf("Unexpected response %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "text/html; charset=utf-8" {
		t.Errorf("Expected the handler's content type, got %q", rr.Header().Get("Content-Type"))
	}
}

func TestRouterNotFound(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	called := false
	r.GET("/exists", func(*common.Context) common.Result {
		called = true
		return common.JSON()
	})

	hookRuns := 0
	r.Use(func(*common.Context) { hookRuns++ })

	rr := serve(r, http.MethodGet, "/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
	if called {
		t.Error("Expected no handler to run")
	}
	if hookRuns != 1 {
		t.Errorf("Expected global middleware to run for unmatched requests, ran %d times", hookRuns)
	}
	want := `{"status":404,"error":"not_found","path":"/missing"}`
	if rr.Body.String() != want {
		t.Errorf("Expected %s, got %s", want, rr.Body.String())
	}

	rr = serve(r, http.MethodPost, "/exists", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unregistered method, got %d", rr.Code)
	}
}

func TestRouterLastRegistrationWins(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	r.GET("/x", func(*common.Context) common.Result { return common.JSON("v", 1) })
	r.GET("/x", func(*common.Context) common.Result { return common.JSON("v", 2) })

	rr := serve(r, http.MethodGet, "/x", "")
	if rr.Body.String() != `{"v":2}` {
		t.Errorf("Expected the second handler, got %s", rr.Body.String())
	}
	if len(r.Routes()) != 1 {
		t.Errorf("Expected one route, got %v", r.Routes())
	}
}

func TestRouterRegistryGateShortCircuits(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	called := false
	r.GET("/api/secret", func(*common.Context) common.Result {
		called = true
		return common.JSON("secret", true)
	})
	r.Use(func(c *common.Context, next common.Next) common.Result {
		if c.Values().Has("auth") {
			return next()
		}
		return common.JSON("status", 401, "error", "unauthorized")
	})

	rr := serve(r, http.MethodGet, "/api/secret", "")
	if called {
		t.Error("Expected the handler never to run")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if rr.Body.String() != `{"status":401,"error":"unauthorized"}` {
		t.Errorf("Expected exactly the gate payload, got %s", rr.Body.String())
	}
}

func TestRouterHooksRunOncePerRequest(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	runs := 0
	r.Use(func() { runs++ })
	r.Use(middleware.RequireKey("auth"))
	r.GET("/ok", func(*common.Context) common.Result { return common.JSON() })

	serve(r, http.MethodGet, "/ok", "")
	serve(r, http.MethodGet, "/missing", "")
	if runs != 2 {
		t.Errorf("Expected the hook to run once per request regardless of outcome, ran %d times", runs)
	}
}

func TestRouterMiddlewareOrder(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	var order []string
	r.Use(func(next common.Next) common.Result {
		order = append(order, "outer")
		return next()
	})
	r.UseScoped("/api", func(c *common.Context, next common.Next) common.Result {
		order = append(order, "api")
		return next()
	})
	r.Use(common.Hook(func(*common.Context) { order = append(order, "hook") }))
	r.GET("/api/x", func(*common.Context) common.Result {
		order = append(order, "handler")
		return common.JSON()
	}, common.Wrap(func(c *common.Context, next common.Next) common.Result {
		order = append(order, "route")
		return next()
	}))

	serve(r, http.MethodGet, "/api/x", "")
	want := "hook,outer,api,route,handler"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	order = nil
	serve(r, http.MethodGet, "/other", "")
	if got := strings.Join(order, ","); got != "hook,outer" {
		t.Errorf("Expected scoped middleware to be skipped, got %s", got)
	}
}

func TestRouterUseRejectsUnsupportedMiddleware(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	defer func() {
		if recover() == nil {
			t.Error("Expected Use to panic for an unsupported middleware")
		}
	}()
	r.Use(func(int) {})
}

func TestRouterPanicBecomes500(t *testing.T) {
	r, logs := newTestRouter(RouterConfig{EnableTraceID: true})
	r.GET("/boom", func(*common.Context) common.Result { panic("kaboom") })
	r.GET("/after", func(*common.Context) common.Result { return common.JSON("status", "ok") })

	rr := serve(r, http.MethodGet, "/boom", "")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if rr.Body.String() != `{"status":500,"error":"internal_error","message":"Internal Server Error"}` {
		t.Errorf("Expected a generic error payload, got %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "kaboom") {
		t.Error("Expected the panic value not to leak")
	}

	entries := logs.FilterMessage("Panic recovered").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one panic log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "GET" || fields["path"] != "/boom" || fields["trace_id"] == nil {
		t.Errorf("Expected method, path and trace_id fields, got %v", fields)
	}
	if logs.FilterMessage("Handler error").Len() != 0 {
		t.Error("Expected the panic to be logged once")
	}

	if rr := serve(r, http.MethodGet, "/after", ""); rr.Code != http.StatusOK {
		t.Errorf("Expected later requests to be unaffected, got %d", rr.Code)
	}
}

func TestRouterFailures(t *testing.T) {
	r, logs := newTestRouter(RouterConfig{})
	r.GET("/plain", func(*common.Context) common.Result {
		return common.Fail(errors.New("database is down"))
	})
	r.GET("/http", func(*common.Context) common.Result {
		return common.Fail(NewHTTPError(http.StatusConflict, "conflict", "already exists"))
	})

	rr := serve(r, http.MethodGet, "/plain", "")
	if rr.Code != http.StatusInternalServerError || strings.Contains(rr.Body.String(), "database") {
		t.Errorf("Expected a generic 500, got %d %s", rr.Code, rr.Body.String())
	}
	if logs.FilterMessage("Handler error").FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Error("Expected the failure to be logged at error level")
	}

	rr = serve(r, http.MethodGet, "/http", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, rr.Code)
	}
	if rr.Body.String() != `{"status":409,"error":"conflict","message":"already exists"}` {
		t.Errorf("Unexpected payload %s", rr.Body.String())
	}
}

func TestRouterHTTPErrorWithInvalidStatus(t *testing.T) {
	r, logs := newTestRouter(RouterConfig{})
	r.GET("/zero", func(*common.Context) common.Result {
		return common.Fail(&HTTPError{Reason: "teapot"})
	})
	r.GET("/huge", func(*common.Context) common.Result {
		return common.Fail(errors.Wrap(NewHTTPError(1000, "too_big", "nope"), "lookup"))
	})

	for _, path := range []string{"/zero", "/huge"} {
		var rr *httptest.ResponseRecorder
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					t.Fatalf("Expected %s to be answered, got panic %v", path, rec)
				}
			}()
			rr = serve(r, http.MethodGet, path, "")
		}()

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("Expected status %d for %s, got %d", http.StatusInternalServerError, path, rr.Code)
		}
		want := `{"status":500,"error":"internal_error","message":"Internal Server Error"}`
		if rr.Body.String() != want {
			t.Errorf("Expected %s for %s, got %s", want, path, rr.Body.String())
		}
	}
	if logs.FilterMessage("Handler error with invalid status").Len() != 2 {
		t.Error("Expected both invalid statuses to be logged")
	}
}

func TestRouterRouteLocalHookSkippedOnShortCircuit(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	var localHook, scopedHook int
	r.UseScoped("/guarded", func(*common.Context) { scopedHook++ })
	r.Use(func(*common.Context, common.Next) common.Result {
		return common.Error(http.StatusForbidden, "forbidden")
	})
	r.GET("/guarded", func(*common.Context) common.Result {
		return common.JSON("ok", true)
	}, common.Hook(func(*common.Context) { localHook++ }))

	rr := serve(r, http.MethodGet, "/guarded", "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, rr.Code)
	}
	if scopedHook != 1 {
		t.Errorf("Expected the scoped hook to run once, ran %d times", scopedHook)
	}
	if localHook != 0 {
		t.Errorf("Expected the route-local hook to be skipped, ran %d times", localHook)
	}
}

func TestRouterSerializationFault(t *testing.T) {
	r, logs := newTestRouter(RouterConfig{})
	r.GET("/bad", func(*common.Context) common.Result {
		return common.JSON("ok", true, "value", math.NaN())
	})

	rr := serve(r, http.MethodGet, "/bad", "")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("Expected no partial output, got %s", rr.Body.String())
	}
	if logs.FilterMessage("Failed to encode response").Len() != 1 {
		t.Error("Expected the encode failure to be logged")
	}
}

func TestRouterWriteThenFailKeepsResponse(t *testing.T) {
	r, logs := newTestRouter(RouterConfig{})
	r.GET("/partial", func(c *common.Context) common.Result {
		c.ResponseWriter().WriteHeader(http.StatusAccepted)
		return common.JSON("late", true)
	})

	rr := serve(r, http.MethodGet, "/partial", "")
	if rr.Code != http.StatusAccepted || rr.Body.Len() != 0 {
		t.Errorf("Expected the handler's own response, got %d %s", rr.Code, rr.Body.String())
	}
	if logs.FilterMessage("Result dropped, response already started").Len() != 1 {
		t.Error("Expected the dropped result to be logged")
	}
}

func TestRouterBodyAndParams(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{GlobalMaxBodySize: 64})
	r.POST("/users/:id", func(c *common.Context) common.Result {
		return common.JSON(
			"id", c.Param("id"),
			"name", c.BodyField("name").String(),
			"route", c.Route(),
		)
	})

	rr := serve(r, http.MethodPost, "/users/42", `{"name":"alice"}`)
	if rr.Body.String() != `{"id":"42","name":"alice","route":"/users/:id"}` {
		t.Errorf("Unexpected body %s", rr.Body.String())
	}

	rr = serve(r, http.MethodPost, "/users/42", `{"name":"`+strings.Repeat("a", 100)+`"}`)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status %d, got %d", http.StatusRequestEntityTooLarge, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"error":"body_too_large"`) {
		t.Errorf("Unexpected payload %s", rr.Body.String())
	}
}

func TestRouterProtoNegotiation(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{Codecs: []codec.Codec{codec.NewJSONCodec(), codec.NewProtoCodec()}})
	r.GET("/api/health", func(*common.Context) common.Result {
		return common.JSON("status", "ok", "count", 3)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Accept", "application/x-protobuf")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Header().Get("Content-Type") != "application/x-protobuf" {
		t.Fatalf("Expected protobuf content type, got %q", rr.Header().Get("Content-Type"))
	}
	var s structpb.Struct
	if err := proto.Unmarshal(rr.Body.Bytes(), &s); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if s.Fields["status"].GetStringValue() != "ok" || s.Fields["count"].GetNumberValue() != 3 {
		t.Errorf("Unexpected message %v", s.AsMap())
	}

	rr = serve(r, http.MethodGet, "/api/health", "")
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected JSON by default, got %q", rr.Header().Get("Content-Type"))
	}
}

func TestRouterSubRouter(t *testing.T) {
	var authRuns int
	r, _ := newTestRouter(RouterConfig{
		SubRouters: []SubRouterConfig{{
			PathPrefix: "/admin",
			Middlewares: []common.Middleware{
				common.Hook(func(*common.Context) { authRuns++ }),
				middleware.RequireKey("auth"),
			},
			Routes: []RouteConfig{{
				Path:    "/stats",
				Methods: []string{http.MethodGet, http.MethodHead},
				Handler: func(*common.Context) common.Result { return common.JSON("ok", true) },
			}},
		}},
	})
	r.GET("/public", func(*common.Context) common.Result { return common.JSON("ok", true) })

	if rr := serve(r, http.MethodGet, "/admin/stats", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected the sub-router middleware to reject, got %d", rr.Code)
	}
	if rr := serve(r, http.MethodGet, "/admin/unknown", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected scoped middleware for unmatched paths under the prefix, got %d", rr.Code)
	}
	if rr := serve(r, http.MethodGet, "/public", ""); rr.Code != http.StatusOK {
		t.Errorf("Expected public routes to pass, got %d", rr.Code)
	}
	if authRuns != 2 {
		t.Errorf("Expected scoped hook to run twice, ran %d times", authRuns)
	}

	got := r.Routes()
	if len(got) != 3 || got[0].String() != "GET /admin/stats" || got[1].String() != "HEAD /admin/stats" {
		t.Errorf("Unexpected routes %v", got)
	}
}

func TestRouterTraceID(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{EnableTraceID: true})
	var seen string
	r.GET("/t", func(c *common.Context) common.Result {
		seen = middleware.GetTraceID(c)
		return common.JSON()
	})

	rr := serve(r, http.MethodGet, "/t", "")
	if seen == "" || rr.Header().Get(middleware.TraceIDHeader) != seen {
		t.Errorf("Expected trace ID %q in the response header, got %q", seen, rr.Header().Get(middleware.TraceIDHeader))
	}
}

func TestRouterClientIP(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{IPConfig: &middleware.IPConfig{Source: middleware.IPSourceRemoteAddr, TrustProxy: true}})
	r.GET("/ip", func(c *common.Context) common.Result {
		return common.JSON("ip", middleware.GetClientIP(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ip", nil)
	req.RemoteAddr = "198.51.100.4:5000"
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Body.String() != `{"ip":"198.51.100.4"}` {
		t.Errorf("Unexpected body %s", rr.Body.String())
	}
}

func TestRouterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, _ := newTestRouter(RouterConfig{
		EnableMetrics: true,
		MetricsConfig: &MetricsConfig{Registry: reg, Namespace: "sdispatch", Path: "/metrics"},
	})
	r.GET("/api/health", func(*common.Context) common.Result { return common.JSON("status", "ok") })

	serve(r, http.MethodGet, "/api/health", "")
	serve(r, http.MethodGet, "/missing", "")

	rr := serve(r, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`sdispatch_requests_total{method="GET",route="/api/health",status="200"} 1`,
		`sdispatch_requests_total{method="GET",route="unmatched",status="404"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}

func TestRouterMetricsRegistrationFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := RouterConfig{EnableMetrics: true, MetricsConfig: &MetricsConfig{Registry: reg}}
	newTestRouter(cfg)
	_, logs := newTestRouter(cfg)
	if logs.FilterMessage("Metrics disabled").Len() != 1 {
		t.Error("Expected duplicate metric registration to be logged")
	}
}

func TestRouterShutdown(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	started := make(chan struct{})
	release := make(chan struct{})
	r.GET("/slow", func(*common.Context) common.Result {
		close(started)
		<-release
		return common.JSON("status", "ok")
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var slow *httptest.ResponseRecorder
	go func() {
		defer wg.Done()
		slow = serve(r, http.MethodGet, "/slow", "")
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := r.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected shutdown to time out while a request is in flight, got %v", err)
	}

	if rr := serve(r, http.MethodGet, "/slow", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected new requests to be rejected, got %d", rr.Code)
	}

	close(release)
	wg.Wait()
	if slow.Code != http.StatusOK {
		t.Errorf("Expected the in-flight request to finish, got %d", slow.Code)
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected shutdown to complete, got %v", err)
	}
}

func TestRouterRoundTripPreservesOrder(t *testing.T) {
	r, _ := newTestRouter(RouterConfig{})
	r.GET("/ordered", func(*common.Context) common.Result {
		return common.JSON("z", 1, "a", 2, "m", codec.NewMap("y", true, "b", false))
	})

	rr := serve(r, http.MethodGet, "/ordered", "")
	m, err := codec.NewJSONCodec().Decode(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if strings.Join(m.Keys(), ",") != "z,a,m" {
		t.Errorf("Expected key order z,a,m, got %v", m.Keys())
	}
	nested, _ := m.Get("m")
	if strings.Join(nested.(*codec.Map).Keys(), ",") != "y,b" {
		t.Errorf("Expected nested key order y,b")
	}
	if v, _ := m.Get("a"); v != json.Number("2") {
		t.Errorf("Expected a=2, got %v", v)
	}
}
