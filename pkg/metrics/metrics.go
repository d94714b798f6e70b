// Package metrics records request metrics for the SDispatch router with Prometheus
// and serves them in the Prometheus exposition format.
package metrics

import (
	"strconv"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnmatchedRoute is the route label used for requests that matched no route.
const UnmatchedRoute = "unmatched"

// Config configures a Collector.
type Config struct {
	Namespace string
	Subsystem string

	// Buckets for the duration histogram; prometheus.DefBuckets when empty.
	Buckets []float64
}

// Collector holds the request metrics.
type Collector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewCollector creates the request metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer, cfg Config) (*Collector, error) {
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "requests_total",
			Help:      "Number of dispatched requests.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "request_duration_seconds",
			Help:      "Time spent dispatching requests.",
			Buckets:   buckets,
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "requests_in_flight",
			Help:      "Requests currently being dispatched.",
		}),
	}

	for _, col := range []prometheus.Collector{c.requests, c.duration, c.inFlight} {
		if err := reg.Register(col); err != nil {
			return nil, errors.Wrap(err, "register request metrics")
		}
	}
	return c, nil
}

// Middleware returns a wrapping middleware that records every request it sees.
// Requests that matched no route are labelled with UnmatchedRoute.
func (m *Collector) Middleware() common.Middleware {
	return common.Wrap(func(c *common.Context, next common.Next) common.Result {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		res := next()

		route := c.Route()
		if route == "" {
			route = UnmatchedRoute
		}
		labels := prometheus.Labels{
			"method": c.Method(),
			"route":  route,
			"status": strconv.Itoa(middleware.StatusOf(c, res)),
		}
		m.requests.With(labels).Inc()
		m.duration.With(labels).Observe(time.Since(c.StartTime()).Seconds())
		return res
	})
}

// Handler serves the metrics gathered by g. It writes its own response.
func Handler(g prometheus.Gatherer) common.Handler {
	h := promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	return func(c *common.Context) common.Result {
		h.ServeHTTP(c.ResponseWriter(), c.Request())
		return common.Written()
	}
}
