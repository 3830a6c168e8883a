// Package metrics exposes Prometheus collectors for the HTTP layer and the
// settlement engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"auction-settlement/internal/biddingerrors"
)

const namespace = "auction"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	opLatency  *prometheus.HistogramVec
	requests   *prometheus.CounterVec
	reqLatency *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_operations_total",
			Help:      "Engine operations by name and outcome kind.",
		}, []string{"operation", "outcome"}),
		opLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		reqLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Observe records one engine operation and its outcome
func (m *Metrics) Observe(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, biddingerrors.Kind(err)).Inc()
	m.opLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Middleware records every request under its route template
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.reqLatency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
