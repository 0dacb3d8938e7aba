// Package metrics exposes the rule store's Prometheus metrics.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all rule store metrics.
type Registry struct {
	// API metrics
	APIRequests  *prometheus.CounterVec
	APILatency   *prometheus.HistogramVec
	RateLimited  *prometheus.CounterVec
	AuthFailures prometheus.Counter

	// Store metrics
	Rules    prometheus.Gauge
	StoreOps *prometheus.CounterVec

	// Push metrics
	WSClients prometheus.Gauge

	reg      prometheus.Registerer
	gatherer prometheus.Gatherer
}

// Get returns the global metrics registry, creating it if necessary.
// It registers with the Prometheus default registry.
func Get() *Registry {
	once.Do(func() {
		registry = New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return registry
}

// NewIsolated returns a registry backed by its own prometheus.Registry.
// Tests use it to avoid duplicate registration panics.
func NewIsolated() *Registry {
	reg := prometheus.NewRegistry()
	return New(reg, reg)
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Registry {
	factory := promauto.With(reg)
	r := &Registry{reg: reg, gatherer: gatherer}

	r.APIRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "pfw_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "route", "code"})

	r.APILatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pfw_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.RateLimited = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "pfw_api_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"method"})

	r.AuthFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "pfw_api_auth_failures_total",
		Help: "Mutations rejected for a missing or wrong API key",
	})

	r.Rules = factory.NewGauge(prometheus.GaugeOpts{
		Name: "pfw_rules",
		Help: "Number of rules in the store",
	})

	r.StoreOps = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "pfw_store_operations_total",
		Help: "Store calls by operation and result",
	}, []string{"op", "result"})

	r.WSClients = factory.NewGauge(prometheus.GaugeOpts{
		Name: "pfw_ws_clients",
		Help: "Connected websocket subscribers",
	})

	return r
}

// RegisterEventStats exposes event hub counters. stats is called at scrape time.
func (r *Registry) RegisterEventStats(stats func() (published, dropped uint64)) {
	factory := promauto.With(r.reg)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "pfw_events_published_total",
		Help: "Rule events published on the hub",
	}, func() float64 {
		p, _ := stats()
		return float64(p)
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "pfw_events_dropped_total",
		Help: "Rule events dropped because a subscriber was slow",
	}, func() float64 {
		_, d := stats()
		return float64(d)
	})
}

// RegisterUptime exposes seconds since start.
func (r *Registry) RegisterUptime(start time.Time) {
	promauto.With(r.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pfw_uptime_seconds",
		Help: "Seconds since the server started",
	}, func() float64 {
		return time.Since(start).Seconds()
	})
}

// RegisterRateLimitKeys exposes the number of clients the rate limiter
// currently tracks.
func (r *Registry) RegisterRateLimitKeys(keys func() int) {
	promauto.With(r.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pfw_ratelimit_tracked_keys",
		Help: "Client keys with a live rate limit bucket",
	}, func() float64 {
		return float64(keys())
	})
}

// Handler serves the exposition format for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, route string, status int, duration time.Duration) {
	r.APIRequests.WithLabelValues(method, route, statusString(status)).Inc()
	r.APILatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveStoreOp implements store.OpRecorder.
func (r *Registry) ObserveStoreOp(op, result string) {
	r.StoreOps.WithLabelValues(op, result).Inc()
}

// SetRuleCount implements store.OpRecorder.
func (r *Registry) SetRuleCount(n int) {
	r.Rules.Set(float64(n))
}

// statusString converts an HTTP status code to string.
func statusString(status int) string {
	return fmt.Sprintf("%d", status)
}
