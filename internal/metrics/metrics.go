// Package metrics exposes Prometheus instrumentation for mock resolution
// and audit writes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "antbee"

// Resolution outcomes
const (
	OutcomeNotFound = "not_found"
	OutcomePaused   = "paused"
	OutcomeEmpty    = "no_variants"
	OutcomeDefault  = "default"
	OutcomeRule     = "rule"
	OutcomeError    = "store_error"
)

// Collector owns the registry and every metric the server records.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	bodyFailures  prometheus.Counter
	auditWrites   *prometheus.CounterVec
	auditFailures *prometheus.CounterVec
}

// NewCollector registers all metrics on registry. A nil registry gets a
// fresh one with the Go and process collectors attached.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mock_requests_total",
				Help:      "Mock requests by method, outcome and status code",
			},
			[]string{"method", "outcome", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mock_request_duration_seconds",
				Help:      "Time to resolve and write a mock response, including configured delay",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "outcome"},
		),
		bodyFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "body_parse_failures_total",
				Help:      "Requests whose body could not be parsed for body rules",
			},
		),
		auditWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_writes_total",
				Help:      "Request logs written per sink",
			},
			[]string{"sink"},
		),
		auditFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_write_failures_total",
				Help:      "Request logs that could not be written per sink",
			},
			[]string{"sink"},
		),
	}

	registry.MustRegister(c.requests, c.duration, c.bodyFailures, c.auditWrites, c.auditFailures)
	return c
}

// RecordRequest counts one resolved mock request
func (c *Collector) RecordRequest(method, outcome string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(method, outcome, strconv.Itoa(status)).Inc()
	c.duration.WithLabelValues(method, outcome).Observe(elapsed.Seconds())
}

// RecordBodyParseFailure counts a request body that failed to parse
func (c *Collector) RecordBodyParseFailure() {
	if c == nil {
		return
	}
	c.bodyFailures.Inc()
}

// RecordAuditWrite counts a log written to sink
func (c *Collector) RecordAuditWrite(sink string) {
	if c == nil {
		return
	}
	c.auditWrites.WithLabelValues(sink).Inc()
}

// RecordAuditFailure counts a log that sink failed to store
func (c *Collector) RecordAuditFailure(sink string) {
	if c == nil {
		return
	}
	c.auditFailures.WithLabelValues(sink).Inc()
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
