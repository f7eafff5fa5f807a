package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus collectors for the anonymizer and tool layer.
// All methods are safe on a nil receiver, which disables recording.
type Metrics struct {
	AnonymizationsTotal prometheus.Counter
	AnonymizeDuration   prometheus.Histogram
	EntitiesTotal       *prometheus.CounterVec
	RejectedTotal       *prometheus.CounterVec

	ToolCallsTotal    *prometheus.CounterVec
	ToolCallDuration  *prometheus.HistogramVec
	ToolCacheRebuilds prometheus.Counter

	HTTPRequestsTotal *prometheus.CounterVec
	RateLimitedTotal  prometheus.Counter
}

// NewMetrics registers the collectors once per process and returns them.
//
// Metrics:
//   - veil_anonymizations_total
//   - veil_anonymize_duration_seconds
//   - veil_entities_total{entity_type}
//   - veil_validator_rejections_total{entity_type}
//   - veil_tool_calls_total{tool,outcome}
//   - veil_tool_call_duration_seconds{tool}
//   - veil_tool_cache_rebuilds_total
//   - veil_http_requests_total{route,status}
//   - veil_rate_limited_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AnonymizationsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "veil_anonymizations_total",
					Help: "Total number of anonymization runs",
				},
			),

			AnonymizeDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "veil_anonymize_duration_seconds",
					Help:    "Duration of anonymization runs in seconds",
					Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
				},
			),

			EntitiesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "veil_entities_total",
					Help: "Total number of entities replaced by placeholders",
				},
				[]string{"entity_type"},
			),

			RejectedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "veil_validator_rejections_total",
					Help: "Total number of pattern matches rejected by a validator",
				},
				[]string{"entity_type"},
			),

			ToolCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "veil_tool_calls_total",
					Help: "Total number of tool invocations",
				},
				[]string{"tool", "outcome"}, // "success" or "error"
			),

			ToolCallDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "veil_tool_call_duration_seconds",
					Help:    "Duration of tool invocations in seconds",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
				},
				[]string{"tool"},
			),

			ToolCacheRebuilds: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "veil_tool_cache_rebuilds_total",
					Help: "Total number of tool callback cache rebuilds",
				},
			),

			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "veil_http_requests_total",
					Help: "Total number of HTTP requests served",
				},
				[]string{"route", "status"},
			),

			RateLimitedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "veil_rate_limited_total",
					Help: "Total number of requests rejected by the rate limiter",
				},
			),
		}
	})

	return globalMetrics
}

// RecordAnonymization records one run and the types of the entities it replaced.
func (m *Metrics) RecordAnonymization(d time.Duration, entityTypes []string) {
	if m == nil {
		return
	}
	m.AnonymizationsTotal.Inc()
	m.AnonymizeDuration.Observe(d.Seconds())
	for _, t := range entityTypes {
		m.EntitiesTotal.WithLabelValues(t).Inc()
	}
}

// RecordRejected records a match discarded by a validator.
func (m *Metrics) RecordRejected(entityType string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(entityType).Inc()
}

// RecordToolCall records a tool invocation.
func (m *Metrics) RecordToolCall(tool string, d time.Duration, err bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if err {
		outcome = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordCacheRebuild records a tool callback cache rebuild.
func (m *Metrics) RecordCacheRebuild() {
	if m == nil {
		return
	}
	m.ToolCacheRebuilds.Inc()
}

// RecordHTTPRequest records a served request.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, statusClass(status)).Inc()
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
