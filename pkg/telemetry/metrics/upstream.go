package metrics

import (
	"time"

	"mercator-hq/eventgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks calls forwarded to upstream deployments.
//
// Metrics:
//   - eventgate_gateway_upstream_requests_total: calls by dialect and outcome
//   - eventgate_gateway_upstream_duration_seconds: call latency by dialect
type UpstreamMetrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

// NewUpstreamMetrics creates and registers upstream metrics.
func NewUpstreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_requests_total",
				Help:      "Total number of upstream calls",
			},
			[]string{"dialect", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_duration_seconds",
				Help:      "Latency of upstream calls in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"dialect"},
		),
	}

	registry.MustRegister(um.callsTotal, um.callDuration)
	return um
}

// RecordCall records one upstream call.
func (um *UpstreamMetrics) RecordCall(dialect, outcome string, duration time.Duration) {
	um.callsTotal.WithLabelValues(dialect, outcome).Inc()
	um.callDuration.WithLabelValues(dialect).Observe(duration.Seconds())
}
