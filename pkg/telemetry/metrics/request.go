package metrics

import (
	"time"

	"mercator-hq/eventgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks inbound request processing.
//
// Metrics:
//   - eventgate_gateway_requests_total: requests by dialect and status
//   - eventgate_gateway_request_duration_seconds: handling time by dialect
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRequestMetrics creates and registers request metrics.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of inbound requests",
			},
			[]string{"dialect", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of inbound requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"dialect"},
		),
	}

	registry.MustRegister(rm.requestsTotal, rm.requestDuration)
	return rm
}

// RecordRequest records a completed request.
func (rm *RequestMetrics) RecordRequest(dialect, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(dialect, status).Inc()
	rm.requestDuration.WithLabelValues(dialect).Observe(duration.Seconds())
}
