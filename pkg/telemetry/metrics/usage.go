package metrics

import (
	"mercator-hq/eventgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// UsageMetrics tracks metering.
//
// Metrics:
//   - eventgate_gateway_usage_records_total: persisted records by catalog id
//   - eventgate_gateway_metering_failures_total: records that failed to persist
//   - eventgate_gateway_usage_tokens_total: tokens by catalog id and type
//   - eventgate_gateway_usage_tokens_per_request: total tokens per record
type UsageMetrics struct {
	recordsTotal  *prometheus.CounterVec
	failuresTotal prometheus.Counter
	tokensTotal   *prometheus.CounterVec
	tokensPerCall prometheus.Histogram
}

// NewUsageMetrics creates and registers usage metrics.
func NewUsageMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UsageMetrics {
	um := &UsageMetrics{
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "usage_records_total",
				Help:      "Total number of persisted usage records",
			},
			[]string{"catalog_id"},
		),
		failuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "metering_failures_total",
				Help:      "Total number of usage records that failed to persist",
			},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "usage_tokens_total",
				Help:      "Total number of metered tokens",
			},
			[]string{"catalog_id", "type"},
		),
		tokensPerCall: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "usage_tokens_per_request",
				Help:      "Total tokens reported per metered request",
				Buckets:   cfg.TokenCountBuckets,
			},
		),
	}

	registry.MustRegister(um.recordsTotal, um.failuresTotal, um.tokensTotal, um.tokensPerCall)
	return um
}

// RecordRecord records one persisted usage record.
func (um *UsageMetrics) RecordRecord(catalogID string, promptTokens, completionTokens, totalTokens int64) {
	um.recordsTotal.WithLabelValues(catalogID).Inc()
	if promptTokens > 0 {
		um.tokensTotal.WithLabelValues(catalogID, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		um.tokensTotal.WithLabelValues(catalogID, "completion").Add(float64(completionTokens))
	}
	if totalTokens > 0 {
		um.tokensPerCall.Observe(float64(totalTokens))
	}
}

// RecordFailure records a failed usage write.
func (um *UsageMetrics) RecordFailure() {
	um.failuresTotal.Inc()
}
