package metrics

import (
	"sync"
	"time"

	"mercator-hq/eventgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every gateway metric and the registry they are
// registered with.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	upstreamMetrics *UpstreamMetrics
	cacheMetrics    *CacheMetrics
	usageMetrics    *UsageMetrics

	authResults *prometheus.CounterVec

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registered with registry. If registry is
// nil a fresh registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// 10ms for cache-answered calls up to the 60s upstream timeout
		cfg.RequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	}
	if len(cfg.TokenCountBuckets) == 0 {
		cfg.TokenCountBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.upstreamMetrics = NewUpstreamMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)
	c.usageMetrics = NewUsageMetrics(cfg, registry)

	c.authResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "auth_results_total",
			Help:      "Credential resolutions by result",
		},
		[]string{"result"},
	)
	registry.MustRegister(c.authResults)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordRequest records a completed inbound request.
//
// Parameters:
//   - dialect: template name serving the route, or "gateway" for the
//     non-proxy endpoints
//   - status: HTTP status code as a string
//   - duration: total handling time
func (c *Collector) RecordRequest(dialect, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordRequest(dialect, status, duration)
}

// RecordUpstream records one forwarded upstream call.
//
// Parameters:
//   - dialect: template name
//   - outcome: "success", "upstream_error", "timeout", "canceled" or
//     "connection_failed"
//   - duration: time until the response body was read, or until headers
//     arrived for streamed calls
func (c *Collector) RecordUpstream(dialect, outcome string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.upstreamMetrics.RecordCall(dialect, outcome, duration)
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordHit(cacheName)
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordMiss(cacheName)
}

// UpdateCacheSize sets the current entry count of a cache.
func (c *Collector) UpdateCacheSize(cacheName string, size int) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.UpdateSize(cacheName, size)
}

// RecordCacheEvictions adds n expired entries dropped by a sweep.
func (c *Collector) RecordCacheEvictions(cacheName string, n int) {
	if !c.enabled() || n <= 0 {
		return
	}
	c.cacheMetrics.RecordEvictions(cacheName, n)
}

// RecordUsage records a persisted usage record and its token counts.
func (c *Collector) RecordUsage(catalogID string, promptTokens, completionTokens, totalTokens int64) {
	if !c.enabled() {
		return
	}
	if !c.cardinalityLimiter.Allow(catalogID) {
		catalogID = "other"
	}
	c.usageMetrics.RecordRecord(catalogID, promptTokens, completionTokens, totalTokens)
}

// RecordMeteringFailure records a usage record that could not be persisted.
func (c *Collector) RecordMeteringFailure() {
	if !c.enabled() {
		return
	}
	c.usageMetrics.RecordFailure()
}

// RecordAuthResult records the result of a credential resolution:
// "authorized", "rate_limited", "unauthenticated", "forbidden" or "error".
func (c *Collector) RecordAuthResult(result string) {
	if !c.enabled() {
		return
	}
	c.authResults.WithLabelValues(result).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct values seen for a label.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter that admits at most maxCardinality
// distinct values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value was already admitted or can still be.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of admitted values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
