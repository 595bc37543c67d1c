package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/eventgate/pkg/config"
)

// CacheMetrics tracks the authorization, deployment and catalog caches,
// labelled by cache name.
type CacheMetrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	entries   *prometheus.GaugeVec
	evictions *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		}, []string{"cache"})
	}
	cm := &CacheMetrics{
		hits:   counter("cache_hits_total", "Lookups answered from cache."),
		misses: counter("cache_misses_total", "Lookups that went to the store."),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "cache_entries", Help: "Entries held after the last sweep or flush.",
		}, []string{"cache"}),
		evictions: counter("cache_evictions_total", "Expired entries removed by sweeps."),
	}
	registry.MustRegister(cm.hits, cm.misses, cm.entries, cm.evictions)
	return cm
}

func (cm *CacheMetrics) RecordHit(cache string)  { cm.hits.WithLabelValues(cache).Inc() }
func (cm *CacheMetrics) RecordMiss(cache string) { cm.misses.WithLabelValues(cache).Inc() }

func (cm *CacheMetrics) UpdateSize(cache string, size int) {
	cm.entries.WithLabelValues(cache).Set(float64(size))
}

func (cm *CacheMetrics) RecordEvictions(cache string, n int) {
	cm.evictions.WithLabelValues(cache).Add(float64(n))
}
