// Package routing resolves a requested deployment name to one upstream
// deployment of an event catalog.
//
// Lookups are cached per (event, name) for a TTL chosen uniformly between
// the configured bounds so that entries created together do not all expire
// together. The cached value is the immutable candidate list; a fresh random
// choice is made from it on every call.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"mercator-hq/eventgate/pkg/cache"
	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/store"
	"mercator-hq/eventgate/pkg/telemetry/metrics"
)

const (
	deploymentCacheName = "deployment"
	catalogCacheName    = "catalog"
)

// Config bounds the randomized cache TTL.
type Config struct {
	MinTTL time.Duration
	MaxTTL time.Duration
}

// Resolver answers catalog questions for the dialect adapters.
type Resolver struct {
	store       store.CatalogStore
	selector    Selector
	deployments *cache.TTL[string, []gateway.Deployment]
	catalogs    *cache.TTL[string, []gateway.Deployment]
	minTTL      time.Duration
	maxTTL      time.Duration
	metrics     *metrics.Collector
	stats       *atomicStats
	logger      *slog.Logger
}

// NewResolver creates a resolver backed by st. collector may be nil.
func NewResolver(st store.CatalogStore, cfg Config, collector *metrics.Collector) *Resolver {
	return &Resolver{
		store:       st,
		selector:    RandomSelector{},
		deployments: cache.New[string, []gateway.Deployment](),
		catalogs:    cache.New[string, []gateway.Deployment](),
		minTTL:      cfg.MinTTL,
		maxTTL:      cfg.MaxTTL,
		metrics:     collector,
		stats:       newAtomicStats(),
		logger:      slog.Default().With("component", "routing"),
	}
}

// WithSelector replaces the random selector.
func (r *Resolver) WithSelector(s Selector) *Resolver {
	r.selector = s
	return r
}

// Resolve returns one deployment named name in the event's catalog. When
// nothing matches the error is a *DeploymentNotFoundError listing the
// event's deployments.
func (r *Resolver) Resolve(ctx context.Context, eventID, name string) (*gateway.Deployment, error) {
	key := eventID + "\x00" + name

	candidates, ok := r.deployments.Get(key)
	if ok {
		r.metrics.RecordCacheHit(deploymentCacheName)
	} else {
		r.metrics.RecordCacheMiss(deploymentCacheName)
		r.stats.storeLookups.Add(1)

		var err error
		candidates, err = r.store.LookupDeployment(ctx, eventID, name)
		if err != nil {
			r.stats.errors.Add(1)
			return nil, fmt.Errorf("lookup deployment %q: %w", name, err)
		}
		if len(candidates) > 0 {
			r.deployments.Set(key, candidates, r.ttl())
			r.metrics.UpdateCacheSize(deploymentCacheName, r.deployments.Len())
		}
	}

	if len(candidates) == 0 {
		return nil, r.notFound(ctx, eventID, name)
	}

	d := r.selector.Select(candidates)
	r.stats.recordResolution(d.CatalogID)
	r.logger.DebugContext(ctx, "resolved deployment",
		"event_id", eventID,
		"deployment", name,
		"catalog_id", d.CatalogID,
		"candidates", len(candidates),
	)
	return &d, nil
}

// ResolveByType returns one deployment of the given model type.
func (r *Resolver) ResolveByType(ctx context.Context, eventID string, modelType gateway.ModelType) (*gateway.Deployment, error) {
	all, err := r.catalog(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var candidates []gateway.Deployment
	for _, d := range all {
		if d.ModelType == modelType {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		r.stats.notFound.Add(1)
		return nil, &DeploymentNotFoundError{
			EventID:   eventID,
			Name:      string(modelType),
			Available: distinctNames(all),
		}
	}

	d := r.selector.Select(candidates)
	r.stats.recordResolution(d.CatalogID)
	return &d, nil
}

// Capabilities groups the event's active deployments by model type. Names
// are distinct and sorted.
func (r *Resolver) Capabilities(ctx context.Context, eventID string) (gateway.Capabilities, error) {
	all, err := r.catalog(ctx, eventID)
	if err != nil {
		return nil, err
	}

	grouped := make(map[gateway.ModelType][]gateway.Deployment)
	for _, d := range all {
		grouped[d.ModelType] = append(grouped[d.ModelType], d)
	}

	caps := make(gateway.Capabilities, len(grouped))
	for t, ds := range grouped {
		caps[t] = distinctNames(ds)
	}
	return caps, nil
}

// Flush drops every cached lookup.
func (r *Resolver) Flush() {
	r.deployments.Flush()
	r.catalogs.Flush()
	r.metrics.UpdateCacheSize(deploymentCacheName, 0)
	r.metrics.UpdateCacheSize(catalogCacheName, 0)
}

// Sweep drops expired lookups and returns how many were removed.
func (r *Resolver) Sweep() int {
	n := r.deployments.Sweep()
	m := r.catalogs.Sweep()
	r.metrics.RecordCacheEvictions(deploymentCacheName, n)
	r.metrics.RecordCacheEvictions(catalogCacheName, m)
	r.metrics.UpdateCacheSize(deploymentCacheName, r.deployments.Len())
	r.metrics.UpdateCacheSize(catalogCacheName, r.catalogs.Len())
	return n + m
}

// Stats returns a snapshot of the resolver counters.
func (r *Resolver) Stats() Stats {
	return r.stats.snapshot()
}

// ResetStats zeroes the resolver counters.
func (r *Resolver) ResetStats() {
	r.stats.reset()
}

func (r *Resolver) catalog(ctx context.Context, eventID string) ([]gateway.Deployment, error) {
	if all, ok := r.catalogs.Get(eventID); ok {
		r.metrics.RecordCacheHit(catalogCacheName)
		return all, nil
	}
	r.metrics.RecordCacheMiss(catalogCacheName)
	r.stats.storeLookups.Add(1)

	all, err := r.store.ListEventDeployments(ctx, eventID)
	if err != nil {
		r.stats.errors.Add(1)
		return nil, fmt.Errorf("list event deployments: %w", err)
	}
	r.catalogs.Set(eventID, all, r.ttl())
	r.metrics.UpdateCacheSize(catalogCacheName, r.catalogs.Len())
	return all, nil
}

func (r *Resolver) notFound(ctx context.Context, eventID, name string) error {
	r.stats.notFound.Add(1)

	all, err := r.catalog(ctx, eventID)
	if err != nil {
		return err
	}
	return &DeploymentNotFoundError{
		EventID:   eventID,
		Name:      name,
		Available: distinctNames(all),
	}
}

func (r *Resolver) ttl() time.Duration {
	return time.Duration(randomTTL(int64(r.minTTL), int64(r.maxTTL)))
}

func distinctNames(ds []gateway.Deployment) []string {
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		names = append(names, d.DeploymentName)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
