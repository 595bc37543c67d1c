package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/eventgate/pkg/cache"
	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/store"
	"mercator-hq/eventgate/pkg/telemetry/metrics"
)

const authCacheName = "authorization"

// Default cache TTLs.
const (
	DefaultAuthorizedTTL   = 2 * time.Minute
	DefaultUnauthorizedTTL = 30 * time.Second
)

// Config holds the resolver cache TTLs.
type Config struct {
	// AuthorizedTTL is how long a lookup with quota left is cached.
	AuthorizedTTL time.Duration

	// UnauthorizedTTL is how long a rate-limited lookup is cached.
	UnauthorizedTTL time.Duration
}

// Resolver turns a credential into a per-request context.
type Resolver struct {
	store           store.AuthorizationStore
	cache           *cache.TTL[string, *gateway.Authorization]
	authorizedTTL   time.Duration
	unauthorizedTTL time.Duration
	metrics         *metrics.Collector
	logger          *slog.Logger
}

// NewResolver creates a resolver backed by st. collector may be nil.
func NewResolver(st store.AuthorizationStore, cfg Config, collector *metrics.Collector) *Resolver {
	if cfg.AuthorizedTTL <= 0 {
		cfg.AuthorizedTTL = DefaultAuthorizedTTL
	}
	if cfg.UnauthorizedTTL <= 0 {
		cfg.UnauthorizedTTL = DefaultUnauthorizedTTL
	}
	return &Resolver{
		store:           st,
		cache:           cache.New[string, *gateway.Authorization](),
		authorizedTTL:   cfg.AuthorizedTTL,
		unauthorizedTTL: cfg.UnauthorizedTTL,
		metrics:         collector,
		logger:          slog.Default().With("component", "auth"),
	}
}

// WithClock replaces the cache clock. It is intended for tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.cache.WithClock(now)
	return r
}

// Resolve returns a fresh request context for credential. An unknown,
// inactive or out-of-window credential is Unauthenticated; a store failure
// is returned wrapped.
func (r *Resolver) Resolve(ctx context.Context, credential string) (*gateway.RequestContext, error) {
	if credential == "" {
		r.metrics.RecordAuthResult("unauthenticated")
		return nil, gateway.Unauthenticated("Missing API key.")
	}

	if snap, ok := r.cache.Get(credential); ok {
		r.metrics.RecordCacheHit(authCacheName)
		r.recordResult(snap)
		return gateway.NewRequestContext(snap), nil
	}
	r.metrics.RecordCacheMiss(authCacheName)

	snap, err := r.store.CheckAuthorization(ctx, credential)
	if errors.Is(err, store.ErrNotFound) {
		r.metrics.RecordAuthResult("unauthenticated")
		r.logger.DebugContext(ctx, "credential not authorized")
		return nil, gateway.Unauthenticated("Unauthorized. The API key is not valid for an active event.")
	}
	if err != nil {
		r.metrics.RecordAuthResult("error")
		return nil, fmt.Errorf("check authorization: %w", err)
	}

	ttl := r.authorizedTTL
	if snap.RateLimitExceeded {
		ttl = r.unauthorizedTTL
	}
	r.cache.Set(credential, snap, ttl)
	r.metrics.UpdateCacheSize(authCacheName, r.cache.Len())

	r.recordResult(snap)
	return gateway.NewRequestContext(snap), nil
}

// Flush drops every cached snapshot so that daily cap resets are observed
// on the next request.
func (r *Resolver) Flush() {
	r.cache.Flush()
	r.metrics.UpdateCacheSize(authCacheName, 0)
	r.logger.Info("authorization cache flushed")
}

// Sweep drops expired snapshots and returns how many were removed.
func (r *Resolver) Sweep() int {
	n := r.cache.Sweep()
	r.metrics.RecordCacheEvictions(authCacheName, n)
	r.metrics.UpdateCacheSize(authCacheName, r.cache.Len())
	return n
}

func (r *Resolver) recordResult(snap *gateway.Authorization) {
	if snap.RateLimitExceeded {
		r.metrics.RecordAuthResult("rate_limited")
		return
	}
	r.metrics.RecordAuthResult("authorized")
}
