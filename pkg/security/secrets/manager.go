package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"mercator-hq/eventgate/pkg/cache"
	"mercator-hq/eventgate/pkg/config"
)

// secretRefRegex matches ${secret:name} references.
var secretRefRegex = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets from providers in order and caches the results.
type Manager struct {
	providers []Provider
	cache     *cache.TTL[string, string]
	ttl       time.Duration
	logger    *slog.Logger
}

// NewManager creates a manager over providers. A non-positive ttl disables
// caching.
func NewManager(providers []Provider, ttl time.Duration) *Manager {
	return &Manager{
		providers: providers,
		cache:     cache.New[string, string](),
		ttl:       ttl,
		logger:    slog.Default().With("component", "secrets.manager"),
	}
}

// NewManagerFromConfig builds the providers described by cfg.
func NewManagerFromConfig(cfg config.SecretsConfig) (*Manager, error) {
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		switch pc.Type {
		case "env":
			providers = append(providers, NewEnvProvider(pc.Prefix))
		case "file":
			fp, err := NewFileProvider(pc.Path, pc.Watch)
			if err != nil {
				return nil, fmt.Errorf("file secret provider: %w", err)
			}
			providers = append(providers, fp)
		default:
			return nil, fmt.Errorf("unsupported secret provider type %q", pc.Type)
		}
	}

	ttl := cfg.Cache.TTL
	if !cfg.Cache.Enabled {
		ttl = 0
	}
	return NewManager(providers, ttl), nil
}

// GetSecret returns the first value any provider has for name.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.Get(name); ok {
		return value, nil
	}

	var lastErr error
	for _, p := range m.providers {
		value, err := p.GetSecret(ctx, name)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				m.logger.Warn("secret provider failed",
					"provider", p.Name(),
					"name", redactSecretName(name),
					"error", err,
				)
			}
			lastErr = err
			continue
		}

		m.cache.Set(name, value, m.ttl)
		m.logger.Debug("secret resolved", "provider", p.Name(), "name", redactSecretName(name))
		return value, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("%w: %q (no providers configured)", ErrNotFound, name)
}

// ResolveReferences replaces ${secret:name} references in input. References
// that cannot be resolved are kept verbatim and reported in the error.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var failures []string

	output := secretRefRegex.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRefRegex.FindStringSubmatch(match)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			return match
		}
		return value
	})

	if len(failures) > 0 {
		return output, fmt.Errorf("failed to resolve secret references: %s", strings.Join(failures, "; "))
	}
	return output, nil
}

// Refresh reloads refreshable providers and clears the cache.
func (m *Manager) Refresh(ctx context.Context) error {
	var failures []string
	for _, p := range m.providers {
		r, ok := p.(Refresher)
		if !ok {
			continue
		}
		if err := r.Refresh(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", p.Name(), err))
		}
	}
	m.cache.Flush()

	if len(failures) > 0 {
		return fmt.Errorf("failed to refresh some providers: %s", strings.Join(failures, "; "))
	}
	return nil
}

// Close releases provider resources such as file watchers.
func (m *Manager) Close() error {
	var errs []error
	for _, p := range m.providers {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// redactSecretName shortens a secret name for logs.
func redactSecretName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
