package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a provider has no value for a secret.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from a backend.
type Provider interface {
	// GetSecret retrieves a secret by name. A missing secret is reported
	// with an error wrapping ErrNotFound.
	GetSecret(ctx context.Context, name string) (string, error)

	// Name returns the provider name (env, file).
	Name() string
}

// Refresher is implemented by providers that can reload secrets without a
// restart.
type Refresher interface {
	Refresh(ctx context.Context) error
}
