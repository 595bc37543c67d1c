package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider loads secrets from environment variables.
//
// Secret names map to uppercase variable names with hyphens replaced by
// underscores, behind an optional prefix: with prefix "EVENTGATE_SECRET_",
// "catalog-sealing-key" is read from EVENTGATE_SECRET_CATALOG_SEALING_KEY.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an environment variable secret provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret reads the variable for name.
func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	envVar := p.EnvVar(name)
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("%w: %s (env var %s)", ErrNotFound, name, envVar)
	}
	return value, nil
}

// Name returns "env".
func (p *EnvProvider) Name() string {
	return "env"
}

// EnvVar returns the environment variable consulted for name.
func (p *EnvProvider) EnvVar(name string) string {
	return p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
