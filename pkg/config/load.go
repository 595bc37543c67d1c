package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "EVENTGATE_"

// LoadConfig loads configuration from a YAML or TOML file at the specified
// path. It applies default values, validates the configuration, and returns
// any errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes configuration data and applies defaults. The extension
// selects the format: ".toml" for TOML, anything else for YAML.
func Parse(data []byte, ext string) (*Config, error) {
	if strings.EqualFold(ext, ".toml") {
		normalized, err := tomlToYAML(data)
		if err != nil {
			return nil, err
		}
		data = normalized
	}

	var cfg Config
	applyBoolDefaults(&cfg)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// tomlToYAML re-encodes a TOML document as YAML so both formats share the
// yaml struct tags and duration parsing.
func tomlToYAML(data []byte) ([]byte, error) {
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("invalid TOML: %w", err)
	}
	out, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize TOML: %w", err)
	}
	return out, nil
}

// LoadConfigWithEnvOverrides loads configuration from a file and applies
// environment variable overrides. Environment variables follow the naming
// convention EVENTGATE_SECTION_FIELD (e.g., EVENTGATE_SERVER_LISTEN_ADDRESS).
//
// The loading sequence is:
// 1. Load the file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envString("SERVER_BASE_PATH", &cfg.Server.BasePath)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Store overrides
	envString("STORE_BACKEND", &cfg.Store.Backend)
	envString("STORE_PATH", &cfg.Store.Path)
	envString("STORE_SEALING_KEY_SECRET", &cfg.Store.SealingKeySecret)

	// Usage overrides
	envString("USAGE_PATH", &cfg.Usage.Path)
	envInt("USAGE_RETENTION_DAYS", &cfg.Usage.Retention.Days)
	envString("USAGE_RETENTION_PRUNE_SCHEDULE", &cfg.Usage.Retention.PruneSchedule)

	// Cache overrides
	envDuration("CACHE_AUTHORIZED_TTL", &cfg.Cache.AuthorizedTTL)
	envDuration("CACHE_UNAUTHORIZED_TTL", &cfg.Cache.UnauthorizedTTL)
	envDuration("CACHE_CATALOG_MIN_TTL", &cfg.Cache.CatalogMinTTL)
	envDuration("CACHE_CATALOG_MAX_TTL", &cfg.Cache.CatalogMaxTTL)

	// Upstream overrides
	envDuration("UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout)
	envString("UPSTREAM_API_VERSIONS_AZURE_OPENAI", &cfg.Upstream.APIVersions.AzureOpenAI)
	envString("UPSTREAM_API_VERSIONS_INFERENCE", &cfg.Upstream.APIVersions.Inference)
	envString("UPSTREAM_API_VERSIONS_ASSISTANTS", &cfg.Upstream.APIVersions.Assistants)

	// Admin overrides
	envString("ADMIN_API_KEY", &cfg.Admin.APIKey)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}

	// Security overrides
	envBool("SECURITY_TLS_ENABLED", &cfg.Security.TLS.Enabled)
	envString("SECURITY_TLS_CERT_FILE", &cfg.Security.TLS.CertFile)
	envString("SECURITY_TLS_KEY_FILE", &cfg.Security.TLS.KeyFile)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}
