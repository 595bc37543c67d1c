package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateAdmin(&cfg.Admin)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.BasePath == "" || cfg.BasePath[0] != '/' {
		errs = append(errs, FieldError{
			Field:   "server.base_path",
			Message: "base path must start with /",
		})
	} else if len(cfg.BasePath) > 1 && strings.HasSuffix(cfg.BasePath, "/") {
		errs = append(errs, FieldError{
			Field:   "server.base_path",
			Message: "base path must not end with /",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must not be negative",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxRequestBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_request_body_bytes",
			Message: "max request body bytes must be non-negative",
		})
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.Path == "" {
			errs = append(errs, FieldError{
				Field:   "store.path",
				Message: "store path is required for the sqlite backend",
			})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid store backend %q: must be 'sqlite' or 'memory'", cfg.Backend),
		})
	}

	if cfg.SealingKeySecret == "" {
		errs = append(errs, FieldError{
			Field:   "store.sealing_key_secret",
			Message: "sealing key secret name is required",
		})
	}

	return errs
}

func validateUsage(cfg *UsageConfig) []FieldError {
	var errs []FieldError

	if cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "usage.path",
			Message: "usage ledger path is required",
		})
	}
	if cfg.MaxOpenConns < 0 {
		errs = append(errs, FieldError{
			Field:   "usage.max_open_conns",
			Message: "max open connections must be non-negative",
		})
	}
	if cfg.RetryAttempts < 1 {
		errs = append(errs, FieldError{
			Field:   "usage.retry_attempts",
			Message: "retry attempts must be at least 1",
		})
	}
	if cfg.RetryBackoff < 0 {
		errs = append(errs, FieldError{
			Field:   "usage.retry_backoff",
			Message: "retry backoff must not be negative",
		})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "usage.retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if err := validateSchedule(cfg.Retention.PruneSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "usage.retention.prune_schedule",
			Message: err.Error(),
		})
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if cfg.AuthorizedTTL <= 0 {
		errs = append(errs, FieldError{
			Field:   "cache.authorized_ttl",
			Message: "authorized TTL must be positive",
		})
	}
	if cfg.UnauthorizedTTL <= 0 {
		errs = append(errs, FieldError{
			Field:   "cache.unauthorized_ttl",
			Message: "unauthorized TTL must be positive",
		})
	}
	if cfg.CatalogMinTTL <= 0 {
		errs = append(errs, FieldError{
			Field:   "cache.catalog_min_ttl",
			Message: "catalog minimum TTL must be positive",
		})
	}
	if cfg.CatalogMaxTTL < cfg.CatalogMinTTL {
		errs = append(errs, FieldError{
			Field:   "cache.catalog_max_ttl",
			Message: "catalog maximum TTL must not be below the minimum TTL",
		})
	}
	if err := validateSchedule(cfg.SweepSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "cache.sweep_schedule",
			Message: err.Error(),
		})
	}

	return errs
}

func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.timeout",
			Message: "upstream timeout must be positive",
		})
	}
	if cfg.Timeout > 10*time.Minute {
		errs = append(errs, FieldError{
			Field:   "upstream.timeout",
			Message: "upstream timeout exceeds reasonable limit (10m)",
		})
	}
	if cfg.MaxIdleConns < 0 || cfg.MaxIdleConnsPerHost < 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_idle_conns",
			Message: "idle connection limits must be non-negative",
		})
	}
	if cfg.MaxResponseBytes <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_response_bytes",
			Message: "max response bytes must be positive",
		})
	}

	return errs
}

func validateAdmin(cfg *AdminConfig) []FieldError {
	var errs []FieldError

	if cfg.APIKey != "" && len(cfg.APIKey) < 16 {
		errs = append(errs, FieldError{
			Field:   "admin.api_key",
			Message: "admin API key must be at least 16 characters",
		})
	}
	if cfg.FeedPath == "" || cfg.FeedPath[0] != '/' {
		errs = append(errs, FieldError{
			Field:   "admin.feed_path",
			Message: "feed path must start with /",
		})
	}
	if cfg.FeedBuffer < 1 {
		errs = append(errs, FieldError{
			Field:   "admin.feed_buffer",
			Message: "feed buffer must be at least 1",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Path == "" || cfg.Metrics.Path[0] != '/') {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with / when metrics are enabled",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if cfg.Health.Enabled {
		paths := map[string]string{
			"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
			"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
			"telemetry.health.version_path":   cfg.Health.VersionPath,
		}
		for _, field := range []string{
			"telemetry.health.liveness_path",
			"telemetry.health.readiness_path",
			"telemetry.health.version_path",
		} {
			if p := paths[field]; p == "" || p[0] != '/' {
				errs = append(errs, FieldError{
					Field:   field,
					Message: "path must start with / when health checks are enabled",
				})
			}
		}
		if cfg.Health.CheckTimeout < 0 || cfg.Health.CheckTimeout > 60*time.Second {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.check_timeout",
				Message: "check timeout must be between 0 and 60s",
			})
		}
	}

	return errs
}

func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_file",
				Message: "TLS certificate file is required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file",
				Message: "TLS key file is required when TLS is enabled",
			})
		}
	}
	if cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
		errs = append(errs, FieldError{
			Field:   "security.tls.min_version",
			Message: fmt.Sprintf("invalid TLS version %q: must be '1.2' or '1.3'", cfg.TLS.MinVersion),
		})
	}

	for i, p := range cfg.Secrets.Providers {
		field := fmt.Sprintf("security.secrets.providers[%d]", i)
		switch p.Type {
		case "env":
		case "file":
			if p.Path == "" {
				errs = append(errs, FieldError{
					Field:   field + ".path",
					Message: "path is required for the file provider",
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   field + ".type",
				Message: fmt.Sprintf("invalid secret provider type %q: must be 'env' or 'file'", p.Type),
			})
		}
	}

	return errs
}

// validateSchedule checks a cron expression the way the schedulers parse it.
func validateSchedule(expr string) error {
	if expr == "" {
		return fmt.Errorf("schedule is required")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %v", expr, err)
	}
	return nil
}
