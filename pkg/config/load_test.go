package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  listen_address: "0.0.0.0:9090"
  read_timeout: "45s"

store:
  backend: "sqlite"
  path: "/var/lib/eventgate/catalog.db"

cache:
  authorized_ttl: "3m"

upstream:
  timeout: "30s"
  api_versions:
    azure_openai: "2024-06-01"

telemetry:
  logging:
    level: "debug"
    format: "text"
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9090", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("expected read timeout %v, got %v", 45*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Store.Path != "/var/lib/eventgate/catalog.db" {
		t.Errorf("expected store path %q, got %q", "/var/lib/eventgate/catalog.db", cfg.Store.Path)
	}
	if cfg.Cache.AuthorizedTTL != 3*time.Minute {
		t.Errorf("expected authorized TTL %v, got %v", 3*time.Minute, cfg.Cache.AuthorizedTTL)
	}
	if cfg.Cache.UnauthorizedTTL != DefaultUnauthorizedTTL {
		t.Errorf("expected default unauthorized TTL %v, got %v", DefaultUnauthorizedTTL, cfg.Cache.UnauthorizedTTL)
	}
	if cfg.Upstream.Timeout != 30*time.Second {
		t.Errorf("expected upstream timeout %v, got %v", 30*time.Second, cfg.Upstream.Timeout)
	}
	if cfg.Upstream.APIVersions.AzureOpenAI != "2024-06-01" {
		t.Errorf("expected api version %q, got %q", "2024-06-01", cfg.Upstream.APIVersions.AzureOpenAI)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("expected explicit metrics.enabled=false to be kept")
	}
	if !cfg.Telemetry.Health.Enabled {
		t.Error("expected health checks to default to enabled")
	}
}

func TestLoadConfig_ValidTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
listen_address = "0.0.0.0:7070"
base_path = "/gateway/v2"

[cache]
catalog_min_ttl = "30s"
catalog_max_ttl = "90s"

[usage.retention]
days = 30

[telemetry.logging]
level = "warn"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7070" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:7070", cfg.Server.ListenAddress)
	}
	if cfg.Server.BasePath != "/gateway/v2" {
		t.Errorf("expected base path %q, got %q", "/gateway/v2", cfg.Server.BasePath)
	}
	if cfg.Cache.CatalogMinTTL != 30*time.Second || cfg.Cache.CatalogMaxTTL != 90*time.Second {
		t.Errorf("expected catalog TTL range 30s-90s, got %v-%v", cfg.Cache.CatalogMinTTL, cfg.Cache.CatalogMaxTTL)
	}
	if cfg.Usage.Retention.Days != 30 {
		t.Errorf("expected retention days 30, got %d", cfg.Usage.Retention.Days)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected logging level %q, got %q", "warn", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read configuration file") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", "server: [unclosed")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "failed to parse configuration file") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", "[server\nlisten_address = 1")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error for malformed TOML")
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
store:
  backend: "postgres"
telemetry:
  logging:
    level: "verbose"
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var valErr ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(valErr.Errors) != 2 {
		t.Errorf("expected 2 field errors, got %d: %v", len(valErr.Errors), valErr.Errors)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  listen_address: "127.0.0.1:8080"
`)

	t.Setenv("EVENTGATE_SERVER_LISTEN_ADDRESS", "0.0.0.0:9999")
	t.Setenv("EVENTGATE_CACHE_AUTHORIZED_TTL", "5m")
	t.Setenv("EVENTGATE_USAGE_RETENTION_DAYS", "7")
	t.Setenv("EVENTGATE_TELEMETRY_METRICS_ENABLED", "false")
	t.Setenv("EVENTGATE_TELEMETRY_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("EVENTGATE_UPSTREAM_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9999" {
		t.Errorf("expected listen address override, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Cache.AuthorizedTTL != 5*time.Minute {
		t.Errorf("expected authorized TTL override, got %v", cfg.Cache.AuthorizedTTL)
	}
	if cfg.Usage.Retention.Days != 7 {
		t.Errorf("expected retention days override, got %d", cfg.Usage.Retention.Days)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics disabled by override")
	}
	if cfg.Telemetry.Tracing.SampleRatio != 0.25 {
		t.Errorf("expected sample ratio 0.25, got %v", cfg.Telemetry.Tracing.SampleRatio)
	}
	if cfg.Upstream.Timeout != DefaultUpstreamTimeout {
		t.Errorf("expected malformed override to be ignored, got %v", cfg.Upstream.Timeout)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidAfterOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", "{}")
	t.Setenv("EVENTGATE_STORE_BACKEND", "redis")

	_, err := LoadConfigWithEnvOverrides(path)
	if err == nil {
		t.Fatal("expected validation error after override")
	}
	if !strings.Contains(err.Error(), "after environment overrides") {
		t.Errorf("unexpected error message: %v", err)
	}
}
