package config

import "time"

// Config is the root configuration structure for the event gateway.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// route prefix, timeouts, and CORS.
	Server ServerConfig `yaml:"server"`

	// Store contains configuration for the event catalog store.
	Store StoreConfig `yaml:"store"`

	// Usage contains configuration for the usage ledger and its retention.
	Usage UsageConfig `yaml:"usage"`

	// Cache contains TTLs for authorization and catalog caches.
	Cache CacheConfig `yaml:"cache"`

	// Upstream contains configuration for calls to upstream deployments.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Admin contains configuration for operator-only endpoints.
	Admin AdminConfig `yaml:"admin"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing, and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains TLS and secret management configuration.
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// BasePath is the versioned prefix every gateway route is mounted under.
	// Default: "/api/v1"
	BasePath string `yaml:"base_path"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streamed completions can run for minutes, so zero (no
	// timeout) is the default.
	// Default: 0
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxRequestBodyBytes limits the size of request bodies read by the
	// dialect adapters.
	// Default: 33554432 (32MB)
	MaxRequestBodyBytes int64 `yaml:"max_request_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "DELETE", "HEAD", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers that are exposed to the client.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials are allowed in CORS
	// requests.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}

// StoreConfig contains configuration for the event catalog store.
type StoreConfig struct {
	// Backend selects the store implementation.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	// Default: "data/catalog.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// SealingKeySecret is the name of the secret holding the base64 key
	// that seals deployment endpoint keys at rest.
	// Default: "catalog-sealing-key"
	SealingKeySecret string `yaml:"sealing_key_secret"`
}

// UsageConfig contains configuration for the usage ledger.
type UsageConfig struct {
	// Path is the SQLite database file for usage records.
	// Default: "data/usage.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables SQLite write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// RetryAttempts is how many times an append is attempted when the
	// database reports a transient busy or locked condition.
	// Default: 3
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBackoff is the fixed wait between append attempts.
	// Default: 200ms
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Retention contains usage record retention configuration.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig contains usage record retention configuration.
type RetentionConfig struct {
	// Days is how long usage records are kept. Zero keeps records forever.
	// Default: 90
	Days int `yaml:"days"`

	// PruneSchedule is the cron expression for pruning old records.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// CacheConfig contains TTLs for the in-process caches.
type CacheConfig struct {
	// AuthorizedTTL is how long an authorized lookup is cached.
	// Default: 2m
	AuthorizedTTL time.Duration `yaml:"authorized_ttl"`

	// UnauthorizedTTL is how long a rate-limited lookup is cached.
	// Default: 30s
	UnauthorizedTTL time.Duration `yaml:"unauthorized_ttl"`

	// CatalogMinTTL is the lower bound of the randomized catalog TTL.
	// Default: 60s
	CatalogMinTTL time.Duration `yaml:"catalog_min_ttl"`

	// CatalogMaxTTL is the upper bound of the randomized catalog TTL.
	// Default: 120s
	CatalogMaxTTL time.Duration `yaml:"catalog_max_ttl"`

	// SweepSchedule is the cron expression for dropping expired entries.
	// Default: "@every 1m"
	SweepSchedule string `yaml:"sweep_schedule"`
}

// UpstreamConfig contains configuration for calls to upstream deployments.
type UpstreamConfig struct {
	// Timeout bounds every upstream call. For streamed calls it bounds the
	// wait for response headers.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// MaxIdleConns is the pooled client's idle connection limit.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost is the pooled client's per-host idle limit.
	// Default: 20
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout is how long idle connections are kept.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`

	// MaxResponseBytes limits buffered upstream response bodies.
	// Default: 16777216 (16MB)
	MaxResponseBytes int64 `yaml:"max_response_bytes"`

	// APIVersions holds the api-version values appended to upstream calls
	// when the caller did not supply one.
	APIVersions APIVersionsConfig `yaml:"api_versions"`
}

// APIVersionsConfig holds default upstream API versions per dialect.
type APIVersionsConfig struct {
	// AzureOpenAI is used by the Azure OpenAI and Ollama dialects.
	// Default: "2024-02-01"
	AzureOpenAI string `yaml:"azure_openai"`

	// Inference is used by the Azure AI inference dialect.
	// Default: "2024-05-01-preview"
	Inference string `yaml:"inference"`

	// Assistants is used by the assistants dialect.
	// Default: "2024-05-01-preview"
	Assistants string `yaml:"assistants"`
}

// AdminConfig contains configuration for operator-only endpoints.
type AdminConfig struct {
	// APIKey guards the admin endpoints. When empty they are not mounted.
	APIKey string `yaml:"api_key"`

	// FeedPath is the path of the live usage WebSocket feed.
	// Default: "/admin/usage/stream"
	FeedPath string `yaml:"feed_path"`

	// FeedBuffer is the per-client message buffer of the live feed.
	// Default: 64
	FeedBuffer int `yaml:"feed_buffer"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks credentials in log attributes.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "eventgate"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "gateway"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`

	// TokenCountBuckets defines histogram buckets for token counts.
	// Default: [10, 100, 500, 1000, 4000, 16000, 64000]
	TokenCountBuckets []float64 `yaml:"token_count_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "eventgate"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath is the path for the version information endpoint.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// TLS contains TLS configuration for the server.
	TLS TLSConfig `yaml:"tls"`

	// Secrets contains secret management configuration.
	Secrets SecretsConfig `yaml:"secrets"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	// Enabled controls whether TLS is enabled.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the TLS certificate file.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the TLS private key file.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the minimum TLS version to accept.
	// Options: "1.2", "1.3"
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`
}

// SecretsConfig contains secret management configuration.
type SecretsConfig struct {
	// Providers is a list of secret providers, tried in order.
	// Default: a single env provider with prefix "EVENTGATE_SECRET_"
	Providers []SecretProviderConfig `yaml:"providers"`

	// Cache contains secret caching configuration.
	Cache SecretsCacheConfig `yaml:"cache"`
}

// SecretProviderConfig contains configuration for a secret provider.
type SecretProviderConfig struct {
	// Type is the provider type.
	// Options: "env", "file"
	Type string `yaml:"type"`

	// Prefix is the environment variable prefix (for "env" provider).
	Prefix string `yaml:"prefix,omitempty"`

	// Path is the directory of secret files (for "file" provider).
	Path string `yaml:"path,omitempty"`

	// Watch enables reloading on file changes (for "file" provider).
	Watch bool `yaml:"watch,omitempty"`
}

// SecretsCacheConfig contains configuration for secret caching.
type SecretsCacheConfig struct {
	// Enabled controls whether secret caching is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// TTL is the time-to-live for cached secrets.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// MaxSize is the maximum number of secrets to cache.
	// Default: 100
	MaxSize int `yaml:"max_size"`
}
