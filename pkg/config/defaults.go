package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress       = "127.0.0.1:8080"
	DefaultBasePath            = "/api/v1"
	DefaultReadTimeout         = 30 * time.Second
	DefaultIdleTimeout         = 120 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultMaxHeaderBytes      = 1048576         // 1MB
	DefaultMaxRequestBodyBytes = int64(32 << 20) // 32MB

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600 // 1 hour

	// Store defaults
	DefaultStoreBackend          = "sqlite"
	DefaultStorePath             = "data/catalog.db"
	DefaultStoreBusyTimeout      = 5 * time.Second
	DefaultStoreSealingKeySecret = "catalog-sealing-key"

	// Usage defaults
	DefaultUsagePath              = "data/usage.db"
	DefaultUsageMaxOpenConns      = 10
	DefaultUsageMaxIdleConns      = 5
	DefaultUsageWALMode           = true
	DefaultUsageBusyTimeout       = 5 * time.Second
	DefaultUsageRetryAttempts     = 3
	DefaultUsageRetryBackoff      = 200 * time.Millisecond
	DefaultUsageRetentionDays     = 90
	DefaultUsageRetentionSchedule = "0 3 * * *"

	// Cache defaults
	DefaultAuthorizedTTL   = 2 * time.Minute
	DefaultUnauthorizedTTL = 30 * time.Second
	DefaultCatalogMinTTL   = 60 * time.Second
	DefaultCatalogMaxTTL   = 120 * time.Second
	DefaultSweepSchedule   = "@every 1m"

	// Upstream defaults
	DefaultUpstreamTimeout          = 60 * time.Second
	DefaultUpstreamMaxIdleConns     = 100
	DefaultUpstreamMaxIdlePerHost   = 20
	DefaultUpstreamIdleConnTimeout  = 90 * time.Second
	DefaultUpstreamMaxResponseBytes = int64(16 << 20) // 16MB
	DefaultAzureOpenAIAPIVersion    = "2024-02-01"
	DefaultInferenceAPIVersion      = "2024-05-01-preview"
	DefaultAssistantsAPIVersion     = "2024-05-01-preview"

	// Admin defaults
	DefaultAdminFeedPath   = "/admin/usage/stream"
	DefaultAdminFeedBuffer = 64

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultLoggingRedact       = true
	DefaultMetricsEnabled      = true
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "eventgate"
	DefaultMetricsSubsystem    = "gateway"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingServiceName  = "eventgate"
	DefaultOTLPTimeout         = 10 * time.Second
	DefaultHealthEnabled       = true
	DefaultLivenessPath        = "/health"
	DefaultReadinessPath       = "/ready"
	DefaultVersionPath         = "/version"
	DefaultHealthCheckTimeout  = 5 * time.Second

	// Security defaults
	DefaultTLSMinVersion      = "1.2"
	DefaultSecretsEnvPrefix   = "EVENTGATE_SECRET_"
	DefaultSecretsCacheTTL    = 5 * time.Minute
	DefaultSecretsCacheSize   = 100
	DefaultSecretsCacheEnable = true
)

// DefaultRequestDurationBuckets are the default request duration buckets (seconds).
var DefaultRequestDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// DefaultTokenCountBuckets are the default token count buckets.
var DefaultTokenCountBuckets = []float64{10, 100, 500, 1000, 4000, 16000, 64000}

// applyBoolDefaults sets fields whose default is true. It runs before the
// file is decoded so that an explicit false in the file wins.
func applyBoolDefaults(cfg *Config) {
	cfg.Server.CORS.Enabled = DefaultCORSEnabled
	cfg.Usage.WALMode = DefaultUsageWALMode
	cfg.Telemetry.Logging.RedactSecrets = DefaultLoggingRedact
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Health.Enabled = DefaultHealthEnabled
	cfg.Security.Secrets.Cache.Enabled = DefaultSecretsCacheEnable
}

// NewDefault returns a configuration with every default applied.
func NewDefault() *Config {
	cfg := &Config{}
	applyBoolDefaults(cfg)
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.BasePath == "" {
		cfg.Server.BasePath = DefaultBasePath
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxRequestBodyBytes == 0 {
		cfg.Server.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}
	applyCORSDefaults(&cfg.Server.CORS)

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.BusyTimeout == 0 {
		cfg.Store.BusyTimeout = DefaultStoreBusyTimeout
	}
	if cfg.Store.SealingKeySecret == "" {
		cfg.Store.SealingKeySecret = DefaultStoreSealingKeySecret
	}

	// Usage defaults
	if cfg.Usage.Path == "" {
		cfg.Usage.Path = DefaultUsagePath
	}
	if cfg.Usage.MaxOpenConns == 0 {
		cfg.Usage.MaxOpenConns = DefaultUsageMaxOpenConns
	}
	if cfg.Usage.MaxIdleConns == 0 {
		cfg.Usage.MaxIdleConns = DefaultUsageMaxIdleConns
	}
	if cfg.Usage.BusyTimeout == 0 {
		cfg.Usage.BusyTimeout = DefaultUsageBusyTimeout
	}
	if cfg.Usage.RetryAttempts == 0 {
		cfg.Usage.RetryAttempts = DefaultUsageRetryAttempts
	}
	if cfg.Usage.RetryBackoff == 0 {
		cfg.Usage.RetryBackoff = DefaultUsageRetryBackoff
	}
	if cfg.Usage.Retention.Days == 0 {
		cfg.Usage.Retention.Days = DefaultUsageRetentionDays
	}
	if cfg.Usage.Retention.PruneSchedule == "" {
		cfg.Usage.Retention.PruneSchedule = DefaultUsageRetentionSchedule
	}

	// Cache defaults
	if cfg.Cache.AuthorizedTTL == 0 {
		cfg.Cache.AuthorizedTTL = DefaultAuthorizedTTL
	}
	if cfg.Cache.UnauthorizedTTL == 0 {
		cfg.Cache.UnauthorizedTTL = DefaultUnauthorizedTTL
	}
	if cfg.Cache.CatalogMinTTL == 0 {
		cfg.Cache.CatalogMinTTL = DefaultCatalogMinTTL
	}
	if cfg.Cache.CatalogMaxTTL == 0 {
		cfg.Cache.CatalogMaxTTL = DefaultCatalogMaxTTL
	}
	if cfg.Cache.SweepSchedule == "" {
		cfg.Cache.SweepSchedule = DefaultSweepSchedule
	}

	// Upstream defaults
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if cfg.Upstream.MaxIdleConns == 0 {
		cfg.Upstream.MaxIdleConns = DefaultUpstreamMaxIdleConns
	}
	if cfg.Upstream.MaxIdleConnsPerHost == 0 {
		cfg.Upstream.MaxIdleConnsPerHost = DefaultUpstreamMaxIdlePerHost
	}
	if cfg.Upstream.IdleConnTimeout == 0 {
		cfg.Upstream.IdleConnTimeout = DefaultUpstreamIdleConnTimeout
	}
	if cfg.Upstream.MaxResponseBytes == 0 {
		cfg.Upstream.MaxResponseBytes = DefaultUpstreamMaxResponseBytes
	}
	if cfg.Upstream.APIVersions.AzureOpenAI == "" {
		cfg.Upstream.APIVersions.AzureOpenAI = DefaultAzureOpenAIAPIVersion
	}
	if cfg.Upstream.APIVersions.Inference == "" {
		cfg.Upstream.APIVersions.Inference = DefaultInferenceAPIVersion
	}
	if cfg.Upstream.APIVersions.Assistants == "" {
		cfg.Upstream.APIVersions.Assistants = DefaultAssistantsAPIVersion
	}

	// Admin defaults
	if cfg.Admin.FeedPath == "" {
		cfg.Admin.FeedPath = DefaultAdminFeedPath
	}
	if cfg.Admin.FeedBuffer == 0 {
		cfg.Admin.FeedBuffer = DefaultAdminFeedBuffer
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = DefaultRequestDurationBuckets
	}
	if len(cfg.Telemetry.Metrics.TokenCountBuckets) == 0 {
		cfg.Telemetry.Metrics.TokenCountBuckets = DefaultTokenCountBuckets
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.OTLP.Timeout == 0 {
		cfg.Telemetry.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Telemetry.Health.VersionPath == "" {
		cfg.Telemetry.Health.VersionPath = DefaultVersionPath
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthCheckTimeout
	}

	// Security defaults
	if cfg.Security.TLS.MinVersion == "" {
		cfg.Security.TLS.MinVersion = DefaultTLSMinVersion
	}
	if len(cfg.Security.Secrets.Providers) == 0 {
		cfg.Security.Secrets.Providers = []SecretProviderConfig{
			{Type: "env", Prefix: DefaultSecretsEnvPrefix},
		}
	}
	if cfg.Security.Secrets.Cache.TTL == 0 {
		cfg.Security.Secrets.Cache.TTL = DefaultSecretsCacheTTL
	}
	if cfg.Security.Secrets.Cache.MaxSize == 0 {
		cfg.Security.Secrets.Cache.MaxSize = DefaultSecretsCacheSize
	}
}

// applyCORSDefaults applies default values to CORS configuration.
func applyCORSDefaults(cors *CORSConfig) {
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{
			"Authorization", "Content-Type", "X-Request-ID",
			"api-key", "openai-event-code", "x-ms-client-principal",
		}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}
