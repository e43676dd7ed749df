package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8787"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Cache defaults
	DefaultCacheEnabled             = true
	DefaultCacheMaxEntries          = 10000
	DefaultCacheTTL                 = time.Hour
	DefaultCacheEvictionPolicy      = "adaptive"
	DefaultCacheWarmOnStart         = true
	DefaultCacheMaintenanceSchedule = "*/5 * * * *"

	// Cache persistence defaults
	DefaultCachePersistenceEnabled = true
	DefaultCachePersistencePath    = "data/decisions.db"
	DefaultCacheMaxOpenConns       = 10
	DefaultCacheMaxIdleConns       = 5
	DefaultCacheBusyTimeout        = 5 * time.Second
	DefaultCacheWALMode            = true

	// Rules defaults
	DefaultRulesWatch         = false
	DefaultRulesWatchDebounce = 200 * time.Millisecond

	// Fallback defaults
	DefaultFallbackInitialState    = "normal"
	DefaultFallbackMaxAlternatives = 3

	// Timeout defaults
	DefaultMaxConcurrent           = 64
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerOpenTimeout      = 30 * time.Second

	// Audit defaults
	DefaultAuditEnabled           = true
	DefaultAuditBackend           = "sqlite"
	DefaultAuditSQLitePath        = "data/audit.db"
	DefaultAuditAsyncBuffer       = 1000
	DefaultAuditRetentionDays     = 90
	DefaultAuditRetentionSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsEnabled   = true
	DefaultMetricsNamespace = "sentinel"
	DefaultMetricsPath      = "/metrics"
)

// ApplyDefaults fills in default values for all unset configuration fields.
// It modifies the configuration in place.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyCacheDefaults(&cfg.Cache)
	applyRulesDefaults(&cfg.Rules)
	applyFallbackDefaults(&cfg.Fallback)
	applyTimeoutsDefaults(&cfg.Timeouts)
	applyAuditDefaults(&cfg.Audit)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultCacheTTL
	}
	if cfg.EvictionPolicy == "" {
		cfg.EvictionPolicy = DefaultCacheEvictionPolicy
	}
	if cfg.MaintenanceSchedule == "" {
		cfg.MaintenanceSchedule = DefaultCacheMaintenanceSchedule
	}
	if cfg.Persistence.Path == "" {
		cfg.Persistence.Path = DefaultCachePersistencePath
	}
	if cfg.Persistence.MaxOpenConns == 0 {
		cfg.Persistence.MaxOpenConns = DefaultCacheMaxOpenConns
	}
	if cfg.Persistence.MaxIdleConns == 0 {
		cfg.Persistence.MaxIdleConns = DefaultCacheMaxIdleConns
	}
	if cfg.Persistence.BusyTimeout == 0 {
		cfg.Persistence.BusyTimeout = DefaultCacheBusyTimeout
	}
}

func applyRulesDefaults(cfg *RulesConfig) {
	if cfg.WatchDebounce == 0 {
		cfg.WatchDebounce = DefaultRulesWatchDebounce
	}
}

func applyFallbackDefaults(cfg *FallbackConfig) {
	if cfg.InitialState == "" {
		cfg.InitialState = DefaultFallbackInitialState
	}
	if cfg.MaxAlternatives == 0 {
		cfg.MaxAlternatives = DefaultFallbackMaxAlternatives
	}
}

func applyTimeoutsDefaults(cfg *TimeoutsConfig) {
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = DefaultBreakerFailureThreshold
	}
	if cfg.Breaker.OpenTimeout == 0 {
		cfg.Breaker.OpenTimeout = DefaultBreakerOpenTimeout
	}
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultAuditBackend
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = DefaultAuditSQLitePath
	}
	if cfg.AsyncBuffer == 0 {
		cfg.AsyncBuffer = DefaultAuditAsyncBuffer
	}
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = DefaultAuditRetentionDays
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultAuditRetentionSchedule
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// NewDefaultConfig returns a configuration populated entirely from defaults.
// Boolean fields that default to true are set explicitly here because
// ApplyDefaults cannot distinguish "unset" from "false" for booleans.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Cache.Enabled = DefaultCacheEnabled
	cfg.Cache.WarmOnStart = DefaultCacheWarmOnStart
	cfg.Cache.Persistence.Enabled = DefaultCachePersistenceEnabled
	cfg.Cache.Persistence.WALMode = DefaultCacheWALMode
	cfg.Audit.Enabled = DefaultAuditEnabled
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	ApplyDefaults(cfg)
	return cfg
}
