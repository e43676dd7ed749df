package config

import "time"

// Config is the root configuration structure for Sentinel.
// It contains all configuration sections for the admission server, the
// decision cache, the rule engines, the timeout manager, audit storage,
// and telemetry.
type Config struct {
	// Server contains HTTP admission server configuration including listen
	// address, timeouts, and connection limits.
	Server ServerConfig `yaml:"server"`

	// Cache contains configuration for the decision cache including
	// capacity, TTL, eviction policy, and persistence.
	Cache CacheConfig `yaml:"cache"`

	// Rules contains configuration for the fast rule engine including the
	// rule file location and watch mode.
	Rules RulesConfig `yaml:"rules"`

	// Fallback contains configuration for the emergency fallback engine.
	Fallback FallbackConfig `yaml:"fallback"`

	// Timeouts contains configuration for the timeout manager including
	// per-operation-class timeout settings and the concurrency ceiling.
	Timeouts TimeoutsConfig `yaml:"timeouts"`

	// Audit contains configuration for the decision audit trail including
	// backend selection and retention settings.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for observability including
	// logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP admission server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port". Default: "127.0.0.1:8787"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request on a
	// keep-alive connection. Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is how long to wait for in-flight requests during
	// graceful shutdown. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds the total handling time of a single admission
	// request, including the slow path. Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes limits the size of request headers. Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// CacheConfig contains configuration for the decision cache.
type CacheConfig struct {
	// Enabled controls whether the cache phase runs at all.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// MaxEntries is the capacity of the in-memory index. When the cache
	// is full, the configured eviction policy selects victims.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// DefaultTTL is applied to entries inserted without an explicit TTL.
	// Zero or negative means entries never expire. Default: 1h
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// EvictionPolicy selects the eviction strategy.
	// One of: "lru", "lfu", "ttl", "priority", "adaptive".
	// Default: "adaptive"
	EvictionPolicy string `yaml:"eviction_policy"`

	// WarmOnStart loads active, unexpired entries from the persistent
	// store into the in-memory index at startup. Default: true
	WarmOnStart bool `yaml:"warm_on_start"`

	// MaintenanceSchedule is a cron expression for periodic purging of
	// expired entries. Empty disables scheduled maintenance.
	// Default: "*/5 * * * *"
	MaintenanceSchedule string `yaml:"maintenance_schedule"`

	// Persistence configures the durable backing store.
	Persistence CachePersistenceConfig `yaml:"persistence"`
}

// CachePersistenceConfig configures the cache's durable backing store.
type CachePersistenceConfig struct {
	// Enabled controls whether entries are persisted. When disabled the
	// cache is memory-only. Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file path.
	// Default: "data/decisions.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections. Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// BusyTimeout is how long to wait for database locks. Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// WALMode enables write-ahead logging for better concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`
}

// RulesConfig contains configuration for the fast rule engine.
type RulesConfig struct {
	// FilePath is the YAML file holding the rule set. Empty means only
	// the built-in default rules are loaded. Default: ""
	FilePath string `yaml:"file_path"`

	// Watch enables hot reload of the rule file on change. Default: false
	Watch bool `yaml:"watch"`

	// WatchDebounce is the debounce interval for file change events.
	// Default: 200ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// FallbackConfig contains configuration for the emergency fallback engine.
type FallbackConfig struct {
	// InitialState is the system state at startup.
	// One of: "normal", "degraded", "emergency", "lockdown".
	// Default: "normal"
	InitialState string `yaml:"initial_state"`

	// MaxAlternatives caps the number of safe alternatives suggested per
	// decision. Default: 3
	MaxAlternatives int `yaml:"max_alternatives"`
}

// TimeoutsConfig contains configuration for the timeout manager.
type TimeoutsConfig struct {
	// MaxConcurrent is the ceiling on in-flight slow-path operations.
	// Requests beyond the ceiling are rejected immediately, never queued.
	// Default: 64
	MaxConcurrent int `yaml:"max_concurrent"`

	// Breaker configures the circuit breaker around the slow evaluator.
	Breaker BreakerConfig `yaml:"breaker"`

	// Classes overrides per-operation-class timeout settings. Keys are
	// operation class names (file_read, file_write, system_command,
	// network_access, privilege_operation, data_access, help_query).
	// Classes not listed here use built-in defaults.
	Classes map[string]TimeoutClassConfig `yaml:"classes"`
}

// BreakerConfig configures the circuit breaker guarding the slow evaluator.
// When the breaker is open the timeout manager skips the evaluator and
// applies the class's default action immediately.
type BreakerConfig struct {
	// Enabled turns the breaker on. Default: false
	Enabled bool `yaml:"enabled"`

	// FailureThreshold is the number of consecutive failures that trips
	// the breaker. Default: 5
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// OpenTimeout is how long the breaker stays open before probing.
	// Default: 30s
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// TimeoutClassConfig overrides the timeout settings for one operation class.
// Zero values fall back to the built-in class defaults.
type TimeoutClassConfig struct {
	// Timeout is the per-attempt deadline for the slow evaluator.
	Timeout time.Duration `yaml:"timeout"`

	// Severity is the class severity ("low", "medium", "high", "critical").
	Severity string `yaml:"severity"`

	// DefaultAction is applied when the evaluator times out.
	// One of: "allow_default", "block_default", "use_cache",
	// "use_fallback_rules", "defer_to_human", "emergency_safe_mode".
	DefaultAction string `yaml:"default_action"`

	// RetryCount is the number of retries after the first timeout.
	RetryCount int `yaml:"retry_count"`

	// RetryDelay is the base delay before the first retry; subsequent
	// retries back off exponentially.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// EscalationThreshold is the number of exhausted retries that forces
	// human escalation.
	EscalationThreshold int `yaml:"escalation_threshold"`

	// SafeDefault is the decision applied by allow_default/block_default
	// ("allow" or "block").
	SafeDefault string `yaml:"safe_default"`

	// MonitoringRequired marks decisions made under this class as
	// requiring execution monitoring.
	MonitoringRequired bool `yaml:"monitoring_required"`
}

// AuditConfig contains configuration for the decision audit trail.
type AuditConfig struct {
	// Enabled controls whether terminal decisions are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the audit store ("sqlite" or "memory").
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the audit database file path.
	// Default: "data/audit.db"
	SQLitePath string `yaml:"sqlite_path"`

	// AsyncBuffer is the size of the asynchronous write buffer. Records
	// are dropped (and counted) rather than blocking admission when the
	// buffer is full. Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// Retention configures pruning of old audit records.
	Retention AuditRetentionConfig `yaml:"retention"`
}

// AuditRetentionConfig configures audit record pruning.
type AuditRetentionConfig struct {
	// Days is the retention period; records older than this are pruned.
	// Zero disables age-based pruning. Default: 90
	Days int `yaml:"days"`

	// MaxRecords caps the total record count; oldest records beyond the
	// cap are pruned. Zero disables count-based pruning. Default: 0
	MaxRecords int `yaml:"max_records"`

	// Schedule is a cron expression for pruning runs.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json" or "text"). Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records. Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the Prometheus metric namespace. Default: "sentinel"
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem. Default: ""
	Subsystem string `yaml:"subsystem"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}
