package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SENTINEL_SECTION_FIELD (e.g., SENTINEL_SERVER_LISTEN_ADDRESS)
// and always take precedence over file-based configuration.
//
// If path is empty, the configuration is built entirely from defaults and
// environment variables.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Parse failures leave the existing value in place.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SENTINEL_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SENTINEL_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SENTINEL_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SENTINEL_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)

	// Cache overrides
	envBool("SENTINEL_CACHE_ENABLED", &cfg.Cache.Enabled)
	envInt("SENTINEL_CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)
	envDuration("SENTINEL_CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTL)
	envString("SENTINEL_CACHE_EVICTION_POLICY", &cfg.Cache.EvictionPolicy)
	envBool("SENTINEL_CACHE_PERSISTENCE_ENABLED", &cfg.Cache.Persistence.Enabled)
	envString("SENTINEL_CACHE_PERSISTENCE_PATH", &cfg.Cache.Persistence.Path)

	// Rules overrides
	envString("SENTINEL_RULES_FILE_PATH", &cfg.Rules.FilePath)
	envBool("SENTINEL_RULES_WATCH", &cfg.Rules.Watch)

	// Fallback overrides
	envString("SENTINEL_FALLBACK_INITIAL_STATE", &cfg.Fallback.InitialState)

	// Timeout overrides
	envInt("SENTINEL_TIMEOUTS_MAX_CONCURRENT", &cfg.Timeouts.MaxConcurrent)
	envBool("SENTINEL_TIMEOUTS_BREAKER_ENABLED", &cfg.Timeouts.Breaker.Enabled)

	// Audit overrides
	envBool("SENTINEL_AUDIT_ENABLED", &cfg.Audit.Enabled)
	envString("SENTINEL_AUDIT_BACKEND", &cfg.Audit.Backend)
	envString("SENTINEL_AUDIT_SQLITE_PATH", &cfg.Audit.SQLitePath)

	// Telemetry overrides
	envString("SENTINEL_LOG_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("SENTINEL_LOG_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("SENTINEL_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
