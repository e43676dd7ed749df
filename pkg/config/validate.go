package config

import (
	"fmt"
	"net"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "cache.eviction_policy").
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

var (
	validEvictionPolicies = map[string]bool{
		"lru": true, "lfu": true, "ttl": true, "priority": true, "adaptive": true,
	}
	validSystemStates = map[string]bool{
		"normal": true, "degraded": true, "emergency": true, "lockdown": true,
	}
	validSeverities = map[string]bool{
		"low": true, "medium": true, "high": true, "critical": true,
	}
	validTimeoutActions = map[string]bool{
		"allow_default": true, "block_default": true, "use_cache": true,
		"use_fallback_rules": true, "defer_to_human": true, "emergency_safe_mode": true,
	}
	validAuditBackends = map[string]bool{
		"sqlite": true, "memory": true,
	}
	validLogLevels = map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	validLogFormats = map[string]bool{
		"json": true, "text": true,
	}
)

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateFallback(&cfg.Fallback)...)
	errs = append(errs, validateTimeouts(&cfg.Timeouts)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: must be host:port", cfg.ListenAddress),
		})
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.request_timeout",
			Message: "must be positive",
		})
	}
	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxEntries < 1 {
		errs = append(errs, FieldError{
			Field:   "cache.max_entries",
			Message: "must be at least 1",
		})
	}
	if !validEvictionPolicies[cfg.EvictionPolicy] {
		errs = append(errs, FieldError{
			Field:   "cache.eviction_policy",
			Message: fmt.Sprintf("unknown policy %q: must be one of lru, lfu, ttl, priority, adaptive", cfg.EvictionPolicy),
		})
	}
	if cfg.Persistence.Enabled && cfg.Persistence.Path == "" {
		errs = append(errs, FieldError{
			Field:   "cache.persistence.path",
			Message: "required when persistence is enabled",
		})
	}
	return errs
}

func validateFallback(cfg *FallbackConfig) []FieldError {
	var errs []FieldError

	if !validSystemStates[cfg.InitialState] {
		errs = append(errs, FieldError{
			Field:   "fallback.initial_state",
			Message: fmt.Sprintf("unknown state %q: must be one of normal, degraded, emergency, lockdown", cfg.InitialState),
		})
	}
	if cfg.MaxAlternatives < 0 {
		errs = append(errs, FieldError{
			Field:   "fallback.max_alternatives",
			Message: "must not be negative",
		})
	}
	return errs
}

func validateTimeouts(cfg *TimeoutsConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxConcurrent < 1 {
		errs = append(errs, FieldError{
			Field:   "timeouts.max_concurrent",
			Message: "must be at least 1",
		})
	}

	for class, cc := range cfg.Classes {
		prefix := fmt.Sprintf("timeouts.classes.%s", class)
		if cc.Severity != "" && !validSeverities[cc.Severity] {
			errs = append(errs, FieldError{
				Field:   prefix + ".severity",
				Message: fmt.Sprintf("unknown severity %q", cc.Severity),
			})
		}
		if cc.DefaultAction != "" && !validTimeoutActions[cc.DefaultAction] {
			errs = append(errs, FieldError{
				Field:   prefix + ".default_action",
				Message: fmt.Sprintf("unknown action %q", cc.DefaultAction),
			})
		}
		if cc.SafeDefault != "" && cc.SafeDefault != "allow" && cc.SafeDefault != "block" {
			errs = append(errs, FieldError{
				Field:   prefix + ".safe_default",
				Message: fmt.Sprintf("must be \"allow\" or \"block\", got %q", cc.SafeDefault),
			})
		}
		if cc.RetryCount < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".retry_count",
				Message: "must not be negative",
			})
		}
	}
	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	if !validAuditBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("unknown backend %q: must be sqlite or memory", cfg.Backend),
		})
	}
	if cfg.Enabled && cfg.Backend == "sqlite" && cfg.SQLitePath == "" {
		errs = append(errs, FieldError{
			Field:   "audit.sqlite_path",
			Message: "required when the sqlite backend is enabled",
		})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.days",
			Message: "must not be negative",
		})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q: must be one of debug, info, warn, error", cfg.Logging.Level),
		})
	}
	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q: must be json or text", cfg.Logging.Format),
		})
	}
	return errs
}
