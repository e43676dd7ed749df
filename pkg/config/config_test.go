package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("Expected default listen address %q, got %q", DefaultListenAddress, cfg.Server.ListenAddress)
	}
	if cfg.Cache.MaxEntries != DefaultCacheMaxEntries {
		t.Errorf("Expected default max entries %d, got %d", DefaultCacheMaxEntries, cfg.Cache.MaxEntries)
	}
	if !cfg.Cache.Enabled {
		t.Error("Expected cache enabled by default")
	}
	if cfg.Cache.EvictionPolicy != "adaptive" {
		t.Errorf("Expected adaptive eviction by default, got %q", cfg.Cache.EvictionPolicy)
	}
	if !cfg.Audit.Enabled {
		t.Error("Expected audit enabled by default")
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  listen_address: "0.0.0.0:9090"
cache:
  max_entries: 500
  eviction_policy: lru
  default_ttl: 10m
timeouts:
  max_concurrent: 8
  classes:
    system_command:
      timeout: 5s
      default_action: block_default
      safe_default: block
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("Expected listen address from file, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Cache.MaxEntries != 500 {
		t.Errorf("Expected max_entries 500, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.DefaultTTL != 10*time.Minute {
		t.Errorf("Expected 10m TTL, got %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Timeouts.MaxConcurrent != 8 {
		t.Errorf("Expected max_concurrent 8, got %d", cfg.Timeouts.MaxConcurrent)
	}

	// Unset fields fall back to defaults.
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("Expected default read timeout, got %v", cfg.Server.ReadTimeout)
	}

	cc, ok := cfg.Timeouts.Classes["system_command"]
	if !ok {
		t.Fatal("Expected system_command class override")
	}
	if cc.Timeout != 5*time.Second || cc.DefaultAction != "block_default" {
		t.Errorf("Unexpected class override: %+v", cc)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "bad eviction policy",
			mutate:  func(c *Config) { c.Cache.EvictionPolicy = "random" },
			wantSub: "cache.eviction_policy",
		},
		{
			name:    "bad listen address",
			mutate:  func(c *Config) { c.Server.ListenAddress = "not-an-address" },
			wantSub: "server.listen_address",
		},
		{
			name:    "bad system state",
			mutate:  func(c *Config) { c.Fallback.InitialState = "panic" },
			wantSub: "fallback.initial_state",
		},
		{
			name: "bad timeout action",
			mutate: func(c *Config) {
				c.Timeouts.Classes = map[string]TimeoutClassConfig{
					"file_read": {DefaultAction: "explode"},
				}
			},
			wantSub: "timeouts.classes.file_read.default_action",
		},
		{
			name:    "bad audit backend",
			mutate:  func(c *Config) { c.Audit.Backend = "postgres" },
			wantSub: "audit.backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Expected error mentioning %q, got %q", tt.wantSub, err.Error())
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_SERVER_LISTEN_ADDRESS", "127.0.0.1:7000")
	t.Setenv("SENTINEL_CACHE_MAX_ENTRIES", "42")
	t.Setenv("SENTINEL_CACHE_ENABLED", "false")
	t.Setenv("SENTINEL_CACHE_DEFAULT_TTL", "90s")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:7000" {
		t.Errorf("Expected env override for listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Cache.MaxEntries != 42 {
		t.Errorf("Expected env override for max entries, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.Enabled {
		t.Error("Expected env override to disable cache")
	}
	if cfg.Cache.DefaultTTL != 90*time.Second {
		t.Errorf("Expected env override for TTL, got %v", cfg.Cache.DefaultTTL)
	}
}
