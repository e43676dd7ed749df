package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/sentinel/internal/evaluator"
	"mercator-hq/sentinel/pkg/audit"
	"mercator-hq/sentinel/pkg/cache"
	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/decision"
	"mercator-hq/sentinel/pkg/fallback"
	"mercator-hq/sentinel/pkg/pipeline"
	"mercator-hq/sentinel/pkg/rules"
	"mercator-hq/sentinel/pkg/server"
	"mercator-hq/sentinel/pkg/telemetry/logging"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
	"mercator-hq/sentinel/pkg/timeout"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	mockLatency   time.Duration
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Sentinel admission server",
	Long: `Start the Sentinel admission server with the specified configuration.

The server evaluates operations submitted to POST /v1/evaluate through
the decision pipeline and records every terminal decision in the audit
trail.

Examples:
  # Start with built-in defaults
  sentinel run

  # Start with custom config
  sentinel run --config /etc/sentinel/config.yaml

  # Override listen address
  sentinel run --listen 0.0.0.0:8787

  # Validate config without starting the server
  sentinel run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().DurationVar(&runFlags.mockLatency, "mock-latency", 100*time.Millisecond, "artificial latency of the built-in mock evaluator")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger := logging.Setup(&cfg.Telemetry.Logging)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	var collector *metrics.Collector
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		metricsHandler = collector.Handler()
	}

	// Decision cache. Disabled means no cache phase at all: no lookup,
	// no write-back, no warm-up, no maintenance.
	var dc *cache.DecisionCache
	if cfg.Cache.Enabled {
		c, err := cache.NewFromConfig(&cfg.Cache, collector.Cache())
		if err != nil {
			return fmt.Errorf("failed to create decision cache: %w", err)
		}
		dc = c
		defer dc.Close()
		if cfg.Cache.WarmOnStart && cfg.Cache.Persistence.Enabled {
			n, err := dc.Warm(ctx)
			if err != nil {
				logger.Warn("cache warm-up failed", "error", err)
			} else {
				fmt.Printf("✓ Cache warmed (%d entries)\n", n)
			}
		}
		if cfg.Cache.MaintenanceSchedule != "" {
			maint := cache.NewMaintainer(dc, cfg.Cache.MaintenanceSchedule)
			if err := maint.Start(ctx); err != nil {
				logger.Warn("failed to start cache maintenance", "error", err)
			} else {
				defer maint.Stop()
			}
		}
	} else {
		logger.Info("decision cache disabled; every request takes the rule or slow path")
	}

	// Rule engine
	ruleEngine := rules.NewEngine(rules.DefaultRules(), logging.Component("rules"))
	if cfg.Rules.FilePath != "" {
		if cfg.Rules.Watch {
			watcher, err := rules.NewWatcher(cfg.Rules.FilePath, ruleEngine, cfg.Rules.WatchDebounce, logging.Component("rules"))
			if err != nil {
				return fmt.Errorf("failed to create rule watcher: %w", err)
			}
			go func() {
				if err := watcher.Start(ctx); err != nil {
					logger.Error("rule watcher stopped", "error", err)
				}
			}()
		} else {
			loaded, err := rules.LoadFile(cfg.Rules.FilePath)
			if err != nil {
				return fmt.Errorf("failed to load rule file: %w", err)
			}
			ruleEngine.Replace(loaded)
		}
	}
	fmt.Printf("✓ Rule engine loaded (%d rules)\n", ruleEngine.Len())

	// Emergency fallback
	fb := fallback.NewEngineFromConfig(&cfg.Fallback, fallback.DefaultEmergencyRules(), logging.Component("fallback"))

	// Timeout manager, with use_cache actions served from the decision
	// cache when one is configured
	var cacheLookup timeout.CacheLookup
	if dc != nil {
		cacheLookup = func(ctx context.Context, operation string, parameters map[string]any, sessionID string) (*decision.Decision, bool) {
			entry, ok := dc.Get(ctx, cache.GenerateKey(operation, parameters, nil, nil, ""))
			if !ok {
				return nil, false
			}
			return entry.Decision(), true
		}
	}
	tm, err := timeout.NewManager(&cfg.Timeouts, timeout.Options{
		CacheLookup: cacheLookup,
		Metrics:     collector.Timeout(),
		Logger:      logging.Component("timeout"),
	})
	if err != nil {
		return fmt.Errorf("failed to create timeout manager: %w", err)
	}

	// Slow-path evaluator. The built-in mock stands in for a real
	// reasoning backend.
	ev := evaluator.NewMock(runFlags.mockLatency, logger)

	p, err := pipeline.New(dc, ruleEngine, fb, tm, ev, pipeline.Options{
		Metrics: collector.Decision(),
		Logger:  logging.Component("pipeline"),
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// Audit trail
	var recorder *audit.Recorder
	if cfg.Audit.Enabled {
		var store audit.Store
		switch cfg.Audit.Backend {
		case "sqlite":
			store, err = audit.NewSQLiteStore(cfg.Audit.SQLitePath)
			if err != nil {
				return fmt.Errorf("failed to open audit store: %w", err)
			}
		case "memory":
			store = audit.NewMemoryStore()
		default:
			return fmt.Errorf("unsupported audit backend: %s", cfg.Audit.Backend)
		}
		defer store.Close()

		recorder = audit.NewRecorder(store, &cfg.Audit, logging.Component("audit"))
		defer recorder.Close()

		pruner := audit.NewPruner(store, cfg.Audit.Retention, logging.Component("audit"))
		if err := pruner.Start(); err != nil {
			logger.Warn("failed to start audit retention scheduler", "error", err)
		} else {
			defer pruner.Stop()
		}
		fmt.Printf("✓ Audit trail initialized (%s)\n", cfg.Audit.Backend)
	}

	srv, err := server.New(&cfg.Server, p, server.Options{
		Recorder:       recorder,
		MetricsHandler: metricsHandler,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Admission endpoint: http://%s/v1/evaluate\n", cfg.Server.ListenAddress)
	if metricsHandler != nil {
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until a signal, context cancellation, or listener
	// failure, and performs graceful shutdown itself.
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Sentinel v%s\n", Version)
	if cfgFile != "" {
		fmt.Printf("Loading configuration from: %s\n", cfgFile)
	} else {
		fmt.Println("Using built-in defaults with SENTINEL_* environment overrides")
	}
	fmt.Println("✓ Configuration loaded")
}
