package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/sentinel/internal/evaluator"
	"mercator-hq/sentinel/pkg/cache"
	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/decision"
	"mercator-hq/sentinel/pkg/fallback"
	"mercator-hq/sentinel/pkg/pipeline"
	"mercator-hq/sentinel/pkg/rules"
	"mercator-hq/sentinel/pkg/telemetry/logging"
	"mercator-hq/sentinel/pkg/timeout"
)

var checkFlags struct {
	params    []string
	sessionID string
	format    string
}

var checkCmd = &cobra.Command{
	Use:   "check <operation>",
	Short: "Evaluate one operation locally",
	Long: `Evaluate a single operation through the decision pipeline without
starting a server. Useful for testing rule files and inspecting how an
operation would be decided.

Examples:
  # Check a command
  sentinel check "rm -rf /tmp/build"

  # Attach parameters
  sentinel check "file_write" --param path=/etc/passwd --param force=true

  # Use a custom rule file
  sentinel check "sudo reboot" --config /etc/sentinel/config.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: checkOperation,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringArrayVar(&checkFlags.params, "param", nil, "operation parameter as key=value (repeatable)")
	checkCmd.Flags().StringVar(&checkFlags.sessionID, "session", "cli", "session identifier")
	checkCmd.Flags().StringVar(&checkFlags.format, "format", "text", "output format: text or json")
}

func checkOperation(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !verbose {
		cfg.Telemetry.Logging.Level = "error"
	}
	logger := logging.Setup(&cfg.Telemetry.Logging)

	params := make(map[string]any, len(checkFlags.params))
	for _, p := range checkFlags.params {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("invalid parameter %q, expected key=value", p)
		}
		params[k] = v
	}

	dc := cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		DefaultTTL: cfg.Cache.DefaultTTL,
		Logger:     logger,
	})
	defer dc.Close()

	ruleSet := rules.DefaultRules()
	if cfg.Rules.FilePath != "" {
		ruleSet, err = rules.LoadFile(cfg.Rules.FilePath)
		if err != nil {
			return fmt.Errorf("failed to load rule file: %w", err)
		}
	}
	ruleEngine := rules.NewEngine(ruleSet, logger)
	fb := fallback.NewEngineFromConfig(&cfg.Fallback, fallback.DefaultEmergencyRules(), logger)
	tm, err := timeout.NewManager(&cfg.Timeouts, timeout.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create timeout manager: %w", err)
	}

	p, err := pipeline.New(dc, ruleEngine, fb, tm, evaluator.NewMock(0, logger), pipeline.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d := p.EvaluateSync(ctx, pipeline.Request{
		Operation:  args[0],
		Parameters: params,
		SessionID:  checkFlags.sessionID,
	})

	switch checkFlags.format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	default:
		printDecision(d)
	}
	return nil
}

func printDecision(d *decision.Decision) {
	fmt.Printf("Verdict:     %s\n", d.Verdict)
	fmt.Printf("Confidence:  %s\n", d.Confidence)
	if d.ThreatLevel != "" {
		fmt.Printf("Threat:      %s\n", d.ThreatLevel)
	}
	fmt.Printf("Source:      %s\n", d.Source)
	fmt.Printf("Reasoning:   %s\n", d.Reasoning)
	if len(d.MatchedRules) > 0 {
		fmt.Printf("Rules:       %s\n", strings.Join(d.MatchedRules, ", "))
	}
	if len(d.Restrictions) > 0 {
		fmt.Printf("Restrictions: %s\n", strings.Join(d.Restrictions, ", "))
	}
	if len(d.Alternatives) > 0 {
		fmt.Println("Alternatives:")
		for _, a := range d.Alternatives {
			fmt.Printf("  - %s\n", a)
		}
	}
	if d.Escalated {
		fmt.Println("Escalated:   yes")
	}
	fmt.Printf("Time:        %s\n", d.ProcessingTime)
}
