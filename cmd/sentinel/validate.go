package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/rules"
)

var validateFlags struct {
	rulesFile string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and rule files",
	Long: `Validate the configuration file and, optionally, a rule file
without starting the server.

Rule files are rejected as a whole when any rule has an invalid regular
expression, a duplicate ID, or an unsupported schema version, so a
passing validation means the file will load cleanly at startup.

Examples:
  # Validate the default configuration
  sentinel validate

  # Validate a config file
  sentinel validate --config /etc/sentinel/config.yaml

  # Validate a rule file too
  sentinel validate --rules rules.yaml`,
	RunE: validateFiles,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.rulesFile, "rules", "", "rule file to validate")
}

func validateFiles(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Println("✓ Configuration valid")

	rulesFile := validateFlags.rulesFile
	if rulesFile == "" {
		rulesFile = cfg.Rules.FilePath
	}
	if rulesFile != "" {
		loaded, err := rules.LoadFile(rulesFile)
		if err != nil {
			return fmt.Errorf("rule file invalid: %w", err)
		}
		fmt.Printf("✓ Rule file valid (%d rules)\n", len(loaded))
		if verbose {
			for _, r := range loaded {
				fmt.Printf("  %-4d %-35s %-8s %s\n", r.Priority, r.ID, r.ThreatLevel, r.Action)
			}
		}
	}
	return nil
}
