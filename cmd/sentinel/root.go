package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel - latency-bounded security decision engine",
	Long: `Sentinel is a security decision engine that sits in front of a
tool-execution layer and answers, for every requested operation, whether
it may proceed.

Decisions flow through four phases so an answer always arrives quickly:
  - a decision cache for previously evaluated operations
  - a fast rule engine for clear-cut verdicts
  - a timeout-managed slow evaluator for genuinely ambiguous requests
  - an emergency fallback that can always decide

Every terminal decision is recorded in the audit trail.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus SENTINEL_* env when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
