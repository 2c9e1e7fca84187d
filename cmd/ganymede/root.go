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
	Use:   "ganymede",
	Short: "Ganymede - runtime control policy engine for autonomous traffic algorithms",
	Long: `Ganymede is a governance layer for autopilot traffic algorithms. Every
action an algorithm proposes passes through the policy engine, which
decides allow, block, or warn based on declarative guardrail policies.

It provides:
  - Gates, guards, limits, and mutations as policy primitives
  - Monitor and enforce modes with staged percentage rollout
  - Rate limiting and daily risk budgets with deterministic accounting
  - A complete audit trail of every decision`,
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
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
