package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pilothouse-hq/ganymede/pkg/config"
	"pilothouse-hq/ganymede/pkg/engine"
	"pilothouse-hq/ganymede/pkg/limits"
	"pilothouse-hq/ganymede/pkg/policy/store"
	"pilothouse-hq/ganymede/pkg/telemetry/logging"
)

var previewFlags struct {
	dir     string
	action  string
	context string
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Dry-run an action against policy files",
	Long: `Evaluate an action against a policy directory without a running server.

The evaluation is always a dry run: no rate limit slots or risk budget are
consumed and nothing is written to the audit store. The full decision,
including per-policy verdicts and recorded mutations, is printed as JSON.

Examples:
  # Preview an action
  ganymede preview --dir policies/ --action action.json

  # Preview with evaluation context (metrics and segment data)
  ganymede preview --dir policies/ --action action.json --context context.json`,
	RunE: previewAction,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringVarP(&previewFlags.dir, "dir", "d", "policies", "directory of policy files")
	previewCmd.Flags().StringVarP(&previewFlags.action, "action", "a", "", "JSON file holding the action (required)")
	previewCmd.Flags().StringVar(&previewFlags.context, "context", "", "JSON file holding the evaluation context")
	_ = previewCmd.MarkFlagRequired("action")
}

func previewAction(cmd *cobra.Command, args []string) error {
	var action engine.Action
	if err := readJSONFile(previewFlags.action, &action); err != nil {
		return fmt.Errorf("failed to read action: %w", err)
	}

	evalCtx := &engine.Context{}
	if previewFlags.context != "" {
		if err := readJSONFile(previewFlags.context, evalCtx); err != nil {
			return fmt.Errorf("failed to read context: %w", err)
		}
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(config.LoggingConfig{Level: level, Format: "text"}, os.Stderr)
	if err != nil {
		return err
	}

	st := store.New(store.WithLogger(logger))
	if err := store.LoadIntoStore(st, previewFlags.dir); err != nil {
		return fmt.Errorf("failed to load policies from %q: %w", previewFlags.dir, err)
	}

	tracker := limits.NewTracker(time.UTC, logger)
	eng := engine.New(st, tracker, engine.WithLogger(logger))

	result, err := eng.Evaluate(&action, evalCtx, engine.Options{Preview: true})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
