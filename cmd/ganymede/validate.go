package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pilothouse-hq/ganymede/pkg/policy"
	"pilothouse-hq/ganymede/pkg/policy/store"
)

var validateFlags struct {
	file string
	dir  string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate policy files",
	Long: `Validate policy YAML files for syntax and semantic errors.

The validate command parses policy files and performs the same checks the
server applies at load time:
  - YAML syntax validation
  - Policy structure validation (scope, mode, authority, rollout)
  - Condition expression compilation for guards, gates, and triggers
  - Cron schedule and timezone validation for time gates

Examples:
  # Validate a single file
  ganymede validate --file policies/cvr-floor.yaml

  # Validate a directory
  ganymede validate --dir policies/`,
	RunE: validatePolicies,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.file, "file", "f", "", "policy file to validate")
	validateCmd.Flags().StringVarP(&validateFlags.dir, "dir", "d", "", "directory of policy files")
}

func validatePolicies(cmd *cobra.Command, args []string) error {
	if validateFlags.file == "" && validateFlags.dir == "" {
		return fmt.Errorf("either --file or --dir must be specified")
	}

	var policies []*policy.Policy
	var err error
	if validateFlags.file != "" {
		policies, err = store.LoadFile(validateFlags.file)
	} else {
		policies, err = store.LoadDir(validateFlags.dir)
	}
	if err != nil {
		return reportValidationError(err)
	}

	seen := make(map[string]bool, len(policies))
	var failures int
	for _, p := range policies {
		if seen[p.ID] {
			fmt.Printf("✗ %s: duplicate policy ID\n", p.ID)
			failures++
			continue
		}
		seen[p.ID] = true

		if _, err := policy.Compile(p); err != nil {
			fmt.Printf("✗ %s:\n", p.ID)
			var validation *policy.ValidationError
			if errors.As(err, &validation) {
				for _, problem := range validation.Problems {
					fmt.Printf("    %s\n", problem)
				}
			} else {
				fmt.Printf("    %v\n", err)
			}
			failures++
			continue
		}
		fmt.Printf("✓ %s (%s, %s)\n", p.ID, p.Scope, p.Mode)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d policies failed validation", failures, len(policies))
	}
	fmt.Printf("✓ %d policies valid\n", len(policies))
	return nil
}

func reportValidationError(err error) error {
	var validation *policy.ValidationError
	if errors.As(err, &validation) {
		fmt.Printf("✗ %s:\n", validation.PolicyID)
		for _, problem := range validation.Problems {
			fmt.Printf("    %s\n", problem)
		}
		return fmt.Errorf("validation failed")
	}
	return err
}
