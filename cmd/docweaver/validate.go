// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docweaver/internal/lint"
	"github.com/pdiddy/docweaver/pkg/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Lint a markdown file with markdownlint",
	Long: `Validate runs the configured markdown linter on one file and prints
its findings. A missing linter, a timeout, or unreadable linter output is
reported as a single markdownlint issue. The command fails when any issue
is found.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issues, err := lint.NewMarkdownLint(cfg.Lint).Validate(cmd.Context(), args[0])
		if err != nil {
			issues = []types.ValidationIssue{lint.SyntheticIssue(err)}
		}

		w := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(issues); err != nil {
				return err
			}
		} else {
			for _, is := range issues {
				fmt.Fprintf(w, "%s:%d %s %s\n", args[0], is.LineNumber, is.Rule, is.Message)
			}
		}
		if len(issues) > 0 {
			return fmt.Errorf("%d issue(s) in %s", len(issues), args[0])
		}
		fmt.Fprintf(w, "%s: no issues\n", args[0])
		return nil
	},
}

func init() {
	validateCmd.Flags().Bool("json", false, "output issues as JSON")
	rootCmd.AddCommand(validateCmd)
}
