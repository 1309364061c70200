// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docweaver/internal/session"
	"github.com/pdiddy/docweaver/internal/workflow"
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the saved workflow state of a session",
	Long: `Status reads the state snapshot the workflow writes after every step.
Archived sessions are found as well as live ones.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := sessionManager(logger)
		root, err := manager.Path(args[0])
		if err != nil {
			return err
		}
		if ok, _ := manager.Exists(args[0]); !ok {
			root = filepath.Join(manager.ArchiveRoot(), args[0])
		}
		s, err := workflow.LoadState(filepath.Join(root, session.LogsDir, workflow.StateFile))
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}

		fmt.Fprintf(w, "Session:     %s\n", s.SessionID)
		fmt.Fprintf(w, "Status:      %s\n", s.Status)
		fmt.Fprintf(w, "Progress:    %d/%d chapters\n", s.CurrentFileIndex, len(s.InputFiles))
		fmt.Fprintf(w, "Validation:  %s (%d issues, %d fix attempts)\n", orDash(string(s.Validation)), len(s.ValidationIssues), s.FixAttempts)
		fmt.Fprintf(w, "Retries:     %d\n", s.RetryCount)
		fmt.Fprintf(w, "Checkpoint:  %s\n", orDash(s.LastCheckpointID))
		if s.LastError != "" {
			fmt.Fprintf(w, "Last error:  %s (%s)\n", s.LastError, s.ErrorType)
		}
		if len(s.MissingReferences) > 0 {
			fmt.Fprintln(w, "Missing references:")
			for _, k := range s.MissingReferences {
				fmt.Fprintf(w, "  %s [%s]\n", k, orDash(s.UserDecisions[k]))
			}
		}
		if s.OutputPath != "" {
			fmt.Fprintf(w, "Output:      %s\n", s.OutputPath)
		}
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	statusCmd.Flags().Bool("json", false, "output the state as JSON")
	rootCmd.AddCommand(statusCmd)
}
