// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docweaver/internal/checkpoint"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Create, restore, and list working-output checkpoints",
	Long: `Checkpoint manages snapshots of a session's working output
(temp_output.md). Checkpoint ids are file names of the form
<timestamp>_chapter_<N>.md and sort chronologically.`,
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create <session-id>",
	Short: "Snapshot the working output for a chapter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := sessionPath(args[0])
		if err != nil {
			return err
		}
		chapter, _ := cmd.Flags().GetInt("chapter")
		id, err := checkpoint.Create(root, chapter, time.Now())
		if err != nil {
			return err
		}
		if id == "" {
			return fmt.Errorf("session %s has no %s to checkpoint", args[0], checkpoint.WorkingFile)
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <session-id> [checkpoint-id]",
	Short: "Replace the working output with a checkpoint (latest by default)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := sessionPath(args[0])
		if err != nil {
			return err
		}
		id := ""
		if len(args) == 2 {
			id = args[1]
		} else if id, err = checkpoint.Latest(root); err != nil {
			return err
		}
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("session %s has no checkpoints", args[0])
		}
		if !checkpoint.Restore(root, id, logger) {
			return fmt.Errorf("restoring checkpoint %s failed", id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", id)
		return nil
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List checkpoints oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := sessionPath(args[0])
		if err != nil {
			return err
		}
		infos, err := checkpoint.List(root)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		}
		if len(infos) == 0 {
			fmt.Fprintln(w, "No checkpoints.")
			return nil
		}
		fmt.Fprintf(w, "%-45s  %-7s  %-26s  %s\n", "ID", "Chapter", "Created", "Bytes")
		fmt.Fprintln(w, strings.Repeat("-", 95))
		for _, info := range infos {
			fmt.Fprintf(w, "%-45s  %-7d  %-26s  %d\n",
				info.ID, info.Chapter, info.CreatedAt.Format(time.RFC3339), info.Size)
		}
		return nil
	},
}

func init() {
	checkpointCreateCmd.Flags().Int("chapter", 1, "chapter number recorded in the checkpoint id")
	checkpointListCmd.Flags().Bool("json", false, "output checkpoints as JSON")

	checkpointCmd.AddCommand(checkpointCreateCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
	checkpointCmd.AddCommand(checkpointListCmd)

	rootCmd.AddCommand(checkpointCmd)
}
