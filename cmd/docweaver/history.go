// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docweaver/internal/ledger"
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List recorded runs, or the step events of one run",
	Long: `History reads the run ledger (<docs_base>/docweaver.db unless ledger.path
is set). With no argument it lists runs, most recent first. With a session id
it prints that run's step events in order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := ledger.NewStore(ledger.Path(cfg))
		if err != nil {
			return err
		}
		defer store.Close()

		jsonOutput, _ := cmd.Flags().GetBool("json")
		w := cmd.OutOrStdout()

		if len(args) == 1 {
			events, err := store.Events(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return encodeJSON(w, events)
			}
			if len(events) == 0 {
				fmt.Fprintln(w, "No events recorded.")
				return nil
			}
			for _, e := range events {
				line := fmt.Sprintf("%s  %-13s  %-16s  %s", e.At.Local().Format(time.TimeOnly), e.Step, e.Status, e.Message)
				if e.Err != "" {
					line += "  error: " + e.Err
				}
				fmt.Fprintln(w, strings.TrimRight(line, " "))
			}
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		sessions, err := store.Sessions(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return encodeJSON(w, sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}
		fmt.Fprintf(w, "%-36s  %-16s  %-6s  %s\n", "Session", "Status", "Inputs", "Updated")
		fmt.Fprintln(w, strings.Repeat("-", 90))
		for _, s := range sessions {
			fmt.Fprintf(w, "%-36s  %-16s  %-6d  %s\n", s.ID, s.Status, len(s.Inputs), s.UpdatedAt.Local().Format(time.DateTime))
		}
		fmt.Fprintf(w, "\n%d runs\n", len(sessions))
		return nil
	},
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum runs to list (0 = all)")
	historyCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(historyCmd)
}
