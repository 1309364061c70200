// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docweaver/internal/scanner"
	"github.com/pdiddy/docweaver/pkg/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan <file>...",
	Short: "List the image, path, and URL references in markdown files",
	Long: `Scan reports every reference found in the given files with its line
number and whether its local target exists. Duplicates across files are
reported once. Unreadable files are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		refs := scanner.ScanFiles(args)
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return formatScanOutput(cmd.OutOrStdout(), refs, jsonOutput)
	},
}

func formatScanOutput(w io.Writer, refs []types.Reference, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(refs)
	}

	if len(refs) == 0 {
		fmt.Fprintln(w, "No references found.")
		return nil
	}

	fmt.Fprintf(w, "%-8s  %-8s  %-30s  %s\n", "Kind", "Status", "Location", "Reference")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range refs {
		loc := fmt.Sprintf("%s:%d", r.SourceFile, r.LineNumber)
		if len(loc) > 30 {
			loc = "..." + loc[len(loc)-27:]
		}
		fmt.Fprintf(w, "%-8s  %-8s  %-30s  %s\n", r.Kind, r.Status, loc, r.Original)
	}

	counts := scanner.CountByKind(refs)
	fmt.Fprintf(w, "\n%d references (%d image, %d path, %d url), %d missing\n",
		len(refs), counts[types.RefImage], counts[types.RefPath], counts[types.RefURL],
		len(scanner.Missing(refs)))
	return nil
}

func init() {
	scanCmd.Flags().Bool("json", false, "output references as JSON")
	rootCmd.AddCommand(scanCmd)
}
