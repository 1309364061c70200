// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docweaver/internal/assets"
	"github.com/pdiddy/docweaver/internal/scanner"
	"github.com/pdiddy/docweaver/internal/session"
	"github.com/pdiddy/docweaver/internal/workflow"
	"github.com/pdiddy/docweaver/pkg/types"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Localize image assets referenced by session inputs",
}

var assetsApplyCmd = &cobra.Command{
	Use:   "apply <session-id>",
	Short: "Copy found images into the session and rewrite input links",
	Long: `Apply scans the session's inputs, copies every image that exists on disk
into the session assets/ area, and rewrites the inputs to reference
./assets/<name>. Running it again changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := sessionPath(args[0])
		if err != nil {
			return err
		}
		inputs, err := filepath.Glob(filepath.Join(root, session.InputsDir, "*"))
		if err != nil {
			return fmt.Errorf("listing inputs: %w", err)
		}
		sort.Strings(inputs)

		// Inputs copied by run resolve against their origin directories.
		var dirs map[string]string
		if s, err := workflow.LoadState(filepath.Join(root, session.LogsDir, workflow.StateFile)); err == nil {
			dirs = s.SourceDirs
		}
		var perFile []types.Reference
		for _, in := range inputs {
			data, err := os.ReadFile(in)
			if err != nil {
				continue
			}
			dir := filepath.Dir(in)
			if d := dirs[filepath.Base(in)]; d != "" {
				dir = d
			}
			perFile = append(perFile, scanner.Deduplicate(scanner.ScanContentIn(in, dir, string(data)))...)
		}
		refs := scanner.Deduplicate(perFile)
		summary := assets.Apply(root, perFile, logger)

		w := cmd.OutOrStdout()
		files := make([]string, 0, len(summary.PerFile))
		for f := range summary.PerFile {
			files = append(files, f)
		}
		sort.Strings(files)
		for _, f := range files {
			fmt.Fprintf(w, "rewrote %s (%d references)\n", filepath.Base(f), summary.PerFile[f])
		}
		fmt.Fprintf(w, "\ncopied: %d, rewritten: %d, missing: %d\n",
			summary.Copied, summary.Rewritten, len(scanner.Missing(refs)))
		return nil
	},
}

func init() {
	assetsCmd.AddCommand(assetsApplyCmd)
	rootCmd.AddCommand(assetsCmd)
}
