// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docweaver/internal/discovery"
	"github.com/pdiddy/docweaver/internal/ledger"
	"github.com/pdiddy/docweaver/internal/lint"
	"github.com/pdiddy/docweaver/internal/logging"
	"github.com/pdiddy/docweaver/internal/session"
	"github.com/pdiddy/docweaver/internal/workflow"
	"github.com/pdiddy/docweaver/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run [file]...",
	Short: "Generate one document from markdown inputs",
	Long: `Run creates a session, copies the inputs into it, localizes their image
assets, and generates the document chapter by chapter. Every chapter is
checkpointed and validated; failed validations are fixed automatically up to
three times and processing errors roll back to the last checkpoint.

Files are resolved against --input-dir (default: the current directory).
With no files, every eligible file in --input-dir is used. Use --resume to
continue a session from its last saved state.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	inputDir, _ := cmd.Flags().GetString("input-dir")
	archive, _ := cmd.Flags().GetBool("archive")
	interactive, _ := cmd.Flags().GetBool("interactive")
	resumeID, _ := cmd.Flags().GetString("resume")
	stepLimit, _ := cmd.Flags().GetInt("step-limit")

	w := cmd.OutOrStdout()
	manager := sessionManager(logger)

	var (
		id    string
		state types.WorkflowState
		err   error
	)
	if resumeID != "" {
		id = resumeID
		state, err = resumeState(resumeID)
	} else {
		id, state, err = newRun(manager, inputDir, args, w, cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}
	root, err := manager.Path(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "session %s\n", id)

	runLog, err := logging.NewRunLogger(filepath.Join(root, session.LogsDir), logger)
	if err != nil {
		logger.Warn("run log unavailable", "error", err)
	}
	defer runLog.Close()

	opts := []workflow.Option{
		workflow.WithLogger(runLog.Logger),
		workflow.WithProgress(w),
		workflow.WithValidator(lint.NewMarkdownLint(cfg.Lint)),
		workflow.WithStepLimit(stepLimit),
	}
	if interactive {
		opts = append(opts, workflow.WithResolver(&workflow.PromptResolver{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}))
	}

	var store *ledger.Store
	if cfg.Ledger.Enabled {
		store, err = ledger.NewStore(ledger.Path(cfg))
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.RecordSession(cmd.Context(), id, state.InputFiles, time.Now()); err != nil {
			return err
		}
		opts = append(opts, workflow.WithJournal(store))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	final, runErr := workflow.NewRunner(root, opts...).Run(ctx, state)

	if store != nil {
		// Record the outcome even when the run was interrupted.
		if err := store.MarkSession(context.WithoutCancel(ctx), id, final.Status, final.OutputPath, time.Now()); err != nil {
			logger.Warn("ledger update failed", "session_id", id, "error", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("session %s stopped: %w", id, runErr)
	}

	fmt.Fprintf(w, "\nstatus: %s, chapters: %d, fix attempts: %d, retries: %d\n",
		final.Status, final.CurrentFileIndex, final.FixAttempts, final.RetryCount)
	if final.Status == types.StatusFailed {
		return fmt.Errorf("session %s failed: %s", id, final.LastError)
	}

	output := final.OutputPath
	if archive {
		if err := manager.Cleanup(id, true); err != nil {
			return err
		}
		if output != "" {
			output = filepath.Join(manager.ArchiveRoot(), id, workflow.OutputFile)
		}
		fmt.Fprintf(w, "archived session to %s\n", filepath.Join(manager.ArchiveRoot(), id))
	}
	if output != "" {
		fmt.Fprintf(w, "output: %s\n", output)
	}
	return nil
}

// newRun validates the requested inputs, creates a session, and copies the
// inputs into it. The returned state remembers where each input came from.
// Rejected files are reported on errw and skipped.
func newRun(manager *session.Manager, inputDir string, requested []string, w, errw io.Writer) (string, types.WorkflowState, error) {
	var paths []string
	if len(requested) == 0 {
		available, err := discovery.ListAvailable(inputDir, cfg.Input)
		if err != nil {
			return "", types.WorkflowState{}, err
		}
		paths = available
	} else {
		valid, failures := discovery.ValidateRequested(requested, inputDir, cfg.Input)
		for _, f := range failures {
			fmt.Fprintf(errw, "rejected %s: %s (%s)\n", f.Path, f.Message, f.Code)
		}
		paths = valid
	}
	if len(paths) == 0 {
		return "", types.WorkflowState{}, errors.New("no valid input files")
	}

	id, err := manager.Create()
	if err != nil {
		return "", types.WorkflowState{}, err
	}
	inputs, err := manager.Subdir(id, session.InputsDir)
	if err != nil {
		return "", types.WorkflowState{}, err
	}
	names, err := discovery.CopyInputs(paths, inputs)
	if err != nil {
		if cleanupErr := manager.Cleanup(id, false); cleanupErr != nil {
			logger.Warn("session cleanup failed", "session_id", id, "error", cleanupErr)
		}
		return "", types.WorkflowState{}, err
	}
	fmt.Fprintf(w, "copied %d input file(s)\n", len(names))

	// Image assets stay where they are; the scan resolves them from here.
	state := types.NewWorkflowState(id, names)
	state.SourceDirs = make(map[string]string, len(names))
	for i, name := range names {
		state.SourceDirs[name] = filepath.Dir(paths[i])
	}
	return id, state, nil
}

func resumeState(id string) (types.WorkflowState, error) {
	root, err := sessionPath(id)
	if err != nil {
		return types.WorkflowState{}, err
	}
	s, err := workflow.LoadState(filepath.Join(root, session.LogsDir, workflow.StateFile))
	if err != nil {
		return types.WorkflowState{}, err
	}
	if s.SessionID != id {
		return types.WorkflowState{}, fmt.Errorf("state in session %s belongs to %q", id, s.SessionID)
	}
	return s, nil
}

func init() {
	runCmd.Flags().String("input-dir", ".", "directory that input files are resolved against")
	runCmd.Flags().Bool("archive", false, "archive the session after a successful run")
	runCmd.Flags().Bool("interactive", false, "ask how to handle each missing reference instead of skipping it")
	runCmd.Flags().String("resume", "", "continue an existing session from its saved state")
	runCmd.Flags().Int("step-limit", 0, "maximum workflow steps (0 = default)")

	rootCmd.AddCommand(runCmd)
}
