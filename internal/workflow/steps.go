// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/docweaver/internal/assets"
	"github.com/pdiddy/docweaver/internal/checkpoint"
	"github.com/pdiddy/docweaver/internal/fsutil"
	"github.com/pdiddy/docweaver/internal/lint"
	"github.com/pdiddy/docweaver/internal/routing"
	"github.com/pdiddy/docweaver/internal/scanner"
	"github.com/pdiddy/docweaver/pkg/types"
)

func (r *Runner) inputPath(name string) string {
	return filepath.Join(r.sessionPath, "inputs", name)
}

func (r *Runner) workingPath() string {
	return filepath.Join(r.sessionPath, checkpoint.WorkingFile)
}

// unresolved returns the missing references that a previous asset rewrite
// has not already localized.
func (r *Runner) unresolved(refs []types.Reference) []types.Reference {
	var out []types.Reference
	for _, ref := range scanner.Missing(refs) {
		if assets.Localized(r.sessionPath, ref) {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// sourceDir returns the directory that relative references in input name
// resolve against: the one the file was copied from when known, otherwise
// the session inputs area.
func (r *Runner) sourceDir(s types.WorkflowState, name string) string {
	if dir := s.SourceDirs[name]; dir != "" {
		return dir
	}
	return filepath.Dir(r.inputPath(name))
}

// scanInput returns the references of one session input, deduplicated
// within that file only.
func (r *Runner) scanInput(s types.WorkflowState, name, content string) []types.Reference {
	return scanner.Deduplicate(scanner.ScanContentIn(r.inputPath(name), r.sourceDir(s, name), content))
}

// ScanAssets scans every input, copies found images into the session assets
// area, rewrites the inputs to point at the copies, and records the keys of
// references that could not be found.
func (r *Runner) ScanAssets(ctx context.Context, s types.WorkflowState) (types.Patch, error) {
	if err := ctx.Err(); err != nil {
		return types.Patch{}, err
	}
	var perFile []types.Reference
	for _, f := range s.InputFiles {
		data, err := os.ReadFile(r.inputPath(f))
		if err != nil {
			r.logger.Warn("input unreadable during asset scan", "session_id", s.SessionID, "file", f, "error", err)
			continue
		}
		perFile = append(perFile, r.scanInput(s, f, string(data))...)
	}
	// Every file holding a copied image is rewritten, so the applier gets
	// the per-file references. Counts are reported across files.
	refs := scanner.Deduplicate(perFile)
	summary := assets.Apply(r.sessionPath, perFile, r.logger)

	known := make(map[string]bool, len(s.MissingReferences))
	for _, k := range s.MissingReferences {
		known[k] = true
	}
	var missing []string
	for _, ref := range r.unresolved(perFile) {
		key := ref.Key()
		if known[key] {
			continue
		}
		known[key] = true
		missing = append(missing, key)
	}

	counts := scanner.CountByKind(refs)
	msgs := []string{
		fmt.Sprintf("Scanned %d references (%d image, %d path, %d url)",
			len(refs), counts[types.RefImage], counts[types.RefPath], counts[types.RefURL]),
		fmt.Sprintf("Copied %d images, rewrote %d references", summary.Copied, summary.Rewritten),
	}
	if len(missing) > 0 {
		msgs = append(msgs, fmt.Sprintf("%d references could not be found", len(missing)))
	}
	return types.Patch{
		MissingReferences: missing,
		Status:            types.Set(types.StatusProcessing),
		Messages:          msgs,
	}, nil
}

// Agent generates the chapter under the cursor, or fixes it after a failed
// validation. An unresolved reference without a recorded decision stops
// generation and raises a pending question instead.
func (r *Runner) Agent(ctx context.Context, s types.WorkflowState) (types.Patch, error) {
	file := s.CurrentFile()
	if file == "" {
		return types.Patch{Messages: []string{"No input files left to generate"}}, nil
	}
	chapter := s.CurrentFileIndex + 1
	path := r.inputPath(file)

	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Patch{}, fmt.Errorf("reading input %s: %w", file, err)
	}
	if !utf8.Valid(raw) {
		return types.Patch{}, fmt.Errorf("invalid UTF-8 encoding in %s", file)
	}

	refs := r.unresolved(r.scanInput(s, file, string(raw)))
	known := make(map[string]bool, len(s.MissingReferences))
	for _, k := range s.MissingReferences {
		known[k] = true
	}
	for _, ref := range refs {
		key := ref.Key()
		if _, decided := s.UserDecisions[key]; decided {
			continue
		}
		p := types.Patch{
			PendingQuestion: types.Set(fmt.Sprintf(
				"Reference %s could not be found. Skip it (replace with a placeholder) or keep it as written?", key)),
			Status:   types.Set(types.StatusProcessing),
			Messages: []string{"Waiting for a decision on " + key},
		}
		if !known[key] {
			p.MissingReferences = []string{key}
		}
		return p, nil
	}

	source := string(raw)
	for _, ref := range refs {
		if s.UserDecisions[ref.Key()] == DecisionSkip {
			source = strings.ReplaceAll(source, ref.Original, ref.Placeholder())
		}
	}

	doc, err := readOptional(r.workingPath())
	if err != nil {
		return types.Patch{}, err
	}

	req := ChapterRequest{
		Chapter:    chapter,
		SourceFile: file,
		Source:     source,
		Outline:    s.DocumentOutline,
	}
	var body, msg string
	if s.Validation == types.ValidationFailed && s.FixAttempts > 0 {
		req.Current, _ = ChapterSection(doc, chapter)
		req.Issues = s.ValidationIssues
		body, err = r.generator.Fix(ctx, req)
		msg = fmt.Sprintf("Fixed chapter %d (attempt %d/%d)", chapter, s.FixAttempts, routing.MaxFixAttempts)
	} else {
		body, err = r.generator.Generate(ctx, req)
		msg = fmt.Sprintf("Generated chapter %d from %s", chapter, file)
	}
	if err != nil {
		return types.Patch{}, fmt.Errorf("generating chapter %d: %w", chapter, err)
	}

	doc = WriteChapter(doc, chapter, body)
	if err := fsutil.AtomicWrite(r.workingPath(), []byte(doc), 0o644); err != nil {
		return types.Patch{}, fmt.Errorf("writing %s: %w", checkpoint.WorkingFile, err)
	}
	outline := Outline(doc)
	return types.Patch{
		CurrentChapter:  types.Set(chapter),
		DocumentOutline: &outline,
		PendingQuestion: types.Set(""),
		Validation:      types.Set(types.ValidationUnknown),
		Status:          types.Set(types.StatusProcessing),
		Messages:        []string{msg},
	}, nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return string(data), nil
}

// Tools snapshots the working output as a checkpoint for the chapter just
// generated. Once the cursor is past the last input it marks generation
// complete instead, dropping the already confirmed checkpoint so routing
// does not validate it again.
func (r *Runner) Tools(ctx context.Context, s types.WorkflowState) (types.Patch, error) {
	if s.CurrentFileIndex >= len(s.InputFiles) {
		return types.Patch{
			GenerationComplete: types.Set(true),
			LastCheckpointID:   types.Set(""),
			Messages:           []string{"All chapters generated"},
		}, nil
	}
	if strings.TrimSpace(s.PendingQuestion) != "" {
		return types.Patch{}, nil
	}

	id, err := checkpoint.Create(r.sessionPath, s.CurrentChapter, r.now())
	if err != nil {
		return types.Patch{}, err
	}
	if id == "" {
		return types.Patch{
			LastCheckpointID: types.Set(""),
			Messages:         []string{"No working output to checkpoint"},
		}, nil
	}
	r.logger.Info("checkpoint created", "session_id", s.SessionID, "checkpoint_id", id, "chapter", s.CurrentChapter)
	return types.Patch{
		LastCheckpointID: types.Set(id),
		Status:           types.Set(types.StatusValidating),
		Messages:         []string{"Checkpoint " + id},
	}, nil
}

// Validate lints the working output. A validator failure becomes a single
// synthetic issue, so it fails validation rather than passing it.
func (r *Runner) Validate(ctx context.Context, s types.WorkflowState) (types.Patch, error) {
	path := r.workingPath()
	var issues []types.ValidationIssue
	if !fsutil.IsFile(path) {
		issues = []types.ValidationIssue{{
			Rule:            lint.SyntheticRule,
			RuleDescription: "Working output missing",
			Message:         checkpoint.WorkingFile + " not found",
		}}
	} else {
		found, err := r.validator.Validate(ctx, path)
		if err != nil {
			issues = []types.ValidationIssue{lint.SyntheticIssue(err)}
		} else {
			issues = found
		}
	}
	if issues == nil {
		issues = []types.ValidationIssue{}
	}

	passed := len(issues) == 0
	r.logger.Info("validation ran", "session_id", s.SessionID, "passed", passed, "issue_count", len(issues))

	result := types.ValidationFailed
	msg := fmt.Sprintf("Validation found %d issue(s) in chapter %d", len(issues), s.CurrentChapter)
	if passed {
		result = types.ValidationPassed
		msg = fmt.Sprintf("Validation passed for chapter %d", s.CurrentChapter)
	}
	return types.Patch{
		Validation:       &result,
		ValidationIssues: &issues,
		Status:           types.Set(types.StatusValidating),
		Messages:         []string{msg},
	}, nil
}

// BeginFix counts one automatic-fix cycle. The runner executes it after
// RouteAfterValidation has chosen the agent, so routing always sees the
// count from before the increment.
func BeginFix(s types.WorkflowState) types.Patch {
	n := s.FixAttempts + 1
	return types.Patch{
		FixAttempts: types.Set(n),
		Messages: []string{fmt.Sprintf("Fix attempt %d/%d for chapter %d",
			n, routing.MaxFixAttempts, s.CurrentChapter)},
	}
}

// ConfirmCheckpoint accepts the validated chapter: it resets the fix budget
// and moves the cursor to the next input.
func ConfirmCheckpoint(s types.WorkflowState) types.Patch {
	next := s.CurrentFileIndex + 1
	return types.Patch{
		FixAttempts:        types.Set(0),
		CurrentFileIndex:   types.Set(next),
		GenerationComplete: types.Set(next >= len(s.InputFiles)),
		Status:             types.Set(types.StatusProcessing),
		Messages: []string{fmt.Sprintf("Chapter %d confirmed at checkpoint %s",
			s.CurrentChapter, s.LastCheckpointID)},
	}
}

// pendingKey returns the first recorded missing reference without a decision.
func pendingKey(s types.WorkflowState) string {
	for _, k := range s.MissingReferences {
		if _, ok := s.UserDecisions[k]; !ok {
			return k
		}
	}
	return ""
}

// HumanInput asks the resolver about the first undecided missing reference
// and records the answer.
func (r *Runner) HumanInput(ctx context.Context, s types.WorkflowState) (types.Patch, error) {
	key := pendingKey(s)
	if key == "" {
		return types.Patch{PendingQuestion: types.Set("")}, nil
	}
	answer, err := r.resolver.Resolve(ctx, Question{Key: key, Text: s.PendingQuestion})
	if err != nil {
		return types.Patch{}, fmt.Errorf("resolving %s: %w", key, err)
	}
	decision := normalizeDecision(answer)

	decisions := make(map[string]string, len(s.UserDecisions)+1)
	for k, v := range s.UserDecisions {
		decisions[k] = v
	}
	decisions[key] = decision
	return types.Patch{
		UserDecisions:   &decisions,
		PendingQuestion: types.Set(""),
		Messages:        []string{fmt.Sprintf("Decision for %s: %s", key, decision)},
	}, nil
}

// HandleError classifies LastError, records the handler outcome, and counts
// one retry cycle.
func (r *Runner) HandleError(s types.WorkflowState) types.Patch {
	kind := Classify(s.LastError)
	outcome := Outcome(kind)
	retries := s.RetryCount + 1
	r.logger.Warn("processing error",
		"session_id", s.SessionID, "error", s.LastError, "error_type", kind, "retry_count", retries)
	return types.Patch{
		ErrorType:      &kind,
		HandlerOutcome: &outcome,
		RetryCount:     &retries,
		Status:         types.Set(types.StatusErrorHandling),
		Messages:       []string{fmt.Sprintf("Error (%s): %s", kind, outcome)},
	}
}

// Rollback restores the working output from LastCheckpointID. With no
// checkpoint it does nothing. Otherwise the checkpoint id is cleared whether
// or not the restore succeeded, so a checkpoint is consumed at most once.
func (r *Runner) Rollback(s types.WorkflowState) types.Patch {
	id := strings.TrimSpace(s.LastCheckpointID)
	if id == "" {
		return types.Patch{}
	}
	msg := "Rolled back to checkpoint " + id
	if !checkpoint.Restore(r.sessionPath, id, r.logger) {
		msg = "Rollback to checkpoint " + id + " failed"
	}
	return types.Patch{
		LastCheckpointID: types.Set(""),
		Status:           types.Set(types.StatusProcessing),
		Messages:         []string{msg},
	}
}

// Complete publishes the working output to output.md. Publishing is retried
// while ShouldRetryConversion allows. A run that reached this step from the
// error handler, or whose publish failed, ends failed.
func (r *Runner) Complete(ctx context.Context, s types.WorkflowState) (types.Patch, error) {
	status := types.StatusComplete
	if s.Status == types.StatusErrorHandling {
		status = types.StatusFailed
	}
	var msgs []string
	if s.Validation == types.ValidationFailed && s.FixAttempts >= routing.MaxFixAttempts {
		msgs = append(msgs, fmt.Sprintf("Validation still failing after %d fix attempts; accepting document with %d issue(s)",
			s.FixAttempts, len(s.ValidationIssues)))
		// The chapter under the cursor was generated; later inputs never were.
		if rest := s.CurrentFileIndex + 1; rest < len(s.InputFiles) {
			skipped := s.InputFiles[rest:]
			r.logger.Warn("publishing without some inputs", "session_id", s.SessionID, "not_generated", skipped)
			msgs = append(msgs, fmt.Sprintf("Chapters %d-%d not generated: %s",
				rest+1, len(s.InputFiles), strings.Join(skipped, ", ")))
		}
	}

	src := r.workingPath()
	if !fsutil.IsFile(src) {
		msgs = append(msgs, "No output produced")
		return types.Patch{Status: &status, Messages: msgs}, nil
	}

	dest := filepath.Join(r.sessionPath, OutputFile)
	attempt := types.WorkflowState{}
	var err error
	for {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = r.publish(src, dest); err == nil {
			break
		}
		attempt.RetryCount++
		r.logger.Warn("publish failed", "session_id", s.SessionID, "attempt", attempt.RetryCount, "error", err)
		if routing.ShouldRetryConversion(attempt) == routing.DecisionFail {
			break
		}
	}
	if err != nil {
		failed := types.StatusFailed
		return types.Patch{
			Status:    &failed,
			LastError: types.Set(err.Error()),
			Messages:  append(msgs, fmt.Sprintf("Publishing %s failed: %v", OutputFile, err)),
		}, nil
	}

	msgs = append(msgs, "Published "+dest)
	return types.Patch{
		Status:     &status,
		OutputPath: types.Set(dest),
		Messages:   msgs,
	}, nil
}

func publishDocument(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(dest, []byte(StripMarkers(string(data))), 0o644)
}
