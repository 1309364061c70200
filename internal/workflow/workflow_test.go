// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/docweaver/internal/checkpoint"
	"github.com/pdiddy/docweaver/internal/lint"
	"github.com/pdiddy/docweaver/pkg/types"
)

const testSessionID = "11111111-2222-4333-8444-555555555555"

// newSession creates a session tree with the given input files and returns
// its root and the sorted input names.
func newSession(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), testSessionID)
	for _, sub := range []string{"inputs", "assets", "checkpoints", "logs"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, sub), 0o755))
	}
	var names []string
	for name, content := range files {
		path := filepath.Join(root, "inputs", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		if filepath.Ext(name) == ".md" && filepath.Dir(name) == "." {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return root, names
}

func tickingClock() func() time.Time {
	var mu sync.Mutex
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts = ts.Add(time.Second)
		return ts
	}
}

// scriptedValidator returns results in order, repeating the last one.
type scriptedValidator struct {
	results [][]types.ValidationIssue
	calls   int
}

func (v *scriptedValidator) Validate(ctx context.Context, path string) ([]types.ValidationIssue, error) {
	i := v.calls
	if i >= len(v.results) {
		i = len(v.results) - 1
	}
	v.calls++
	return v.results[i], nil
}

var failing = []types.ValidationIssue{{LineNumber: 1, Rule: "MD041", Message: "First line (line 1)"}}

// flakyGenerator fails the first n generations of chapter failChapter.
type flakyGenerator struct {
	PassthroughGenerator
	failChapter int
	failures    int
	err         error
	fixes       int
}

func (g *flakyGenerator) Generate(ctx context.Context, req ChapterRequest) (string, error) {
	if req.Chapter == g.failChapter && g.failures != 0 {
		if g.failures > 0 {
			g.failures--
		}
		return "", g.err
	}
	return g.PassthroughGenerator.Generate(ctx, req)
}

func (g *flakyGenerator) Fix(ctx context.Context, req ChapterRequest) (string, error) {
	g.fixes++
	return g.PassthroughGenerator.Fix(ctx, req)
}

type fixedResolver string

func (f fixedResolver) Resolve(ctx context.Context, q Question) (string, error) {
	return string(f), nil
}

type recordingJournal struct {
	events []Event
}

func (j *recordingJournal) Record(ctx context.Context, e Event) error {
	j.events = append(j.events, e)
	return nil
}

func newTestRunner(root string, opts ...Option) *Runner {
	base := []Option{
		WithClock(tickingClock()),
		WithValidator(lint.Static{}),
	}
	return NewRunner(root, append(base, opts...)...)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunHappyPath(t *testing.T) {
	root, names := newSession(t, map[string]string{
		"a.md":         "# Alpha\n\n![pic](images/p.png)\n",
		"b.md":         "# Beta\n\nText.\n",
		"images/p.png": "PNG",
	})
	journal := &recordingJournal{}
	var progress bytes.Buffer
	r := newTestRunner(root, WithJournal(journal), WithProgress(&progress))

	final, err := r.Run(context.Background(), types.NewWorkflowState(testSessionID, names))
	require.NoError(t, err)

	assert.Equal(t, types.StatusComplete, final.Status)
	assert.True(t, final.GenerationComplete)
	assert.Equal(t, 2, final.CurrentFileIndex)
	assert.Equal(t, 2, final.CurrentChapter)
	assert.Equal(t, types.ValidationPassed, final.Validation)
	assert.Equal(t, 0, final.FixAttempts)
	assert.Equal(t, 0, final.RetryCount)
	assert.Equal(t, []string{"Alpha", "Beta"}, final.DocumentOutline)
	assert.Empty(t, final.MissingReferences)

	out := filepath.Join(root, OutputFile)
	assert.Equal(t, out, final.OutputPath)
	assert.Equal(t, "# Alpha\n\n![pic](./assets/p.png)\n\n# Beta\n\nText.\n", readFile(t, out))
	assert.FileExists(t, filepath.Join(root, "assets", "p.png"))

	cps, err := checkpoint.List(root)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, 1, cps[0].Chapter)
	assert.Equal(t, 2, cps[1].Chapter)
	assert.Equal(t, cps[1].ID, final.LastCheckpointID)

	saved, err := LoadState(r.StatePath())
	require.NoError(t, err)
	assert.Equal(t, final.Status, saved.Status)
	assert.Equal(t, final.Messages, saved.Messages)

	require.NotEmpty(t, journal.events)
	assert.Equal(t, StepScanAssets, journal.events[0].Step)
	assert.Equal(t, types.StepComplete, journal.events[len(journal.events)-1].Step)
	assert.Contains(t, progress.String(), "Copied 1 images, rewrote 1 references")
}

func TestRunFixesUntilValidationPasses(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A  \n\ntext\n"})
	v := &scriptedValidator{results: [][]types.ValidationIssue{failing, failing, {}}}
	gen := &flakyGenerator{}
	r := newTestRunner(root, WithValidator(v), WithGenerator(gen))

	final, err := r.Run(context.Background(), types.NewWorkflowState(testSessionID, names))
	require.NoError(t, err)

	assert.Equal(t, 3, v.calls)
	assert.Equal(t, 2, gen.fixes)
	assert.Equal(t, types.StatusComplete, final.Status)
	assert.Equal(t, types.ValidationPassed, final.Validation)
	assert.Equal(t, 0, final.FixAttempts, "fix budget resets once the chapter is confirmed")
	assert.Contains(t, final.Messages, "Fix attempt 1/3 for chapter 1")
	assert.Contains(t, final.Messages, "Fix attempt 2/3 for chapter 1")
	assert.Equal(t, "# A\n\ntext\n", readFile(t, filepath.Join(root, OutputFile)))
}

func TestRunAcceptsDegradedDocumentWhenFixBudgetIsSpent(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A\n", "b.md": "# B\n"})
	v := &scriptedValidator{results: [][]types.ValidationIssue{failing}}
	r := newTestRunner(root, WithValidator(v))

	final, err := r.Run(context.Background(), types.NewWorkflowState(testSessionID, names))
	require.NoError(t, err)

	// One initial validation plus one per fix attempt.
	assert.Equal(t, 4, v.calls)
	assert.Equal(t, 3, final.FixAttempts)
	assert.Equal(t, types.ValidationFailed, final.Validation)
	assert.Equal(t, types.StatusComplete, final.Status)
	assert.Equal(t, 0, final.CurrentFileIndex)
	assert.Equal(t, failing, final.ValidationIssues)
	assert.Contains(t, final.Messages, "Chapters 2-2 not generated: b.md")
	assert.Equal(t, "# A\n", readFile(t, filepath.Join(root, OutputFile)))
}

func TestRunValidatorFailureFailsValidation(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A\n"})
	r := newTestRunner(root, WithValidator(lint.Static{Err: lint.ErrToolMissing}))

	final, err := r.Run(context.Background(), types.NewWorkflowState(testSessionID, names))
	require.NoError(t, err)
	assert.Equal(t, types.ValidationFailed, final.Validation)
	require.Len(t, final.ValidationIssues, 1)
	assert.Equal(t, lint.SyntheticRule, final.ValidationIssues[0].Rule)
}

func TestRunRollsBackAfterError(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A\n", "b.md": "# B\n"})
	gen := &flakyGenerator{failChapter: 2, failures: 1, err: errors.New("Unclosed code block at line 3")}
	r := newTestRunner(root, WithGenerator(gen))

	final, err := r.Run(context.Background(), types.NewWorkflowState(testSessionID, names))
	require.NoError(t, err)

	assert.Equal(t, types.StatusComplete, final.Status)
	assert.Equal(t, 1, final.RetryCount)
	assert.Equal(t, types.ErrorSyntax, final.ErrorType)
	assert.Equal(t, "generating chapter 2: Unclosed code block at line 3", final.LastError)
	assert.Contains(t, final.Messages, "Rolled back to checkpoint 20260101_000003.000000_chapter_1.md")
	assert.Equal(t, "# A\n\n# B\n", readFile(t, filepath.Join(root, OutputFile)))
}

func TestRunFailsWithoutCheckpoint(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A\n"})
	gen := &flakyGenerator{failChapter: 1, failures: -1, err: errors.New("boom")}
	r := newTestRunner(root, WithGenerator(gen))

	final, err := r.Run(context.Background(), types.NewWorkflowState(testSessionID, names))
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, final.Status)
	assert.Equal(t, 1, final.RetryCount)
	assert.Equal(t, types.ErrorUnknown, final.ErrorType)
	assert.Equal(t, "Unknown error - no fix applied", final.HandlerOutcome)
	assert.Equal(t, "generating chapter 1: boom", final.LastError)
	assert.NoFileExists(t, filepath.Join(root, OutputFile))
}

func TestRunStopsRetryingWhenRetriesAreSpent(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A\n", "b.md": "# B\n"})
	gen := &flakyGenerator{failChapter: 2, failures: -1, err: errors.New("boom")}
	r := newTestRunner(root, WithGenerator(gen))

	final, err := r.Run(context.Background(), types.NewWorkflowState(testSessionID, names))
	require.NoError(t, err)

	// The chapter 1 checkpoint is consumed by the first rollback; the second
	// error has nothing to restore.
	assert.Equal(t, types.StatusFailed, final.Status)
	assert.Equal(t, 2, final.RetryCount)
	assert.Empty(t, final.LastCheckpointID)
	assert.Equal(t, "# A\n", readFile(t, filepath.Join(root, OutputFile)))
}

func TestRunAsksAboutMissingReferences(t *testing.T) {
	tests := []struct {
		name     string
		resolver Resolver
		want     string
		decision string
	}{
		{"skip", SkipResolver{}, "# A\n\n[Image: missing.png]\n", DecisionSkip},
		{"keep", fixedResolver("keep"), "# A\n\n![x](missing.png)\n", DecisionKeep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, names := newSession(t, map[string]string{"a.md": "# A\n\n![x](missing.png)\n"})
			r := newTestRunner(root, WithResolver(tt.resolver))

			final, err := r.Run(context.Background(), types.NewWorkflowState(testSessionID, names))
			require.NoError(t, err)

			key := "a.md:3: ![x](missing.png)"
			assert.Equal(t, []string{key}, final.MissingReferences)
			assert.Equal(t, map[string]string{key: tt.decision}, final.UserDecisions)
			assert.Empty(t, final.PendingQuestion)
			assert.Equal(t, tt.want, readFile(t, filepath.Join(root, OutputFile)))
		})
	}
}

func TestRunRetriesPublish(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		wantStatus types.Status
		wantCalls  int
	}{
		{"recovers", 2, types.StatusComplete, 3},
		{"gives up", 100, types.StatusFailed, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, names := newSession(t, map[string]string{"a.md": "# A\n"})
			r := newTestRunner(root)
			calls := 0
			r.publish = func(src, dest string) error {
				calls++
				if calls <= tt.failures {
					return errors.New("disk busy")
				}
				return publishDocument(src, dest)
			}

			final, err := r.Run(context.Background(), types.NewWorkflowState(testSessionID, names))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, final.Status)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRunNoInputs(t *testing.T) {
	root, _ := newSession(t, nil)
	final, err := newTestRunner(root).Run(context.Background(), types.NewWorkflowState(testSessionID, nil))
	require.NoError(t, err)
	assert.Equal(t, types.StatusComplete, final.Status)
	assert.True(t, final.GenerationComplete)
	assert.Empty(t, final.OutputPath)
}

func TestRunStepLimit(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A\n"})
	_, err := newTestRunner(root, WithStepLimit(2)).Run(context.Background(), types.NewWorkflowState(testSessionID, names))
	assert.ErrorIs(t, err, ErrStepLimit)
}

func TestRunCancelled(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := newTestRunner(root).Run(ctx, types.NewWorkflowState(testSessionID, names))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.StatusScanningAssets, s.Status)
}

func TestRunResumeAfterLastChapterPublishes(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A\n"})
	require.NoError(t, os.WriteFile(filepath.Join(root, checkpoint.WorkingFile), []byte("# A\n"), 0o644))
	v := &scriptedValidator{results: [][]types.ValidationIssue{failing}}
	journal := &recordingJournal{}
	s := types.NewWorkflowState(testSessionID, names).Apply(types.Patch{
		CurrentFileIndex:   types.Set(1),
		CurrentChapter:     types.Set(1),
		GenerationComplete: types.Set(true),
		LastCheckpointID:   types.Set("20260101_000003.000000_chapter_1.md"),
		Validation:         types.Set(types.ValidationPassed),
		Status:             types.Set(types.StatusProcessing),
	})

	final, err := newTestRunner(root, WithValidator(v), WithJournal(journal)).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, types.StatusComplete, final.Status)
	assert.Equal(t, 1, final.CurrentFileIndex)
	assert.Equal(t, 0, v.calls, "a confirmed checkpoint is not validated again")
	var steps []types.Step
	for _, e := range journal.events {
		steps = append(steps, e.Step)
	}
	assert.Equal(t, []types.Step{types.StepAgent, types.StepTools, types.StepComplete}, steps)
	assert.Equal(t, "# A\n", readFile(t, filepath.Join(root, OutputFile)))
}

func TestRunTerminalStateIsUnchanged(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A\n"})
	s := types.NewWorkflowState(testSessionID, names).Apply(types.Patch{Status: types.Set(types.StatusComplete)})
	final, err := newTestRunner(root).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, s, final)
	assert.NoFileExists(t, filepath.Join(root, checkpoint.WorkingFile))
}
