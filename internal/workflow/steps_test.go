// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/docweaver/internal/checkpoint"
	"github.com/pdiddy/docweaver/internal/routing"
	"github.com/pdiddy/docweaver/pkg/types"
)

func TestBeginFix(t *testing.T) {
	s := types.NewWorkflowState(testSessionID, []string{"a.md"}).Apply(types.Patch{
		CurrentChapter: types.Set(1),
		FixAttempts:    types.Set(2),
	})
	p := BeginFix(s)
	require.NotNil(t, p.FixAttempts)
	assert.Equal(t, 3, *p.FixAttempts)
	assert.Equal(t, []string{"Fix attempt 3/3 for chapter 1"}, p.Messages)
}

func TestScanAssetsRewritesSharedImageInEveryFile(t *testing.T) {
	root, names := newSession(t, map[string]string{
		"a.md":    "# A\n\n![pic](img.png)\n",
		"b.md":    "# B\n\n![pic](img.png)\n",
		"img.png": "PNG",
	})
	s := types.NewWorkflowState(testSessionID, names)
	p, err := NewRunner(root).ScanAssets(context.Background(), s)
	require.NoError(t, err)

	assert.Empty(t, p.MissingReferences)
	assert.Contains(t, p.Messages, "Copied 1 images, rewrote 2 references")
	assert.Equal(t, "# A\n\n![pic](./assets/img.png)\n", readFile(t, filepath.Join(root, "inputs", "a.md")))
	assert.Equal(t, "# B\n\n![pic](./assets/img.png)\n", readFile(t, filepath.Join(root, "inputs", "b.md")))
}

func TestScanAssetsResolvesAgainstSourceDirs(t *testing.T) {
	origin := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(origin, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(origin, "images", "p.png"), []byte("PNG"), 0o644))
	root, names := newSession(t, map[string]string{
		"a.md": "# A\n\n![pic](images/p.png)\n![gone](images/gone.png)\n",
	})
	s := types.NewWorkflowState(testSessionID, names)
	s.SourceDirs = map[string]string{"a.md": origin}

	p, err := NewRunner(root).ScanAssets(context.Background(), s)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "assets", "p.png"))
	assert.Equal(t, []string{"a.md:4: ![gone](images/gone.png)"}, p.MissingReferences)
	assert.Equal(t, "# A\n\n![pic](./assets/p.png)\n![gone](images/gone.png)\n",
		readFile(t, filepath.Join(root, "inputs", "a.md")))
}

func TestConfirmCheckpoint(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		complete bool
	}{
		{"more chapters", 0, false},
		{"last chapter", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := types.NewWorkflowState(testSessionID, []string{"a.md", "b.md"}).Apply(types.Patch{
				CurrentFileIndex: types.Set(tt.index),
				CurrentChapter:   types.Set(tt.index + 1),
				FixAttempts:      types.Set(2),
				LastCheckpointID: types.Set("cp"),
			})
			next := s.Apply(ConfirmCheckpoint(s))
			assert.Equal(t, tt.index+1, next.CurrentFileIndex)
			assert.Equal(t, 0, next.FixAttempts)
			assert.Equal(t, tt.complete, next.GenerationComplete)
			assert.Equal(t, "cp", next.LastCheckpointID)
		})
	}
}

func TestHandleError(t *testing.T) {
	r := NewRunner(t.TempDir())
	s := types.NewWorkflowState(testSessionID, nil).Apply(types.Patch{
		LastError:  types.Set("Image file not found: x.png"),
		RetryCount: types.Set(1),
	})
	next := s.Apply(r.HandleError(s))
	assert.Equal(t, 2, next.RetryCount)
	assert.Equal(t, types.ErrorAsset, next.ErrorType)
	assert.Equal(t, Outcome(types.ErrorAsset), next.HandlerOutcome)
	assert.Equal(t, types.StatusErrorHandling, next.Status)
	assert.Equal(t, 1, s.RetryCount, "input state is not mutated")
}

func TestRollbackWithoutCheckpoint(t *testing.T) {
	r := NewRunner(t.TempDir())
	s := types.NewWorkflowState(testSessionID, nil)
	assert.Equal(t, types.Patch{}, r.Rollback(s))
}

func TestRollbackRestoresAndConsumesCheckpoint(t *testing.T) {
	root, _ := newSession(t, nil)
	working := filepath.Join(root, checkpoint.WorkingFile)
	require.NoError(t, os.WriteFile(working, []byte("good"), 0o644))
	id, err := checkpoint.Create(root, 1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(working, []byte("broken"), 0o644))

	r := NewRunner(root)
	s := types.NewWorkflowState(testSessionID, nil).Apply(types.Patch{LastCheckpointID: types.Set(id)})
	next := s.Apply(r.Rollback(s))

	assert.Empty(t, next.LastCheckpointID)
	assert.Equal(t, types.StatusProcessing, next.Status)
	assert.Equal(t, "good", readFile(t, working))
}

func TestRollbackFailureStillClearsCheckpoint(t *testing.T) {
	root, _ := newSession(t, nil)
	r := NewRunner(root)
	s := types.NewWorkflowState(testSessionID, nil).Apply(types.Patch{
		LastCheckpointID: types.Set("20260101_000000.000000_chapter_1.md"),
	})
	p := r.Rollback(s)
	next := s.Apply(p)
	assert.Empty(t, next.LastCheckpointID)
	assert.Equal(t, []string{"Rollback to checkpoint 20260101_000000.000000_chapter_1.md failed"}, p.Messages)
}

type failingResolver struct{}

func (failingResolver) Resolve(ctx context.Context, q Question) (string, error) {
	return "", errors.New("stdin closed")
}

func TestHumanInput(t *testing.T) {
	key := "a.md:3: ![x](missing.png)"
	s := types.NewWorkflowState(testSessionID, []string{"a.md"}).Apply(types.Patch{
		MissingReferences: []string{key},
		PendingQuestion:   types.Set("Reference " + key + " could not be found."),
	})

	next := s.Apply(mustPatch(t)(NewRunner(t.TempDir(), WithResolver(fixedResolver(" K "))).HumanInput(context.Background(), s)))
	assert.Equal(t, map[string]string{key: DecisionKeep}, next.UserDecisions)
	assert.Empty(t, next.PendingQuestion)
	assert.Empty(t, s.UserDecisions, "input state is not mutated")

	_, err := NewRunner(t.TempDir(), WithResolver(failingResolver{})).HumanInput(context.Background(), s)
	assert.ErrorContains(t, err, "stdin closed")
}

func TestHumanInputNothingPending(t *testing.T) {
	s := types.NewWorkflowState(testSessionID, nil).Apply(types.Patch{PendingQuestion: types.Set("stale")})
	p, err := NewRunner(t.TempDir()).HumanInput(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, s.Apply(p).PendingQuestion)
}

func TestAgentRejectsInvalidUTF8(t *testing.T) {
	root, names := newSession(t, map[string]string{"bad.md": "# A\n\xff\xfe\n"})
	s := types.NewWorkflowState(testSessionID, names)
	_, err := NewRunner(root).Agent(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, types.ErrorEncoding, Classify(err.Error()))
}

func TestToolsWithoutWorkingOutput(t *testing.T) {
	root, names := newSession(t, map[string]string{"a.md": "# A\n"})
	s := types.NewWorkflowState(testSessionID, names).Apply(types.Patch{CurrentChapter: types.Set(1)})
	p, err := NewRunner(root).Tools(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"No working output to checkpoint"}, p.Messages)
}

func TestToolsPastLastInputDropsConfirmedCheckpoint(t *testing.T) {
	s := types.NewWorkflowState(testSessionID, []string{"a.md"}).Apply(types.Patch{
		CurrentFileIndex:   types.Set(1),
		GenerationComplete: types.Set(true),
		LastCheckpointID:   types.Set("20260101_000003.000000_chapter_1.md"),
	})
	next := s.Apply(mustPatch(t)(NewRunner(t.TempDir()).Tools(context.Background(), s)))
	assert.True(t, next.GenerationComplete)
	assert.Empty(t, next.LastCheckpointID)
	assert.Equal(t, types.StepComplete, routing.RouteAfterTools(next))
}

func TestValidateWithoutWorkingOutput(t *testing.T) {
	root, _ := newSession(t, nil)
	p, err := NewRunner(root).Validate(context.Background(), types.NewWorkflowState(testSessionID, nil))
	require.NoError(t, err)
	require.NotNil(t, p.ValidationIssues)
	assert.Len(t, *p.ValidationIssues, 1)
	assert.Equal(t, types.ValidationFailed, *p.Validation)
}

func mustPatch(t *testing.T) func(types.Patch, error) types.Patch {
	return func(p types.Patch, err error) types.Patch {
		t.Helper()
		require.NoError(t, err)
		return p
	}
}
