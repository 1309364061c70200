// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/docweaver/internal/workflow"
	"github.com/pdiddy/docweaver/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", DefaultFile))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestPath(t *testing.T) {
	cfg := types.DefaultConfig()
	assert.Equal(t, filepath.Join("docs", DefaultFile), Path(cfg))
	cfg.Ledger.Path = "/var/lib/docweaver.db"
	assert.Equal(t, "/var/lib/docweaver.db", Path(cfg))
}

func TestRecordAndMarkSession(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	require.NoError(t, store.RecordSession(ctx, "s1", []string{"a.md", "b.md"}, base))
	got, err := store.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, got.Inputs)
	assert.Equal(t, types.StatusInitializing, got.Status)
	assert.True(t, base.Equal(got.CreatedAt))

	require.NoError(t, store.MarkSession(ctx, "s1", types.StatusComplete, "/out.md", base.Add(time.Minute)))
	got, err = store.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusComplete, got.Status)
	assert.Equal(t, "/out.md", got.OutputPath)
	assert.True(t, base.Add(time.Minute).Equal(got.UpdatedAt))
	assert.True(t, base.Equal(got.CreatedAt), "created_at is kept")

	// Recording again refreshes inputs without resetting status.
	require.NoError(t, store.RecordSession(ctx, "s1", []string{"c.md"}, base.Add(2*time.Minute)))
	got, err = store.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.md"}, got.Inputs)
	assert.Equal(t, types.StatusComplete, got.Status)
}

func TestMarkUnknownSession(t *testing.T) {
	err := testStore(t).MarkSession(context.Background(), "nope", types.StatusFailed, "", base)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = testStore(t).Session(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	var journal workflow.Journal = store

	events := []workflow.Event{
		{SessionID: "s1", Step: workflow.StepScanAssets, Status: types.StatusProcessing, Message: "Scanned 0 references", At: base},
		{SessionID: "s1", Step: types.StepTools, Status: types.StatusValidating, CheckpointID: "cp1", At: base.Add(time.Second)},
		{SessionID: "s1", Step: types.StepAgent, Status: types.StatusProcessing, Err: "boom", At: base.Add(2 * time.Second)},
	}
	for _, e := range events {
		require.NoError(t, journal.Record(ctx, e))
	}
	require.NoError(t, store.RecordEvent(ctx, workflow.Event{SessionID: "s2", Step: types.StepComplete, Status: types.StatusComplete, At: base}))

	got, err := store.Events(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range events {
		assert.Equal(t, events[i].Step, got[i].Step)
		assert.Equal(t, events[i].Status, got[i].Status)
		assert.Equal(t, events[i].CheckpointID, got[i].CheckpointID)
		assert.Equal(t, events[i].Message, got[i].Message)
		assert.Equal(t, events[i].Err, got[i].Err)
		assert.True(t, events[i].At.Equal(got[i].At))
	}

	// Events create a stub session that tracks the latest status.
	sess, err := store.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, sess.Status)
	assert.Empty(t, sess.Inputs)

	none, err := store.Events(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessionsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.RecordSession(ctx, id, nil, base.Add(time.Duration(i)*time.Hour)))
	}

	all, err := store.Sessions(ctx, 0)
	require.NoError(t, err)
	var ids []string
	for _, s := range all {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)

	two, err := store.Sessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestDeleteSessionRemovesEvents(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	require.NoError(t, store.RecordEvent(ctx, workflow.Event{SessionID: "s1", Step: types.StepAgent, Status: types.StatusProcessing, At: base}))
	require.NoError(t, store.DeleteSession(ctx, "s1"))

	events, err := store.Events(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, events)
	_, err = store.Session(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DefaultFile)
	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordSession(ctx, "s1", []string{"a.md"}, base))
	require.NoError(t, store.Close())

	store, err = NewStore(path)
	require.NoError(t, err)
	defer store.Close()
	all, err := store.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "s1", all[0].ID)
}
