package runs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_StartAndFinish(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run, err := store.Start(ctx, "spring_reviewer", "/work/project", "/skills/spring_reviewer/config/critical-rules.xml")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, StatusRunning, run.Status)

	require.NoError(t, store.Finish(ctx, run.ID, 4, 7, nil))

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, 4, got.ExitCode)
	assert.Equal(t, 7, got.Violations)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.FinishedAt)
	assert.GreaterOrEqual(t, got.Duration(), time.Duration(0))
}

func TestStore_FinishWithError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run, err := store.Start(ctx, "spring_reviewer", "/work/project", "rules.xml")
	require.NoError(t, err)
	require.NoError(t, store.Finish(ctx, run.ID, 1, 0, errors.New("pmd exited with code 1")))

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "pmd exited with code 1", got.Error)
}

func TestStore_FinishUnknownRun(t *testing.T) {
	store := openTestStore(t)
	err := store.Finish(context.Background(), "missing", 0, 0, nil)
	assert.ErrorContains(t, err, "not found")
}

func TestStore_RecentNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return at }
		run, err := store.Start(ctx, "spring_reviewer", "/work", "rules.xml")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[1], recent[1].ID)
	assert.Nil(t, recent[0].FinishedAt)
	assert.True(t, recent[0].StartedAt.Equal(base.Add(2*time.Minute)))
}

func TestStore_GetByPrefix(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ids := []string{"ab12cd34-0000-4000-8000-000000000001", "ab12ef56-0000-4000-8000-000000000002"}
	next := 0
	store.newID = func() string { id := ids[next]; next++; return id }
	for range ids {
		_, err := store.Start(ctx, "spring_reviewer", "/work", "rules.xml")
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, "ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, ids[0], got.ID)

	got, err = store.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], got.ID)

	_, err = store.Get(ctx, "ab12")
	assert.ErrorContains(t, err, "ambiguous")

	_, err = store.Get(ctx, "ffff")
	assert.ErrorContains(t, err, "not found")

	_, err = store.Get(ctx, "")
	assert.ErrorContains(t, err, "required")
}
