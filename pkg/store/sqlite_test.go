package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questgraph/pkg/db"
	"questgraph/pkg/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	s := NewSQLiteStore(d)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.StartRun(ctx, &model.Run{ID: "r1", Quest: "wanderer", StartedAt: started}))

	run, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "wanderer", run.Quest)
	assert.True(t, run.StartedAt.Equal(started))
	assert.False(t, run.Finished())

	finished := started.Add(5 * time.Minute)
	require.NoError(t, s.FinishRun(ctx, "r1", "home", finished))

	run, err = s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, run.Finished())
	assert.Equal(t, "home", run.Ending)

	// A second finish keeps the first ending.
	require.NoError(t, s.FinishRun(ctx, "r1", "other", finished.Add(time.Minute)))
	run, err = s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "home", run.Ending)
}

func TestSQLiteStore_Missing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, run)

	assert.ErrorIs(t, s.FinishRun(ctx, "nope", "x", time.Now()), ErrRunNotFound)
	assert.ErrorIs(t, s.RecordResolution(ctx, &model.JournalEntry{RunID: "nope", Event: "e", Ending: "x"}), ErrRunNotFound)
}

func TestSQLiteStore_Resolutions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartRun(ctx, &model.Run{ID: "r1", Quest: "wanderer"}))
	require.NoError(t, s.StartRun(ctx, &model.Run{ID: "r2", Quest: "wanderer"}))

	entries := []*model.JournalEntry{
		{RunID: "r1", QuestID: "q-outer", Quest: "wanderer", Event: "crossroads", Ending: "left", FromPool: "road", ToPool: "forest"},
		{RunID: "r1", QuestID: "q-cave", Quest: "cave", Event: "bats", Ending: "flee", FromPool: "mouth", ToPool: "exit", Finished: true},
		{RunID: "r2", QuestID: "q-outer", Quest: "wanderer", Event: "crossroads", Ending: "right", FromPool: "road", ToPool: "river"},
		{RunID: "r1", QuestID: "q-outer", Quest: "wanderer", Event: "cave", Ending: "out", FromPool: "forest", ToPool: "end"},
	}
	for _, e := range entries {
		require.NoError(t, s.RecordResolution(ctx, e))
	}
	assert.Equal(t, 3, entries[3].Seq, "seq is assigned per run")
	assert.Equal(t, 1, entries[2].Seq)

	got, err := s.ListResolutions(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"crossroads", "bats", "cave"}, []string{got[0].Event, got[1].Event, got[2].Event})
	assert.True(t, got[1].Finished)
	assert.Equal(t, "cave", got[1].Quest)
	assert.Equal(t, "exit", got[1].ToPool)

	// Duplicate seq is rejected.
	dup := *entries[0]
	assert.Error(t, s.RecordResolution(ctx, &dup))
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.StartRun(ctx, &model.Run{ID: id, Quest: "q", StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
