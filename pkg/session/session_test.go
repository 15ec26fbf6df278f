package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questgraph/pkg/db"
	"questgraph/pkg/quest"
	"questgraph/pkg/store"
)

// trail: start {gate: open->hall, shut->end}, hall {echo: timed->end}, end terminal.
func trail(t *testing.T, wait time.Duration) *quest.Quest {
	t.Helper()
	q, err := quest.New("trail", 0, []*quest.Pool{
		quest.NewPool("start", quest.NewEvent("gate").To("open", 1).To("shut", 2)),
		quest.NewPool("hall", quest.NewTimedEvent("echo", wait, 2)),
		quest.NewPool("end"),
	}, []string{"arrived"}, quest.WithSelector(&quest.SequenceSelector{}))
	require.NoError(t, err)
	return q
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	st := store.NewSQLiteStore(d)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSession_PlayThrough(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	s := New(trail(t, time.Millisecond), WithStore(st))

	require.NoError(t, s.Start(ctx))
	snap := s.Snapshot()
	require.NotEmpty(t, snap.RunID)
	assert.Equal(t, "event", snap.Status)
	require.NotNil(t, snap.Event)
	assert.Equal(t, "gate", snap.Event.Name)
	assert.Equal(t, []string{"open", "shut"}, snap.Event.Endings)

	eff, err := s.Choose(ctx, "open")
	require.NoError(t, err)
	assert.False(t, eff.QuestFinished)
	assert.Equal(t, "echo", s.Current().Name)
	assert.Equal(t, int64(1), s.Snapshot().Event.WaitMS)

	eff, err = s.Choose(ctx, quest.StandardEnding)
	require.NoError(t, err)
	assert.True(t, eff.QuestFinished)

	snap = s.Snapshot()
	assert.Nil(t, snap.Event)
	assert.True(t, snap.Finished)
	assert.Equal(t, "finished", snap.Status)
	assert.Equal(t, 2, snap.Steps)

	journal := s.Journal()
	require.Len(t, journal, 2)
	assert.Equal(t, "gate", journal[0].Event)
	assert.Equal(t, "start", journal[0].FromPool)
	assert.Equal(t, "hall", journal[0].ToPool)
	assert.True(t, journal[1].Finished)

	stored, err := st.ListResolutions(ctx, snap.RunID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	run, err := st.GetRun(ctx, snap.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.Finished())
	assert.Equal(t, "arrived", run.Ending)

	_, err = s.Choose(ctx, "open")
	assert.ErrorIs(t, err, ErrNoEvent)
}

func TestSession_InvalidEnding(t *testing.T) {
	ctx := context.Background()
	s := New(trail(t, time.Millisecond))
	require.NoError(t, s.Start(ctx))

	_, err := s.Choose(ctx, "sideways")
	assert.ErrorIs(t, err, quest.ErrInvalidEnding)
	assert.Equal(t, "gate", s.Current().Name)
	assert.Empty(t, s.Journal())
}

func TestSession_ChooseBeforeStart(t *testing.T) {
	s := New(trail(t, time.Millisecond))
	_, err := s.Choose(context.Background(), "open")
	assert.ErrorIs(t, err, ErrNoEvent)
}

func TestSession_AutoAdvance(t *testing.T) {
	ctx := context.Background()
	s := New(trail(t, 5*time.Millisecond))
	require.NoError(t, s.Start(ctx))

	assert.ErrorIs(t, s.AutoAdvance(ctx), ErrNotTimed)

	_, err := s.Choose(ctx, "open")
	require.NoError(t, err)

	require.NoError(t, s.AutoAdvance(ctx))
	assert.True(t, s.Snapshot().Finished)
	assert.ErrorIs(t, s.AutoAdvance(ctx), ErrNoEvent)
}

func TestSession_AutoAdvanceCancelled(t *testing.T) {
	s := New(trail(t, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	_, err := s.Choose(ctx, "open")
	require.NoError(t, err)

	cancel()
	assert.ErrorIs(t, s.AutoAdvance(ctx), context.Canceled)
	assert.Equal(t, "echo", s.Current().Name, "nothing resolved")
}

func TestSession_AutoAdvanceStale(t *testing.T) {
	ctx := context.Background()
	s := New(trail(t, 100*time.Millisecond))
	require.NoError(t, s.Start(ctx))
	_, err := s.Choose(ctx, "open")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.AutoAdvance(ctx) }()

	// The player resolves it before the timer fires.
	time.Sleep(10 * time.Millisecond)
	_, err = s.Choose(ctx, quest.StandardEnding)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("AutoAdvance did not return")
	}
	assert.Len(t, s.Journal(), 2, "the timer must not resolve twice")
}

func TestSession_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := New(trail(t, time.Millisecond))
	updates, cancel := s.Subscribe()

	require.NoError(t, s.Start(ctx))
	u := <-updates
	assert.Equal(t, "started", u.Kind)
	assert.Equal(t, "gate", u.Event.Name)

	_, err := s.Choose(ctx, "shut")
	require.NoError(t, err)
	u = <-updates
	assert.Equal(t, "resolved", u.Kind)
	assert.True(t, u.Finished)
	require.Len(t, u.Entries, 1)
	assert.Equal(t, "shut", u.Entries[0].Ending)
	assert.Equal(t, "end", u.Entries[0].ToPool)

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open)
}

func TestSession_Replace(t *testing.T) {
	ctx := context.Background()
	s := New(trail(t, time.Millisecond))
	require.NoError(t, s.Start(ctx))
	first := s.Snapshot().RunID
	_, err := s.Choose(ctx, "open")
	require.NoError(t, err)

	other, err := quest.New("other", 0, []*quest.Pool{
		quest.NewPool("p", quest.NewEvent("knock").To("done", 1)),
		quest.NewPool("end"),
	}, []string{"ok"})
	require.NoError(t, err)

	require.NoError(t, s.Replace(ctx, other))
	snap := s.Snapshot()
	assert.NotEqual(t, first, snap.RunID)
	assert.Equal(t, "other", snap.Quest)
	assert.Equal(t, "knock", snap.Event.Name)
	assert.Empty(t, s.Journal())
}

func TestSession_RestartResetsQuest(t *testing.T) {
	ctx := context.Background()
	s := New(trail(t, time.Millisecond))
	require.NoError(t, s.Start(ctx))
	_, err := s.Choose(ctx, "shut")
	require.NoError(t, err)
	require.True(t, s.Snapshot().Finished)

	require.NoError(t, s.Start(ctx))
	snap := s.Snapshot()
	assert.False(t, snap.Finished)
	assert.Equal(t, "gate", snap.Event.Name)
}

func TestSession_EmptyGraph(t *testing.T) {
	q, err := quest.New("void", 0, []*quest.Pool{quest.NewPool("end")}, []string{"none"})
	require.NoError(t, err)

	s := New(q)
	require.NoError(t, s.Start(context.Background()))
	snap := s.Snapshot()
	assert.Equal(t, "empty_graph", snap.Status)
	assert.Nil(t, snap.Event)
	assert.True(t, snap.Finished)
}

func TestSession_NestedJournal(t *testing.T) {
	cave, err := quest.New("cave", 0, []*quest.Pool{
		quest.NewPool("mouth", quest.NewEvent("bats").To("flee", 1)),
		quest.NewPool("exit"),
	}, []string{"out"}, quest.WithEndingPools(1))
	require.NoError(t, err)

	q, err := quest.New("hill", 0, []*quest.Pool{
		quest.NewPool("slope", &cave.Event),
		quest.NewPool("top"),
	}, []string{"summit"})
	require.NoError(t, err)

	ctx := context.Background()
	s := New(q)
	require.NoError(t, s.Start(ctx))

	snap := s.Snapshot()
	require.NotNil(t, snap.Event)
	assert.Equal(t, "bats", snap.Event.Name)
	assert.Equal(t, "cave", snap.Event.Quest, "view names the innermost quest")

	eff, err := s.Choose(ctx, "flee")
	require.NoError(t, err)
	assert.True(t, eff.QuestFinished)

	j := s.Journal()
	require.Len(t, j, 2)
	assert.Equal(t, "cave", j[0].Quest)
	assert.Equal(t, "mouth", j[0].FromPool)
	assert.Equal(t, "exit", j[0].ToPool)
	assert.Equal(t, "hill", j[1].Quest)
	assert.Equal(t, "cave", j[1].Event)
	assert.Equal(t, "out", j[1].Ending)
	assert.Equal(t, "top", j[1].ToPool)
	assert.Equal(t, []int{1, 2}, []int{j[0].Seq, j[1].Seq})
}

func TestSession_Run(t *testing.T) {
	// Two timed events in a row, resolved without any player input.
	q, err := quest.New("clock", 0, []*quest.Pool{
		quest.NewPool("tick", quest.NewTimedEvent("tick", 2*time.Millisecond, 1)),
		quest.NewPool("tock", quest.NewTimedEvent("tock", 2*time.Millisecond, 2)),
		quest.NewPool("end"),
	}, []string{"rang"})
	require.NoError(t, err)

	s := New(q)
	updates, cancelSub := s.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for finished := false; !finished; {
		select {
		case u := <-updates:
			finished = u.Finished
		case <-deadline:
			t.Fatal("timed events were not resolved")
		}
	}
	assert.Len(t, s.Journal(), 2)

	cancel()
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSession_StalledStartFinishesRun(t *testing.T) {
	// The only event at the start is a sub-quest whose start pool is terminal:
	// the first dispatch discards it and drains the queue.
	hollow, err := quest.New("hollow", 0, []*quest.Pool{quest.NewPool("void")}, []string{"empty"}, quest.WithEndingPools(1))
	require.NoError(t, err)
	q, err := quest.New("outer", 0, []*quest.Pool{
		quest.NewPool("gate", &hollow.Event),
		quest.NewPool("end"),
	}, []string{"done"})
	require.NoError(t, err)

	ctx := context.Background()
	st := newStore(t)
	s := New(q, WithStore(st))
	require.NoError(t, s.Start(ctx))

	snap := s.Snapshot()
	assert.Nil(t, snap.Event)
	assert.Equal(t, "finished", snap.Status)
	assert.True(t, snap.Finished)

	run, err := st.GetRun(ctx, snap.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.Finished())
	assert.Equal(t, "done", run.Ending)
}

func TestSession_StallInsideSubQuestIsRetried(t *testing.T) {
	// den: bats leads to a pool holding an empty quest, so the dispatch after
	// the decision stalls inside den with both queues drained.
	hollow, err := quest.New("hollow", 0, []*quest.Pool{quest.NewPool("void")}, []string{"empty"}, quest.WithEndingPools(2))
	require.NoError(t, err)
	den, err := quest.New("den", 0, []*quest.Pool{
		quest.NewPool("mouth", quest.NewEvent("bats").To("flee", 1)),
		quest.NewPool("pit", &hollow.Event),
		quest.NewPool("exit"),
	}, []string{"out"}, quest.WithEndingPools(1))
	require.NoError(t, err)
	q, err := quest.New("hill", 0, []*quest.Pool{
		quest.NewPool("slope", &den.Event),
		quest.NewPool("top"),
	}, []string{"summit"})
	require.NoError(t, err)

	ctx := context.Background()
	st := newStore(t)
	s := New(q, WithStore(st))
	require.NoError(t, s.Start(ctx))
	require.Equal(t, "bats", s.Current().Name)

	_, err = s.Choose(ctx, "flee")
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Nil(t, snap.Event)
	assert.Equal(t, "finished", snap.Status)
	assert.True(t, snap.Finished)
	assert.True(t, den.IsFinished())

	run, err := st.GetRun(ctx, snap.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.Finished())
	assert.Equal(t, "summit", run.Ending)

	_, err = s.Choose(ctx, "flee")
	assert.ErrorIs(t, err, ErrNoEvent)
}

func TestSession_DecideReturnsOwnEntries(t *testing.T) {
	ctx := context.Background()
	s := New(trail(t, time.Millisecond))
	require.NoError(t, s.Start(ctx))

	_, entries, err := s.Decide(ctx, "open")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gate", entries[0].Event)

	_, entries, err = s.Decide(ctx, quest.StandardEnding)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "echo", entries[0].Event)
	assert.Equal(t, 2, entries[0].Seq)

	_, entries, err = s.Decide(ctx, "open")
	assert.ErrorIs(t, err, ErrNoEvent)
	assert.Nil(t, entries)
}

func TestViewOf_CarriesIntensity(t *testing.T) {
	e := quest.NewEvent("storm").To("wait", 1)
	e.Intensity = 0.8
	q, err := quest.New("sky", 0, []*quest.Pool{quest.NewPool("cloud", e), quest.NewPool("end")}, []string{"clear"})
	require.NoError(t, err)

	s := New(q)
	require.NoError(t, s.Start(context.Background()))
	v := s.Snapshot().Event
	require.NotNil(t, v)
	assert.InDelta(t, 0.8, v.Intensity, 1e-9)
}
