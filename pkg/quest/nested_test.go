package quest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cave is a two-step sub-quest: S0 = {s0}: a -> S1, S1 = {s1}: b -> S2 (terminal).
func cave(t *testing.T, outer ...PoolID) (sub *Quest, s0, s1 *Event) {
	t.Helper()
	s0 = NewEvent("s0").To("a", 1)
	s1 = NewEvent("s1").To("b", 2)
	sub, err := New("cave", 0,
		[]*Pool{NewPool("S0", s0), NewPool("S1", s1), NewPool("S2")},
		[]string{"escaped", "lost"}, WithEndingPools(outer...))
	require.NoError(t, err)
	return sub, s0, s1
}

// Outer: P0 = {cave}: escaped -> P2, lost -> P1. P1 terminal. P2 = {e2}: end -> P1.
func nestedQuest(t *testing.T) (q, sub *Quest, s0, s1, e2 *Event) {
	t.Helper()
	sub, s0, s1 = cave(t, 2, 1)
	e2 = NewEvent("e2").To("end", 1)
	q, err := New("outer", 0,
		[]*Pool{NewPool("P0", &sub.Event), NewPool("P1"), NewPool("P2", e2)},
		[]string{"done"})
	require.NoError(t, err)
	return q, sub, s0, s1, e2
}

func TestNested_DelegatesUntilSubQuestFinishes(t *testing.T) {
	q, sub, s0, s1, e2 := nestedQuest(t)

	assert.Equal(t, KindQuest, sub.Kind())
	assert.Same(t, sub, sub.Event.Quest())
	assert.Equal(t, q.ID(), sub.Owner())
	assert.Equal(t, sub.ID(), s0.Owner())

	e, st := q.NextEvent()
	require.Equal(t, StatusEvent, st)
	assert.Same(t, s0, e)
	assert.Same(t, sub, q.ActiveSubQuest())
	assert.Equal(t, []*Event{&sub.Event}, q.ActiveEvents())
	assert.Equal(t, []PoolID{0}, q.ActivePools())
	assert.Equal(t, []*Quest{q, sub}, q.Layers())
	assertConservation(t, q)

	eff, err := q.EventUpdate(s0, "a")
	require.NoError(t, err)
	require.Len(t, eff.Resolved, 1)
	assert.Equal(t, sub.ID(), eff.Resolved[0].Quest)
	assert.False(t, eff.QuestFinished)

	// the outer graph is untouched while delegated
	assert.Empty(t, q.Pending())
	assert.Equal(t, []PoolID{0}, q.ActivePools())
	assert.Same(t, sub, q.ActiveSubQuest())
	assert.Equal(t, []PoolID{1}, sub.Pending())
	assertConservation(t, q)

	e, st = q.NextEvent()
	require.Equal(t, StatusEvent, st)
	assert.Same(t, s1, e)

	eff, err = q.EventUpdate(s1, "b")
	require.NoError(t, err)
	assert.True(t, sub.IsFinished())
	subEnding, _ := sub.ChosenEnding()
	assert.Equal(t, "escaped", subEnding)

	require.Len(t, eff.Resolved, 2)
	assert.Same(t, s1, eff.Resolved[0].Event)
	assert.True(t, eff.Resolved[0].Finished)
	outerRes, ok := eff.Last()
	require.True(t, ok)
	assert.Same(t, &sub.Event, outerRes.Event)
	assert.Equal(t, "escaped", outerRes.Ending)
	assert.Equal(t, PoolID(2), outerRes.To)
	assert.False(t, eff.QuestFinished)

	assert.Nil(t, q.ActiveSubQuest())
	assert.Empty(t, q.ActiveEvents())
	assert.Equal(t, []PoolID{2}, q.Pending())
	assert.True(t, q.Pool(0).EdgeUsed(2))
	assertConservation(t, q)

	e, st = q.NextEvent()
	require.Equal(t, StatusEvent, st)
	assert.Same(t, e2, e)

	eff, err = q.EventUpdate(e2, "end")
	require.NoError(t, err)
	assert.True(t, eff.QuestFinished)
	assert.True(t, q.IsFinished())

	e, st = q.NextEvent()
	assert.Nil(t, e)
	assert.Equal(t, StatusFinished, st)
}

func TestNested_InvalidEndingIsRejectedBySubQuest(t *testing.T) {
	q, sub, s0, _, _ := nestedQuest(t)
	_, _ = q.NextEvent()

	_, err := q.EventUpdate(s0, "nope")
	assert.ErrorIs(t, err, ErrInvalidEnding)
	assert.Equal(t, []*Event{s0}, sub.ActiveEvents())
	assert.Same(t, sub, q.ActiveSubQuest())
}

func TestNested_FinishedSubQuestStallsThenFinishes(t *testing.T) {
	hollow, err := New("hollow", 0, []*Pool{NewPool("H0")}, []string{"empty"}, WithEndingPools(1))
	require.NoError(t, err)
	q, err := New("outer", 0, []*Pool{NewPool("P0", &hollow.Event), NewPool("P1")}, []string{"done"})
	require.NoError(t, err)

	e, st := q.NextEvent()
	assert.Nil(t, e)
	assert.Equal(t, StatusStalled, st)
	assert.False(t, q.IsFinished())
	assert.True(t, hollow.IsFinished())
	assert.Empty(t, q.Pending())

	e, st = q.NextEvent()
	assert.Nil(t, e)
	assert.Equal(t, StatusFinished, st)
	assert.True(t, q.IsFinished())
}

func TestNested_ScanSkipsPoolThatSlidIntoPlace(t *testing.T) {
	hollow, err := New("hollow", 0, []*Pool{NewPool("H0")}, []string{"empty"}, WithEndingPools(3))
	require.NoError(t, err)

	start := NewEvent("start").To("go", 2)
	eb := NewEvent("eb").To("end", 3)
	q, err := New("outer", 0,
		[]*Pool{NewPool("P0", start), NewPool("PA", &hollow.Event), NewPool("PB", eb), NewPool("END")},
		[]string{"done"})
	require.NoError(t, err)

	// The outer Init cascaded into hollow; finish it before dispatching.
	hollow.NextEvent()
	require.True(t, hollow.IsFinished())

	q.pending = []PoolID{1, 2}
	q.dispatched = true

	e, st := q.NextEvent()
	assert.Nil(t, e)
	assert.Equal(t, StatusStalled, st)
	assert.Equal(t, []PoolID{2}, q.Pending())

	e, st = q.NextEvent()
	assert.Equal(t, StatusEvent, st)
	assert.Same(t, eb, e)
}

func TestNested_SubQuestFinishingDuringDispatchIsCleared(t *testing.T) {
	q, sub, _, _, _ := nestedQuest(t)
	_, _ = q.NextEvent()
	require.Same(t, sub, q.ActiveSubQuest())

	// Drain the sub-quest's queue behind the outer quest's back.
	sub.pending = nil
	sub.activeEvents = nil
	sub.activePools = nil

	e, st := q.NextEvent()
	assert.Nil(t, q.ActiveSubQuest())
	assert.True(t, sub.IsFinished())
	// the outer queue was empty too, so the outer quest concludes
	assert.Nil(t, e)
	assert.Equal(t, StatusFinished, st)
}

func TestNested_InitCascades(t *testing.T) {
	q, sub, s0, s1, _ := nestedQuest(t)
	_, _ = q.NextEvent()
	_, _ = q.EventUpdate(s0, "a")
	_, _ = q.NextEvent()
	_, _ = q.EventUpdate(s1, "b")
	require.True(t, sub.IsFinished())

	q.Init()

	assert.False(t, sub.IsFinished())
	assert.False(t, s0.IsFinished())
	assert.Equal(t, []PoolID{0}, sub.Pending())
	assert.Equal(t, q.ID(), sub.Owner())
	assert.Nil(t, q.ActiveSubQuest())

	e, _ := q.NextEvent()
	assert.Same(t, s0, e)
}

func TestTimedEvent(t *testing.T) {
	ev := NewTimedEvent("pause", 0, 1)
	assert.True(t, ev.IsTimed())
	assert.Equal(t, DefaultWait, ev.Wait)
	assert.Equal(t, []string{StandardEnding}, ev.Endings)

	q, err := New("timed", 0, []*Pool{NewPool("P0", ev), NewPool("P1")}, []string{"end"})
	require.NoError(t, err)

	e, _ := q.NextEvent()
	require.Same(t, ev, e)
	eff, err := q.EventUpdate(e, StandardEnding)
	require.NoError(t, err)
	assert.True(t, eff.QuestFinished)

	custom := NewTimedEvent("beat", 5*time.Second, 0)
	assert.Equal(t, 5*time.Second, custom.Wait)
	assert.False(t, NewEvent("choice").To("a", 0).IsTimed())
}

func TestEvent_ResolveOnce(t *testing.T) {
	ev := NewEvent("e").To("a", 0).To("b", 0)

	err := ev.Resolve("c")
	assert.ErrorIs(t, err, ErrInvalidEnding)
	assert.False(t, ev.IsFinished())

	require.NoError(t, ev.Resolve("a"))
	assert.True(t, ev.IsFinished())

	err = ev.Resolve("b")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	ending, ok := ev.ChosenEnding()
	assert.True(t, ok)
	assert.Equal(t, "a", ending)

	dest, err := ev.Destination("b")
	assert.NoError(t, err)
	assert.Equal(t, PoolID(0), dest)
	_, err = ev.Destination("z")
	assert.ErrorIs(t, err, ErrInvalidEnding)
}

func TestKindAndStatusStrings(t *testing.T) {
	assert.Equal(t, "event", KindEvent.String())
	assert.Equal(t, "quest", KindQuest.String())
	assert.Equal(t, "stalled", StatusStalled.String())
	assert.Equal(t, "empty_graph", StatusEmptyGraph.String())
}

func TestSequenceSelector_Wraps(t *testing.T) {
	s := &SequenceSelector{Picks: []int{4, -1}}
	assert.Equal(t, 1, s.IntN(3))
	assert.Equal(t, 1, s.IntN(3))
	assert.Equal(t, 1, s.IntN(3))
	assert.Equal(t, 0, (&SequenceSelector{}).IntN(5))
}
