// Package session drives a quest for a player: it dispatches events, applies
// decisions, resolves timed events, journals every resolution and notifies
// subscribers. All engine calls are serialized behind one mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"questgraph/pkg/logging"
	"questgraph/pkg/model"
	"questgraph/pkg/quest"
	"questgraph/pkg/store"
)

var (
	// ErrNoEvent is returned when a decision arrives while nothing is in play.
	ErrNoEvent = errors.New("session: no event in play")
	// ErrNotTimed is returned by AutoAdvance when the current event waits for a decision.
	ErrNotTimed = errors.New("session: current event is not timed")
	// ErrStale is returned by AutoAdvance when the event changed while it waited.
	ErrStale = errors.New("session: event changed while waiting")
)

// Update is sent to subscribers after every change.
type Update struct {
	Kind     string               `json:"kind"` // "started", "resolved", "replaced"
	RunID    string               `json:"run_id"`
	Status   string               `json:"status"`
	Event    *model.EventView     `json:"event,omitempty"`
	Entries  []model.JournalEntry `json:"entries,omitempty"`
	Finished bool                 `json:"finished"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	RunID    string           `json:"run_id"`
	Quest    string           `json:"quest"`
	Status   string           `json:"status"`
	Event    *model.EventView `json:"event,omitempty"`
	Finished bool             `json:"finished"`
	Steps    int              `json:"steps"`
}

// Session holds one quest and the event currently in play.
type Session struct {
	mu      sync.Mutex
	q       *quest.Quest
	current *quest.Event
	status  quest.Status
	runID   string
	journal []model.JournalEntry

	store store.JournalStore
	log   *slog.Logger
	now   func() time.Time

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int
}

// Option configures a Session.
type Option func(*Session)

// WithStore journals runs into st.
func WithStore(st store.JournalStore) Option {
	return func(s *Session) { s.store = st }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a session for q. Nothing is dispatched until Start.
func New(q *quest.Quest, opts ...Option) *Session {
	s := &Session{
		q:    q,
		log:  slog.Default(),
		now:  time.Now,
		subs: make(map[int]chan Update),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start resets the quest and begins a new run.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	u, err := s.startLocked(ctx, "started")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(u)
	return nil
}

// Replace swaps in a different quest and starts a run on it. The previous run
// is left open in the journal.
func (s *Session) Replace(ctx context.Context, q *quest.Quest) error {
	s.mu.Lock()
	s.q = q
	u, err := s.startLocked(ctx, "replaced")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(u)
	return nil
}

func (s *Session) startLocked(ctx context.Context, kind string) (Update, error) {
	s.q.Init()
	s.current = nil
	s.journal = nil
	s.runID = uuid.NewString()

	if s.store != nil {
		run := &model.Run{ID: s.runID, Quest: s.q.Name, StartedAt: s.now()}
		if err := s.store.StartRun(ctx, run); err != nil {
			return Update{}, fmt.Errorf("failed to journal run: %w", err)
		}
	}
	s.log.Info("Run started", "run", s.runID, "quest", s.q.Name)

	s.advanceLocked(ctx)
	return s.updateLocked(kind, nil), nil
}

// advanceLocked asks the quest for the next event. A stalled dispatch is
// retried while each call still drains queued pools; once the queues are
// empty the next call concludes the quest.
func (s *Session) advanceLocked(ctx context.Context) {
	e, st := s.q.NextEvent()
	for st == quest.StatusStalled {
		left := queued(s.q)
		if logging.EnableTrace {
			logging.Trace(s.log, "dispatch stalled, retrying", "pending", left, "dump", s.q.String())
		}
		e, st = s.q.NextEvent()
		if st == quest.StatusStalled && queued(s.q) >= left {
			break
		}
	}
	s.current, s.status = e, st

	switch st {
	case quest.StatusEvent:
		logging.Trace(s.log, "Event in play", "event", e.Name)
	case quest.StatusStalled:
		s.log.Warn("Quest stalled with nothing to dispatch", "quest", s.q.Name, "pending", s.q.Pending())
	case quest.StatusEmptyGraph:
		s.log.Warn("Quest starts on a terminal pool", "quest", s.q.Name)
		s.finishRunLocked(ctx)
	case quest.StatusFinished:
		s.finishRunLocked(ctx)
	}
}

// queued counts the pools waiting in q and in its active sub-quests.
func queued(q *quest.Quest) int {
	n := 0
	for _, l := range q.Layers() {
		n += len(l.Pending())
	}
	return n
}

func (s *Session) finishRunLocked(ctx context.Context) {
	ending, _ := s.q.ChosenEnding()
	s.log.Info("Run finished", "run", s.runID, "quest", s.q.Name, "ending", ending, "steps", len(s.journal))
	if s.store == nil {
		return
	}
	if err := s.store.FinishRun(ctx, s.runID, ending, s.now()); err != nil {
		s.log.Error("Failed to journal run end", "run", s.runID, "error", err)
	}
}

// Choose resolves the current event with ending and dispatches the next one.
func (s *Session) Choose(ctx context.Context, ending string) (quest.Effect, error) {
	eff, _, err := s.Decide(ctx, ending)
	return eff, err
}

// Decide is Choose that also returns the journal entries this decision added.
func (s *Session) Decide(ctx context.Context, ending string) (quest.Effect, []model.JournalEntry, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return quest.Effect{}, nil, ErrNoEvent
	}
	eff, u, err := s.resolveLocked(ctx, s.current, ending)
	s.mu.Unlock()
	if err != nil {
		return eff, nil, err
	}
	s.publish(u)
	return eff, u.Entries, nil
}

func (s *Session) resolveLocked(ctx context.Context, e *quest.Event, ending string) (quest.Effect, Update, error) {
	// Sub-quests may leave the layer chain during the update; keep them for naming pools.
	layers := make(map[uuid.UUID]*quest.Quest)
	for _, l := range s.q.Layers() {
		layers[l.ID()] = l
	}

	eff, err := s.q.EventUpdate(e, ending)
	if err != nil {
		return eff, Update{}, err
	}

	entries := make([]model.JournalEntry, 0, len(eff.Resolved))
	for _, r := range eff.Resolved {
		entry := s.entryLocked(r, layers[r.Quest])
		s.journal = append(s.journal, entry)
		entries = append(entries, entry)

		logging.LogResolution(&entry)
		if s.store != nil {
			if err := s.store.RecordResolution(ctx, &entry); err != nil {
				s.log.Error("Failed to journal resolution", "run", s.runID, "event", entry.Event, "error", err)
			}
		}
	}

	s.advanceLocked(ctx)
	return eff, s.updateLocked("resolved", entries), nil
}

func (s *Session) entryLocked(r quest.Resolution, owner *quest.Quest) model.JournalEntry {
	entry := model.JournalEntry{
		RunID:     s.runID,
		Seq:       len(s.journal) + 1,
		QuestID:   r.Quest.String(),
		Quest:     r.QuestName,
		Event:     r.Event.Name,
		Ending:    r.Ending,
		Finished:  r.Finished,
		CreatedAt: s.now(),
	}
	if owner != nil {
		if p := owner.Pool(r.From); p != nil {
			entry.FromPool = p.Name
		}
		if p := owner.Pool(r.To); p != nil {
			entry.ToPool = p.Name
		}
	}
	return entry
}

// AutoAdvance waits out the current timed event and resolves it with the
// standard ending. It returns ErrNotTimed for events awaiting a decision and
// ErrStale when a decision arrived first.
func (s *Session) AutoAdvance(ctx context.Context) error {
	s.mu.Lock()
	e := s.current
	s.mu.Unlock()

	if e == nil {
		return ErrNoEvent
	}
	if !e.IsTimed() {
		return ErrNotTimed
	}

	t := time.NewTimer(e.Wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	s.mu.Lock()
	if s.current != e {
		s.mu.Unlock()
		return ErrStale
	}
	_, u, err := s.resolveLocked(ctx, e, quest.StandardEnding)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(u)
	return nil
}

// Run resolves timed events as they come up until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	updates, cancel := s.Subscribe()
	defer cancel()

	for {
		err := s.AutoAdvance(ctx)
		switch {
		case err == nil, errors.Is(err, ErrNotTimed), errors.Is(err, ErrStale), errors.Is(err, ErrNoEvent):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			s.log.Error("Auto-advance failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-updates:
		}
	}
}

// Current returns the event in play, nil when there is none. Callers must not
// modify it.
func (s *Session) Current() *quest.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Snapshot returns the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		RunID:    s.runID,
		Quest:    s.q.Name,
		Status:   s.status.String(),
		Event:    s.viewLocked(),
		Finished: s.q.IsFinished(),
		Steps:    len(s.journal),
	}
}

// Journal returns the current run's resolutions in order.
func (s *Session) Journal() []model.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.JournalEntry, len(s.journal))
	copy(out, s.journal)
	return out
}

// View runs fn with the quest while holding the session lock. fn must not
// call back into the session.
func (s *Session) View(fn func(q *quest.Quest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.q)
}

func (s *Session) updateLocked(kind string, entries []model.JournalEntry) Update {
	return Update{
		Kind:     kind,
		RunID:    s.runID,
		Status:   s.status.String(),
		Event:    s.viewLocked(),
		Entries:  entries,
		Finished: s.q.IsFinished(),
	}
}

func (s *Session) viewLocked() *model.EventView {
	if s.current == nil {
		return nil
	}
	return ViewOf(s.q, s.current)
}

// ViewOf copies e for presentation, naming the innermost quest of q that runs it.
func ViewOf(q *quest.Quest, e *quest.Event) *model.EventView {
	v := &model.EventView{
		Name:      e.Name,
		Kind:      e.Kind().String(),
		Quest:     q.Name,
		Text:      e.Content.Text,
		Decisions: append([]string(nil), e.Content.Decisions...),
		Endings:   append([]string(nil), e.Endings...),
		Tutorial:  e.Content.Tutorial,
		Intensity: e.Intensity,
	}
	if e.IsTimed() {
		v.WaitMS = e.Wait.Milliseconds()
	}
	for _, l := range q.Layers() {
		if l.ID() == e.Owner() {
			v.Quest = l.Name
		}
	}
	return v
}

// Subscribe returns a channel of updates and a func that stops them.
// Slow subscribers miss updates rather than block the session.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Update, 16)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Session) publish(u Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- u:
		default:
			s.log.Debug("Subscriber lagging, update dropped", "subscriber", id)
		}
	}
}
