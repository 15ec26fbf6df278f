// Package quest implements the narrative progression engine: quests made of
// event pools, traversed one event at a time through NextEvent and EventUpdate.
//
// A Quest owns its pools in an arena indexed by PoolID. Endings point at pools by
// ID, so cyclic stories do not produce cyclic ownership. A quest is itself an
// Event and may sit in a pool of another quest; its traversal is then delegated
// until it reaches one of its terminal pools.
//
// The engine is synchronous and not safe for concurrent use. Drivers serialize
// calls, as session.Session does.
package quest

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Quest is an event that owns and traverses its own graph of pools.
type Quest struct {
	Event

	id    uuid.UUID
	start PoolID
	pools []*Pool

	pending      []PoolID
	activePools  []PoolID
	activeEvents []*Event
	activeSub    *Quest
	dispatched   bool

	selector Selector
	log      *slog.Logger
}

// Option configures a Quest at construction.
type Option func(*Quest)

// WithSelector sets the source used to pick events inside a pool.
func WithSelector(s Selector) Option {
	return func(q *Quest) {
		if s != nil {
			q.selector = s
		}
	}
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(q *Quest) {
		if l != nil {
			q.log = l
		}
	}
}

// WithEndingPools binds the quest's endings to pools of the parent quest it is
// nested in, positionally.
func WithEndingPools(dests ...PoolID) Option {
	return func(q *Quest) {
		q.EndingPools = slices.Clone(dests)
	}
}

// New builds a quest over pools, starting at start. endings are the labels the
// quest resolves with; it always concludes with endings[0].
func New(name string, start PoolID, pools []*Pool, endings []string, opts ...Option) (*Quest, error) {
	q := &Quest{
		id:       uuid.New(),
		start:    start,
		pools:    pools,
		selector: globalSelector{},
		log:      slog.Default(),
	}
	q.Event = Event{Name: name, Endings: slices.Clone(endings)}
	q.Event.sub = q

	for _, opt := range opts {
		opt(q)
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	for i, p := range pools {
		p.id = PoolID(i)
	}
	q.log = q.log.With("quest", name)

	q.Init()

	if q.EmptyGraph() {
		q.log.Warn("start pool is terminal, quest ends on first dispatch", "pool", q.pools[start].Name)
	}
	return q, nil
}

func (q *Quest) validate() error {
	if len(q.Endings) == 0 {
		return graphErr("quest %q declares no endings", q.Name)
	}
	if int(q.start) < 0 || int(q.start) >= len(q.pools) {
		return graphErr("quest %q start pool %d out of range", q.Name, q.start)
	}
	seenPools := make(map[*Pool]bool, len(q.pools))
	for i, p := range q.pools {
		if p == nil {
			return graphErr("quest %q pool %d is nil", q.Name, i)
		}
		if seenPools[p] {
			return graphErr("quest %q lists pool %q twice", q.Name, p.Name)
		}
		seenPools[p] = true
		for _, e := range p.Events {
			if err := q.validateEvent(p, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q *Quest) validateEvent(p *Pool, e *Event) error {
	if e == nil {
		return graphErr("pool %q holds a nil event", p.Name)
	}
	if len(e.Endings) == 0 {
		return graphErr("event %q in pool %q has no endings", e.Name, p.Name)
	}
	if len(e.Endings) != len(e.EndingPools) {
		return graphErr("event %q has %d endings but %d ending pools", e.Name, len(e.Endings), len(e.EndingPools))
	}
	for i, label := range e.Endings {
		if label == "" {
			return graphErr("event %q has an empty ending label", e.Name)
		}
		if slices.Index(e.Endings, label) != i {
			return graphErr("event %q declares ending %q twice", e.Name, label)
		}
		if dest := e.EndingPools[i]; int(dest) < 0 || int(dest) >= len(q.pools) {
			return graphErr("event %q ending %q points at missing pool %d", e.Name, label, dest)
		}
	}
	if e.sub != nil && e.sub.nests(q) {
		return graphErr("quest %q contains itself through %q", q.Name, e.Name)
	}
	return nil
}

// nests reports whether target is q or appears anywhere below q.
func (q *Quest) nests(target *Quest) bool {
	if q == target {
		return true
	}
	for _, p := range q.pools {
		for _, e := range p.Events {
			if e != nil && e.sub != nil && e.sub.nests(target) {
				return true
			}
		}
	}
	return false
}

// Init resets all runtime state for a new play-through, cascading into every
// pool, event and nested quest.
func (q *Quest) Init() {
	q.pending = append(q.pending[:0], q.start)
	q.activePools = q.activePools[:0]
	q.activeEvents = q.activeEvents[:0]
	q.activeSub = nil
	q.dispatched = false
	q.chosen = ""
	q.resolved = false

	for _, p := range q.pools {
		p.Init(q)
	}
}

// finish resolves the quest through its first ending.
func (q *Quest) finish() {
	if q.resolved {
		return
	}
	q.chosen = q.Endings[0]
	q.resolved = true
	q.log.Info("quest finished", "ending", q.chosen)
}

// NextEvent returns the next event to present. A nil event comes with the
// reason: finished, stalled, or an empty graph.
func (q *Quest) NextEvent() (*Event, Status) {
	if q.IsFinished() {
		return nil, StatusFinished
	}
	first := !q.dispatched
	q.dispatched = true

	if sub := q.activeSub; sub != nil {
		e, st := sub.NextEvent()
		if !sub.IsFinished() {
			return e, st
		}
		q.activeSub = nil
	}

	if len(q.pending) == 0 {
		q.finish()
		return nil, StatusFinished
	}

	// A discarded candidate is removed at i and the walk moves on to i+1, so the
	// pool that slid into i waits for the next call.
	for i := 0; i < len(q.pending); i++ {
		id := q.pending[i]
		p := q.pools[id]

		if p.IsTerminal() {
			q.finish()
			if first && id == q.start {
				return nil, StatusEmptyGraph
			}
			return nil, StatusFinished
		}

		q.pending = slices.Delete(q.pending, i, i+1)
		e := p.Events[q.selector.IntN(len(p.Events))]

		if slices.Contains(q.activeEvents, e) {
			q.log.Debug("candidate already in flight", "pool", p.Name, "event", e.Name)
			continue
		}

		switch e.Kind() {
		case KindQuest:
			sub := e.sub
			if sub.IsFinished() {
				q.log.Debug("sub-quest already finished", "pool", p.Name, "sub_quest", sub.Name)
				continue
			}
			inner, _ := sub.NextEvent()
			if inner == nil {
				q.log.Debug("sub-quest offered nothing", "pool", p.Name, "sub_quest", sub.Name)
				continue
			}
			q.activeSub = sub
			p.activate(q, e)
			q.log.Debug("entered sub-quest", "pool", p.Name, "sub_quest", sub.Name, "event", inner.Name)
			return inner, StatusEvent
		default:
			p.activate(q, e)
			q.log.Debug("dispatched event", "pool", p.Name, "event", e.Name)
			return e, StatusEvent
		}
	}

	return nil, StatusStalled
}

// EventUpdate records the ending chosen for e, which must be the event most
// recently returned by NextEvent. Events owned by an active sub-quest are
// delegated; when that sub-quest finishes, the rest of the update applies to
// the sub-quest itself with its own chosen ending.
func (q *Quest) EventUpdate(e *Event, ending string) (Effect, error) {
	var eff Effect
	if e == nil {
		return eff, fmt.Errorf("%w: nil event", ErrEventNotActive)
	}

	if e.owner != q.id {
		sub := q.activeSub
		if sub == nil {
			return eff, fmt.Errorf("%w: %q does not belong to quest %q", ErrEventNotActive, e.Name, q.Name)
		}
		inner, err := sub.EventUpdate(e, ending)
		if err != nil {
			return eff, err
		}
		eff.Resolved = append(eff.Resolved, inner.Resolved...)
		if !sub.IsFinished() {
			return eff, nil
		}
		e = &sub.Event
		ending = sub.chosen
	}

	if !slices.Contains(q.activeEvents, e) {
		return eff, fmt.Errorf("%w: %q in quest %q", ErrEventNotActive, e.Name, q.Name)
	}
	dest, err := e.Destination(ending)
	if err != nil {
		return eff, err
	}
	p := q.activePoolOf(e)
	if p == nil {
		return eff, fmt.Errorf("%w: %q has no active pool in quest %q", ErrEventNotActive, e.Name, q.Name)
	}

	if e.sub != nil && e.sub == q.activeSub {
		q.activeSub = nil
	}
	p.deactivate(q, e)
	if !e.IsFinished() {
		if err := e.Resolve(ending); err != nil {
			return eff, err
		}
	}
	p.markEdgeUsed(dest)

	r := Resolution{
		Quest:     q.id,
		QuestName: q.Name,
		Event:     e,
		Ending:    ending,
		From:      p.id,
		To:        dest,
	}
	if q.pools[dest].IsTerminal() {
		q.finish()
		r.Finished = true
		eff.QuestFinished = true
	}
	q.pending = append(q.pending, dest)
	eff.Resolved = append(eff.Resolved, r)

	q.log.Debug("event resolved", "event", e.Name, "ending", ending, "from", p.Name, "to", q.pools[dest].Name)
	return eff, nil
}

func (q *Quest) activePoolOf(e *Event) *Pool {
	for _, id := range q.activePools {
		if p := q.pools[id]; p.Contains(e) {
			return p
		}
	}
	return nil
}

// ID returns the quest's identity, stamped on the events it owns.
func (q *Quest) ID() uuid.UUID {
	return q.id
}

// Start returns the entry pool.
func (q *Quest) Start() PoolID {
	return q.start
}

// EmptyGraph reports whether the start pool is terminal.
func (q *Quest) EmptyGraph() bool {
	return q.pools[q.start].IsTerminal()
}

// Pools returns the quest's own pools, indexed by PoolID. Nested quest graphs
// are not included.
func (q *Quest) Pools() []*Pool {
	return q.pools
}

// Pool returns the pool with the given ID, nil when out of range.
func (q *Quest) Pool(id PoolID) *Pool {
	if int(id) < 0 || int(id) >= len(q.pools) {
		return nil
	}
	return q.pools[id]
}

// PoolOf returns the ID of the first pool holding e, NoPool if none does.
func (q *Quest) PoolOf(e *Event) PoolID {
	for i, p := range q.pools {
		if p.Contains(e) {
			return PoolID(i)
		}
	}
	return NoPool
}

// Pending returns the queued pools in order.
func (q *Quest) Pending() []PoolID {
	return slices.Clone(q.pending)
}

// IsPending reports whether id is queued.
func (q *Quest) IsPending(id PoolID) bool {
	return slices.Contains(q.pending, id)
}

// ActivePools returns the pools with events in flight.
func (q *Quest) ActivePools() []PoolID {
	return slices.Clone(q.activePools)
}

// ActiveEvents returns the events in flight. A nested quest in flight appears
// as its own event.
func (q *Quest) ActiveEvents() []*Event {
	return slices.Clone(q.activeEvents)
}

// ActiveSubQuest returns the nested quest currently being traversed, if any.
func (q *Quest) ActiveSubQuest() *Quest {
	return q.activeSub
}

// Layers returns q followed by each active sub-quest, outermost first.
func (q *Quest) Layers() []*Quest {
	var out []*Quest
	for cur := q; cur != nil; cur = cur.activeSub {
		out = append(out, cur)
	}
	return out
}

// ComputeWaves assigns each pool its breadth-first distance from the start
// pool and returns the number of waves. Unreachable pools get -1.
func (q *Quest) ComputeWaves() int {
	for _, p := range q.pools {
		p.wave = -1
	}
	seen := make([]bool, len(q.pools))
	seen[q.start] = true
	wave := []PoolID{q.start}
	depth := 0

	for len(wave) > 0 {
		var next []PoolID
		for _, id := range wave {
			q.pools[id].wave = depth
			for _, dest := range q.pools[id].Edges() {
				if !seen[dest] {
					seen[dest] = true
					next = append(next, dest)
				}
			}
		}
		wave = next
		depth++
	}
	return depth
}

// String dumps active and queued pools for debugging.
func (q *Quest) String() string {
	var b strings.Builder
	b.WriteString("---------------\n")
	fmt.Fprintf(&b, "quest name: %s\n", q.Name)
	b.WriteString("active event pools:\n")
	for _, id := range q.activePools {
		p := q.pools[id]
		names := make([]string, 0, len(p.Events))
		for _, e := range p.Events {
			names = append(names, e.Name)
		}
		fmt.Fprintf(&b, "    %s (%d): %s\n", p.Name, p.activeCount, strings.Join(names, ", "))
	}
	b.WriteString("queued event pools: ")
	queued := make([]string, 0, len(q.pending))
	for _, id := range q.pending {
		p := q.pools[id]
		queued = append(queued, fmt.Sprintf("%s (%d)", p.Name, len(p.Events)))
	}
	b.WriteString(strings.Join(queued, ", "))
	b.WriteString("\n---------------\n")
	return b.String()
}
