package quest

import "slices"

// Pool is a node of the quest graph: an unordered group of events. A pool
// without events is terminal; reaching it ends the quest that owns it.
type Pool struct {
	Name   string
	Events []*Event

	id          PoolID
	activeCount int
	everUsed    bool
	connUsed    map[PoolID]bool
	wave        int
}

// NewPool creates a pool holding events.
func NewPool(name string, events ...*Event) *Pool {
	return &Pool{Name: name, Events: events, id: NoPool, wave: -1}
}

// ID returns the pool's index in its quest, NoPool before the quest is built.
func (p *Pool) ID() PoolID {
	return p.id
}

// Init clears runtime state and initializes every contained event, cascading
// into nested quests.
func (p *Pool) Init(q *Quest) {
	p.activeCount = 0
	p.everUsed = false
	p.connUsed = make(map[PoolID]bool)

	for _, e := range p.Events {
		e.Init(q)
		for _, dest := range e.EndingPools {
			p.connUsed[dest] = false
		}
		if e.Kind() == KindQuest {
			e.sub.Init()
		}
	}
}

// IsActive reports whether any event of the pool is in flight.
func (p *Pool) IsActive() bool {
	return p.activeCount > 0
}

// ActiveCount returns the number of this pool's events in flight.
func (p *Pool) ActiveCount() int {
	return p.activeCount
}

// EverUsed reports whether an event of this pool has been resolved since Init.
func (p *Pool) EverUsed() bool {
	return p.everUsed
}

// IsTerminal reports whether the pool is an ending node.
func (p *Pool) IsTerminal() bool {
	return len(p.Events) == 0
}

// Contains reports whether e belongs to the pool.
func (p *Pool) Contains(e *Event) bool {
	return slices.Contains(p.Events, e)
}

// Edges returns the distinct destinations of the pool's events in authoring order.
func (p *Pool) Edges() []PoolID {
	var out []PoolID
	for _, e := range p.Events {
		for _, dest := range e.EndingPools {
			if !slices.Contains(out, dest) {
				out = append(out, dest)
			}
		}
	}
	return out
}

// EdgeUsed reports whether the edge to dest has been traversed since Init.
func (p *Pool) EdgeUsed(dest PoolID) bool {
	return p.connUsed[dest]
}

// ConnectionUsed returns a copy of the edge usage table.
func (p *Pool) ConnectionUsed() map[PoolID]bool {
	out := make(map[PoolID]bool, len(p.connUsed))
	for k, v := range p.connUsed {
		out[k] = v
	}
	return out
}

// Wave returns the breadth-first depth computed by Quest.ComputeWaves, -1 if unreachable.
func (p *Pool) Wave() int {
	return p.wave
}

// activate puts e in flight for q. Only the owning quest calls it.
func (p *Pool) activate(q *Quest, e *Event) {
	p.activeCount++
	q.activeEvents = append(q.activeEvents, e)
	if !slices.Contains(q.activePools, p.id) {
		q.activePools = append(q.activePools, p.id)
	}
}

// deactivate takes e out of flight and marks the pool as used.
func (p *Pool) deactivate(q *Quest, e *Event) {
	if i := slices.Index(q.activeEvents, e); i >= 0 {
		q.activeEvents = slices.Delete(q.activeEvents, i, i+1)
	}
	p.activeCount--
	p.everUsed = true
	if p.activeCount <= 0 {
		p.activeCount = 0
		q.activePools = slices.DeleteFunc(q.activePools, func(id PoolID) bool { return id == p.id })
	}
}

// markEdgeUsed records that the edge to dest was actually traversed.
func (p *Pool) markEdgeUsed(dest PoolID) {
	if p.connUsed == nil {
		p.connUsed = make(map[PoolID]bool)
	}
	p.connUsed[dest] = true
}
