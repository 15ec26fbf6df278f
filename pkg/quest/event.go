package quest

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// PoolID indexes a pool inside the quest that owns it.
type PoolID int

// NoPool marks the absence of a pool.
const NoPool PoolID = -1

// StandardEnding is the single implicit ending of timed events.
const StandardEnding = "standard"

// DefaultWait is applied to timed events created without an explicit duration.
const DefaultWait = 2 * time.Second

// Kind tags what an event stands for during traversal.
type Kind int

const (
	// KindEvent is an ordinary narrative event.
	KindEvent Kind = iota
	// KindQuest is a nested quest presented as a single event of its parent.
	KindQuest
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindQuest:
		return "quest"
	default:
		return "unknown"
	}
}

// Content is presentation data carried for the driver. Traversal never reads it.
type Content struct {
	Text      string   `json:"text,omitempty" yaml:"text,omitempty"`
	Decisions []string `json:"decisions,omitempty" yaml:"decisions,omitempty"`
	Tutorial  bool     `json:"tutorial,omitempty" yaml:"tutorial,omitempty"`
}

// Event is an atomic narrative unit. Endings[i] leads to EndingPools[i], a pool of
// the quest whose pool holds this event.
type Event struct {
	Name        string
	Endings     []string
	EndingPools []PoolID

	// Wait is how long a driver lets a timed event stand before resolving it
	// with StandardEnding. Zero means the event waits for a decision.
	Wait      time.Duration
	Intensity float64
	Content   Content

	chosen   string
	resolved bool
	owner    uuid.UUID
	sub      *Quest
}

// NewEvent creates an ordinary event without endings; add them with To.
func NewEvent(name string) *Event {
	return &Event{Name: name}
}

// NewTimedEvent creates an event that resolves on its own through StandardEnding.
func NewTimedEvent(name string, wait time.Duration, next PoolID) *Event {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Event{
		Name:        name,
		Endings:     []string{StandardEnding},
		EndingPools: []PoolID{next},
		Wait:        wait,
	}
}

// To appends an ending and its destination pool.
func (e *Event) To(ending string, dest PoolID) *Event {
	e.Endings = append(e.Endings, ending)
	e.EndingPools = append(e.EndingPools, dest)
	return e
}

// Kind reports whether the event is ordinary or a nested quest.
func (e *Event) Kind() Kind {
	if e.sub != nil {
		return KindQuest
	}
	return KindEvent
}

// Quest returns the nested quest behind a KindQuest event, nil otherwise.
func (e *Event) Quest() *Quest {
	return e.sub
}

// IsTimed reports whether a driver should resolve the event after Wait.
func (e *Event) IsTimed() bool {
	return e.Wait > 0 && len(e.Endings) == 1 && e.Endings[0] == StandardEnding
}

// Init binds the event to q and clears its resolution.
func (e *Event) Init(q *Quest) {
	e.owner = q.id
	e.chosen = ""
	e.resolved = false
}

// Owner returns the ID of the quest that currently runs this event.
func (e *Event) Owner() uuid.UUID {
	return e.owner
}

// IsFinished reports whether an ending has been chosen.
func (e *Event) IsFinished() bool {
	return e.resolved
}

// ChosenEnding returns the resolved ending, if any.
func (e *Event) ChosenEnding() (string, bool) {
	return e.chosen, e.resolved
}

// EndingIndex returns the position of ending in Endings, or -1.
func (e *Event) EndingIndex(ending string) int {
	return slices.Index(e.Endings, ending)
}

// Destination returns the pool reached through ending.
func (e *Event) Destination(ending string) (PoolID, error) {
	i := e.EndingIndex(ending)
	if i < 0 || i >= len(e.EndingPools) {
		return NoPool, &EndingError{Event: e.Name, Ending: ending}
	}
	return e.EndingPools[i], nil
}

// Resolve records the chosen ending. It succeeds once per Init.
func (e *Event) Resolve(ending string) error {
	if e.resolved {
		return &resolvedError{event: e.Name, ending: e.chosen}
	}
	if e.EndingIndex(ending) < 0 {
		return &EndingError{Event: e.Name, Ending: ending}
	}
	e.chosen = ending
	e.resolved = true
	return nil
}

type resolvedError struct {
	event  string
	ending string
}

func (e *resolvedError) Error() string {
	return "quest: event " + e.event + " already resolved with " + e.ending
}

func (e *resolvedError) Unwrap() error { return ErrAlreadyResolved }
