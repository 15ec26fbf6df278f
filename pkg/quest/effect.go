package quest

import "github.com/google/uuid"

// Status describes the outcome of NextEvent.
type Status int

const (
	// StatusEvent means an event was produced.
	StatusEvent Status = iota
	// StatusFinished means the quest has concluded.
	StatusFinished
	// StatusStalled means no pending pool produced an event this call. The quest
	// is not finished; drivers should check IsFinished rather than treat this as an end.
	StatusStalled
	// StatusEmptyGraph means the quest ended on its first dispatch because its
	// start pool is terminal. It is a valid outcome, not an error.
	StatusEmptyGraph
)

func (s Status) String() string {
	switch s {
	case StatusEvent:
		return "event"
	case StatusFinished:
		return "finished"
	case StatusStalled:
		return "stalled"
	case StatusEmptyGraph:
		return "empty_graph"
	default:
		return "unknown"
	}
}

// Resolution records one event leaving play.
type Resolution struct {
	Quest     uuid.UUID
	QuestName string
	Event     *Event
	Ending    string
	From      PoolID
	To        PoolID
	// Finished is set when the resolution concluded the quest it happened in.
	Finished bool
}

// Effect is what EventUpdate hands back to the driver in place of callbacks.
// Resolved is ordered innermost quest first.
type Effect struct {
	Resolved      []Resolution
	QuestFinished bool
}

// Last returns the outermost resolution, the one recorded by the quest the
// driver called.
func (e Effect) Last() (Resolution, bool) {
	if len(e.Resolved) == 0 {
		return Resolution{}, false
	}
	return e.Resolved[len(e.Resolved)-1], true
}
