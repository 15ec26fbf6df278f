package model

import (
	"time"
)

// Run is one play-through of a quest as kept in the journal.
type Run struct {
	ID         string    `json:"id"` // Primary Key (uuid)
	Quest      string    `json:"quest"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"` // zero while the run is open
	Ending     string    `json:"ending,omitempty"`      // the quest's chosen ending, once finished
}

// Finished reports whether the run reached an ending.
func (r *Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// JournalEntry records one event leaving play.
type JournalEntry struct {
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`      // 1-based order within the run
	QuestID   string    `json:"quest_id"` // the quest (or sub-quest) the event belonged to
	Quest     string    `json:"quest"`
	Event     string    `json:"event"`
	Ending    string    `json:"ending"`
	FromPool  string    `json:"from_pool"`
	ToPool    string    `json:"to_pool"`
	Finished  bool      `json:"finished"` // the resolution concluded its quest
	CreatedAt time.Time `json:"created_at"`
}
