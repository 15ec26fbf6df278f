package store

import (
	"context"
	"time"

	"questgraph/pkg/model"
)

// JournalStore keeps the append-only history of quest runs.
// A run cannot be restored from it; it only records what happened.
type JournalStore interface {
	StartRun(ctx context.Context, run *model.Run) error
	RecordResolution(ctx context.Context, e *model.JournalEntry) error
	FinishRun(ctx context.Context, runID, ending string, at time.Time) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)
	ListResolutions(ctx context.Context, runID string) ([]model.JournalEntry, error)
}
