package maintenance

import (
	"context"
	"log/slog"
	"time"

	"questgraph/pkg/db"
)

// Run prunes the journal: finished runs past retention, and open runs
// abandoned for longer than retention. It blocks until completion and
// never fails startup.
func Run(ctx context.Context, d *db.DB, retention time.Duration) error {
	if retention <= 0 {
		slog.Debug("Journal pruning disabled")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Info("Starting journal maintenance...", "retention", retention)

	if n, err := d.PruneRuns(retention); err != nil {
		slog.Error("Pruning finished runs failed", "error", err)
	} else {
		slog.Info("Pruned finished runs", "count", n)
	}

	if n, err := d.PruneAbandoned(retention); err != nil {
		slog.Error("Pruning abandoned runs failed", "error", err)
	} else if n > 0 {
		slog.Info("Pruned abandoned runs", "count", n)
	}

	return nil
}
