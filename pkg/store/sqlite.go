package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"questgraph/pkg/db"
	"questgraph/pkg/model"
)

// Store defines the repository interface.
type Store interface {
	JournalStore

	// Close closes the store connection.
	Close() error
}

// ErrRunNotFound is returned when writing to a run that was never started.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Runs ---

func (s *SQLiteStore) StartRun(ctx context.Context, run *model.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, quest, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Quest, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("start run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID, ending string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, ending = ? WHERE id = ? AND finished_at IS NULL`,
		at.UTC(), ending, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either unknown or already finished; only the first is an error.
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
		}
	}
	return nil
}

// GetRun returns nil, nil when the run does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, quest, started_at, finished_at, ending FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recently started runs first. limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	query := `SELECT id, quest, started_at, finished_at, ending FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var r model.Run
	var finished sql.NullTime
	var ending sql.NullString
	if err := row.Scan(&r.ID, &r.Quest, &r.StartedAt, &finished, &ending); err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	if ending.Valid {
		r.Ending = ending.String
	}
	return &r, nil
}

// --- Resolutions ---

// RecordResolution appends an entry. A zero Seq is assigned the next number in the run.
func (s *SQLiteStore) RecordResolution(ctx context.Context, e *model.JournalEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM runs WHERE id = ?`, e.RunID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("record resolution: %w: %s", ErrRunNotFound, e.RunID)
	}

	if e.Seq == 0 {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM resolutions WHERE run_id = ?`, e.RunID).Scan(&e.Seq); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO resolutions (run_id, seq, quest_id, quest, event, ending, from_pool, to_pool, finished, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Seq, e.QuestID, e.Quest, e.Event, e.Ending, e.FromPool, e.ToPool, e.Finished, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record resolution %s#%d: %w", e.RunID, e.Seq, err)
	}
	return tx.Commit()
}

// ListResolutions returns a run's entries in order.
func (s *SQLiteStore) ListResolutions(ctx context.Context, runID string) ([]model.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, quest_id, quest, event, ending, from_pool, to_pool, finished, created_at
		 FROM resolutions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var quest, from, to sql.NullString
		if err := rows.Scan(&e.RunID, &e.Seq, &e.QuestID, &quest, &e.Event, &e.Ending,
			&from, &to, &e.Finished, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Quest, e.FromPool, e.ToPool = quest.String, from.String, to.String
		out = append(out, e)
	}
	return out, rows.Err()
}
