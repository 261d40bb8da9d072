// Package journal persists task executions and completions of a scheduler
// into SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Swind/go-affinity-scheduler/core"

	_ "modernc.org/sqlite"
)

// Execution is one journaled task run.
type Execution struct {
	ID         int64
	InstanceID string
	core.TaskExecutionRecord
}

// Filter narrows ListExecutions. Zero fields match everything.
type Filter struct {
	InstanceID string
	TaskID     core.TaskID
	Pool       string
	Limit      int // 0 means 100
}

// Store is the SQLite-backed journal.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the journal at dbPath and migrates it.
// Use ":memory:" for an in-memory database (useful in tests).
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "journal"),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendExecutions writes a batch of execution records in one transaction.
func (s *Store) AppendExecutions(ctx context.Context, instanceID string, records []core.TaskExecutionRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "insert", "table", "executions", "rows", len(records))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO executions (instance_id, task_id, name, pool, affinity, worker_id, thread_id, priority,
		 started_at, finished_at, duration_ns, panicked, aborted, repeating)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			instanceID, int64(r.TaskID), r.Name, r.PoolName, r.Affinity.String(), r.WorkerID, r.ThreadID, int(r.Priority),
			r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
			r.Duration.Nanoseconds(), r.Panicked, r.Aborted, r.Repeating,
		)
		if err != nil {
			return fmt.Errorf("insert execution %s: %w", r.TaskID, err)
		}
	}
	return tx.Commit()
}

// AppendCompletion records that a task left the scheduler for good.
func (s *Store) AppendCompletion(ctx context.Context, instanceID string, id core.TaskID, at time.Time) error {
	s.logger.Debug("sql", "op", "insert", "table", "completions", "task_id", id)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO completions (instance_id, task_id, completed_at) VALUES (?, ?, ?)`,
		instanceID, int64(id), at.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ListExecutions returns journaled runs, newest first.
func (s *Store) ListExecutions(ctx context.Context, f Filter) ([]Execution, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}

	var where []string
	var args []any
	if f.InstanceID != "" {
		where = append(where, "instance_id = ?")
		args = append(args, f.InstanceID)
	}
	if !f.TaskID.IsZero() {
		where = append(where, "task_id = ?")
		args = append(args, int64(f.TaskID))
	}
	if f.Pool != "" {
		where = append(where, "pool = ?")
		args = append(args, f.Pool)
	}

	query := `SELECT id, instance_id, task_id, name, pool, affinity, worker_id, thread_id, priority,
		started_at, finished_at, duration_ns, panicked, aborted, repeating FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, f.Limit)

	s.logger.Debug("sql", "op", "list", "table", "executions", "limit", f.Limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var taskID, durationNS int64
		var priority int
		var affinity, startedAt, finishedAt string
		if err := rows.Scan(&e.ID, &e.InstanceID, &taskID, &e.Name, &e.PoolName, &affinity, &e.WorkerID, &e.ThreadID,
			&priority, &startedAt, &finishedAt, &durationNS, &e.Panicked, &e.Aborted, &e.Repeating); err != nil {
			return nil, err
		}
		e.TaskID = core.TaskID(taskID)
		e.Priority = core.Priority(priority)
		e.Affinity = parseAffinity(affinity)
		e.Duration = time.Duration(durationNS)
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CompletionCount returns the number of completions journaled for an
// instance, or for all instances when instanceID is empty.
func (s *Store) CompletionCount(ctx context.Context, instanceID string) (int, error) {
	query := `SELECT COUNT(*) FROM completions`
	var args []any
	if instanceID != "" {
		query += ` WHERE instance_id = ?`
		args = append(args, instanceID)
	}
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func parseAffinity(s string) core.Affinity {
	var a core.Affinity
	if err := a.UnmarshalText([]byte(s)); err != nil {
		return core.AffinityDefault
	}
	return a
}
