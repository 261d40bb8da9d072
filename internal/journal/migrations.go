package journal

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the journal tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS executions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id TEXT    NOT NULL,
		task_id     INTEGER NOT NULL,
		name        TEXT    NOT NULL,
		pool        TEXT    NOT NULL,
		affinity    TEXT    NOT NULL,
		worker_id   INTEGER NOT NULL,
		thread_id   INTEGER NOT NULL,
		priority    INTEGER NOT NULL,
		started_at  TEXT    NOT NULL,
		finished_at TEXT    NOT NULL,
		duration_ns INTEGER NOT NULL,
		panicked    INTEGER NOT NULL DEFAULT 0,
		aborted     INTEGER NOT NULL DEFAULT 0,
		repeating   INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_task ON executions(task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_pool ON executions(pool)`,

	`CREATE TABLE IF NOT EXISTS completions (
		instance_id  TEXT    NOT NULL,
		task_id      INTEGER NOT NULL,
		completed_at TEXT    NOT NULL,
		PRIMARY KEY (instance_id, task_id)
	)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
