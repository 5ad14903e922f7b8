package migrations

import (
	"context"
	"database/sql"

	"pulsefeed/internal/infra/db"
)

// scheduler backs C11: named recurring tasks, ad hoc one-off requests,
// and a generic settings override table spec.md §6 names but does not
// tie to any single component.
func scheduler() db.Migration {
	return db.Migration{
		Version: 4,
		Name:    "scheduler_and_settings",
		IsNeeded: func(ctx context.Context, conn *sql.DB) (bool, error) {
			return tableMissing(ctx, conn, "schedule_settings")
		},
		Up: func(ctx context.Context, tx *sql.Tx) error {
			statements := []string{
				`CREATE TABLE IF NOT EXISTS schedule_settings (
	id            SERIAL PRIMARY KEY,
	task_name     TEXT NOT NULL UNIQUE,
	enabled       BOOLEAN NOT NULL DEFAULT TRUE,
	schedule_type VARCHAR(10) NOT NULL,
	hour          INTEGER NOT NULL DEFAULT 0,
	minute        INTEGER NOT NULL DEFAULT 0,
	weekdays      INTEGER[] NOT NULL DEFAULT '{}',
	timezone      TEXT NOT NULL DEFAULT 'UTC',
	last_run      TIMESTAMPTZ,
	next_run      TIMESTAMPTZ,
	is_running    BOOLEAN NOT NULL DEFAULT FALSE,
	task_config   JSONB NOT NULL DEFAULT '{}'
)`,
				`CREATE TABLE IF NOT EXISTS task_queue (
	id          SERIAL PRIMARY KEY,
	task_name   TEXT NOT NULL,
	status      VARCHAR(20) NOT NULL DEFAULT 'pending',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
)`,
				`CREATE INDEX IF NOT EXISTS idx_task_queue_status ON task_queue(status, created_at)`,
				`CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
			}
			for _, stmt := range statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
