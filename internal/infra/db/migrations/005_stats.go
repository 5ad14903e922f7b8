package migrations

import (
	"context"
	"database/sql"

	"pulsefeed/internal/infra/db"
)

// stats backs C12 step 5's per-cycle rollups, C7's AI call accounting,
// and the assembled per-(date, category) digest text C12 step 3 writes.
func stats() db.Migration {
	return db.Migration{
		Version: 5,
		Name:    "stats_and_summaries",
		IsNeeded: func(ctx context.Context, conn *sql.DB) (bool, error) {
			return tableMissing(ctx, conn, "processing_stats")
		},
		Up: func(ctx context.Context, tx *sql.Tx) error {
			statements := []string{
				`CREATE TABLE IF NOT EXISTS processing_stats (
	date              DATE PRIMARY KEY,
	sources_processed INTEGER NOT NULL DEFAULT 0,
	items_ingested    INTEGER NOT NULL DEFAULT 0,
	items_duplicated  INTEGER NOT NULL DEFAULT 0,
	articles_analyzed INTEGER NOT NULL DEFAULT 0,
	ai_call_count     INTEGER NOT NULL DEFAULT 0,
	errors            INTEGER NOT NULL DEFAULT 0,
	duration_ms       BIGINT NOT NULL DEFAULT 0
)`,
				`CREATE TABLE IF NOT EXISTS ai_usage_tracking (
	id         SERIAL PRIMARY KEY,
	call_kind  TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	cache_hit  BOOLEAN NOT NULL DEFAULT FALSE,
	succeeded  BOOLEAN NOT NULL DEFAULT TRUE,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
				`CREATE INDEX IF NOT EXISTS idx_ai_usage_tracking_created_at ON ai_usage_tracking(created_at DESC)`,
				`CREATE TABLE IF NOT EXISTS daily_summaries (
	id             SERIAL PRIMARY KEY,
	date           DATE NOT NULL,
	category       TEXT NOT NULL,
	summary_text   TEXT NOT NULL DEFAULT '',
	articles_count INTEGER NOT NULL DEFAULT 0,
	UNIQUE (date, category)
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
