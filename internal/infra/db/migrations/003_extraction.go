package migrations

import (
	"context"
	"database/sql"

	"pulsefeed/internal/infra/db"
)

// extraction is C4's durable store: learned selector patterns, the raw
// attempt log backing them, and the per-domain stability rollup.
func extraction() db.Migration {
	return db.Migration{
		Version: 3,
		Name:    "extraction_memory",
		IsNeeded: func(ctx context.Context, conn *sql.DB) (bool, error) {
			return tableMissing(ctx, conn, "extraction_patterns")
		},
		Up: func(ctx context.Context, tx *sql.Tx) error {
			statements := []string{
				`CREATE TABLE IF NOT EXISTS extraction_patterns (
	id                SERIAL PRIMARY KEY,
	domain            TEXT NOT NULL,
	selector_pattern  TEXT NOT NULL,
	strategy          VARCHAR(30) NOT NULL,
	success_count     BIGINT NOT NULL DEFAULT 0,
	failure_count     BIGINT NOT NULL DEFAULT 0,
	quality_score_avg DOUBLE PRECISION NOT NULL DEFAULT 0,
	discovered_by     VARCHAR(20) NOT NULL DEFAULT 'heuristic',
	is_stable         BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (domain, selector_pattern, strategy)
)`,
				`CREATE INDEX IF NOT EXISTS idx_extraction_patterns_domain ON extraction_patterns(domain)`,
				// extraction_attempts is the raw per-try audit log behind
				// extraction_patterns' rolling counters (spec.md §6 schema list).
				`CREATE TABLE IF NOT EXISTS extraction_attempts (
	id             SERIAL PRIMARY KEY,
	domain         TEXT NOT NULL,
	pattern_id     INTEGER REFERENCES extraction_patterns(id) ON DELETE SET NULL,
	strategy       VARCHAR(30) NOT NULL,
	succeeded      BOOLEAN NOT NULL,
	quality_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	attempted_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
				`CREATE INDEX IF NOT EXISTS idx_extraction_attempts_domain ON extraction_attempts(domain, attempted_at DESC)`,
				`CREATE TABLE IF NOT EXISTS domain_stability (
	domain                 TEXT PRIMARY KEY,
	is_stable              BOOLEAN NOT NULL DEFAULT FALSE,
	success_rate_7d        DOUBLE PRECISION NOT NULL DEFAULT 0,
	success_rate_30d       DOUBLE PRECISION NOT NULL DEFAULT 0,
	consecutive_successes  INTEGER NOT NULL DEFAULT 0,
	consecutive_failures   INTEGER NOT NULL DEFAULT 0,
	last_ai_analysis       TIMESTAMPTZ,
	needs_reanalysis       BOOLEAN NOT NULL DEFAULT FALSE,
	ai_credits_saved       BIGINT NOT NULL DEFAULT 0,
	adaptive_timeout_ms    BIGINT NOT NULL DEFAULT 10000,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
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
