// Package migrations is the fixed, version-ordered catalog C10's Manager
// applies. Each file owns one migration; splitting by concern keeps a
// migration's DDL and its IsNeeded probe next to each other.
package migrations

import (
	"context"
	"database/sql"

	"pulsefeed/internal/infra/db"
)

func sourcesAndArticles() db.Migration {
	return db.Migration{
		Version: 1,
		Name:    "sources_and_articles",
		IsNeeded: func(ctx context.Context, conn *sql.DB) (bool, error) {
			return tableMissing(ctx, conn, "sources")
		},
		Up: func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sources (
	id             SERIAL PRIMARY KEY,
	name           TEXT NOT NULL,
	url            TEXT NOT NULL,
	source_type    VARCHAR(20) NOT NULL DEFAULT 'rss',
	enabled        BOOLEAN NOT NULL DEFAULT TRUE,
	config         JSONB NOT NULL DEFAULT '{}',
	fetch_interval BIGINT NOT NULL DEFAULT 3600,
	last_fetch     TIMESTAMPTZ,
	last_success   TIMESTAMPTZ,
	last_error     TEXT,
	error_count    INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, url)
)`); err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS articles (
	id                 SERIAL PRIMARY KEY,
	source_id          INTEGER NOT NULL REFERENCES sources(id),
	title              TEXT NOT NULL,
	url                TEXT NOT NULL UNIQUE,
	content            TEXT,
	summary            TEXT,
	published_at       TIMESTAMPTZ NOT NULL,
	fetched_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	summary_processed  BOOLEAN NOT NULL DEFAULT FALSE,
	category_processed BOOLEAN NOT NULL DEFAULT FALSE,
	ad_processed       BOOLEAN NOT NULL DEFAULT FALSE,
	hash_content       TEXT NOT NULL DEFAULT '',
	is_advertisement   BOOLEAN NOT NULL DEFAULT FALSE,
	ad_confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
	ad_type            VARCHAR(30) NOT NULL DEFAULT '',
	ad_reasoning       TEXT NOT NULL DEFAULT '',
	ad_markers         JSONB NOT NULL DEFAULT '[]',
	media_files        JSONB NOT NULL DEFAULT '[]'
)`); err != nil {
				return err
			}

			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_articles_source_id ON articles(source_id)`,
				`CREATE INDEX IF NOT EXISTS idx_articles_hash_content ON articles(hash_content)`,
				`CREATE INDEX IF NOT EXISTS idx_sources_enabled ON sources(enabled) WHERE enabled = TRUE`,
			}
			for _, idx := range indexes {
				if _, err := tx.ExecContext(ctx, idx); err != nil {
					return err
				}
			}

			// pg_trgm speeds up the ILIKE search C9's ArticleRepo.Search
			// runs; best-effort since it requires a superuser on some hosts.
			_, _ = tx.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`)
			_, _ = tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_articles_title_gin ON articles USING gin(title gin_trgm_ops)`)
			_, _ = tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_articles_summary_gin ON articles USING gin(summary gin_trgm_ops)`)

			return nil
		},
	}
}

func tableMissing(ctx context.Context, conn *sql.DB, table string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`
	var exists bool
	if err := conn.QueryRowContext(ctx, query, table).Scan(&exists); err != nil {
		return false, err
	}
	return !exists, nil
}
