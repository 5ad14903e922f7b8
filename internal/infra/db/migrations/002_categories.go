package migrations

import (
	"context"
	"database/sql"

	"pulsefeed/internal/infra/db"
)

// categories is C8's fixed taxonomy plus its article association and
// AI-label mapping tables. Named explicitly in the healing test (start
// with only sources/articles; after startup these four tables exist).
func categories() db.Migration {
	return db.Migration{
		Version: 2,
		Name:    "categories",
		IsNeeded: func(ctx context.Context, conn *sql.DB) (bool, error) {
			return tableMissing(ctx, conn, "categories")
		},
		Up: func(ctx context.Context, tx *sql.Tx) error {
			statements := []string{
				`CREATE TABLE IF NOT EXISTS categories (
	id           SERIAL PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	color        TEXT NOT NULL DEFAULT '#808080',
	description  TEXT NOT NULL DEFAULT ''
)`,
				`CREATE TABLE IF NOT EXISTS article_categories (
	article_id  INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 1,
	PRIMARY KEY (article_id, category_id)
)`,
				`CREATE TABLE IF NOT EXISTS category_mapping (
	id                    SERIAL PRIMARY KEY,
	ai_category           TEXT NOT NULL UNIQUE,
	fixed_category        TEXT NOT NULL,
	confidence_threshold  DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	is_active             BOOLEAN NOT NULL DEFAULT TRUE,
	usage_count           BIGINT NOT NULL DEFAULT 0,
	last_used             BIGINT
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
