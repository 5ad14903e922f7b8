package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/repository"
)

const categoryColumns = `id, name, display_name, color, description`

type CategoryRepo struct{ db executor }

func NewCategoryRepo(db executor) repository.CategoryRepository {
	return &CategoryRepo{db: db}
}

func scanCategory(row interface{ Scan(dest ...interface{}) error }) (*entity.Category, error) {
	var c entity.Category
	if err := row.Scan(&c.ID, &c.Name, &c.DisplayName, &c.Color, &c.Description); err != nil {
		return nil, err
	}
	return &c, nil
}

func (repo *CategoryRepo) Get(ctx context.Context, id int64) (*entity.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories WHERE id = $1`, categoryColumns)
	c, err := scanCategory(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return c, nil
}

func (repo *CategoryRepo) GetByName(ctx context.Context, name string) (*entity.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories WHERE name = $1`, categoryColumns)
	c, err := scanCategory(repo.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByName: %w", err)
	}
	return c, nil
}

func (repo *CategoryRepo) List(ctx context.Context) ([]*entity.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories ORDER BY id ASC`, categoryColumns)
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("List: Scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (repo *CategoryRepo) ListWithCounts(ctx context.Context) ([]repository.CategoryWithCount, error) {
	query := `
SELECT c.id, c.name, c.display_name, c.color, c.description, COUNT(ac.article_id)
FROM categories c
LEFT JOIN article_categories ac ON ac.category_id = c.id
GROUP BY c.id, c.name, c.display_name, c.color, c.description
ORDER BY c.id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListWithCounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []repository.CategoryWithCount
	for rows.Next() {
		var c entity.Category
		var count int64
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayName, &c.Color, &c.Description, &count); err != nil {
			return nil, fmt.Errorf("ListWithCounts: Scan: %w", err)
		}
		out = append(out, repository.CategoryWithCount{Category: &c, Count: count})
	}
	return out, rows.Err()
}

func (repo *CategoryRepo) Create(ctx context.Context, c *entity.Category) error {
	const query = `
INSERT INTO categories (name, display_name, color, description)
VALUES ($1, $2, $3, $4)
RETURNING id`
	if err := repo.db.QueryRowContext(ctx, query, c.Name, c.DisplayName, c.Color, c.Description).Scan(&c.ID); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// SetArticleCategories replaces every (article_id, category_id) row for one
// article within a single connection. The Queue hands this method a *sql.Tx,
// so the delete+insert pair is already atomic relative to concurrent readers.
func (repo *CategoryRepo) SetArticleCategories(ctx context.Context, articleID int64, links []entity.ArticleCategory) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM article_categories WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("SetArticleCategories: delete: %w", err)
	}
	for _, link := range links {
		const query = `INSERT INTO article_categories (article_id, category_id, confidence) VALUES ($1, $2, $3)`
		if _, err := repo.db.ExecContext(ctx, query, articleID, link.CategoryID, link.Confidence); err != nil {
			return fmt.Errorf("SetArticleCategories: insert: %w", err)
		}
	}
	return nil
}

func (repo *CategoryRepo) ArticleCategories(ctx context.Context, articleID int64) ([]entity.ArticleCategory, error) {
	const query = `SELECT article_id, category_id, confidence FROM article_categories WHERE article_id = $1`
	rows, err := repo.db.QueryContext(ctx, query, articleID)
	if err != nil {
		return nil, fmt.Errorf("ArticleCategories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.ArticleCategory
	for rows.Next() {
		var link entity.ArticleCategory
		if err := rows.Scan(&link.ArticleID, &link.CategoryID, &link.Confidence); err != nil {
			return nil, fmt.Errorf("ArticleCategories: Scan: %w", err)
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func (repo *CategoryRepo) GetMapping(ctx context.Context, aiCategory string) (*entity.CategoryMapping, error) {
	const query = `
SELECT id, ai_category, fixed_category, confidence_threshold, is_active, usage_count, last_used
FROM category_mapping WHERE ai_category = $1`
	var m entity.CategoryMapping
	err := repo.db.QueryRowContext(ctx, query, aiCategory).Scan(
		&m.ID, &m.AICategory, &m.FixedCategory, &m.ConfidenceThreshold, &m.IsActive, &m.UsageCount, &m.LastUsed,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetMapping: %w", err)
	}
	return &m, nil
}

// UpsertUnmapped records an AI category label that has no fixed mapping yet,
// seeding it as inactive so a human can promote it later (spec.md §4.8 step 3).
func (repo *CategoryRepo) UpsertUnmapped(ctx context.Context, aiCategory string) error {
	const query = `
INSERT INTO category_mapping (ai_category, fixed_category, confidence_threshold, is_active, usage_count)
VALUES ($1, '', 0, FALSE, 1)
ON CONFLICT (ai_category) DO UPDATE SET usage_count = category_mapping.usage_count + 1`
	if _, err := repo.db.ExecContext(ctx, query, aiCategory); err != nil {
		return fmt.Errorf("UpsertUnmapped: %w", err)
	}
	return nil
}

func (repo *CategoryRepo) RecordMappingUsage(ctx context.Context, aiCategory string) error {
	const query = `
UPDATE category_mapping SET usage_count = usage_count + 1, last_used = extract(epoch from now())::bigint
WHERE ai_category = $1`
	if _, err := repo.db.ExecContext(ctx, query, aiCategory); err != nil {
		return fmt.Errorf("RecordMappingUsage: %w", err)
	}
	return nil
}
