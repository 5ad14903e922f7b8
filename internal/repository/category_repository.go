package repository

import (
	"context"

	"pulsefeed/internal/domain/entity"
)

// CategoryWithCount is used by GET /categories (spec.md §6).
type CategoryWithCount struct {
	Category *entity.Category
	Count    int64
}

// CategoryRepository backs C8's fixed taxonomy and the article↔category
// association table. No in-memory graph: every lookup is a query.
type CategoryRepository interface {
	Get(ctx context.Context, id int64) (*entity.Category, error)
	GetByName(ctx context.Context, name string) (*entity.Category, error)
	List(ctx context.Context) ([]*entity.Category, error)
	ListWithCounts(ctx context.Context) ([]CategoryWithCount, error)
	Create(ctx context.Context, c *entity.Category) error

	// SetArticleCategories replaces (article_id, category_id) rows for one
	// article in a single transaction, per spec.md §4.8 step 5.
	SetArticleCategories(ctx context.Context, articleID int64, links []entity.ArticleCategory) error
	ArticleCategories(ctx context.Context, articleID int64) ([]entity.ArticleCategory, error)

	// CategoryMapping lookups (C8 steps 1-3).
	GetMapping(ctx context.Context, aiCategory string) (*entity.CategoryMapping, error)
	UpsertUnmapped(ctx context.Context, aiCategory string) error
	RecordMappingUsage(ctx context.Context, aiCategory string) error
}
