package repository

import (
	"context"
	"time"

	"pulsefeed/internal/domain/entity"
)

// ArticleWithSource pairs an article with the name of the Source it came from.
type ArticleWithSource struct {
	Article    *entity.Article
	SourceName string
}

// ArticleFeedFilters are the optional filters accepted by GET /feed (spec.md §6).
type ArticleFeedFilters struct {
	Category    *string
	SinceHours  *int
	HideAds     bool
	Limit       int
	Offset      int
}

// ArticleSearchFilters are the optional filters accepted by GET /search.
type ArticleSearchFilters struct {
	SourceID   *int64
	Category   *string
	SinceHours *int
	Sort       string // "relevance" | "date"
	From       *time.Time
	To         *time.Time
}

// ArticleRepository is C9's article-table contract. Every method is served
// through the Persistence Queue (usecase/persistence), never called on a
// raw *sql.DB directly from business logic.
type ArticleRepository interface {
	Get(ctx context.Context, id int64) (*entity.Article, error)
	GetByURL(ctx context.Context, url string) (*entity.Article, error)
	GetWithSource(ctx context.Context, id int64) (*entity.Article, string, error)

	// UpsertArticle is C9's transactional-idempotence contract: a single
	// round-trip, duplicate URLs are a no-op at the unique constraint level.
	UpsertArticle(ctx context.Context, article *entity.Article) (inserted bool, err error)

	Update(ctx context.Context, article *entity.Article) error
	Delete(ctx context.Context, id int64) error

	ExistsByURL(ctx context.Context, url string) (bool, error)
	ExistsByURLBatch(ctx context.Context, urls []string) (map[string]bool, error)

	// ListFeed serves GET /feed.
	ListFeed(ctx context.Context, filters ArticleFeedFilters) ([]ArticleWithSource, error)
	CountFeed(ctx context.Context, filters ArticleFeedFilters) (int64, error)

	// Search serves GET /search, full-text over title+summary+content.
	Search(ctx context.Context, keywords []string, filters ArticleSearchFilters) ([]*entity.Article, error)

	// ListUnprocessed returns articles awaiting C7 analysis, oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]*entity.Article, error)

	// ListByDateAndCategory supports C12 step 3's DailySummary build.
	ListByDateAndCategory(ctx context.Context, day time.Time, categoryID int64) ([]*entity.Article, error)
}
