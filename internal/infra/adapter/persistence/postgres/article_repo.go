package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/pkg/search"
	"pulsefeed/internal/repository"
)

const articleColumns = `
	id, source_id, title, url, content, summary,
	published_at, fetched_at, created_at, updated_at,
	summary_processed, category_processed, ad_processed,
	hash_content, is_advertisement, ad_confidence, ad_type,
	ad_reasoning, ad_markers, media_files`

// ArticleRepo is C9's postgres realization of repository.ArticleRepository.
// Every write passes through the Persistence Queue; this type only ever
// sees a *sql.DB, either the shared pool (for reads) or a *sql.Tx handed
// down by persistence.Queue (writes are scanned through the same methods
// using the Tx's Query/Exec, via the executor interface below).
type ArticleRepo struct {
	db           executor
	queryBuilder *ArticleQueryBuilder
}

// executor is satisfied by both *sql.DB and *sql.Tx, letting the same
// repository methods run inside a Queue-managed transaction or directly
// against the pool for reads.
type executor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewArticleRepo(db executor) repository.ArticleRepository {
	return &ArticleRepo{db: db, queryBuilder: NewArticleQueryBuilder()}
}

func scanArticle(row interface{ Scan(dest ...interface{}) error }) (*entity.Article, error) {
	var a entity.Article
	var adMarkers, mediaFiles []byte
	var adType string
	if err := row.Scan(
		&a.ID, &a.SourceID, &a.Title, &a.URL, &a.Content, &a.Summary,
		&a.PublishedAt, &a.FetchedAt, &a.CreatedAt, &a.UpdatedAt,
		&a.SummaryProcessed, &a.CategoryProcessed, &a.AdProcessed,
		&a.HashContent, &a.IsAdvertisement, &a.AdConfidence, &adType,
		&a.AdReasoning, &adMarkers, &mediaFiles,
	); err != nil {
		return nil, err
	}
	a.AdType = entity.AdType(adType)
	if len(adMarkers) > 0 {
		if err := json.Unmarshal(adMarkers, &a.AdMarkers); err != nil {
			return nil, fmt.Errorf("unmarshal ad_markers: %w", err)
		}
	}
	if len(mediaFiles) > 0 {
		if err := json.Unmarshal(mediaFiles, &a.MediaFiles); err != nil {
			return nil, fmt.Errorf("unmarshal media_files: %w", err)
		}
	}
	return &a, nil
}

func (repo *ArticleRepo) Get(ctx context.Context, id int64) (*entity.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE id = $1`, articleColumns)
	a, err := scanArticle(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

func (repo *ArticleRepo) GetByURL(ctx context.Context, url string) (*entity.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE url = $1`, articleColumns)
	a, err := scanArticle(repo.db.QueryRowContext(ctx, query, url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByURL: %w", err)
	}
	return a, nil
}

func (repo *ArticleRepo) GetWithSource(ctx context.Context, id int64) (*entity.Article, string, error) {
	query := fmt.Sprintf(`
SELECT %s, s.name
FROM articles a
INNER JOIN sources s ON a.source_id = s.id
WHERE a.id = $1`, qualify("a", articleColumns))
	row := repo.db.QueryRowContext(ctx, query, id)

	var a entity.Article
	var adMarkers, mediaFiles []byte
	var adType, sourceName string
	err := row.Scan(
		&a.ID, &a.SourceID, &a.Title, &a.URL, &a.Content, &a.Summary,
		&a.PublishedAt, &a.FetchedAt, &a.CreatedAt, &a.UpdatedAt,
		&a.SummaryProcessed, &a.CategoryProcessed, &a.AdProcessed,
		&a.HashContent, &a.IsAdvertisement, &a.AdConfidence, &adType,
		&a.AdReasoning, &adMarkers, &mediaFiles, &sourceName,
	)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("GetWithSource: %w", err)
	}
	a.AdType = entity.AdType(adType)
	if len(adMarkers) > 0 {
		_ = json.Unmarshal(adMarkers, &a.AdMarkers)
	}
	if len(mediaFiles) > 0 {
		_ = json.Unmarshal(mediaFiles, &a.MediaFiles)
	}
	return &a, sourceName, nil
}

// UpsertArticle is C9's transactional-idempotence contract (spec.md §4.9):
// a single round-trip INSERT ... ON CONFLICT (url) DO NOTHING, reporting
// whether the row was newly created so C5's dedup counters stay accurate.
func (repo *ArticleRepo) UpsertArticle(ctx context.Context, a *entity.Article) (bool, error) {
	adMarkers, err := json.Marshal(a.AdMarkers)
	if err != nil {
		return false, fmt.Errorf("UpsertArticle: marshal ad_markers: %w", err)
	}
	mediaFiles, err := json.Marshal(a.MediaFiles)
	if err != nil {
		return false, fmt.Errorf("UpsertArticle: marshal media_files: %w", err)
	}

	const query = `
INSERT INTO articles
	(source_id, title, url, content, summary, published_at, fetched_at,
	 hash_content, is_advertisement, ad_confidence, ad_type, ad_reasoning,
	 ad_markers, media_files)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (url) DO NOTHING
RETURNING id`

	var id int64
	err = repo.db.QueryRowContext(ctx, query,
		a.SourceID, a.Title, a.URL, a.Content, a.Summary, a.PublishedAt, a.FetchedAt,
		a.HashContent, a.IsAdvertisement, a.AdConfidence, string(a.AdType), a.AdReasoning,
		adMarkers, mediaFiles,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("UpsertArticle: %w", err)
	}
	a.ID = id
	return true, nil
}

func (repo *ArticleRepo) Update(ctx context.Context, a *entity.Article) error {
	adMarkers, err := json.Marshal(a.AdMarkers)
	if err != nil {
		return fmt.Errorf("Update: marshal ad_markers: %w", err)
	}
	mediaFiles, err := json.Marshal(a.MediaFiles)
	if err != nil {
		return fmt.Errorf("Update: marshal media_files: %w", err)
	}

	const query = `
UPDATE articles SET
	title = $1, content = $2, summary = $3, published_at = $4,
	summary_processed = $5, category_processed = $6, ad_processed = $7,
	hash_content = $8, is_advertisement = $9, ad_confidence = $10,
	ad_type = $11, ad_reasoning = $12, ad_markers = $13, media_files = $14,
	updated_at = $15
WHERE id = $16`
	res, err := repo.db.ExecContext(ctx, query,
		a.Title, a.Content, a.Summary, a.PublishedAt,
		a.SummaryProcessed, a.CategoryProcessed, a.AdProcessed,
		a.HashContent, a.IsAdvertisement, a.AdConfidence,
		string(a.AdType), a.AdReasoning, adMarkers, mediaFiles,
		time.Now().UTC(), a.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Update: no rows affected")
	}
	return nil
}

func (repo *ArticleRepo) Delete(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: no rows affected")
	}
	return nil
}

func (repo *ArticleRepo) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := repo.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM articles WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ExistsByURL: %w", err)
	}
	return exists, nil
}

func (repo *ArticleRepo) ExistsByURLBatch(ctx context.Context, urls []string) (map[string]bool, error) {
	if len(urls) == 0 {
		return make(map[string]bool), nil
	}
	rows, err := repo.db.QueryContext(ctx, `SELECT url FROM articles WHERE url = ANY($1)`, pq.Array(urls))
	if err != nil {
		return nil, fmt.Errorf("ExistsByURLBatch: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]bool, len(urls))
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("ExistsByURLBatch: Scan: %w", err)
		}
		result[url] = true
	}
	return result, rows.Err()
}

func (repo *ArticleRepo) ListFeed(ctx context.Context, filters repository.ArticleFeedFilters) ([]repository.ArticleWithSource, error) {
	var where []string
	var args []interface{}
	idx := 1

	if filters.Category != nil {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM article_categories ac
			JOIN categories c ON c.id = ac.category_id
			WHERE ac.article_id = a.id AND c.name = $%d)`, idx))
		args = append(args, *filters.Category)
		idx++
	}
	if filters.SinceHours != nil {
		where = append(where, fmt.Sprintf(`a.published_at >= now() - ($%d || ' hours')::interval`, idx))
		args = append(args, *filters.SinceHours)
		idx++
	}
	if filters.HideAds {
		where = append(where, `a.is_advertisement = FALSE`)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
SELECT %s, s.name
FROM articles a
INNER JOIN sources s ON a.source_id = s.id
%s
ORDER BY a.published_at DESC
LIMIT $%d OFFSET $%d`, qualify("a", articleColumns), whereClause(where), idx, idx+1)
	args = append(args, limit, filters.Offset)

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListFeed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []repository.ArticleWithSource
	for rows.Next() {
		var a entity.Article
		var adMarkers, mediaFiles []byte
		var adType, sourceName string
		if err := rows.Scan(
			&a.ID, &a.SourceID, &a.Title, &a.URL, &a.Content, &a.Summary,
			&a.PublishedAt, &a.FetchedAt, &a.CreatedAt, &a.UpdatedAt,
			&a.SummaryProcessed, &a.CategoryProcessed, &a.AdProcessed,
			&a.HashContent, &a.IsAdvertisement, &a.AdConfidence, &adType,
			&a.AdReasoning, &adMarkers, &mediaFiles, &sourceName,
		); err != nil {
			return nil, fmt.Errorf("ListFeed: Scan: %w", err)
		}
		a.AdType = entity.AdType(adType)
		_ = json.Unmarshal(adMarkers, &a.AdMarkers)
		_ = json.Unmarshal(mediaFiles, &a.MediaFiles)
		out = append(out, repository.ArticleWithSource{Article: &a, SourceName: sourceName})
	}
	return out, rows.Err()
}

func (repo *ArticleRepo) CountFeed(ctx context.Context, filters repository.ArticleFeedFilters) (int64, error) {
	var where []string
	var args []interface{}
	idx := 1

	if filters.Category != nil {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM article_categories ac
			JOIN categories c ON c.id = ac.category_id
			WHERE ac.article_id = a.id AND c.name = $%d)`, idx))
		args = append(args, *filters.Category)
		idx++
	}
	if filters.SinceHours != nil {
		where = append(where, fmt.Sprintf(`a.published_at >= now() - ($%d || ' hours')::interval`, idx))
		args = append(args, *filters.SinceHours)
		idx++
	}
	if filters.HideAds {
		where = append(where, `a.is_advertisement = FALSE`)
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM articles a %s`, whereClause(where))
	var count int64
	if err := repo.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("CountFeed: %w", err)
	}
	return count, nil
}

// Search serves GET /search (spec.md §6): AND-combined ILIKE over
// title+summary+content, with "relevance" sort approximated by a simple
// count of matched keyword columns (no full-text index in the example
// corpus's schema; pg_trgm-backed ILIKE is the teacher's own approach).
func (repo *ArticleRepo) Search(ctx context.Context, keywords []string, filters repository.ArticleSearchFilters) ([]*entity.Article, error) {
	if len(keywords) == 0 {
		return []*entity.Article{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, search.DefaultSearchTimeout)
	defer cancel()

	clause, args := repo.queryBuilder.BuildWhereClause(keywords, filters, "")

	orderBy := `published_at DESC`
	if filters.Sort == "relevance" {
		var relevanceExpr []string
		for i := range keywords {
			relevanceExpr = append(relevanceExpr,
				fmt.Sprintf(`(CASE WHEN title ILIKE $%d THEN 2 ELSE 0 END + CASE WHEN summary ILIKE $%d THEN 1 ELSE 0 END)`, i+1, i+1))
		}
		orderBy = fmt.Sprintf(`(%s) DESC, published_at DESC`, strings.Join(relevanceExpr, " + "))
	}

	query := fmt.Sprintf(`SELECT %s FROM articles %s ORDER BY %s`, articleColumns, clause, orderBy)
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: Scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (repo *ArticleRepo) ListUnprocessed(ctx context.Context, limit int) ([]*entity.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT %s FROM articles
WHERE summary_processed = FALSE OR category_processed = FALSE OR ad_processed = FALSE
ORDER BY fetched_at ASC
LIMIT $1`, articleColumns)
	rows, err := repo.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ListUnprocessed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUnprocessed: Scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (repo *ArticleRepo) ListByDateAndCategory(ctx context.Context, day time.Time, categoryID int64) ([]*entity.Article, error) {
	query := fmt.Sprintf(`
SELECT %s FROM articles a
WHERE a.published_at >= date_trunc('day', $1::timestamptz)
  AND a.published_at <  date_trunc('day', $1::timestamptz) + interval '1 day'
  AND EXISTS (SELECT 1 FROM article_categories ac WHERE ac.article_id = a.id AND ac.category_id = $2)
ORDER BY a.published_at ASC`, qualify("a", articleColumns))
	rows, err := repo.db.QueryContext(ctx, query, day, categoryID)
	if err != nil {
		return nil, fmt.Errorf("ListByDateAndCategory: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByDateAndCategory: Scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

// qualify prefixes every column name in a comma-separated list with
// alias, used when a query joins articles against another table.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
