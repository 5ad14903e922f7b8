package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/infra/ai"
	"pulsefeed/internal/infra/extractor"
	"pulsefeed/internal/infra/notifier"
	"pulsefeed/internal/infra/scraper"
	"pulsefeed/internal/repository"
	"pulsefeed/internal/usecase/filter"
	"pulsefeed/internal/usecase/persistence"
)

// PageFetchFunc retrieves the full HTML of a page, mirroring the
// fetchAgain parameter extractor.Extract already accepts. It lets this
// package depend on C1's fetch capability without importing httpclient's
// concrete Options/Response types, the same decoupling scraper.Fetcher
// already applies.
type PageFetchFunc func(ctx context.Context, rawURL string) ([]byte, error)

// AdapterRegistry resolves a Source's type to its C6 Adapter.
// *scraper.Registry satisfies this; tests substitute a stub.
type AdapterRegistry interface {
	For(sourceType entity.SourceType) scraper.Adapter
}

// AIAnalyzer is C7's surface as the orchestrator needs it.
// *ai.Client satisfies this.
type AIAnalyzer interface {
	AnalyzeArticleComplete(ctx context.Context, title, body, url string) (*ai.UnifiedAnalysis, error)
	CategorySummary(ctx context.Context, category string, briefs []ai.ArticleBrief) (string, error)
}

// CategoryMapper is C8's surface as the orchestrator needs it.
// *category.Engine satisfies this.
type CategoryMapper interface {
	MapArticle(ctx context.Context, articleID int64, suggestions []ai.CategorySuggestion) ([]entity.ArticleCategory, error)
}

// WriteQueue is C9's serialized-write and backpressure surface as the
// orchestrator needs it. *persistence.Queue satisfies this.
type WriteQueue interface {
	Submit(ctx context.Context, shardKey string, unit persistence.WriteUnit) error
	ShouldPauseIngestion() bool
}

// Orchestrator is C12's entry point: it drives one full cycle over every
// other component.
type Orchestrator struct {
	sources    repository.SourceRepository
	articles   repository.ArticleRepository
	categories repository.CategoryRepository
	stats      repository.StatsRepository
	summaries  repository.DailySummaryRepository

	adapters       AdapterRegistry
	filter         *filter.Filter
	extractor      *extractor.Extractor
	fetchPage      PageFetchFunc
	aiClient       AIAnalyzer
	categoryEngine CategoryMapper
	publishers     []notifier.DigestPublisher

	queue         WriteQueue
	articlesForTx func(tx *sql.Tx) repository.ArticleRepository

	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
}

// New builds an Orchestrator. fetchPage may be nil if no article ever
// needs a full-page re-fetch in tests; publishers may be empty to
// disable step 4 entirely.
func New(
	sources repository.SourceRepository,
	articles repository.ArticleRepository,
	categories repository.CategoryRepository,
	stats repository.StatsRepository,
	summaries repository.DailySummaryRepository,
	adapters AdapterRegistry,
	f *filter.Filter,
	ext *extractor.Extractor,
	fetchPage PageFetchFunc,
	aiClient AIAnalyzer,
	categoryEngine CategoryMapper,
	publishers []notifier.DigestPublisher,
	cfg Config,
	metrics *Metrics,
	logger *slog.Logger,
) *Orchestrator {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sources: sources, articles: articles, categories: categories,
		stats: stats, summaries: summaries,
		adapters: adapters, filter: f, extractor: ext, fetchPage: fetchPage,
		aiClient: aiClient, categoryEngine: categoryEngine, publishers: publishers,
		cfg: cfg, metrics: metrics, logger: logger,
	}
}

// WithWriteQueue routes article upserts and updates through C9's
// per-shard serialized write path (shard key "articles", the table
// name, per spec.md §4.9's stated default) instead of writing directly
// against the shared connection pool, and makes source ingestion honor
// C9's backpressure signal. articlesForTx builds an ArticleRepository
// bound to the *sql.Tx the Queue hands each write unit. Orchestrators
// built without calling this (e.g. in tests) fall back to writing
// directly through the ArticleRepository passed to New.
func (o *Orchestrator) WithWriteQueue(queue WriteQueue, articlesForTx func(tx *sql.Tx) repository.ArticleRepository) *Orchestrator {
	o.queue = queue
	o.articlesForTx = articlesForTx
	return o
}

func (o *Orchestrator) upsertArticle(ctx context.Context, article *entity.Article) (bool, error) {
	if o.queue == nil || o.articlesForTx == nil {
		return o.articles.UpsertArticle(ctx, article)
	}
	var inserted bool
	err := o.queue.Submit(ctx, "articles", func(ctx context.Context, tx *sql.Tx) error {
		var err error
		inserted, err = o.articlesForTx(tx).UpsertArticle(ctx, article)
		return err
	})
	return inserted, err
}

func (o *Orchestrator) updateArticle(ctx context.Context, article *entity.Article) error {
	if o.queue == nil || o.articlesForTx == nil {
		return o.articles.Update(ctx, article)
	}
	return o.queue.Submit(ctx, "articles", func(ctx context.Context, tx *sql.Tx) error {
		return o.articlesForTx(tx).Update(ctx, article)
	})
}

// CycleStats mirrors entity.ProcessingStats, accumulated while the cycle
// runs and persisted by step 5.
type CycleStats struct {
	SourcesProcessed int64
	ItemsIngested    int64
	ItemsDuplicated  int64
	ArticlesAnalyzed int64
	AICallCount      int64
	Errors           int64
	Duration         time.Duration
}

// RunCycle drives one full cycle, per spec.md §4.12. includeDigest
// selects between the "news_digest" task (the full 1-5 sequence) and
// "news_processing" (ingest and AI analysis only, steps 1-2, no
// per-category summary or emission).
func (o *Orchestrator) RunCycle(ctx context.Context, includeDigest bool) (*CycleStats, error) {
	start := time.Now()
	cs := &CycleStats{}
	day := start.Truncate(24 * time.Hour)

	if err := o.ingestAllSources(ctx, cs); err != nil {
		o.finishCycle(ctx, day, cs, start, "error")
		return cs, fmt.Errorf("orchestrator: ingest: %w", err)
	}

	if err := o.processUnprocessedArticles(ctx, cs); err != nil {
		o.finishCycle(ctx, day, cs, start, "error")
		return cs, fmt.Errorf("orchestrator: analyze: %w", err)
	}

	if includeDigest {
		summaries, err := o.buildDailySummaries(ctx, day, cs)
		if err != nil {
			o.logger.Warn("daily summary build failed, continuing without digest", slog.Any("error", err))
			atomic.AddInt64(&cs.Errors, 1)
		} else if err := o.publishDigest(ctx, day, summaries); err != nil {
			// Emission failures are retried on next cycle: the DailySummary
			// rows are already persisted and will be overwritten and
			// republished next time, per spec.md §4.12.
			o.logger.Warn("digest publish failed, will retry next cycle", slog.Any("error", err))
			atomic.AddInt64(&cs.Errors, 1)
		}
	}

	o.finishCycle(ctx, day, cs, start, "success")
	return cs, nil
}

func (o *Orchestrator) finishCycle(ctx context.Context, day time.Time, cs *CycleStats, start time.Time, status string) {
	cs.Duration = time.Since(start)
	o.metrics.CyclesTotal.WithLabelValues(status).Inc()
	o.metrics.CycleDurationSeconds.Observe(cs.Duration.Seconds())
	o.metrics.SourcesProcessed.Observe(float64(cs.SourcesProcessed))

	record := &entity.ProcessingStats{
		Date:             day,
		SourcesProcessed: int(cs.SourcesProcessed),
		ItemsIngested:    int(cs.ItemsIngested),
		ItemsDuplicated:  int(cs.ItemsDuplicated),
		ArticlesAnalyzed: int(cs.ArticlesAnalyzed),
		AICallCount:      int(cs.AICallCount),
		Errors:           int(cs.Errors),
		Duration:         cs.Duration,
	}
	if err := o.stats.RecordProcessingStats(context.WithoutCancel(ctx), record); err != nil {
		o.logger.Warn("failed to record processing stats", slog.Any("error", err))
	}
}

// ingestAllSources implements step 1: per enabled Source in parallel
// (bounded), adapter fetch -> filter -> upsert.
func (o *Orchestrator) ingestAllSources(ctx context.Context, cs *CycleStats) error {
	srcs, err := o.sources.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled sources: %w", err)
	}
	atomic.AddInt64(&cs.SourcesProcessed, int64(len(srcs)))

	sem := make(chan struct{}, o.cfg.MaxWorkers)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, src := range srcs {
		source := src
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			o.ingestSource(egCtx, source, cs)
			return nil
		})
	}
	return eg.Wait()
}

// ingestSource processes one Source. Per spec.md §4.12, a per-source
// failure never fails the cycle: it is logged and the cycle continues.
func (o *Orchestrator) ingestSource(ctx context.Context, src *entity.Source, cs *CycleStats) {
	if o.queue != nil && o.queue.ShouldPauseIngestion() {
		o.logger.Warn("persistence queue write backlog above high water mark, deferring source to next cycle",
			slog.Int64("source_id", src.ID))
		return
	}

	adapter := o.adapters.For(src.SourceType)
	candidates, err := adapter.FetchNew(ctx, src)
	if err != nil {
		o.logger.Warn("source ingest failed", slog.Int64("source_id", src.ID), slog.Any("error", err))
		if recErr := o.sources.RecordFetchResult(context.WithoutCancel(ctx), src.ID, time.Now(), err); recErr != nil {
			o.logger.Warn("failed to record source fetch failure", slog.Int64("source_id", src.ID), slog.Any("error", recErr))
		}
		atomic.AddInt64(&cs.Errors, 1)
		return
	}

	atomic.AddInt64(&cs.ItemsIngested, int64(len(candidates)))
	language := src.Config["language"]

	for _, candidate := range candidates {
		candidate.SourceID = src.ID
		if candidate.FetchedAt.IsZero() {
			candidate.FetchedAt = time.Now()
		}

		decision := o.filter.Apply(ctx, candidate, language, nil)
		if !decision.Keep {
			atomic.AddInt64(&cs.ItemsDuplicated, 1)
			continue
		}
		candidate.HashContent = decision.HashContent
		candidate.IsAdvertisement = decision.LikelyAd

		inserted, err := o.upsertArticle(ctx, candidate)
		if err != nil {
			o.logger.Warn("upsert article failed", slog.String("url", candidate.URL), slog.Any("error", err))
			atomic.AddInt64(&cs.Errors, 1)
			continue
		}
		if !inserted {
			atomic.AddInt64(&cs.ItemsDuplicated, 1)
		}
	}

	if err := o.sources.RecordFetchResult(context.WithoutCancel(ctx), src.ID, time.Now(), nil); err != nil {
		o.logger.Warn("failed to record source fetch success", slog.Int64("source_id", src.ID), slog.Any("error", err))
	}
}

// processUnprocessedArticles implements step 2: per pending article in
// parallel (bounded by the AI rate limit), ensure body -> unified
// analysis -> category mapping -> persist.
func (o *Orchestrator) processUnprocessedArticles(ctx context.Context, cs *CycleStats) error {
	pending, err := o.articles.ListUnprocessed(ctx, o.cfg.ArticlesPerCycle)
	if err != nil {
		return fmt.Errorf("list unprocessed articles: %w", err)
	}

	sem := make(chan struct{}, o.cfg.MaxWorkers)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, art := range pending {
		article := art
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			o.processArticle(egCtx, article, cs)
			return nil
		})
	}
	return eg.Wait()
}

// processArticle runs one article through C3 (if its persisted body is
// below the quality floor), C7, and C8. A failure here marks the
// article for retry by simply leaving its processed_* flags false and
// continuing; the next cycle's ListUnprocessed picks it up again, per
// spec.md §5's cancellation/retry contract.
func (o *Orchestrator) processArticle(ctx context.Context, art *entity.Article, cs *CycleStats) {
	body, err := o.ensureBody(ctx, art)
	if err != nil {
		o.logger.Warn("body extraction failed, leaving article for retry",
			slog.Int64("article_id", art.ID), slog.String("url", art.URL), slog.Any("error", err))
		atomic.AddInt64(&cs.Errors, 1)
		return
	}

	analysisStart := time.Now()
	analysis, err := o.aiClient.AnalyzeArticleComplete(ctx, art.Title, body, art.URL)
	o.recordAIUsage(ctx, "analyze_article_complete", art.URL, err == nil, time.Since(analysisStart))
	atomic.AddInt64(&cs.AICallCount, 1)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		o.logger.Warn("ai analysis failed, leaving article for retry",
			slog.Int64("article_id", art.ID), slog.Any("error", err))
		atomic.AddInt64(&cs.Errors, 1)
		return
	}

	art.Content = body
	if analysis.OptimizedTitle != "" {
		art.Title = analysis.OptimizedTitle
	}
	art.Summary = analysis.Summary
	art.IsAdvertisement = analysis.IsAdvertisement
	art.AdConfidence = analysis.AdConfidence
	art.AdType = analysis.AdType
	art.AdReasoning = analysis.AdReasoning
	art.AdMarkers = analysis.AdMarkers
	art.SummaryProcessed = true
	art.AdProcessed = true

	if _, err := o.categoryEngine.MapArticle(ctx, art.ID, analysis.Categories); err != nil {
		o.logger.Warn("category mapping failed, leaving article for retry",
			slog.Int64("article_id", art.ID), slog.Any("error", err))
		atomic.AddInt64(&cs.Errors, 1)
		return
	}
	art.CategoryProcessed = true

	if err := o.updateArticle(ctx, art); err != nil {
		o.logger.Warn("persisting analyzed article failed",
			slog.Int64("article_id", art.ID), slog.Any("error", err))
		atomic.AddInt64(&cs.Errors, 1)
		return
	}
	atomic.AddInt64(&cs.ArticlesAnalyzed, 1)
}

// ensureBody returns content long enough to analyze, running C3's
// strategy chain against a fresh page fetch when the persisted body
// (typically a short RSS snippet) falls short of the quality floor.
func (o *Orchestrator) ensureBody(ctx context.Context, art *entity.Article) (string, error) {
	if len(art.Content) >= extractor.MinContentLength {
		return art.Content, nil
	}
	if o.fetchPage == nil {
		return art.Content, nil
	}

	htmlBytes, err := o.fetchPage(ctx, art.URL)
	if err != nil {
		return "", fmt.Errorf("fetch page for extraction: %w", err)
	}

	result, err := o.extractor.Extract(ctx, art.URL, htmlBytes, o.fetchPage)
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}
	return result.Body, nil
}

func (o *Orchestrator) recordAIUsage(ctx context.Context, callKind, domain string, succeeded bool, latency time.Duration) {
	usage := &entity.AIUsageTracking{
		CallKind:  callKind,
		Domain:    domain,
		Succeeded: succeeded,
		Latency:   latency,
		CreatedAt: time.Now(),
	}
	if err := o.stats.RecordAIUsage(context.WithoutCancel(ctx), usage); err != nil {
		o.logger.Warn("failed to record ai usage", slog.Any("error", err))
	}
	o.metrics.AICallsTotal.Inc()
}

// buildDailySummaries implements step 3: group today's processed
// articles by fixed category and build a DailySummary for every
// category with at least MinArticlesForSummary items.
func (o *Orchestrator) buildDailySummaries(ctx context.Context, day time.Time, cs *CycleStats) ([]*entity.DailySummary, error) {
	cats, err := o.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	summaries := make([]*entity.DailySummary, 0, len(cats))
	for _, cat := range cats {
		articles, err := o.articles.ListByDateAndCategory(ctx, day, cat.ID)
		if err != nil {
			o.logger.Warn("listing category articles failed", slog.String("category", cat.Name), slog.Any("error", err))
			continue
		}
		if len(articles) < o.cfg.MinArticlesForSummary {
			continue
		}

		briefs := make([]ai.ArticleBrief, 0, len(articles))
		for _, a := range articles {
			briefs = append(briefs, ai.ArticleBrief{Title: a.Title, Summary: a.Summary, URL: a.URL})
		}

		summaryStart := time.Now()
		text, err := o.aiClient.CategorySummary(ctx, cat.Name, briefs)
		o.recordAIUsage(ctx, "category_summary", cat.Name, err == nil, time.Since(summaryStart))
		atomic.AddInt64(&cs.AICallCount, 1)
		if err != nil {
			o.logger.Warn("category summary generation failed", slog.String("category", cat.Name), slog.Any("error", err))
			continue
		}

		summary := &entity.DailySummary{
			Date:          day,
			Category:      cat.Name,
			SummaryText:   text,
			ArticlesCount: len(articles),
		}
		// DailySummary re-run on the same day overwrites the prior one.
		if err := o.summaries.Upsert(ctx, summary); err != nil {
			o.logger.Warn("persisting daily summary failed", slog.String("category", cat.Name), slog.Any("error", err))
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// publishDigest implements step 4: assemble the day's summaries into one
// message (no AI call, pure assembly per spec.md §4.12) and push via
// every configured output adapter.
func (o *Orchestrator) publishDigest(ctx context.Context, day time.Time, summaries []*entity.DailySummary) error {
	if len(summaries) == 0 {
		return nil
	}

	blocks := make([]notifier.Block, 0, len(summaries))
	for _, s := range summaries {
		blocks = append(blocks, notifier.Block{Heading: s.Category, Text: s.SummaryText})
	}
	title := fmt.Sprintf("Digest for %s", day.Format("2006-01-02"))

	var errs []error
	for _, pub := range o.publishers {
		if _, err := pub.PublishDigest(ctx, title, blocks); err != nil {
			errs = append(errs, err)
			o.metrics.DigestsPublishedTotal.WithLabelValues("error").Inc()
			continue
		}
		o.metrics.DigestsPublishedTotal.WithLabelValues("success").Inc()
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
