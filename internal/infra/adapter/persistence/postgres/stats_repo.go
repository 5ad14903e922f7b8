package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/repository"
)

type StatsRepo struct{ db executor }

func NewStatsRepo(db executor) repository.StatsRepository {
	return &StatsRepo{db: db}
}

// RecordProcessingStats upserts the per-day rollup C12 step 5 writes once
// per orchestrator cycle; same-day reruns accumulate rather than overwrite.
func (repo *StatsRepo) RecordProcessingStats(ctx context.Context, s *entity.ProcessingStats) error {
	const query = `
INSERT INTO processing_stats
	(date, sources_processed, items_ingested, items_duplicated, articles_analyzed, ai_call_count, errors, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (date) DO UPDATE SET
	sources_processed = processing_stats.sources_processed + EXCLUDED.sources_processed,
	items_ingested = processing_stats.items_ingested + EXCLUDED.items_ingested,
	items_duplicated = processing_stats.items_duplicated + EXCLUDED.items_duplicated,
	articles_analyzed = processing_stats.articles_analyzed + EXCLUDED.articles_analyzed,
	ai_call_count = processing_stats.ai_call_count + EXCLUDED.ai_call_count,
	errors = processing_stats.errors + EXCLUDED.errors,
	duration_ms = processing_stats.duration_ms + EXCLUDED.duration_ms`
	_, err := repo.db.ExecContext(ctx, query,
		s.Date, s.SourcesProcessed, s.ItemsIngested, s.ItemsDuplicated, s.ArticlesAnalyzed,
		s.AICallCount, s.Errors, int64(s.Duration/time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("RecordProcessingStats: %w", err)
	}
	return nil
}

func (repo *StatsRepo) GetProcessingStats(ctx context.Context, day time.Time) (*entity.ProcessingStats, error) {
	const query = `
SELECT date, sources_processed, items_ingested, items_duplicated, articles_analyzed, ai_call_count, errors, duration_ms
FROM processing_stats WHERE date = $1`
	var s entity.ProcessingStats
	var durationMs int64
	err := repo.db.QueryRowContext(ctx, query, day).Scan(
		&s.Date, &s.SourcesProcessed, &s.ItemsIngested, &s.ItemsDuplicated, &s.ArticlesAnalyzed,
		&s.AICallCount, &s.Errors, &durationMs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetProcessingStats: %w", err)
	}
	s.Duration = time.Duration(durationMs) * time.Millisecond
	return &s, nil
}

func (repo *StatsRepo) RecordAIUsage(ctx context.Context, u *entity.AIUsageTracking) error {
	const query = `
INSERT INTO ai_usage_tracking (call_kind, domain, cache_hit, succeeded, latency_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	now := time.Now().UTC()
	err := repo.db.QueryRowContext(ctx, query,
		u.CallKind, u.Domain, u.CacheHit, u.Succeeded, int64(u.Latency/time.Millisecond), now,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("RecordAIUsage: %w", err)
	}
	u.CreatedAt = now
	return nil
}
