package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/repository"
)

const extractionPatternColumns = `
	id, domain, selector_pattern, strategy, success_count, failure_count,
	quality_score_avg, discovered_by, is_stable, created_at, updated_at`

type ExtractionRepo struct{ db executor }

func NewExtractionRepo(db executor) repository.ExtractionRepository {
	return &ExtractionRepo{db: db}
}

func scanExtractionPattern(row interface{ Scan(dest ...interface{}) error }) (*entity.ExtractionPattern, error) {
	var p entity.ExtractionPattern
	var strategy, discoveredBy string
	if err := row.Scan(
		&p.ID, &p.Domain, &p.SelectorPattern, &strategy, &p.SuccessCount, &p.FailureCount,
		&p.QualityScoreAvg, &discoveredBy, &p.IsStable, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Strategy = entity.ExtractionStrategy(strategy)
	p.DiscoveredBy = entity.DiscoveredBy(discoveredBy)
	return &p, nil
}

// LookupPatterns orders by (is_stable DESC, success_rate DESC) per
// spec.md §4.4, computing success_rate in SQL to avoid a full table scan
// through Go for every lookup.
func (repo *ExtractionRepo) LookupPatterns(ctx context.Context, domain string) ([]*entity.ExtractionPattern, error) {
	query := fmt.Sprintf(`
SELECT %s FROM extraction_patterns
WHERE domain = $1
ORDER BY is_stable DESC,
	CASE WHEN (success_count + failure_count) = 0 THEN 0
	ELSE success_count::float8 / (success_count + failure_count) END DESC`, extractionPatternColumns)
	rows, err := repo.db.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("LookupPatterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.ExtractionPattern
	for rows.Next() {
		p, err := scanExtractionPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("LookupPatterns: Scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (repo *ExtractionRepo) UpsertPattern(ctx context.Context, p *entity.ExtractionPattern) error {
	now := time.Now().UTC()
	const query = `
INSERT INTO extraction_patterns
	(domain, selector_pattern, strategy, success_count, failure_count, quality_score_avg, discovered_by, is_stable, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (domain, selector_pattern, strategy) DO UPDATE SET
	success_count = EXCLUDED.success_count,
	failure_count = EXCLUDED.failure_count,
	quality_score_avg = EXCLUDED.quality_score_avg,
	is_stable = EXCLUDED.is_stable,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
	err := repo.db.QueryRowContext(ctx, query,
		p.Domain, p.SelectorPattern, string(p.Strategy), p.SuccessCount, p.FailureCount,
		p.QualityScoreAvg, string(p.DiscoveredBy), p.IsStable, now,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("UpsertPattern: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

func (repo *ExtractionRepo) GetStability(ctx context.Context, domain string) (*entity.DomainStability, error) {
	const query = `
SELECT domain, is_stable, success_rate_7d, success_rate_30d, consecutive_successes,
	consecutive_failures, last_ai_analysis, needs_reanalysis, ai_credits_saved,
	adaptive_timeout_ms, updated_at
FROM domain_stability WHERE domain = $1`
	var d entity.DomainStability
	var timeoutMs int64
	err := repo.db.QueryRowContext(ctx, query, domain).Scan(
		&d.Domain, &d.IsStable, &d.SuccessRate7d, &d.SuccessRate30d, &d.ConsecutiveSuccesses,
		&d.ConsecutiveFailures, &d.LastAIAnalysis, &d.NeedsReanalysis, &d.AICreditsSaved,
		&timeoutMs, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetStability: %w", err)
	}
	d.AdaptiveTimeout = time.Duration(timeoutMs) * time.Millisecond
	return &d, nil
}

func (repo *ExtractionRepo) UpsertStability(ctx context.Context, d *entity.DomainStability) error {
	now := time.Now().UTC()
	const query = `
INSERT INTO domain_stability
	(domain, is_stable, success_rate_7d, success_rate_30d, consecutive_successes,
	 consecutive_failures, last_ai_analysis, needs_reanalysis, ai_credits_saved, adaptive_timeout_ms, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (domain) DO UPDATE SET
	is_stable = EXCLUDED.is_stable,
	success_rate_7d = EXCLUDED.success_rate_7d,
	success_rate_30d = EXCLUDED.success_rate_30d,
	consecutive_successes = EXCLUDED.consecutive_successes,
	consecutive_failures = EXCLUDED.consecutive_failures,
	last_ai_analysis = EXCLUDED.last_ai_analysis,
	needs_reanalysis = EXCLUDED.needs_reanalysis,
	ai_credits_saved = EXCLUDED.ai_credits_saved,
	adaptive_timeout_ms = EXCLUDED.adaptive_timeout_ms,
	updated_at = EXCLUDED.updated_at`
	_, err := repo.db.ExecContext(ctx, query,
		d.Domain, d.IsStable, d.SuccessRate7d, d.SuccessRate30d, d.ConsecutiveSuccesses,
		d.ConsecutiveFailures, d.LastAIAnalysis, d.NeedsReanalysis, d.AICreditsSaved,
		int64(d.AdaptiveTimeout/time.Millisecond), now,
	)
	if err != nil {
		return fmt.Errorf("UpsertStability: %w", err)
	}
	d.UpdatedAt = now
	return nil
}
