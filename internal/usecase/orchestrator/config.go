// Package orchestrator implements C12: it drives one full processing
// cycle end to end, wiring C1-C9's independent components and the
// Telegram/Telegraph output adapters into the sequence spec.md §4.12
// describes, the way internal/usecase/fetch/service.go once drove a
// single monolithic crawl-summarize-store pipeline.
package orchestrator

import (
	"fmt"
	"log/slog"

	"pulsefeed/internal/pkg/config"
)

// Config controls the cycle's fan-out width and the per-category digest
// threshold.
type Config struct {
	// MaxWorkers bounds concurrent per-source ingestion and concurrent
	// per-article AI analysis, per spec.md §5's MAX_WORKERS pool.
	MaxWorkers int

	// MinArticlesForSummary is the "N items" threshold spec.md §4.12
	// step 3 names without fixing a number.
	MinArticlesForSummary int

	// ArticlesPerCycle caps how many unprocessed articles step 2 claims
	// in one cycle, so a large backlog cannot starve the next cycle's
	// ingestion step of worker time.
	ArticlesPerCycle int
}

const (
	defaultMaxWorkers            = 5
	defaultMinArticlesForSummary = 3
	defaultArticlesPerCycle      = 500
)

func DefaultConfig() Config {
	return Config{
		MaxWorkers:            defaultMaxWorkers,
		MinArticlesForSummary: defaultMinArticlesForSummary,
		ArticlesPerCycle:      defaultArticlesPerCycle,
	}
}

func (c Config) Validate() error {
	if err := config.ValidateIntRange(c.MaxWorkers, 1, 256); err != nil {
		return fmt.Errorf("max workers: %w", err)
	}
	if err := config.ValidateIntRange(c.MinArticlesForSummary, 1, 10000); err != nil {
		return fmt.Errorf("min articles for summary: %w", err)
	}
	if err := config.ValidateIntRange(c.ArticlesPerCycle, 1, 1000000); err != nil {
		return fmt.Errorf("articles per cycle: %w", err)
	}
	return nil
}

// LoadConfigFromEnv loads MAX_WORKERS and MIN_ARTICLES_FOR_SUMMARY with
// the same fail-open strategy as worker.LoadConfigFromEnv and
// schedule.LoadConfigFromEnv: an invalid value logs a warning, records a
// metric, and falls back to the default instead of failing startup.
func LoadConfigFromEnv(logger *slog.Logger, metrics *Metrics) Config {
	cfg := DefaultConfig()
	fallbackApplied := false

	workersResult := config.LoadEnvInt("MAX_WORKERS", cfg.MaxWorkers,
		func(v int) error { return config.ValidateIntRange(v, 1, 256) })
	cfg.MaxWorkers = workersResult.Value.(int)
	if workersResult.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("max_workers")
		metrics.RecordFallback("max_workers", "default")
		for _, warning := range workersResult.Warnings {
			logger.Warn("orchestrator configuration fallback applied",
				slog.String("field", "MaxWorkers"), slog.String("warning", warning))
		}
	}

	minResult := config.LoadEnvInt("MIN_ARTICLES_FOR_SUMMARY", cfg.MinArticlesForSummary,
		func(v int) error { return config.ValidateIntRange(v, 1, 10000) })
	cfg.MinArticlesForSummary = minResult.Value.(int)
	if minResult.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("min_articles_for_summary")
		metrics.RecordFallback("min_articles_for_summary", "default")
		for _, warning := range minResult.Warnings {
			logger.Warn("orchestrator configuration fallback applied",
				slog.String("field", "MinArticlesForSummary"), slog.String("warning", warning))
		}
	}

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()
	return cfg
}
