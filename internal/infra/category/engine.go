// Package category implements C8, the Category Engine: it maps the
// free-form labels C7 proposes onto the fixed taxonomy, recording
// unmapped labels for admin review rather than inventing new
// categories on the fly.
package category

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/infra/ai"
	"pulsefeed/internal/repository"
	"pulsefeed/internal/usecase/persistence"
)

const (
	// ReducedConfidence is attached to articles that fall through to
	// DefaultCategory because no mapping (exact or normalized) matched.
	ReducedConfidence = 0.3

	// MaxCategories caps the number of categories kept per article
	// (spec.md §4.8 step 4), highest confidence first.
	MaxCategories = 3
)

var punctuationRx = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// BatchQueue is C9's batched-write surface as the Category Engine needs
// it. *persistence.Queue satisfies this.
type BatchQueue interface {
	SubmitBatched(ctx context.Context, batchKey string, unit persistence.BatchUnit) error
}

// Engine resolves AI category suggestions to entity.Category rows.
type Engine struct {
	repo            repository.CategoryRepository
	defaultCategory string
	maxCategories   int

	queue     BatchQueue
	repoForTx func(tx *sql.Tx) repository.CategoryRepository
}

// New builds an Engine. defaultCategory is the configured
// DEFAULT_CATEGORY name, used both when a label has no mapping and when
// a mapping references a fixed category that no longer exists.
func New(repo repository.CategoryRepository, defaultCategory string) *Engine {
	return &Engine{repo: repo, defaultCategory: defaultCategory, maxCategories: MaxCategories}
}

// WithQueue routes the final SetArticleCategories write through C9's
// batched-write path, using batch key "article_categories:<id>" — the
// exact batch key spec.md §4.9 names as its example — instead of
// writing directly against the shared pool. repoForTx builds a
// CategoryRepository bound to the *sql.Tx the Queue hands the batch.
// Engines built without calling this fall back to writing directly
// through the CategoryRepository passed to New.
func (e *Engine) WithQueue(queue BatchQueue, repoForTx func(tx *sql.Tx) repository.CategoryRepository) *Engine {
	e.queue = queue
	e.repoForTx = repoForTx
	return e
}

// normalizeLabel strips punctuation and language markers, lowercases,
// and collapses whitespace, per spec.md §4.8 step 2.
func normalizeLabel(s string) string {
	s = punctuationRx.ReplaceAllString(s, " ")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

type resolved struct {
	fixedCategory string
	confidence    float64
}

// resolveLabel runs the exact → normalized → unmapped cascade for one
// AI-proposed label, per spec.md §4.8 steps 1-3. A mapping whose
// recorded confidence threshold exceeds the suggestion's own confidence
// is treated as too weak to trust, falling through exactly like a miss.
func (e *Engine) resolveLabel(ctx context.Context, suggestion ai.CategorySuggestion) (resolved, error) {
	if m, err := e.repo.GetMapping(ctx, suggestion.Name); err == nil && m != nil && m.IsActive {
		if suggestion.Confidence >= m.ConfidenceThreshold {
			if err := e.repo.RecordMappingUsage(ctx, suggestion.Name); err != nil {
				return resolved{}, fmt.Errorf("category engine: record usage: %w", err)
			}
			return resolved{fixedCategory: m.FixedCategory, confidence: suggestion.Confidence}, nil
		}
	}

	normalized := normalizeLabel(suggestion.Name)
	if normalized != "" && normalized != suggestion.Name {
		if m, err := e.repo.GetMapping(ctx, normalized); err == nil && m != nil && m.IsActive {
			if suggestion.Confidence >= m.ConfidenceThreshold {
				if err := e.repo.RecordMappingUsage(ctx, normalized); err != nil {
					return resolved{}, fmt.Errorf("category engine: record usage: %w", err)
				}
				return resolved{fixedCategory: m.FixedCategory, confidence: suggestion.Confidence}, nil
			}
		}
	}

	if err := e.repo.UpsertUnmapped(ctx, suggestion.Name); err != nil {
		return resolved{}, fmt.Errorf("category engine: upsert unmapped: %w", err)
	}
	return resolved{fixedCategory: e.defaultCategory, confidence: ReducedConfidence}, nil
}

// MapArticle resolves every AI category suggestion for one article,
// deduplicates by fixed category keeping the highest confidence, caps
// at maxCategories, writes the ArticleCategory rows, and returns them.
func (e *Engine) MapArticle(ctx context.Context, articleID int64, suggestions []ai.CategorySuggestion) ([]entity.ArticleCategory, error) {
	byCategory := make(map[string]float64)
	for _, s := range suggestions {
		if s.Name == "" {
			continue
		}
		r, err := e.resolveLabel(ctx, s)
		if err != nil {
			return nil, err
		}
		if existing, ok := byCategory[r.fixedCategory]; !ok || r.confidence > existing {
			byCategory[r.fixedCategory] = r.confidence
		}
	}

	if len(byCategory) == 0 {
		byCategory[e.defaultCategory] = ReducedConfidence
	}

	type pair struct {
		name       string
		confidence float64
	}
	pairs := make([]pair, 0, len(byCategory))
	for name, conf := range byCategory {
		pairs = append(pairs, pair{name, conf})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].confidence > pairs[j].confidence })
	if len(pairs) > e.maxCategories {
		pairs = pairs[:e.maxCategories]
	}

	links := make([]entity.ArticleCategory, 0, len(pairs))
	for _, p := range pairs {
		cat, err := e.repo.GetByName(ctx, p.name)
		if err != nil || cat == nil {
			// The mapping referenced a fixed category that no longer
			// exists; defer to DEFAULT_CATEGORY rather than drop it.
			cat, err = e.repo.GetByName(ctx, e.defaultCategory)
			if err != nil || cat == nil {
				return nil, fmt.Errorf("category engine: default category %q not found: %w", e.defaultCategory, err)
			}
		}
		links = append(links, entity.ArticleCategory{ArticleID: articleID, CategoryID: cat.ID, Confidence: p.confidence})
	}

	if err := e.setArticleCategories(ctx, articleID, links); err != nil {
		return nil, fmt.Errorf("category engine: set article categories: %w", err)
	}
	return links, nil
}

func (e *Engine) setArticleCategories(ctx context.Context, articleID int64, links []entity.ArticleCategory) error {
	if e.queue == nil || e.repoForTx == nil {
		return e.repo.SetArticleCategories(ctx, articleID, links)
	}
	batchKey := fmt.Sprintf("article_categories:%d", articleID)
	return e.queue.SubmitBatched(ctx, batchKey, func(ctx context.Context, tx *sql.Tx) error {
		return e.repoForTx(tx).SetArticleCategories(ctx, articleID, links)
	})
}
