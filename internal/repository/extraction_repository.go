package repository

import (
	"context"

	"pulsefeed/internal/domain/entity"
)

// ExtractionRepository is C4's durable store. Writes go through C9;
// C4 layers its own bounded in-process read cache on top of this.
type ExtractionRepository interface {
	// LookupPatterns returns ExtractionPattern rows for a domain, ordered
	// by (is_stable DESC, success_rate DESC) per spec.md §4.4.
	LookupPatterns(ctx context.Context, domain string) ([]*entity.ExtractionPattern, error)

	// UpsertPattern records one (domain, selector_pattern, strategy) attempt,
	// incrementing success/failure counters.
	UpsertPattern(ctx context.Context, p *entity.ExtractionPattern) error

	GetStability(ctx context.Context, domain string) (*entity.DomainStability, error)
	UpsertStability(ctx context.Context, d *entity.DomainStability) error
}
