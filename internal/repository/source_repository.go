package repository

import (
	"context"
	"time"

	"pulsefeed/internal/domain/entity"
)

// SourceRepository is C9's source-table contract.
type SourceRepository interface {
	Get(ctx context.Context, id int64) (*entity.Source, error)
	List(ctx context.Context) ([]*entity.Source, error)
	ListEnabled(ctx context.Context) ([]*entity.Source, error)
	Create(ctx context.Context, source *entity.Source) error
	Update(ctx context.Context, source *entity.Source) error
	Delete(ctx context.Context, id int64) error

	// RecordFetchResult persists the result of one adapter fetch attempt,
	// applying entity.Source's RecordSuccess/RecordFailure semantics.
	RecordFetchResult(ctx context.Context, id int64, at time.Time, fetchErr error) error
}
