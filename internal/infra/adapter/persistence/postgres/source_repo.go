package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/repository"
)

const sourceColumns = `
	id, name, url, source_type, enabled, config,
	fetch_interval, last_fetch, last_success, last_error, error_count,
	created_at, updated_at`

type SourceRepo struct{ db executor }

func NewSourceRepo(db executor) repository.SourceRepository {
	return &SourceRepo{db: db}
}

func scanSource(row interface{ Scan(dest ...interface{}) error }) (*entity.Source, error) {
	var s entity.Source
	var sourceType string
	var configJSON []byte
	var fetchIntervalSeconds int64
	if err := row.Scan(
		&s.ID, &s.Name, &s.URL, &sourceType, &s.Enabled, &configJSON,
		&fetchIntervalSeconds, &s.LastFetch, &s.LastSuccess, &s.LastError, &s.ErrorCount,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.SourceType = entity.SourceType(sourceType)
	s.FetchInterval = time.Duration(fetchIntervalSeconds) * time.Second
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &s.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	return &s, nil
}

func (repo *SourceRepo) Get(ctx context.Context, id int64) (*entity.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE id = $1`, sourceColumns)
	s, err := scanSource(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return s, nil
}

func (repo *SourceRepo) List(ctx context.Context) ([]*entity.Source, error) {
	return repo.listWhere(ctx, "")
}

func (repo *SourceRepo) ListEnabled(ctx context.Context) ([]*entity.Source, error) {
	return repo.listWhere(ctx, "WHERE enabled = TRUE")
}

func (repo *SourceRepo) listWhere(ctx context.Context, where string) ([]*entity.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources %s ORDER BY id ASC`, sourceColumns, where)
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("List: Scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (repo *SourceRepo) Create(ctx context.Context, s *entity.Source) error {
	configJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("Create: marshal config: %w", err)
	}

	const query = `
INSERT INTO sources
	(name, url, source_type, enabled, config, fetch_interval, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING id`
	now := time.Now().UTC()
	err = repo.db.QueryRowContext(ctx, query,
		s.Name, s.URL, string(s.SourceType), s.Enabled, configJSON,
		int64(s.FetchInterval/time.Second), now,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

func (repo *SourceRepo) Update(ctx context.Context, s *entity.Source) error {
	configJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("Update: marshal config: %w", err)
	}

	const query = `
UPDATE sources SET
	name = $1, url = $2, source_type = $3, enabled = $4, config = $5,
	fetch_interval = $6, updated_at = $7
WHERE id = $8`
	res, err := repo.db.ExecContext(ctx, query,
		s.Name, s.URL, string(s.SourceType), s.Enabled, configJSON,
		int64(s.FetchInterval/time.Second), time.Now().UTC(), s.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Update: no rows affected")
	}
	return nil
}

func (repo *SourceRepo) Delete(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: no rows affected")
	}
	return nil
}

// RecordFetchResult persists one adapter fetch attempt's outcome, applying
// entity.Source's RecordSuccess/RecordFailure semantics before writing so
// the error streak invariant stays enforced at the domain layer, not in SQL.
func (repo *SourceRepo) RecordFetchResult(ctx context.Context, id int64, at time.Time, fetchErr error) error {
	s, err := repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("RecordFetchResult: %w", err)
	}
	if s == nil {
		return fmt.Errorf("RecordFetchResult: source %d not found", id)
	}

	if fetchErr != nil {
		s.RecordFailure(at, fetchErr)
	} else {
		s.RecordSuccess(at)
	}

	const query = `
UPDATE sources SET
	last_fetch = $1, last_success = $2, last_error = $3, error_count = $4, updated_at = $5
WHERE id = $6`
	_, err = repo.db.ExecContext(ctx, query, s.LastFetch, s.LastSuccess, s.LastError, s.ErrorCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("RecordFetchResult: %w", err)
	}
	return nil
}
