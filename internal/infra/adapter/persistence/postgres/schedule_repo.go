package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/repository"
)

const scheduleSettingColumns = `
	id, task_name, enabled, schedule_type, hour, minute, weekdays, timezone,
	last_run, next_run, is_running, task_config`

type ScheduleRepo struct{ db executor }

func NewScheduleRepo(db executor) repository.ScheduleRepository {
	return &ScheduleRepo{db: db}
}

func scanScheduleSetting(row interface{ Scan(dest ...interface{}) error }) (*entity.ScheduleSetting, error) {
	var s entity.ScheduleSetting
	var scheduleType string
	var weekdays pq.Int64Array
	var taskConfigJSON []byte
	if err := row.Scan(
		&s.ID, &s.TaskName, &s.Enabled, &scheduleType, &s.Hour, &s.Minute, &weekdays, &s.Timezone,
		&s.LastRun, &s.NextRun, &s.IsRunning, &taskConfigJSON,
	); err != nil {
		return nil, err
	}
	s.ScheduleType = entity.ScheduleType(scheduleType)
	for _, w := range weekdays {
		s.Weekdays = append(s.Weekdays, time.Weekday(w))
	}
	if len(taskConfigJSON) > 0 {
		if err := json.Unmarshal(taskConfigJSON, &s.TaskConfig); err != nil {
			return nil, fmt.Errorf("unmarshal task_config: %w", err)
		}
	}
	return &s, nil
}

func (repo *ScheduleRepo) List(ctx context.Context) ([]*entity.ScheduleSetting, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_settings ORDER BY id ASC`, scheduleSettingColumns)
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.ScheduleSetting
	for rows.Next() {
		s, err := scanScheduleSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("List: Scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (repo *ScheduleRepo) Get(ctx context.Context, taskName string) (*entity.ScheduleSetting, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_settings WHERE task_name = $1`, scheduleSettingColumns)
	s, err := scanScheduleSetting(repo.db.QueryRowContext(ctx, query, taskName))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return s, nil
}

func (repo *ScheduleRepo) Upsert(ctx context.Context, s *entity.ScheduleSetting) error {
	weekdays := make(pq.Int64Array, len(s.Weekdays))
	for i, w := range s.Weekdays {
		weekdays[i] = int64(w)
	}
	taskConfigJSON, err := json.Marshal(s.TaskConfig)
	if err != nil {
		return fmt.Errorf("Upsert: marshal task_config: %w", err)
	}

	const query = `
INSERT INTO schedule_settings
	(task_name, enabled, schedule_type, hour, minute, weekdays, timezone, last_run, next_run, is_running, task_config)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (task_name) DO UPDATE SET
	enabled = EXCLUDED.enabled,
	schedule_type = EXCLUDED.schedule_type,
	hour = EXCLUDED.hour,
	minute = EXCLUDED.minute,
	weekdays = EXCLUDED.weekdays,
	timezone = EXCLUDED.timezone,
	task_config = EXCLUDED.task_config
RETURNING id`
	err = repo.db.QueryRowContext(ctx, query,
		s.TaskName, s.Enabled, string(s.ScheduleType), s.Hour, s.Minute, weekdays, s.Timezone,
		s.LastRun, s.NextRun, s.IsRunning, taskConfigJSON,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

// MarkRunning claims the task with a conditional UPDATE, so two concurrent
// tick loops racing on the same task_name never both see claimed=true
// (spec.md §4.11).
func (repo *ScheduleRepo) MarkRunning(ctx context.Context, taskName string, at time.Time) (bool, error) {
	const query = `UPDATE schedule_settings SET is_running = TRUE, last_run = $1 WHERE task_name = $2 AND is_running = FALSE`
	res, err := repo.db.ExecContext(ctx, query, at, taskName)
	if err != nil {
		return false, fmt.Errorf("MarkRunning: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (repo *ScheduleRepo) MarkFinished(ctx context.Context, taskName string, lastRun, nextRun time.Time) error {
	const query = `UPDATE schedule_settings SET is_running = FALSE, last_run = $1, next_run = $2 WHERE task_name = $3`
	if _, err := repo.db.ExecContext(ctx, query, lastRun, nextRun, taskName); err != nil {
		return fmt.Errorf("MarkFinished: %w", err)
	}
	return nil
}

func (repo *ScheduleRepo) ForceClear(ctx context.Context, taskName string) error {
	const query = `UPDATE schedule_settings SET is_running = FALSE WHERE task_name = $1`
	if _, err := repo.db.ExecContext(ctx, query, taskName); err != nil {
		return fmt.Errorf("ForceClear: %w", err)
	}
	return nil
}

type DailySummaryRepo struct{ db executor }

func NewDailySummaryRepo(db executor) repository.DailySummaryRepository {
	return &DailySummaryRepo{db: db}
}

func (repo *DailySummaryRepo) Upsert(ctx context.Context, s *entity.DailySummary) error {
	const query = `
INSERT INTO daily_summaries (date, category, summary_text, articles_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (date, category) DO UPDATE SET
	summary_text = EXCLUDED.summary_text,
	articles_count = EXCLUDED.articles_count
RETURNING id`
	if err := repo.db.QueryRowContext(ctx, query, s.Date, s.Category, s.SummaryText, s.ArticlesCount).Scan(&s.ID); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *DailySummaryRepo) Get(ctx context.Context, day time.Time, category string) (*entity.DailySummary, error) {
	const query = `SELECT id, date, category, summary_text, articles_count FROM daily_summaries WHERE date = $1 AND category = $2`
	var s entity.DailySummary
	err := repo.db.QueryRowContext(ctx, query, day, category).Scan(&s.ID, &s.Date, &s.Category, &s.SummaryText, &s.ArticlesCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &s, nil
}

func (repo *DailySummaryRepo) ListForDate(ctx context.Context, day time.Time) ([]*entity.DailySummary, error) {
	const query = `SELECT id, date, category, summary_text, articles_count FROM daily_summaries WHERE date = $1 ORDER BY category ASC`
	rows, err := repo.db.QueryContext(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("ListForDate: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.DailySummary
	for rows.Next() {
		var s entity.DailySummary
		if err := rows.Scan(&s.ID, &s.Date, &s.Category, &s.SummaryText, &s.ArticlesCount); err != nil {
			return nil, fmt.Errorf("ListForDate: Scan: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
