package repository

import (
	"context"
	"time"

	"pulsefeed/internal/domain/entity"
)

// ScheduleRepository backs C11's ScheduleSetting rows.
type ScheduleRepository interface {
	List(ctx context.Context) ([]*entity.ScheduleSetting, error)
	Get(ctx context.Context, taskName string) (*entity.ScheduleSetting, error)
	Upsert(ctx context.Context, s *entity.ScheduleSetting) error

	// MarkRunning atomically sets is_running=true iff it was false,
	// returning false if the task was already running (the race the
	// Scheduler's tick loop must avoid, spec.md §4.11).
	MarkRunning(ctx context.Context, taskName string, at time.Time) (claimed bool, err error)
	MarkFinished(ctx context.Context, taskName string, lastRun, nextRun time.Time) error

	// ForceClear implements stuck-task detection: force-clears is_running
	// without recomputing last_run/next_run.
	ForceClear(ctx context.Context, taskName string) error
}

// DailySummaryRepository backs C12 step 3's DailySummary persistence.
type DailySummaryRepository interface {
	Upsert(ctx context.Context, s *entity.DailySummary) error
	Get(ctx context.Context, day time.Time, category string) (*entity.DailySummary, error)
	ListForDate(ctx context.Context, day time.Time) ([]*entity.DailySummary, error)
}

// StatsRepository backs processing_stats and ai_usage_tracking (SPEC_FULL §12).
type StatsRepository interface {
	RecordProcessingStats(ctx context.Context, s *entity.ProcessingStats) error
	GetProcessingStats(ctx context.Context, day time.Time) (*entity.ProcessingStats, error)

	RecordAIUsage(ctx context.Context, u *entity.AIUsageTracking) error
}

// TaskQueueRepository backs ad hoc Scheduler tasks (SPEC_FULL §12).
type TaskQueueRepository interface {
	Enqueue(ctx context.Context, taskName string) (*entity.TaskQueueItem, error)
	Dequeue(ctx context.Context) (*entity.TaskQueueItem, error)
	MarkStatus(ctx context.Context, id int64, status entity.TaskQueueStatus, taskErr error) error
}
