package entity

import "time"

// ProcessingStats is the per-day rollup of one orchestrator cycle's outcome,
// persisted by C12 step 5 (spec.md §4.12).
type ProcessingStats struct {
	Date time.Time // truncated to day

	SourcesProcessed int
	ItemsIngested    int
	ItemsDuplicated  int
	ArticlesAnalyzed int
	AICallCount      int
	Errors           int

	Duration time.Duration
}

// AIUsageTracking records one AI call for rate-limit and budget accounting
// (C7's cache/rate-limit bookkeeping, and C4's ai_credits_saved metric).
type AIUsageTracking struct {
	ID        int64
	CallKind  string
	Domain    string
	CacheHit  bool
	Succeeded bool
	Latency   time.Duration
	CreatedAt time.Time
}

// TaskQueueStatus enumerates the lifecycle of an ad hoc Scheduler task.
type TaskQueueStatus string

const (
	TaskQueuePending   TaskQueueStatus = "pending"
	TaskQueueRunning   TaskQueueStatus = "running"
	TaskQueueSucceeded TaskQueueStatus = "succeeded"
	TaskQueueFailed    TaskQueueStatus = "failed"
)

// TaskQueueItem is one ad hoc task request handed to the Scheduler outside
// its regular ScheduleSetting rows (e.g. a "POST /process/run" trigger).
type TaskQueueItem struct {
	ID         int64
	TaskName   string
	Status     TaskQueueStatus
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Setting is a generic key-value configuration override, backing the
// settings table named in spec.md §6 persistence requirements.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
