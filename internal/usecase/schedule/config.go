// Package schedule implements C11: a single cooperative tick loop that
// drives ScheduleSetting rows and ad hoc task_queue entries.
package schedule

import (
	"fmt"
	"log/slog"
	"time"

	"pulsefeed/internal/pkg/config"
)

// Config controls the tick loop's cadence, stuck-task threshold, and the
// global per-task timeout override (spec's SCHEDULER_* environment keys).
type Config struct {
	// CheckInterval is how often the loop re-evaluates ScheduleSetting rows.
	CheckInterval time.Duration
	// StuckAfter is how long is_running may stay true before the loop
	// force-clears it, per task, unless that task's own timeout is longer.
	StuckAfter time.Duration
	// TaskTimeout is the global default per-task execution timeout. Zero
	// disables it; a ScheduleSetting's task_config.timeout_seconds overrides it.
	TaskTimeout time.Duration
}

const (
	defaultCheckInterval = 60 * time.Second
	defaultStuckAfter    = 2 * time.Hour
	defaultTaskTimeout   = 0

	// stuckCheckEveryTicks implements "every K ticks" stuck detection
	// without needing its own timer.
	stuckCheckEveryTicks = 10
)

func DefaultConfig() Config {
	return Config{
		CheckInterval: defaultCheckInterval,
		StuckAfter:    defaultStuckAfter,
		TaskTimeout:   defaultTaskTimeout,
	}
}

func (c Config) Validate() error {
	if err := config.ValidatePositiveDuration(c.CheckInterval); err != nil {
		return fmt.Errorf("check interval: %w", err)
	}
	if err := config.ValidatePositiveDuration(c.StuckAfter); err != nil {
		return fmt.Errorf("stuck after: %w", err)
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("task timeout: must be >= 0")
	}
	return nil
}

// LoadConfigFromEnv loads SCHEDULER_CHECK_INTERVAL_SECONDS,
// SCHEDULER_STUCK_HOURS, and SCHEDULER_TASK_TIMEOUT_SECONDS with the same
// fail-open strategy as worker.LoadConfigFromEnv: an invalid value logs a
// warning, records a metric, and falls back to the default instead of
// failing startup.
func LoadConfigFromEnv(logger *slog.Logger, metrics *Metrics) Config {
	cfg := DefaultConfig()
	fallbackApplied := false

	checkResult := config.LoadEnvInt("SCHEDULER_CHECK_INTERVAL_SECONDS", int(cfg.CheckInterval/time.Second),
		func(v int) error { return config.ValidateIntRange(v, 1, 24*3600) })
	cfg.CheckInterval = time.Duration(checkResult.Value.(int)) * time.Second
	if checkResult.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("check_interval_seconds")
		metrics.RecordFallback("check_interval_seconds", "default")
		for _, warning := range checkResult.Warnings {
			logger.Warn("scheduler configuration fallback applied",
				slog.String("field", "CheckInterval"), slog.String("warning", warning))
		}
	}

	stuckResult := config.LoadEnvInt("SCHEDULER_STUCK_HOURS", int(cfg.StuckAfter/time.Hour),
		func(v int) error { return config.ValidateIntRange(v, 1, 24*7) })
	cfg.StuckAfter = time.Duration(stuckResult.Value.(int)) * time.Hour
	if stuckResult.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("stuck_hours")
		metrics.RecordFallback("stuck_hours", "default")
		for _, warning := range stuckResult.Warnings {
			logger.Warn("scheduler configuration fallback applied",
				slog.String("field", "StuckAfter"), slog.String("warning", warning))
		}
	}

	timeoutResult := config.LoadEnvInt("SCHEDULER_TASK_TIMEOUT_SECONDS", int(cfg.TaskTimeout/time.Second),
		func(v int) error { return config.ValidateIntRange(v, 0, 24*3600) })
	cfg.TaskTimeout = time.Duration(timeoutResult.Value.(int)) * time.Second
	if timeoutResult.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("task_timeout_seconds")
		metrics.RecordFallback("task_timeout_seconds", "default")
		for _, warning := range timeoutResult.Warnings {
			logger.Warn("scheduler configuration fallback applied",
				slog.String("field", "TaskTimeout"), slog.String("warning", warning))
		}
	}

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()
	return cfg
}
