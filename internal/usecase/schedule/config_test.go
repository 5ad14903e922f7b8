package schedule_test

import (
	"log/slog"
	"testing"
	"time"

	"pulsefeed/internal/usecase/schedule"
)

// promauto panics on duplicate registration, so every test in this package
// shares one Metrics instance rather than constructing its own.
var testMetrics = schedule.NewMetrics()

func TestDefaultConfig(t *testing.T) {
	cfg := schedule.DefaultConfig()

	if cfg.CheckInterval != 60*time.Second {
		t.Errorf("CheckInterval = %v, want 60s", cfg.CheckInterval)
	}
	if cfg.StuckAfter != 2*time.Hour {
		t.Errorf("StuckAfter = %v, want 2h", cfg.StuckAfter)
	}
	if cfg.TaskTimeout != 0 {
		t.Errorf("TaskTimeout = %v, want 0 (disabled)", cfg.TaskTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestLoadConfigFromEnv_AllValid(t *testing.T) {
	t.Setenv("SCHEDULER_CHECK_INTERVAL_SECONDS", "30")
	t.Setenv("SCHEDULER_STUCK_HOURS", "4")
	t.Setenv("SCHEDULER_TASK_TIMEOUT_SECONDS", "900")

	cfg := schedule.LoadConfigFromEnv(slog.Default(), testMetrics)

	if cfg.CheckInterval != 30*time.Second {
		t.Errorf("CheckInterval = %v, want 30s", cfg.CheckInterval)
	}
	if cfg.StuckAfter != 4*time.Hour {
		t.Errorf("StuckAfter = %v, want 4h", cfg.StuckAfter)
	}
	if cfg.TaskTimeout != 900*time.Second {
		t.Errorf("TaskTimeout = %v, want 900s", cfg.TaskTimeout)
	}
}

func TestLoadConfigFromEnv_InvalidFallsBackToDefault(t *testing.T) {
	t.Setenv("SCHEDULER_CHECK_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("SCHEDULER_STUCK_HOURS", "-5")

	cfg := schedule.LoadConfigFromEnv(slog.Default(), testMetrics)

	if cfg.CheckInterval != schedule.DefaultConfig().CheckInterval {
		t.Errorf("CheckInterval should fall back to default on parse failure, got %v", cfg.CheckInterval)
	}
	if cfg.StuckAfter != schedule.DefaultConfig().StuckAfter {
		t.Errorf("StuckAfter should fall back to default on range failure, got %v", cfg.StuckAfter)
	}
}

func TestLoadConfigFromEnv_TaskTimeoutZeroDisablesTimeout(t *testing.T) {
	t.Setenv("SCHEDULER_TASK_TIMEOUT_SECONDS", "0")

	cfg := schedule.LoadConfigFromEnv(slog.Default(), testMetrics)

	if cfg.TaskTimeout != 0 {
		t.Errorf("TaskTimeout = %v, want 0", cfg.TaskTimeout)
	}
}
