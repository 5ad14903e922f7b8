package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/repository"
)

// TaskFunc runs one named task to completion. It is expected to honor ctx
// cancellation (timeout or shutdown) and return the article/processing
// error, if any; the Scheduler never interprets the error beyond recording
// it and marking the task failed.
type TaskFunc func(ctx context.Context) error

// Scheduler is C11: a single cooperative tick loop over ScheduleSetting
// rows plus an ad hoc task_queue, with stuck-task detection and per-task
// timeouts (spec §4.11).
type Scheduler struct {
	scheduleRepo repository.ScheduleRepository
	queueRepo    repository.TaskQueueRepository
	runners      map[string]TaskFunc
	cfg          Config
	metrics      *Metrics
	logger       *slog.Logger

	wg sync.WaitGroup
}

// New builds a Scheduler. runners maps a ScheduleSetting.TaskName or
// task_queue entry's TaskName to the function that executes it; a task
// without a registered runner fails immediately rather than blocking the
// tick loop.
func New(
	scheduleRepo repository.ScheduleRepository,
	queueRepo repository.TaskQueueRepository,
	runners map[string]TaskFunc,
	cfg Config,
	metrics *Metrics,
	logger *slog.Logger,
) *Scheduler {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduleRepo: scheduleRepo,
		queueRepo:    queueRepo,
		runners:      runners,
		cfg:          cfg,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run blocks, ticking every cfg.CheckInterval, until ctx is cancelled. On
// cancellation it waits for in-flight tasks to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	var tick int
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			tick++
			s.runTick(ctx, tick)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context, tick int) {
	s.metrics.TicksTotal.Inc()

	if tick%stuckCheckEveryTicks == 0 {
		s.clearStuckTasks(ctx)
	}

	s.dispatchSchedules(ctx)
	s.drainQueue(ctx)
}

// dispatchSchedules claims and spawns every enabled ScheduleSetting whose
// next_run has arrived. MarkRunning's conditional UPDATE is the only
// guard against two ticks (or two Scheduler instances) claiming the same
// row; a lost race here is silently skipped, not an error.
func (s *Scheduler) dispatchSchedules(ctx context.Context) {
	settings, err := s.scheduleRepo.List(ctx)
	if err != nil {
		s.logger.Error("scheduler: list schedule settings", slog.Any("error", err))
		return
	}

	now := time.Now()
	for _, setting := range settings {
		if !setting.Enabled || setting.IsRunning {
			continue
		}

		nextRun := setting.NextRun
		if nextRun == nil {
			computed := setting.ComputeNextRun(now)
			nextRun = &computed
		}
		if now.Before(*nextRun) {
			continue
		}

		claimed, err := s.scheduleRepo.MarkRunning(ctx, setting.TaskName, now)
		if err != nil {
			s.logger.Error("scheduler: mark running", slog.String("task", setting.TaskName), slog.Any("error", err))
			continue
		}
		if !claimed {
			continue
		}

		s.wg.Add(1)
		s.metrics.TasksInFlight.Inc()
		go func() {
			defer s.wg.Done()
			defer s.metrics.TasksInFlight.Dec()
			s.runScheduled(ctx, setting)
		}()
	}
}

func (s *Scheduler) runScheduled(parent context.Context, setting *entity.ScheduleSetting) {
	runCtx := parent
	if timeout := setting.TaskTimeout(s.cfg.TaskTimeout); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.dispatch(runCtx, setting.TaskName)
	status := "success"
	if err != nil {
		status = "failure"
		s.logger.Error("scheduler: task failed", slog.String("task", setting.TaskName), slog.Any("error", err))
	}
	s.metrics.TaskRunsTotal.WithLabelValues(setting.TaskName, status).Inc()
	s.metrics.TaskDurationSeconds.WithLabelValues(setting.TaskName).Observe(time.Since(start).Seconds())

	finishedAt := time.Now()
	nextRun := setting.ComputeNextRun(finishedAt)
	// A dedicated background context: the task's own timeout must not
	// prevent is_running from being cleared.
	if err := s.scheduleRepo.MarkFinished(context.Background(), setting.TaskName, finishedAt, nextRun); err != nil {
		s.logger.Error("scheduler: mark finished", slog.String("task", setting.TaskName), slog.Any("error", err))
	}
}

// clearStuckTasks implements the spec.md §8 invariant: is_running is false
// whenever now > last_run + max(task_timeout, stuck_hours).
func (s *Scheduler) clearStuckTasks(ctx context.Context) {
	settings, err := s.scheduleRepo.List(ctx)
	if err != nil {
		s.logger.Error("scheduler: list for stuck check", slog.Any("error", err))
		return
	}

	now := time.Now()
	for _, setting := range settings {
		if !setting.IsRunning || setting.LastRun == nil {
			continue
		}

		threshold := setting.TaskTimeout(s.cfg.TaskTimeout)
		if threshold < s.cfg.StuckAfter {
			threshold = s.cfg.StuckAfter
		}
		if now.Sub(*setting.LastRun) <= threshold {
			continue
		}

		if err := s.scheduleRepo.ForceClear(ctx, setting.TaskName); err != nil {
			s.logger.Error("scheduler: force clear stuck task", slog.String("task", setting.TaskName), slog.Any("error", err))
			continue
		}
		s.metrics.StuckTasksClearedTotal.Inc()
		s.logger.Warn("scheduler: force-cleared stuck task",
			slog.String("task", setting.TaskName),
			slog.Duration("running_for", now.Sub(*setting.LastRun)))
	}
}

// drainQueue runs every pending task_queue item to completion, concurrently.
// Dequeue's FOR UPDATE SKIP LOCKED claim happens synchronously so the loop
// never double-dispatches a row; the task itself runs in a goroutine.
func (s *Scheduler) drainQueue(ctx context.Context) {
	for {
		item, err := s.queueRepo.Dequeue(ctx)
		if err != nil {
			s.logger.Error("scheduler: dequeue task", slog.Any("error", err))
			return
		}
		if item == nil {
			return
		}

		s.wg.Add(1)
		s.metrics.TasksInFlight.Inc()
		go func() {
			defer s.wg.Done()
			defer s.metrics.TasksInFlight.Dec()
			s.runQueued(ctx, item)
		}()
	}
}

func (s *Scheduler) runQueued(parent context.Context, item *entity.TaskQueueItem) {
	runCtx := parent
	if s.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(parent, s.cfg.TaskTimeout)
		defer cancel()
	}

	taskErr := s.dispatch(runCtx, item.TaskName)
	status := entity.TaskQueueSucceeded
	if taskErr != nil {
		status = entity.TaskQueueFailed
		s.logger.Error("scheduler: queued task failed", slog.String("task", item.TaskName), slog.Any("error", taskErr))
	}
	s.metrics.QueueDrainedTotal.WithLabelValues(string(status)).Inc()

	if err := s.queueRepo.MarkStatus(context.Background(), item.ID, status, taskErr); err != nil {
		s.logger.Error("scheduler: mark queue status", slog.Int64("id", item.ID), slog.Any("error", err))
	}
}

func (s *Scheduler) dispatch(ctx context.Context, taskName string) error {
	runner, ok := s.runners[taskName]
	if !ok {
		return fmt.Errorf("scheduler: no runner registered for task %q", taskName)
	}
	return runner(ctx)
}
