package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/repository"
)

type TaskQueueRepo struct{ db executor }

func NewTaskQueueRepo(db executor) repository.TaskQueueRepository {
	return &TaskQueueRepo{db: db}
}

func (repo *TaskQueueRepo) Enqueue(ctx context.Context, taskName string) (*entity.TaskQueueItem, error) {
	const query = `
INSERT INTO task_queue (task_name, status, created_at)
VALUES ($1, $2, $3)
RETURNING id`
	item := &entity.TaskQueueItem{TaskName: taskName, Status: entity.TaskQueuePending, CreatedAt: time.Now().UTC()}
	if err := repo.db.QueryRowContext(ctx, query, taskName, string(entity.TaskQueuePending), item.CreatedAt).Scan(&item.ID); err != nil {
		return nil, fmt.Errorf("Enqueue: %w", err)
	}
	return item, nil
}

// Dequeue claims the oldest pending item with FOR UPDATE SKIP LOCKED, so
// concurrent Scheduler workers never pick up the same row twice.
func (repo *TaskQueueRepo) Dequeue(ctx context.Context) (*entity.TaskQueueItem, error) {
	const selectQuery = `
SELECT id, task_name, status, error, created_at, started_at, finished_at
FROM task_queue
WHERE status = 'pending'
ORDER BY created_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED`
	var item entity.TaskQueueItem
	var status, taskErr string
	err := repo.db.QueryRowContext(ctx, selectQuery).Scan(
		&item.ID, &item.TaskName, &status, &taskErr, &item.CreatedAt, &item.StartedAt, &item.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Dequeue: select: %w", err)
	}
	item.Status = entity.TaskQueueStatus(status)
	item.Error = taskErr

	now := time.Now().UTC()
	const updateQuery = `UPDATE task_queue SET status = 'running', started_at = $1 WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, updateQuery, now, item.ID); err != nil {
		return nil, fmt.Errorf("Dequeue: claim: %w", err)
	}
	item.Status = entity.TaskQueueRunning
	item.StartedAt = &now
	return &item, nil
}

func (repo *TaskQueueRepo) MarkStatus(ctx context.Context, id int64, status entity.TaskQueueStatus, taskErr error) error {
	errText := ""
	if taskErr != nil {
		errText = taskErr.Error()
	}
	const query = `UPDATE task_queue SET status = $1, error = $2, finished_at = $3 WHERE id = $4`
	if _, err := repo.db.ExecContext(ctx, query, string(status), errText, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("MarkStatus: %w", err)
	}
	return nil
}
