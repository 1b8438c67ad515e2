package postgres

import (
	"context"
	"fmt"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"
)

const syncTaskColumns = `id, task_type, appointment_id, payload, status, retry_count, last_error,
        created_at, processed_at, next_retry_at`

func (s *Store) CreateSyncTask(ctx context.Context, task *models.SyncTask) (int64, error) {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	err := s.pool.QueryRow(ctx, `INSERT INTO sync_queue (task_type, appointment_id, payload, status, retry_count,
            last_error, next_retry_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at`,
		task.TaskType, task.AppointmentID, task.Payload, task.Status, task.RetryCount, task.LastError, task.NextRetryAt,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create sync task: %w", err)
	}
	return task.ID, nil
}

func (s *Store) GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error) {
	tasks, err := s.querySyncTasks(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("sync task %d: %w", id, domain.ErrNotFound)
	}
	return tasks[0], nil
}

func (s *Store) GetPendingSyncTasks(ctx context.Context, limit int) ([]*models.SyncTask, error) {
	return s.querySyncTasks(ctx, `WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= now())
        ORDER BY created_at LIMIT $2`, models.TaskStatusPending, limit)
}

func (s *Store) GetFailedSyncTasks(ctx context.Context) ([]*models.SyncTask, error) {
	return s.querySyncTasks(ctx, `WHERE status = $1 ORDER BY created_at`, models.TaskStatusFailed)
}

func (s *Store) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	switch {
	case status == models.TaskStatusPending && nextRetryAt != nil:
		query = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3, retry_count = retry_count + 1 WHERE id = $4`
	case status == models.TaskStatusCompleted, status == models.TaskStatusFailed:
		query = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3, processed_at = now() WHERE id = $4`
	default:
		query = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3 WHERE id = $4`
	}

	if _, err := s.pool.Exec(ctx, query, status, errMsg, nextRetryAt, id); err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	return nil
}

func (s *Store) ClaimSyncTask(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE sync_queue SET status = $1
        WHERE id = $2 AND status = $3 AND (next_retry_at IS NULL OR next_retry_at <= now())`,
		models.TaskStatusProcessing, id, models.TaskStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim sync task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseProcessingSyncTasks(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE sync_queue SET status = $1 WHERE status = $2`,
		models.TaskStatusPending, models.TaskStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to release sync tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) querySyncTasks(ctx context.Context, where string, args ...interface{}) ([]*models.SyncTask, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+syncTaskColumns+` FROM sync_queue `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(&t.ID, &t.TaskType, &t.AppointmentID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}
