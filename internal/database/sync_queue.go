package database

import (
	"context"
	"fmt"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"
)

const syncTaskColumns = `id, task_type, appointment_id, payload, status, retry_count, last_error,
                 created_at, processed_at, next_retry_at`

func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) (int64, error) {
	query := `INSERT INTO sync_queue (task_type, appointment_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	result, err := db.ExecContext(ctx, query,
		task.TaskType,
		task.AppointmentID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create sync task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return id, nil
}

func (db *DB) GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error) {
	tasks, err := db.querySyncTasks(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("sync task %d: %w", id, domain.ErrNotFound)
	}
	return tasks[0], nil
}

func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]*models.SyncTask, error) {
	return db.querySyncTasks(ctx, `WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`, models.TaskStatusPending, time.Now(), limit)
}

func (db *DB) GetFailedSyncTasks(ctx context.Context) ([]*models.SyncTask, error) {
	return db.querySyncTasks(ctx, `WHERE status = ? ORDER BY created_at ASC`, models.TaskStatusFailed)
}

// UpdateSyncTaskStatus moves a task between states. A pending status with a
// retry time counts as another attempt.
func (db *DB) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now()

	switch {
	case status == models.TaskStatusPending && nextRetryAt != nil:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	case status == models.TaskStatusCompleted, status == models.TaskStatusFailed:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, now, id}
	default:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	return nil
}

// ClaimSyncTask moves a due pending task to processing. It reports false
// when another worker got there first or the task is not yet due.
func (db *DB) ClaimSyncTask(ctx context.Context, id int64) (bool, error) {
	result, err := db.ExecContext(ctx, `UPDATE sync_queue SET status = ?
              WHERE id = ? AND status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)`,
		models.TaskStatusProcessing, id, models.TaskStatusPending, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to claim sync task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim sync task: %w", err)
	}
	return n == 1, nil
}

// ReleaseProcessingSyncTasks returns tasks left in processing by a stopped
// worker to the pending state.
func (db *DB) ReleaseProcessingSyncTasks(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx, `UPDATE sync_queue SET status = ? WHERE status = ?`,
		models.TaskStatusPending, models.TaskStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to release sync tasks: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) querySyncTasks(ctx context.Context, where string, args ...interface{}) ([]*models.SyncTask, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+syncTaskColumns+` FROM sync_queue `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.AppointmentID, &t.Payload, &t.Status, &t.RetryCount, &t.LastError,
			&t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}
