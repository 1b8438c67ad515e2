package database

import (
	"context"
	"testing"
	"time"

	"turnero/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{
		TaskType:      models.TaskClientCopyDelete,
		AppointmentID: "appt-1",
		Payload:       `{"client_id":"c1","appointment_id":"appt-1"}`,
	}

	id, err := db.CreateSyncTask(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, models.TaskStatusPending, task.Status)

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "appt-1", tasks[0].AppointmentID)

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, id, models.TaskStatusCompleted, "", nil))
	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	done, err := db.GetSyncTask(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, done.ProcessedAt)

	errMsg := "chat not found"
	_, err = db.CreateSyncTask(ctx, &models.SyncTask{
		TaskType: models.TaskNotifyCancellation, Status: models.TaskStatusFailed, LastError: &errMsg,
	})
	require.NoError(t, err)
	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "chat not found", *failed[0].LastError)

	retry := &models.SyncTask{TaskType: models.TaskSheetsUpsert, AppointmentID: "appt-2"}
	_, err = db.CreateSyncTask(ctx, retry)
	require.NoError(t, err)

	nextRetry := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, retry.ID, models.TaskStatusPending, "timeout", &nextRetry))
	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks, "task with future retry should not be pending")

	pastRetry := time.Now().Add(-time.Hour)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, retry.ID, models.TaskStatusPending, "timeout", &pastRetry))
	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].RetryCount)
}

func TestClaimSyncTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.CreateSyncTask(ctx, &models.SyncTask{TaskType: models.TaskSheetsDelete, AppointmentID: "appt-9"})
	require.NoError(t, err)

	claimed, err := db.ClaimSyncTask(ctx, id)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = db.ClaimSyncTask(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimed, "a task is claimed once")

	task, err := db.GetSyncTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, task.Status)

	later := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, id, models.TaskStatusPending, "boom", &later))
	claimed, err = db.ClaimSyncTask(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimed, "not due yet")
}

func TestReleaseProcessingSyncTasks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.CreateSyncTask(ctx, &models.SyncTask{TaskType: models.TaskSheetsUpsert, AppointmentID: "appt-3"})
	require.NoError(t, err)
	claimed, err := db.ClaimSyncTask(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)

	released, err := db.ReleaseProcessingSyncTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].ID)
}
