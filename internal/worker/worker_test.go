package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"turnero/internal/config"
	"turnero/internal/database"
	"turnero/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	worker := newTestWorker(db, nil, config.WorkerConfig{})
	mirror := &fakeMirror{}
	worker.Handle(models.TaskSheetsUpsert, MirrorUpsertHandler(mirror))

	appt := &models.Appointment{ID: "a-1", ResourceName: "Ana", Start: models.NewClock(10, 0)}

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.TaskSheetsUpsert, appt.ID, appt); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	id := <-worker.queue
	worker.processTask(ctx, id)

	status, retryCount, nextRetry := loadTaskStatus(t, db, id)
	if status != models.TaskStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if len(mirror.upserts) != 1 || mirror.upserts[0] != "a-1" {
		t.Fatalf("expected one upsert of a-1, got %v", mirror.upserts)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	worker := newTestWorker(db, nil, config.WorkerConfig{MaxRetries: 3, InitialDelay: time.Second})
	worker.Handle(models.TaskSheetsDelete, MirrorDeleteHandler(&fakeMirror{err: errors.New("boom")}))

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.TaskSheetsDelete, "a-2", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := <-worker.queue
	worker.processTask(ctx, id)

	status, retryCount, nextRetry := loadTaskStatus(t, db, id)
	if status != models.TaskStatusPending {
		t.Fatalf("expected status=pending, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	// not due yet: a second attempt must not run
	worker.processTask(ctx, id)
	_, retryCount, _ = loadTaskStatus(t, db, id)
	if retryCount != 1 {
		t.Fatalf("expected retry_count to stay 1, got %d", retryCount)
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	worker := newTestWorker(db, nil, config.WorkerConfig{MaxRetries: 1})
	worker.Handle(models.TaskSheetsDelete, MirrorDeleteHandler(&fakeMirror{err: errors.New("fatal")}))

	ctx := context.Background()
	_ = worker.EnqueueTask(ctx, models.TaskSheetsDelete, "a-3", nil)
	id := <-worker.queue
	worker.processTask(ctx, id)

	status, _, _ := loadTaskStatus(t, db, id)
	if status != models.TaskStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
	if n := worker.ReportFailed(ctx); n != 1 {
		t.Fatalf("expected 1 failed task reported, got %d", n)
	}
}

func TestProcessTaskPermanentFailures(t *testing.T) {
	db := newTestDB(t)
	worker := newTestWorker(db, nil, config.WorkerConfig{MaxRetries: 5})
	worker.Handle(models.TaskClientCopyDelete, ClientCopyDeleteHandler(&fakeAgenda{}))
	ctx := context.Background()

	t.Run("UnknownType", func(t *testing.T) {
		_ = worker.EnqueueTask(ctx, "mystery", "a-4", nil)
		id := <-worker.queue
		worker.processTask(ctx, id)
		if status, _, _ := loadTaskStatus(t, db, id); status != models.TaskStatusFailed {
			t.Fatalf("expected status=failed, got %s", status)
		}
	})

	t.Run("BadPayload", func(t *testing.T) {
		_ = worker.EnqueueTask(ctx, models.TaskClientCopyDelete, "a-5", nil)
		id := <-worker.queue
		worker.processTask(ctx, id)
		if status, _, _ := loadTaskStatus(t, db, id); status != models.TaskStatusFailed {
			t.Fatalf("expected status=failed without retries, got %s", status)
		}
	})
}

func TestEnqueueTaskValidation(t *testing.T) {
	db := newTestDB(t)
	worker := newTestWorker(db, nil, config.WorkerConfig{})

	if err := worker.EnqueueTask(context.Background(), "", "a-1", nil); err == nil {
		t.Fatalf("expected error for empty task type")
	}
	if err := worker.EnqueueTask(context.Background(), models.TaskSheetsUpsert, "a-1", make(chan int)); err == nil {
		t.Fatalf("expected error for unencodable payload")
	}
}

func TestProcessPendingPicksUpPersistedTasks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// a task persisted by a previous process and never queued
	if _, err := db.CreateSyncTask(ctx, &models.SyncTask{
		TaskType: models.TaskClientCopyDelete, AppointmentID: "a-6",
		Payload: `{"client_id":"c-1","appointment_id":"a-6"}`,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	agenda := &fakeAgenda{}
	worker := newTestWorker(db, nil, config.WorkerConfig{})
	worker.Handle(models.TaskClientCopyDelete, ClientCopyDeleteHandler(agenda))

	n, err := worker.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 task, got %d", n)
	}
	if len(agenda.deleted) != 1 || agenda.deleted[0] != "c-1/a-6" {
		t.Fatalf("unexpected deletes %v", agenda.deleted)
	}
}

func TestDisabledTaskTypesAreDropped(t *testing.T) {
	db := newTestDB(t)
	worker := newTestWorker(db, nil, config.WorkerConfig{})
	worker.Handle(models.TaskClientCopyDelete, ClientCopyDeleteHandler(&fakeAgenda{}))
	worker.Disable(models.TaskSheetsUpsert, models.TaskSheetsDelete)
	ctx := context.Background()

	appt := &models.Appointment{ID: "a-8", ResourceName: "Ana", Start: models.NewClock(10, 0)}
	if err := worker.EnqueueTask(ctx, models.TaskSheetsUpsert, appt.ID, appt); err != nil {
		t.Fatalf("enqueue upsert: %v", err)
	}
	if err := worker.EnqueueTask(ctx, models.TaskSheetsDelete, appt.ID, nil); err != nil {
		t.Fatalf("enqueue delete: %v", err)
	}
	if len(worker.queue) != 0 {
		t.Fatalf("expected nothing queued, got %d", len(worker.queue))
	}

	var stored int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&stored); err != nil {
		t.Fatalf("count: %v", err)
	}
	if stored != 0 {
		t.Fatalf("expected no persisted tasks, got %d", stored)
	}
	if n, err := worker.ProcessPending(ctx); err != nil || n != 0 {
		t.Fatalf("expected no pending tasks, got %d (%v)", n, err)
	}
	if n := worker.ReportFailed(ctx); n != 0 {
		t.Fatalf("expected no failed tasks, got %d", n)
	}

	// enabled types still flow
	if err := worker.EnqueueTask(ctx, models.TaskClientCopyDelete, "a-8", models.ClientCopyRef{ClientID: "c-1", AppointmentID: "a-8"}); err != nil {
		t.Fatalf("enqueue copy delete: %v", err)
	}
	if len(worker.queue) != 1 {
		t.Fatalf("expected the copy delete to be queued, got %d", len(worker.queue))
	}
}

func TestStartWithRedisQueue(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	db := newTestDB(t)
	worker := newTestWorker(db, client, config.WorkerConfig{Workers: 2, PollInterval: time.Hour})
	mirror := &fakeMirror{}
	worker.Handle(models.TaskSheetsDelete, MirrorDeleteHandler(mirror))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	if err := worker.EnqueueTask(ctx, models.TaskSheetsDelete, "a-7", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for mirror.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	if mirror.count() != 1 {
		t.Fatalf("expected the task to run once, got %d", mirror.count())
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	if d := policy.NextDelay(1); d != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d)
	}
	if d := policy.NextDelay(2); d != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d)
	}
	if d := policy.NextDelay(5); d != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d)
	}
	if d := (RetryPolicy{}).NextDelay(0); d != time.Second {
		t.Fatalf("zero policy expected 1s, got %s", d)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	policy := retryPolicyFrom(config.WorkerConfig{MaxRetries: 3, BackoffFactor: 0.5})

	if policy.InitialDelay != 2*time.Second || policy.MaxDelay != time.Minute || policy.BackoffFactor != 2 {
		t.Fatalf("unexpected defaults: %+v", policy)
	}
	if policy.Exhausted(2) {
		t.Fatal("attempt 2 of 3 should retry")
	}
	if !policy.Exhausted(3) {
		t.Fatal("attempt 3 of 3 should be exhausted")
	}
	if d := policy.NextDelay(10); d != time.Minute {
		t.Fatalf("expected delay capped at 1m, got %s", d)
	}
}

// Helpers

type fakeMirror struct {
	mu      sync.Mutex
	err     error
	upserts []string
	deletes []string
}

func (f *fakeMirror) UpsertAppointment(ctx context.Context, a *models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, a.ID)
	return f.err
}

func (f *fakeMirror) DeleteAppointment(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return f.err
}

func (f *fakeMirror) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts) + len(f.deletes)
}

type fakeAgenda struct {
	deleted []string
}

func (f *fakeAgenda) SaveCopies(ctx context.Context, appts []*models.Appointment) error { return nil }

func (f *fakeAgenda) DeleteCopy(ctx context.Context, clientID, appointmentID string) error {
	f.deleted = append(f.deleted, clientID+"/"+appointmentID)
	return nil
}

func (f *fakeAgenda) ListCopies(ctx context.Context, clientID string) ([]*models.Appointment, error) {
	return nil, nil
}

func newTestWorker(db *database.DB, client *redis.Client, cfg config.WorkerConfig) *SyncWorker {
	logger := zerolog.New(io.Discard)
	return NewSyncWorker(db, client, cfg, &logger)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}
