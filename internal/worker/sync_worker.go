package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"turnero/internal/config"
	"turnero/internal/domain"
	"turnero/internal/metrics"
	"turnero/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Handler applies one task. Returning an error schedules a retry.
type Handler func(ctx context.Context, task *models.SyncTask) error

// ErrPermanent marks handler failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent task failure")

// SyncWorker persists background tasks in sync_queue and runs them with a
// pool of goroutines. Task ids travel through a Redis list when Redis is
// configured, otherwise through an in-memory channel; a poller re-reads due
// tasks from the store so nothing is lost across restarts.
type SyncWorker struct {
	store         domain.TaskStore
	redis         *redis.Client
	handlers      map[string]Handler
	disabled      map[string]bool
	retryPolicy   RetryPolicy
	queue         chan int64
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	workers       int
	logger        *zerolog.Logger
	mu            sync.RWMutex
}

func NewSyncWorker(store domain.TaskStore, redisClient *redis.Client, cfg config.WorkerConfig, logger *zerolog.Logger) *SyncWorker {
	w := &SyncWorker{
		store:         store,
		redis:         redisClient,
		handlers:      make(map[string]Handler),
		disabled:      make(map[string]bool),
		retryPolicy:   retryPolicyFrom(cfg),
		queue:         make(chan int64, models.WorkerQueueSize),
		redisQueueKey: "turnero:sync:queue",
		deadLetterKey: "turnero:sync:deadletter",
		pollInterval:  cfg.PollInterval,
		batchSize:     cfg.BatchSize,
		workers:       cfg.Workers,
		logger:        logger,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 2 * time.Second
	}
	if w.batchSize <= 0 {
		w.batchSize = 20
	}
	if w.workers <= 0 {
		w.workers = 2
	}
	return w
}

// Handle registers the handler for a task type.
func (w *SyncWorker) Handle(taskType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[taskType] = h
}

// Disable drops tasks of the given types at enqueue time. Used for
// integrations that are switched off so their tasks never reach the queue.
func (w *SyncWorker) Disable(taskTypes ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range taskTypes {
		w.disabled[t] = true
	}
}

func (w *SyncWorker) isDisabled(taskType string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.disabled[taskType]
}

func (w *SyncWorker) handler(taskType string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[taskType]
	return h, ok
}

// EnqueueTask persists the task and schedules it.
func (w *SyncWorker) EnqueueTask(ctx context.Context, taskType, appointmentID string, payload interface{}) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if w.isDisabled(taskType) {
		return nil
	}

	var raw string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		raw = string(data)
	}

	task := &models.SyncTask{
		TaskType:      taskType,
		AppointmentID: appointmentID,
		Payload:       raw,
		Status:        models.TaskStatusPending,
	}
	id, err := w.store.CreateSyncTask(ctx, task)
	if err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		err := w.redis.LPush(ctx, w.redisQueueKey, id).Err()
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Int64("task_id", id).Msg("Redis push failed, using memory queue")
	}

	select {
	case w.queue <- id:
	default:
		w.logger.Warn().Int64("task_id", id).Msg("Memory queue full, task left to polling")
	}
	return nil
}

// Start runs the dispatcher and the worker pool until ctx is done.
func (w *SyncWorker) Start(ctx context.Context) {
	if n, err := w.store.ReleaseProcessingSyncTasks(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Failed to release interrupted sync tasks")
	} else if n > 0 {
		w.logger.Warn().Int64("count", n).Msg("Released interrupted sync tasks")
	}
	w.ReportFailed(ctx)

	w.logger.Info().Int("workers", w.workers).Msg("Sync worker started")
	defer w.logger.Info().Msg("Sync worker stopped")

	jobs := make(chan int64)
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				w.processTask(ctx, id)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	if w.redis != nil {
		go w.consumeRedis(ctx)
	}

	dispatch := func(id int64) bool {
		select {
		case jobs <- id:
			return true
		case <-ctx.Done():
			return false
		}
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.queue:
			if !dispatch(id) {
				return
			}
		case <-ticker.C:
			tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Error().Err(err).Msg("Failed to fetch pending sync tasks")
				}
				continue
			}
			for _, t := range tasks {
				if !dispatch(t.ID) {
					return
				}
			}
		}
	}
}

func (w *SyncWorker) consumeRedis(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			w.logger.Warn().Err(err).Msg("Redis BRPOP failed")
			time.Sleep(w.pollInterval)
			continue
		}
		if len(res) != 2 {
			continue
		}
		id, err := strconv.ParseInt(res[1], 10, 64)
		if err != nil {
			w.logger.Warn().Str("value", res[1]).Msg("Malformed task id in redis queue")
			continue
		}
		select {
		case w.queue <- id:
		case <-ctx.Done():
			return
		}
	}
}

// ProcessPending runs one polling pass synchronously and returns how many
// tasks were attempted.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		w.processTask(ctx, t.ID)
	}
	return len(tasks), nil
}

func (w *SyncWorker) processTask(ctx context.Context, id int64) {
	claimed, err := w.store.ClaimSyncTask(ctx, id)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", id).Msg("Failed to claim sync task")
		return
	}
	if !claimed {
		return
	}

	task, err := w.store.GetSyncTask(ctx, id)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", id).Msg("Failed to load sync task")
		return
	}

	h, ok := w.handler(task.TaskType)
	if !ok {
		w.failTask(ctx, task, fmt.Errorf("%w: unknown task type %s", ErrPermanent, task.TaskType))
		return
	}

	if err := h(ctx, task); err != nil {
		if errors.Is(err, ErrPermanent) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark sync task completed")
	}
	metrics.IncSyncTask(task.TaskType, models.TaskStatusCompleted)
}

func (w *SyncWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusPending, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to schedule sync task retry")
	}
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Str("type", task.TaskType).
		Int("attempt", attempt).
		Time("next_retry_at", next).
		Msg("Sync task failed, retry scheduled")
	metrics.IncSyncTask(task.TaskType, "retry")
}

func (w *SyncWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark sync task failed")
	}
	w.logger.Error().Err(cause).
		Int64("task_id", task.ID).
		Str("type", task.TaskType).
		Str("appointment_id", task.AppointmentID).
		Bool("manual_intervention", true).
		Msg("Sync task moved to dead letter")
	metrics.IncSyncTask(task.TaskType, models.TaskStatusFailed)
	w.pushDeadLetter(ctx, task)
}

func (w *SyncWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Dead letter push failed")
	}
}

// ReportFailed logs every dead-lettered task for operator review.
func (w *SyncWorker) ReportFailed(ctx context.Context) int {
	failed, err := w.store.GetFailedSyncTasks(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to list dead-lettered sync tasks")
		return 0
	}
	for _, t := range failed {
		ev := w.logger.Warn().Int64("task_id", t.ID).Str("type", t.TaskType).Str("appointment_id", t.AppointmentID)
		if t.LastError != nil {
			ev = ev.Str("last_error", *t.LastError)
		}
		ev.Msg("Dead-lettered sync task awaiting review")
	}
	return len(failed)
}
