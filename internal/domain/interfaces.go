package domain

import (
	"context"
	"time"

	"turnero/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RuleStore persists calendar rules.
type RuleStore interface {
	CreateBusiness(ctx context.Context, b *models.Business) error
	UpdateBusiness(ctx context.Context, b *models.Business) error
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
	GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error)
	CreateResource(ctx context.Context, r *models.Resource) error
	UpdateResource(ctx context.Context, r *models.Resource) error
	GetResource(ctx context.Context, id int64) (*models.Resource, error)
	ListResources(ctx context.Context, businessID int64) ([]*models.Resource, error)
	CreateService(ctx context.Context, s *models.Service) error
	UpdateService(ctx context.Context, s *models.Service) error
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListServices(ctx context.Context, businessID int64) ([]*models.Service, error)
}

// AppointmentStore persists business-scoped appointments.
type AppointmentStore interface {
	// CommitAppointments inserts all appointments or none. It re-reads the
	// affected days inside one transaction and returns ErrSlotTaken on overlap.
	CommitAppointments(ctx context.Context, appts []*models.Appointment) error
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ListDayAppointments(ctx context.Context, resourceID int64, date time.Time) ([]*models.Appointment, error)
	ListAppointmentsRange(ctx context.Context, businessID int64, from, to time.Time) ([]*models.Appointment, error)
	DeleteAppointments(ctx context.Context, ids []string) error
	DeleteBlockedForDay(ctx context.Context, resourceID int64, date time.Time) (int64, error)
	UpdateAppointmentStatusWithVersion(ctx context.Context, id string, version int64, status string) error
}

type Repository interface {
	RuleStore
	AppointmentStore
}

// ClientAgenda keeps the client's denormalized copies of their appointments.
type ClientAgenda interface {
	SaveCopies(ctx context.Context, appts []*models.Appointment) error
	DeleteCopy(ctx context.Context, clientID, appointmentID string) error
	ListCopies(ctx context.Context, clientID string) ([]*models.Appointment, error)
}

// TaskStore persists background sync tasks.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) (int64, error)
	GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error)
	GetPendingSyncTasks(ctx context.Context, limit int) ([]*models.SyncTask, error)
	// ClaimSyncTask marks a due pending task as processing; false means it
	// was not claimable.
	ClaimSyncTask(ctx context.Context, id int64) (bool, error)
	ReleaseProcessingSyncTasks(ctx context.Context) (int64, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetFailedSyncTasks(ctx context.Context) ([]*models.SyncTask, error)
}

// TaskQueue schedules background work.
type TaskQueue interface {
	EnqueueTask(ctx context.Context, taskType, appointmentID string, payload interface{}) error
}

type LimiterStore interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers a cancellation notice over one channel.
type Notifier interface {
	Supports(contact string) bool
	NotifyCancellation(ctx context.Context, notice *models.CancellationNotice) error
}

type AgendaMirror interface {
	UpsertAppointment(ctx context.Context, appt *models.Appointment) error
	DeleteAppointment(ctx context.Context, appointmentID string) error
}

type FileStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
