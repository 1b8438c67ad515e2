package models

import "time"

const (
	TaskNotifyCancellation = "notify_cancellation"
	TaskClientCopyDelete   = "client_copy_delete"
	TaskSheetsUpsert       = "sheets_upsert"
	TaskSheetsDelete       = "sheets_delete"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// SyncTask is a durable background job stored in sync_queue.
type SyncTask struct {
	ID            int64      `json:"id"`
	TaskType      string     `json:"task_type"`
	AppointmentID string     `json:"appointment_id"`
	Payload       string     `json:"payload"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastError     *string    `json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
	NextRetryAt   *time.Time `json:"next_retry_at"`
}

// CancellationNotice is the payload handed to the notification channel.
type CancellationNotice struct {
	AppointmentID string `json:"appointment_id"`
	BusinessName  string `json:"business_name"`
	ClientName    string `json:"client_name"`
	ClientContact string `json:"client_contact"`
	ServiceName   string `json:"service_name"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Reason        string `json:"reason"`
	BookingLink   string `json:"booking_link"`
}

// ClientCopyRef identifies a client agenda entry to remove.
type ClientCopyRef struct {
	ClientID      string `json:"client_id"`
	AppointmentID string `json:"appointment_id"`
}
