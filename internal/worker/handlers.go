package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"turnero/internal/domain"
	"turnero/internal/metrics"
	"turnero/internal/models"
)

func decode(task *models.SyncTask, v interface{}) error {
	if task.Payload == "" {
		return fmt.Errorf("%w: empty payload for %s", ErrPermanent, task.TaskType)
	}
	if err := json.Unmarshal([]byte(task.Payload), v); err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrPermanent, err)
	}
	return nil
}

// NotifyHandler delivers cancellation notices through the channel matching
// the client's contact.
func NotifyHandler(notifier domain.Notifier) Handler {
	return func(ctx context.Context, task *models.SyncTask) error {
		var notice models.CancellationNotice
		if err := decode(task, &notice); err != nil {
			return err
		}
		if !notifier.Supports(notice.ClientContact) {
			metrics.IncNotification("no_channel")
			return fmt.Errorf("%w: no channel for contact %q", ErrPermanent, notice.ClientContact)
		}
		if err := notifier.NotifyCancellation(ctx, &notice); err != nil {
			metrics.IncNotification("error")
			return fmt.Errorf("%w: %v", domain.ErrNotification, err)
		}
		metrics.IncNotification("sent")
		return nil
	}
}

// ClientCopyDeleteHandler removes an orphaned client agenda copy.
func ClientCopyDeleteHandler(agenda domain.ClientAgenda) Handler {
	return func(ctx context.Context, task *models.SyncTask) error {
		var ref models.ClientCopyRef
		if err := decode(task, &ref); err != nil {
			return err
		}
		return agenda.DeleteCopy(ctx, ref.ClientID, ref.AppointmentID)
	}
}

// MirrorUpsertHandler writes the appointment snapshot to the agenda mirror.
func MirrorUpsertHandler(mirror domain.AgendaMirror) Handler {
	return func(ctx context.Context, task *models.SyncTask) error {
		var appt models.Appointment
		if err := decode(task, &appt); err != nil {
			return err
		}
		return mirror.UpsertAppointment(ctx, &appt)
	}
}

func MirrorDeleteHandler(mirror domain.AgendaMirror) Handler {
	return func(ctx context.Context, task *models.SyncTask) error {
		if task.AppointmentID == "" {
			return fmt.Errorf("%w: appointment id missing", ErrPermanent)
		}
		return mirror.DeleteAppointment(ctx, task.AppointmentID)
	}
}
