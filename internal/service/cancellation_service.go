package service

import (
	"context"
	"fmt"
	"strings"

	"turnero/internal/config"
	"turnero/internal/domain"
	"turnero/internal/events"
	"turnero/internal/metrics"
	"turnero/internal/models"

	"github.com/rs/zerolog"
)

// Actor is who asks for a cancellation.
type Actor struct {
	Kind       string // models.RoleClient or models.RoleOwner
	ID         string
	BusinessID int64
}

type CancelResult struct {
	Appointment *models.Appointment `json:"appointment"`
	Warnings    []string            `json:"warnings,omitempty"`
}

const (
	warnClientCopy = "The client's agenda will be updated shortly."
	warnNotify     = "The client could not be notified automatically."
)

type CancellationService struct {
	repo   domain.Repository
	agenda domain.ClientAgenda
	events domain.EventPublisher
	queue  domain.TaskQueue
	cfg    config.BookingConfig
	logger *zerolog.Logger
}

func NewCancellationService(
	repo domain.Repository,
	agenda domain.ClientAgenda,
	eventBus domain.EventPublisher,
	queue domain.TaskQueue,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *CancellationService {
	return &CancellationService{
		repo:   repo,
		agenda: agenda,
		events: eventBus,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
	}
}

// Cancel hard-deletes the business record and the client copy. A client copy
// that cannot be deleted is retried in the background; notification
// failures become warnings and never undo the cancellation.
func (s *CancellationService) Cancel(ctx context.Context, appointmentID string, actor Actor, reason string) (*CancelResult, error) {
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	b, err := s.repo.GetBusiness(ctx, appt.BusinessID)
	if err != nil {
		return nil, err
	}
	if err := authorize(b, appt, actor); err != nil {
		return nil, err
	}

	if err := s.repo.DeleteAppointments(ctx, []string{appt.ID}); err != nil {
		return nil, fmt.Errorf("delete appointment: %w", err)
	}
	metrics.IncCancellation(actor.Kind)

	res := &CancelResult{Appointment: appt}
	log := s.logger.With().Str("appointment_id", appt.ID).Str("actor", actor.Kind).Logger()

	if !appt.Blocked && appt.ClientID != "" {
		if err := s.agenda.DeleteCopy(ctx, appt.ClientID, appt.ID); err != nil {
			log.Warn().Err(err).Msg("Client copy delete failed, scheduling retry")
			ref := models.ClientCopyRef{ClientID: appt.ClientID, AppointmentID: appt.ID}
			if qerr := s.enqueue(ctx, models.TaskClientCopyDelete, appt.ID, ref); qerr != nil {
				log.Error().Err(qerr).Bool("manual_intervention", true).Msg("Orphaned client copy could not be scheduled for cleanup")
			}
			res.Warnings = append(res.Warnings, warnClientCopy)
		}
	}
	if err := s.enqueue(ctx, models.TaskSheetsDelete, appt.ID, nil); err != nil {
		log.Warn().Err(err).Msg("Agenda mirror delete not scheduled")
	}

	publishAppointment(s.events, &log, events.EventAppointmentCancelled, appt, actor.Kind, reason)

	if actor.Kind == models.RoleOwner && !appt.Blocked && appt.ClientContact != "" {
		notice := &models.CancellationNotice{
			AppointmentID: appt.ID,
			BusinessName:  b.Name,
			ClientName:    appt.ClientName,
			ClientContact: appt.ClientContact,
			ServiceName:   appt.ServiceName,
			Date:          appt.DateString(),
			Time:          appt.Start.String(),
			Reason:        reason,
			BookingLink:   s.bookingLink(b),
		}
		if err := s.enqueue(ctx, models.TaskNotifyCancellation, appt.ID, notice); err != nil {
			metrics.IncNotification("not_scheduled")
			log.Warn().Err(fmt.Errorf("%w: %v", domain.ErrNotification, err)).Msg("Cancellation notice not scheduled")
			res.Warnings = append(res.Warnings, warnNotify)
		}
	}

	log.Info().Str("date", appt.DateString()).Str("start", appt.Start.String()).Msg("Appointment cancelled")
	return res, nil
}

func (s *CancellationService) enqueue(ctx context.Context, taskType, appointmentID string, payload interface{}) error {
	if s.queue == nil {
		return fmt.Errorf("no task queue configured")
	}
	return s.queue.EnqueueTask(ctx, taskType, appointmentID, payload)
}

func (s *CancellationService) bookingLink(b *models.Business) string {
	if s.cfg.PublicURLBase == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.PublicURLBase, "/") + "/" + b.Slug
}

func authorize(b *models.Business, appt *models.Appointment, actor Actor) error {
	switch actor.Kind {
	case models.RoleOwner:
		if actor.BusinessID != b.ID || (b.OwnerID != "" && b.OwnerID != actor.ID) {
			return domain.ErrForbidden
		}
		return nil
	case models.RoleClient:
		if appt.Blocked || actor.ID == "" || appt.ClientID != actor.ID {
			return domain.ErrForbidden
		}
		return nil
	default:
		return domain.ErrForbidden
	}
}
