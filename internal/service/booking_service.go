package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"turnero/internal/calendar"
	"turnero/internal/config"
	"turnero/internal/domain"
	"turnero/internal/events"
	"turnero/internal/metrics"
	"turnero/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ClientIdentity is the caller identity taken from the identity provider.
type ClientIdentity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// Companion is an extra person booked right after the client.
type Companion struct {
	Name      string `json:"name"`
	ServiceID int64  `json:"service_id"`
}

type BookingRequest struct {
	BusinessID int64
	ResourceID int64
	Date       time.Time
	Start      models.Clock
	ServiceID  int64
	Client     ClientIdentity
	Companions []Companion
	Comment    string
}

type BookingResult struct {
	GroupID      string                `json:"group_id,omitempty"`
	Appointments []*models.Appointment `json:"appointments"`
}

type BlockDayResult struct {
	Blocked []*models.Appointment `json:"blocked"`
	Skipped []models.Clock        `json:"skipped"`
}

type BookingService struct {
	repo    domain.Repository
	agenda  domain.ClientAgenda
	limiter domain.LimiterStore
	events  domain.EventPublisher
	queue   domain.TaskQueue
	cfg     config.BookingConfig
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewBookingService(
	repo domain.Repository,
	agenda domain.ClientAgenda,
	limiter domain.LimiterStore,
	eventBus domain.EventPublisher,
	queue domain.TaskQueue,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = models.DefaultHorizonDays
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 5 * time.Second
	}
	if cfg.AttemptsPerWindow <= 0 {
		cfg.AttemptsPerWindow = models.BookingAttemptsPerWindow
	}
	if cfg.AttemptsWindow <= 0 {
		cfg.AttemptsWindow = models.BookingAttemptsWindow * time.Second
	}
	return &BookingService{
		repo:    repo,
		agenda:  agenda,
		limiter: limiter,
		events:  eventBus,
		queue:   queue,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Book validates the request against the live calendar rules and commits
// every allocation of the group atomically, then writes the client copies.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	res, err := s.book(ctx, req)
	metrics.IncBooking(bookingResult(err))
	return res, err
}

func (s *BookingService) book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if err := s.checkRate(ctx, req.Client.ID); err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Client.ID) == "" || strings.TrimSpace(req.Client.Name) == "" {
		return nil, domain.Invalid("client", "identity is required")
	}

	b, r, err := loadResource(ctx, s.repo, req.BusinessID, req.ResourceID)
	if err != nil {
		return nil, err
	}

	services := make([]*models.Service, 0, 1+len(req.Companions))
	svc, err := loadService(ctx, s.repo, b.ID, r.ID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	services = append(services, svc)
	for i, c := range req.Companions {
		if strings.TrimSpace(c.Name) == "" {
			return nil, domain.Invalid(fmt.Sprintf("companions[%d].name", i), "is required")
		}
		csvc, err := loadService(ctx, s.repo, b.ID, r.ID, c.ServiceID)
		if err != nil {
			return nil, err
		}
		services = append(services, csvc)
	}

	day := localDay(req.Date, b.Location())
	if err := s.checkHorizon(b, day); err != nil {
		return nil, err
	}

	appts, err := s.allocate(b, r, day, req, services)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, appts); err != nil {
		return nil, err
	}

	if err := s.agenda.SaveCopies(ctx, appts); err != nil {
		return nil, s.compensate(ctx, appts, "client copy", err)
	}

	for _, a := range appts {
		s.publish(events.EventAppointmentBooked, a, req.Client.ID, "")
		s.enqueue(ctx, models.TaskSheetsUpsert, a.ID, a)
	}

	s.logger.Info().
		Str("group_id", appts[0].GroupID).
		Str("appointment_id", appts[0].ID).
		Int64("resource_id", r.ID).
		Str("date", day.Format(models.DateLayout)).
		Str("start", req.Start.String()).
		Int("people", len(appts)).
		Msg("Appointment booked")

	return &BookingResult{GroupID: appts[0].GroupID, Appointments: appts}, nil
}

func (s *BookingService) checkRate(ctx context.Context, clientID string) error {
	if s.limiter == nil || clientID == "" {
		return nil
	}
	allowed, err := s.limiter.CheckRateLimit(ctx, "book:"+clientID, s.cfg.AttemptsPerWindow, s.cfg.AttemptsWindow)
	if err != nil {
		s.logger.Warn().Err(err).Str("client_id", clientID).Msg("Rate limiter unavailable")
		return nil
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *BookingService) checkHorizon(b *models.Business, day time.Time) error {
	today := models.Day(s.now().In(b.Location()))
	if day.Before(today) {
		return domain.Invalid("date", "is in the past")
	}
	if day.After(today.AddDate(0, 0, s.cfg.HorizonDays)) {
		return domain.Invalid("date", fmt.Sprintf("is more than %d days ahead", s.cfg.HorizonDays))
	}
	return nil
}

// allocate places person i+1 right after person i, rounded up to whole
// steps, and checks every allocation against the generated slots.
func (s *BookingService) allocate(b *models.Business, r *models.Resource, day time.Time, req BookingRequest, services []*models.Service) ([]*models.Appointment, error) {
	w := calendar.ResolveWindow(b, r, day)
	if w.Closed {
		return nil, fmt.Errorf("%w: %s is not a working day for %s", domain.ErrRuleConflict, day.Format(models.DateLayout), r.Name)
	}
	step := calendar.Step(b, w)
	slots := calendar.GenerateSlots(b, r, day, s.now())

	groupID := ""
	if len(services) > 1 {
		groupID = uuid.NewString()
	}

	appts := make([]*models.Appointment, 0, len(services))
	start := req.Start
	for i, svc := range services {
		slot, ok := calendar.FindSlot(slots, start)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a slot boundary", domain.ErrRuleConflict, start)
		}
		if slot.Past {
			return nil, fmt.Errorf("%w: %s has already started", domain.ErrRuleConflict, start)
		}
		end := start.Add(svc.DurationMinutes)
		if end > w.End {
			return nil, fmt.Errorf("%w: %s ends after %s", domain.ErrRuleConflict, svc.Name, w.End)
		}

		name := req.Client.Name
		if i > 0 {
			name = req.Companions[i-1].Name
		}
		appts = append(appts, &models.Appointment{
			ID:              uuid.NewString(),
			GroupID:         groupID,
			BusinessID:      b.ID,
			ResourceID:      r.ID,
			ResourceName:    r.Name,
			ServiceID:       svc.ID,
			ServiceName:     svc.Name,
			DurationMinutes: svc.DurationMinutes,
			Date:            day,
			Start:           start,
			End:             end,
			ClientID:        req.Client.ID,
			ClientName:      name,
			ClientContact:   req.Client.Contact,
			Status:          models.StatusPending,
			Comment:         req.Comment,
		})

		steps := (svc.DurationMinutes + step - 1) / step
		if steps < 1 {
			steps = 1
		}
		start = start.Add(steps * step)
	}
	return appts, nil
}

func (s *BookingService) commit(ctx context.Context, appts []*models.Appointment) error {
	commitCtx, cancel := context.WithTimeout(ctx, s.cfg.CommitTimeout)
	defer cancel()

	err := s.repo.CommitAppointments(commitCtx, appts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrSlotTaken):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("commit timed out after %s: %w", s.cfg.CommitTimeout, err)
	default:
		return fmt.Errorf("commit appointments: %w", err)
	}
}

// compensate removes the business records written by a multi-step
// operation that failed at step.
func (s *BookingService) compensate(ctx context.Context, appts []*models.Appointment, step string, cause error) error {
	ids := make([]string, len(appts))
	for i, a := range appts {
		ids[i] = a.ID
	}

	// ErrNotFound: nothing of the partial write is left to undo
	err := s.repo.DeleteAppointments(context.WithoutCancel(ctx), ids)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		metrics.IncCompensation("failed")
		s.logger.Error().Err(err).
			AnErr("cause", cause).
			Strs("appointment_ids", ids).
			Str("step", step).
			Bool("manual_intervention", true).
			Msg("Compensating delete failed")
		return fmt.Errorf("%w: %v (cause: %v)", domain.ErrCompensationFailed, err, cause)
	}

	metrics.IncCompensation("ok")
	s.logger.Warn().Err(cause).Str("step", step).Strs("appointment_ids", ids).Msg("Partial write rolled back")
	return fmt.Errorf("%w: %s: %v", domain.ErrPartialCommit, step, cause)
}

// BlockSlot blocks one base slot on behalf of the owner.
func (s *BookingService) BlockSlot(ctx context.Context, businessID, resourceID int64, date time.Time, start models.Clock, comment string) (*models.Appointment, error) {
	b, r, err := loadResource(ctx, s.repo, businessID, resourceID)
	if err != nil {
		return nil, err
	}
	day := localDay(date, b.Location())

	w := calendar.ResolveWindow(b, r, day)
	slots := calendar.GenerateSlots(b, r, day, s.now())
	slot, ok := calendar.FindSlot(slots, start)
	if w.Closed || !ok {
		return nil, fmt.Errorf("%w: %s is not a slot of %s", domain.ErrRuleConflict, start, day.Format(models.DateLayout))
	}
	if slot.Past {
		return nil, fmt.Errorf("%w: %s has already started", domain.ErrRuleConflict, start)
	}

	appt := blockFor(b, r, day, slot, comment)
	if err := s.commit(ctx, []*models.Appointment{appt}); err != nil {
		return nil, err
	}

	s.publish(events.EventDayBlocked, appt, "", "")
	s.enqueue(ctx, models.TaskSheetsUpsert, appt.ID, appt)
	return appt, nil
}

// BlockDay blocks every remaining base slot of the date. Slots already
// taken are skipped, so a re-run completes an interrupted block. An
// infrastructure failure removes the blocks created by this run.
func (s *BookingService) BlockDay(ctx context.Context, businessID, resourceID int64, date time.Time) (*BlockDayResult, error) {
	b, r, err := loadResource(ctx, s.repo, businessID, resourceID)
	if err != nil {
		return nil, err
	}
	day := localDay(date, b.Location())
	if calendar.ResolveWindow(b, r, day).Closed {
		return nil, fmt.Errorf("%w: %s is not a working day for %s", domain.ErrRuleConflict, day.Format(models.DateLayout), r.Name)
	}

	res := &BlockDayResult{Blocked: []*models.Appointment{}, Skipped: []models.Clock{}}
	for _, slot := range calendar.GenerateSlots(b, r, day, s.now()) {
		if slot.Past {
			res.Skipped = append(res.Skipped, slot.Start)
			continue
		}

		appt := blockFor(b, r, day, slot, "")
		err := s.commit(ctx, []*models.Appointment{appt})
		if errors.Is(err, domain.ErrSlotTaken) {
			res.Skipped = append(res.Skipped, slot.Start)
			continue
		}
		if err != nil {
			if len(res.Blocked) == 0 {
				return nil, err
			}
			return nil, s.compensate(ctx, res.Blocked, "block day", err)
		}
		res.Blocked = append(res.Blocked, appt)
	}

	for _, a := range res.Blocked {
		s.enqueue(ctx, models.TaskSheetsUpsert, a.ID, a)
	}
	s.publishDay(events.EventDayBlocked, b.ID, r, day, len(res.Blocked))
	s.logger.Info().
		Int64("resource_id", r.ID).
		Str("date", day.Format(models.DateLayout)).
		Int("blocked", len(res.Blocked)).
		Int("skipped", len(res.Skipped)).
		Msg("Day blocked")
	return res, nil
}

// UnblockDay removes every owner block of the date.
func (s *BookingService) UnblockDay(ctx context.Context, businessID, resourceID int64, date time.Time) (int64, error) {
	b, r, err := loadResource(ctx, s.repo, businessID, resourceID)
	if err != nil {
		return 0, err
	}
	day := localDay(date, b.Location())

	existing, err := s.repo.ListDayAppointments(ctx, r.ID, day)
	if err != nil {
		return 0, err
	}

	removed, err := s.repo.DeleteBlockedForDay(ctx, r.ID, day)
	if err != nil {
		return 0, err
	}

	for _, a := range existing {
		if a.Blocked {
			s.enqueue(ctx, models.TaskSheetsDelete, a.ID, nil)
		}
	}
	s.publishDay(events.EventDayUnblocked, b.ID, r, day, int(removed))
	return removed, nil
}

// Confirm moves a pending appointment to confirmed. version is the value
// the owner saw; zero means the current one.
func (s *BookingService) Confirm(ctx context.Context, businessID int64, appointmentID string, version int64) (*models.Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.BusinessID != businessID {
		return nil, fmt.Errorf("appointment %s: %w", appointmentID, domain.ErrNotFound)
	}
	if appt.Blocked || appt.Status != models.StatusPending {
		return nil, domain.Invalid("status", "only pending appointments can be confirmed")
	}
	if version == 0 {
		version = appt.Version
	}

	if err := s.repo.UpdateAppointmentStatusWithVersion(ctx, appt.ID, version, models.StatusConfirmed); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetAppointment(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	if err := s.agenda.SaveCopies(ctx, []*models.Appointment{updated}); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", updated.ID).Msg("Client copy refresh failed")
	}
	s.publish(events.EventAppointmentConfirmed, updated, "", "owner")
	s.enqueue(ctx, models.TaskSheetsUpsert, updated.ID, updated)
	return updated, nil
}

func blockFor(b *models.Business, r *models.Resource, day time.Time, slot models.Slot, comment string) *models.Appointment {
	return &models.Appointment{
		ID:              uuid.NewString(),
		BusinessID:      b.ID,
		ResourceID:      r.ID,
		ResourceName:    r.Name,
		DurationMinutes: slot.Minutes(),
		Date:            day,
		Start:           slot.Start,
		End:             slot.End,
		Status:          models.StatusConfirmed,
		Blocked:         true,
		Comment:         comment,
	}
}

func (s *BookingService) publish(eventType string, a *models.Appointment, changedBy, reason string) {
	publishAppointment(s.events, s.logger, eventType, a, changedBy, reason)
}

func (s *BookingService) publishDay(eventType string, businessID int64, r *models.Resource, day time.Time, count int) {
	if s.events == nil {
		return
	}
	payload := events.AppointmentEventPayload{
		BusinessID:   businessID,
		ResourceID:   r.ID,
		ResourceName: r.Name,
		Date:         day.Format(models.DateLayout),
		Blocked:      true,
		Count:        count,
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func (s *BookingService) enqueue(ctx context.Context, taskType, appointmentID string, payload interface{}) {
	enqueueTask(ctx, s.queue, s.logger, taskType, appointmentID, payload)
}

func publishAppointment(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, a *models.Appointment, changedBy, reason string) {
	if bus == nil {
		return
	}
	payload := events.AppointmentEventPayload{
		AppointmentID: a.ID,
		GroupID:       a.GroupID,
		BusinessID:    a.BusinessID,
		ResourceID:    a.ResourceID,
		ResourceName:  a.ResourceName,
		ServiceName:   a.ServiceName,
		ClientID:      a.ClientID,
		ClientName:    a.ClientName,
		Date:          a.DateString(),
		Start:         a.Start.String(),
		End:           a.End.String(),
		Status:        a.Status,
		Blocked:       a.Blocked,
		Reason:        reason,
		ChangedBy:     changedBy,
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Str("appointment_id", a.ID).Msg("publish event error")
	}
}

func enqueueTask(ctx context.Context, queue domain.TaskQueue, logger *zerolog.Logger, taskType, appointmentID string, payload interface{}) {
	if queue == nil {
		return
	}
	if err := queue.EnqueueTask(ctx, taskType, appointmentID, payload); err != nil {
		logger.Error().Err(err).Str("appointment_id", appointmentID).Str("task", taskType).Msg("sync enqueue error")
	}
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, domain.ErrRuleConflict):
		return "rule_conflict"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
		return "invalid"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrPartialCommit), errors.Is(err, domain.ErrCompensationFailed):
		return "partial"
	default:
		return "error"
	}
}
