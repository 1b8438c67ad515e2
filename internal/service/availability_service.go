package service

import (
	"context"
	"fmt"
	"time"

	"turnero/internal/availability"
	"turnero/internal/calendar"
	"turnero/internal/domain"
	"turnero/internal/models"

	"github.com/rs/zerolog"
)

// maxAgendaRangeDays bounds owner range listings and exports.
const maxAgendaRangeDays = 93

// DayAvailability is the resolved slot list of one resource on one date.
type DayAvailability struct {
	BusinessID int64               `json:"business_id"`
	ResourceID int64               `json:"resource_id"`
	Resource   string              `json:"resource"`
	Date       string              `json:"date"`
	Closed     bool                `json:"closed"`
	HalfDay    bool                `json:"half_day"`
	OpensAt    models.Clock        `json:"opens_at"`
	ClosesAt   models.Clock        `json:"closes_at"`
	Step       int                 `json:"step_minutes"`
	Duration   int                 `json:"duration_minutes,omitempty"`
	Slots      []models.SlotStatus `json:"slots"`
	Free       int                 `json:"free"`
}

type AvailabilityService struct {
	repo   domain.Repository
	agenda domain.ClientAgenda
	logger *zerolog.Logger
	now    func() time.Time
}

func NewAvailabilityService(repo domain.Repository, agenda domain.ClientAgenda, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{repo: repo, agenda: agenda, logger: logger, now: time.Now}
}

// DaySlots resolves the slots of a resource for a client choosing serviceID.
// A zero serviceID resolves each slot on its own length.
func (s *AvailabilityService) DaySlots(ctx context.Context, businessID, resourceID int64, date time.Time, serviceID int64) (*DayAvailability, error) {
	b, r, err := loadResource(ctx, s.repo, businessID, resourceID)
	if err != nil {
		return nil, err
	}

	duration := 0
	if serviceID != 0 {
		svc, err := loadService(ctx, s.repo, b.ID, r.ID, serviceID)
		if err != nil {
			return nil, err
		}
		duration = svc.DurationMinutes
	}

	return s.resolveDay(ctx, b, r, localDay(date, b.Location()), duration)
}

func (s *AvailabilityService) resolveDay(ctx context.Context, b *models.Business, r *models.Resource, day time.Time, duration int) (*DayAvailability, error) {
	w := calendar.ResolveWindow(b, r, day)
	if w.HalfDayIgnored {
		s.logger.Warn().
			Int64("resource_id", r.ID).
			Str("date", day.Format(models.DateLayout)).
			Msg("Half-day exception leaves no working time, full window kept")
	}

	out := &DayAvailability{
		BusinessID: b.ID,
		ResourceID: r.ID,
		Resource:   r.Name,
		Date:       day.Format(models.DateLayout),
		Closed:     w.Closed,
		HalfDay:    w.HalfDay,
		Duration:   duration,
		Slots:      []models.SlotStatus{},
	}
	if w.Closed {
		return out, nil
	}
	out.OpensAt, out.ClosesAt = w.Start, w.End
	out.Step = calendar.Step(b, w)

	existing, err := s.repo.ListDayAppointments(ctx, r.ID, day)
	if err != nil {
		return nil, err
	}

	slots := calendar.GenerateSlots(b, r, day, s.now())
	out.Slots = availability.Resolve(slots, existing, duration, w.End)
	out.Free = availability.FreeCount(out.Slots)
	return out, nil
}

// Agenda returns the owner's view of a date: every active resource (or just
// resourceID when non-zero) with slots and the appointments occupying them.
func (s *AvailabilityService) Agenda(ctx context.Context, businessID int64, date time.Time, resourceID int64) ([]*DayAvailability, error) {
	b, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	day := localDay(date, b.Location())

	var resources []*models.Resource
	if resourceID != 0 {
		_, r, err := loadResource(ctx, s.repo, businessID, resourceID)
		if err != nil {
			return nil, err
		}
		resources = []*models.Resource{r}
	} else {
		all, err := s.repo.ListResources(ctx, businessID)
		if err != nil {
			return nil, err
		}
		for _, r := range all {
			if r.Active {
				resources = append(resources, r)
			}
		}
	}

	out := make([]*DayAvailability, 0, len(resources))
	for _, r := range resources {
		view, err := s.resolveDay(ctx, b, r, day, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// AgendaRange lists the business appointments between from and to inclusive.
func (s *AvailabilityService) AgendaRange(ctx context.Context, businessID int64, from, to time.Time) ([]*models.Appointment, error) {
	from, to = models.Day(from), models.Day(to)
	if to.Before(from) {
		return nil, domain.Invalid("to", "must not be before from")
	}
	if to.Sub(from) > maxAgendaRangeDays*24*time.Hour {
		return nil, domain.Invalid("to", fmt.Sprintf("range is limited to %d days", maxAgendaRangeDays))
	}
	return s.repo.ListAppointmentsRange(ctx, businessID, from, to)
}

// ClientAppointments lists the client's own copies.
func (s *AvailabilityService) ClientAppointments(ctx context.Context, clientID string) ([]*models.Appointment, error) {
	if clientID == "" {
		return nil, domain.Invalid("client", "identity is required")
	}
	return s.agenda.ListCopies(ctx, clientID)
}

func loadResource(ctx context.Context, repo domain.RuleStore, businessID, resourceID int64) (*models.Business, *models.Resource, error) {
	b, err := repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, nil, err
	}
	r, err := repo.GetResource(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	if r.BusinessID != b.ID {
		return nil, nil, fmt.Errorf("resource %d: %w", resourceID, domain.ErrNotFound)
	}
	if !r.Active {
		return nil, nil, domain.Invalid("resource", "is not taking appointments")
	}
	return b, r, nil
}

func loadService(ctx context.Context, repo domain.RuleStore, businessID, resourceID, serviceID int64) (*models.Service, error) {
	svc, err := repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	switch {
	case svc.BusinessID != businessID:
		return nil, fmt.Errorf("service %d: %w", serviceID, domain.ErrNotFound)
	case !svc.Active:
		return nil, domain.Invalid("service", "is not offered")
	case svc.DurationMinutes <= 0:
		return nil, domain.Invalid("service", "has no duration")
	case !svc.AllowedFor(resourceID):
		return nil, domain.Invalid("service", "is not performed by this resource")
	}
	return svc, nil
}

// localDay re-anchors the calendar date of t at midnight in loc.
func localDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
