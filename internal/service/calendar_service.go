package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"turnero/internal/config"
	"turnero/internal/domain"
	"turnero/internal/models"

	"github.com/rs/zerolog"
)

// CalendarService manages businesses, resources and services and enforces
// the calendar rule invariants.
type CalendarService struct {
	repo   domain.RuleStore
	logger *zerolog.Logger
}

func NewCalendarService(repo domain.RuleStore, logger *zerolog.Logger) *CalendarService {
	return &CalendarService{repo: repo, logger: logger}
}

func (s *CalendarService) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	return s.repo.GetBusiness(ctx, id)
}

func (s *CalendarService) GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error) {
	return s.repo.GetBusinessBySlug(ctx, slug)
}

func (s *CalendarService) ListResources(ctx context.Context, businessID int64) ([]*models.Resource, error) {
	return s.repo.ListResources(ctx, businessID)
}

func (s *CalendarService) ListServices(ctx context.Context, businessID int64) ([]*models.Service, error) {
	return s.repo.ListServices(ctx, businessID)
}

func (s *CalendarService) CreateBusiness(ctx context.Context, b *models.Business) error {
	applyBusinessDefaults(b)
	if err := ValidateBusiness(b); err != nil {
		return err
	}
	if err := s.repo.CreateBusiness(ctx, b); err != nil {
		return err
	}
	s.logger.Info().Int64("business_id", b.ID).Str("slug", b.Slug).Msg("Business created")
	return nil
}

// UpdateBusiness rejects changes that would leave a resource's own hours
// outside the business hours.
func (s *CalendarService) UpdateBusiness(ctx context.Context, b *models.Business) error {
	applyBusinessDefaults(b)
	if err := ValidateBusiness(b); err != nil {
		return err
	}

	resources, err := s.repo.ListResources(ctx, b.ID)
	if err != nil {
		return err
	}
	for _, r := range resources {
		if err := ValidateResource(b, r); err != nil {
			return fmt.Errorf("resource %q: %w", r.Name, err)
		}
	}
	return s.repo.UpdateBusiness(ctx, b)
}

func (s *CalendarService) CreateResource(ctx context.Context, r *models.Resource) error {
	b, err := s.repo.GetBusiness(ctx, r.BusinessID)
	if err != nil {
		return err
	}
	if err := ValidateResource(b, r); err != nil {
		return err
	}
	return s.repo.CreateResource(ctx, r)
}

// UpdateResource changes a resource in place. Appointments reference the
// resource by id, so a rename keeps every existing booking attached.
func (s *CalendarService) UpdateResource(ctx context.Context, r *models.Resource) error {
	current, err := s.repo.GetResource(ctx, r.ID)
	if err != nil {
		return err
	}
	if current.BusinessID != r.BusinessID {
		return fmt.Errorf("resource %d: %w", r.ID, domain.ErrNotFound)
	}
	b, err := s.repo.GetBusiness(ctx, r.BusinessID)
	if err != nil {
		return err
	}
	if err := ValidateResource(b, r); err != nil {
		return err
	}
	return s.repo.UpdateResource(ctx, r)
}

func (s *CalendarService) CreateService(ctx context.Context, svc *models.Service) error {
	if err := s.validateService(ctx, svc); err != nil {
		return err
	}
	return s.repo.CreateService(ctx, svc)
}

func (s *CalendarService) UpdateService(ctx context.Context, svc *models.Service) error {
	current, err := s.repo.GetService(ctx, svc.ID)
	if err != nil {
		return err
	}
	if current.BusinessID != svc.BusinessID {
		return fmt.Errorf("service %d: %w", svc.ID, domain.ErrNotFound)
	}
	if err := s.validateService(ctx, svc); err != nil {
		return err
	}
	return s.repo.UpdateService(ctx, svc)
}

func (s *CalendarService) validateService(ctx context.Context, svc *models.Service) error {
	if strings.TrimSpace(svc.Name) == "" {
		return domain.Invalid("name", "is required")
	}
	if svc.DurationMinutes <= 0 {
		return domain.Invalid("duration_minutes", "must be positive")
	}
	if svc.PriceCents < 0 {
		return domain.Invalid("price_cents", "must not be negative")
	}
	for _, id := range svc.ResourceIDs {
		r, err := s.repo.GetResource(ctx, id)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && r.BusinessID != svc.BusinessID) {
			return domain.Invalid("resource_ids", fmt.Sprintf("resource %d does not belong to the business", id))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Seed inserts the businesses of the calendar file whose slug is not yet
// stored. Existing businesses are left untouched.
func (s *CalendarService) Seed(ctx context.Context, seed *config.CalendarSeed) (int, error) {
	created := 0
	for i := range seed.Businesses {
		bs := seed.Businesses[i]
		if _, err := s.repo.GetBusinessBySlug(ctx, bs.Slug); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return created, err
		}

		b := bs.Business
		if err := s.CreateBusiness(ctx, &b); err != nil {
			return created, fmt.Errorf("seed business %q: %w", bs.Slug, err)
		}

		ids := make(map[string]int64, len(bs.Resources))
		for j := range bs.Resources {
			r := bs.Resources[j]
			r.BusinessID = b.ID
			r.Active = true
			if err := s.CreateResource(ctx, &r); err != nil {
				return created, fmt.Errorf("seed resource %q of %q: %w", r.Name, bs.Slug, err)
			}
			ids[r.Name] = r.ID
		}

		for _, ss := range bs.Services {
			svc := &models.Service{
				BusinessID:      b.ID,
				Name:            ss.Name,
				PriceCents:      ss.PriceCents,
				DurationMinutes: ss.DurationMinutes,
				Active:          true,
			}
			for _, name := range ss.Resources {
				svc.ResourceIDs = append(svc.ResourceIDs, ids[name])
			}
			if err := s.CreateService(ctx, svc); err != nil {
				return created, fmt.Errorf("seed service %q of %q: %w", ss.Name, bs.Slug, err)
			}
		}
		created++
	}
	return created, nil
}

func applyBusinessDefaults(b *models.Business) {
	if b.Timezone == "" {
		b.Timezone = "UTC"
	}
	if b.SlotMode == "" {
		b.SlotMode = models.SlotModeFixed
	}
	if b.SlotMode == models.SlotModeFixed && b.SlotMinutes == 0 {
		b.SlotMinutes = models.DefaultSlotMinutes
	}
}

func ValidateBusiness(b *models.Business) error {
	if strings.TrimSpace(b.Name) == "" {
		return domain.Invalid("name", "is required")
	}
	if b.Slug == "" || strings.ContainsAny(b.Slug, " /?#") {
		return domain.Invalid("slug", "must be a non-empty path segment")
	}
	if _, err := time.LoadLocation(b.Timezone); err != nil {
		return domain.Invalid("timezone", "unknown time zone")
	}
	if b.OpensAt >= b.ClosesAt {
		return domain.Invalid("hours", "opening time must be before closing time")
	}
	if err := validateWeekdays("closed_days", b.ClosedDays); err != nil {
		return err
	}
	switch b.SlotMode {
	case models.SlotModeFixed:
		if b.SlotMinutes <= 0 {
			return domain.Invalid("slot_minutes", "must be positive")
		}
	case models.SlotModeQuota:
		if b.DailyQuota <= 0 {
			return domain.Invalid("daily_quota", "must be positive")
		}
	default:
		return domain.Invalid("slot_mode", "must be fixed or quota")
	}
	return nil
}

// ValidateResource checks r against the hours of its business and the
// half-day exception rules.
func ValidateResource(b *models.Business, r *models.Resource) error {
	if strings.TrimSpace(r.Name) == "" {
		return domain.Invalid("name", "is required")
	}
	if r.BusinessID != b.ID {
		return domain.Invalid("business_id", "does not match")
	}
	if err := validateWeekdays("days_off", r.DaysOff); err != nil {
		return err
	}

	start, end := b.OpensAt, b.ClosesAt
	if r.HasOwnHours() {
		if r.OpensAt >= r.ClosesAt {
			return domain.Invalid("hours", "opening time must be before closing time")
		}
		if r.OpensAt < b.OpensAt || r.ClosesAt > b.ClosesAt {
			return domain.Invalid("hours", "must lie within the business hours")
		}
		start, end = r.OpensAt, r.ClosesAt
	}

	if r.HalfDay == nil {
		return nil
	}
	hd := r.HalfDay
	if hd.Weekday < time.Sunday || hd.Weekday > time.Saturday {
		return domain.Invalid("half_day.weekday", "out of range")
	}
	if hd.Half != models.HalfMorning && hd.Half != models.HalfAfternoon {
		return domain.Invalid("half_day.half", "must be morning or afternoon")
	}
	if r.IsOffOn(hd.Weekday) {
		return domain.Invalid("half_day.weekday", "is already a day off")
	}
	before := (hd.Weekday + 6) % 7
	after := (hd.Weekday + 1) % 7
	if !r.IsOffOn(before) && !r.IsOffOn(after) {
		return domain.Invalid("half_day.weekday", "must be next to a day off")
	}
	if int(end-start)/2 <= 0 {
		return domain.Invalid("half_day", "leaves no working time")
	}
	return nil
}

func validateWeekdays(field string, days []time.Weekday) error {
	seen := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return domain.Invalid(field, "weekday out of range")
		}
		if seen[d] {
			return domain.Invalid(field, "duplicate weekday")
		}
		seen[d] = true
	}
	return nil
}
