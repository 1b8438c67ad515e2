package postgres

import (
	"context"
	"fmt"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"

	"github.com/jackc/pgx/v5"
)

const businessColumns = `id, name, slug, timezone, opens_at, closes_at, closed_days,
        slot_mode, slot_minutes, daily_quota, owner_id, created_at, updated_at`

func (s *Store) CreateBusiness(ctx context.Context, b *models.Business) error {
	err := s.pool.QueryRow(ctx, `INSERT INTO businesses (name, slug, timezone, opens_at, closes_at, closed_days,
            slot_mode, slot_minutes, daily_quota, owner_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, created_at, updated_at`,
		b.Name, b.Slug, b.Timezone, int(b.OpensAt), int(b.ClosesAt), toInt32s(b.ClosedDays),
		b.SlotMode, b.SlotMinutes, b.DailyQuota, b.OwnerID,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Invalid("slug", "already in use")
		}
		return fmt.Errorf("failed to create business: %w", err)
	}
	return nil
}

func (s *Store) UpdateBusiness(ctx context.Context, b *models.Business) error {
	tag, err := s.pool.Exec(ctx, `UPDATE businesses SET name = $1, slug = $2, timezone = $3, opens_at = $4,
            closes_at = $5, closed_days = $6, slot_mode = $7, slot_minutes = $8, daily_quota = $9,
            owner_id = $10, updated_at = now()
        WHERE id = $11`,
		b.Name, b.Slug, b.Timezone, int(b.OpensAt), int(b.ClosesAt), toInt32s(b.ClosedDays),
		b.SlotMode, b.SlotMinutes, b.DailyQuota, b.OwnerID, b.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Invalid("slug", "already in use")
		}
		return fmt.Errorf("failed to update business: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("business %d: %w", b.ID, domain.ErrNotFound)
	}
	b.UpdatedAt = time.Now()
	return nil
}

func (s *Store) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	b, err := scanBusiness(s.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("business %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}
	return b, nil
}

func (s *Store) GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error) {
	b, err := scanBusiness(s.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE slug = $1`, slug))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("business %q: %w", slug, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}
	return b, nil
}

func scanBusiness(row pgx.Row) (*models.Business, error) {
	var b models.Business
	var opens, closes int
	var closedDays []int32
	err := row.Scan(&b.ID, &b.Name, &b.Slug, &b.Timezone, &opens, &closes, &closedDays,
		&b.SlotMode, &b.SlotMinutes, &b.DailyQuota, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.OpensAt, b.ClosesAt = models.Clock(opens), models.Clock(closes)
	b.ClosedDays = toWeekdays(closedDays)
	return &b, nil
}

const resourceColumns = `id, business_id, name, opens_at, closes_at, days_off,
        half_day_weekday, half_day_half, active, created_at, updated_at`

func halfDay(r *models.Resource) (int, string) {
	if r.HalfDay == nil {
		return -1, ""
	}
	return int(r.HalfDay.Weekday), r.HalfDay.Half
}

func (s *Store) CreateResource(ctx context.Context, r *models.Resource) error {
	weekday, half := halfDay(r)
	err := s.pool.QueryRow(ctx, `INSERT INTO resources (business_id, name, opens_at, closes_at, days_off,
            half_day_weekday, half_day_half, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at`,
		r.BusinessID, r.Name, int(r.OpensAt), int(r.ClosesAt), toInt32s(r.DaysOff), weekday, half, r.Active,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

func (s *Store) UpdateResource(ctx context.Context, r *models.Resource) error {
	weekday, half := halfDay(r)
	tag, err := s.pool.Exec(ctx, `UPDATE resources SET name = $1, opens_at = $2, closes_at = $3, days_off = $4,
            half_day_weekday = $5, half_day_half = $6, active = $7, updated_at = now()
        WHERE id = $8 AND business_id = $9`,
		r.Name, int(r.OpensAt), int(r.ClosesAt), toInt32s(r.DaysOff), weekday, half, r.Active, r.ID, r.BusinessID,
	)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("resource %d: %w", r.ID, domain.ErrNotFound)
	}
	r.UpdatedAt = time.Now()
	return nil
}

func (s *Store) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	resources, err := s.queryResources(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("resource %d: %w", id, domain.ErrNotFound)
	}
	return resources[0], nil
}

func (s *Store) ListResources(ctx context.Context, businessID int64) ([]*models.Resource, error) {
	return s.queryResources(ctx, `WHERE business_id = $1 ORDER BY name, id`, businessID)
}

func (s *Store) queryResources(ctx context.Context, where string, args ...interface{}) ([]*models.Resource, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+resourceColumns+` FROM resources `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var resources []*models.Resource
	for rows.Next() {
		var r models.Resource
		var opens, closes, halfWeekday int
		var daysOff []int32
		var half string
		if err := rows.Scan(&r.ID, &r.BusinessID, &r.Name, &opens, &closes, &daysOff,
			&halfWeekday, &half, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		r.OpensAt, r.ClosesAt = models.Clock(opens), models.Clock(closes)
		r.DaysOff = toWeekdays(daysOff)
		if halfWeekday >= 0 && half != "" {
			r.HalfDay = &models.HalfDayException{Weekday: time.Weekday(halfWeekday), Half: half}
		}
		resources = append(resources, &r)
	}
	return resources, rows.Err()
}

func (s *Store) CreateService(ctx context.Context, svc *models.Service) error {
	err := s.pool.QueryRow(ctx, `INSERT INTO services (business_id, name, price_cents, duration_minutes, resource_ids, active)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at, updated_at`,
		svc.BusinessID, svc.Name, svc.PriceCents, svc.DurationMinutes, resourceIDs(svc), svc.Active,
	).Scan(&svc.ID, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (s *Store) UpdateService(ctx context.Context, svc *models.Service) error {
	tag, err := s.pool.Exec(ctx, `UPDATE services SET name = $1, price_cents = $2, duration_minutes = $3,
            resource_ids = $4, active = $5, updated_at = now()
        WHERE id = $6 AND business_id = $7`,
		svc.Name, svc.PriceCents, svc.DurationMinutes, resourceIDs(svc), svc.Active, svc.ID, svc.BusinessID,
	)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("service %d: %w", svc.ID, domain.ErrNotFound)
	}
	svc.UpdatedAt = time.Now()
	return nil
}

func resourceIDs(svc *models.Service) []int64 {
	if svc.ResourceIDs == nil {
		return []int64{}
	}
	return svc.ResourceIDs
}

func (s *Store) GetService(ctx context.Context, id int64) (*models.Service, error) {
	services, err := s.queryServices(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %d: %w", id, domain.ErrNotFound)
	}
	return services[0], nil
}

func (s *Store) ListServices(ctx context.Context, businessID int64) ([]*models.Service, error) {
	return s.queryServices(ctx, `WHERE business_id = $1 ORDER BY name, id`, businessID)
}

func (s *Store) queryServices(ctx context.Context, where string, args ...interface{}) ([]*models.Service, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, business_id, name, price_cents, duration_minutes, resource_ids,
            active, created_at, updated_at FROM services `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.PriceCents, &svc.DurationMinutes,
			&svc.ResourceIDs, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		if len(svc.ResourceIDs) == 0 {
			svc.ResourceIDs = nil
		}
		services = append(services, &svc)
	}
	return services, rows.Err()
}
