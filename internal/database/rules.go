package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"
)

const businessColumns = `id, name, slug, timezone, opens_at, closes_at, closed_days,
                 slot_mode, slot_minutes, daily_quota, owner_id, created_at, updated_at`

func (db *DB) CreateBusiness(ctx context.Context, b *models.Business) error {
	query := `INSERT INTO businesses (name, slug, timezone, opens_at, closes_at, closed_days,
                 slot_mode, slot_minutes, daily_quota, owner_id, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		b.Name, b.Slug, b.Timezone, int(b.OpensAt), int(b.ClosesAt), formatWeekdays(b.ClosedDays),
		b.SlotMode, b.SlotMinutes, b.DailyQuota, b.OwnerID, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Invalid("slug", "already in use")
		}
		return fmt.Errorf("failed to create business: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

func (db *DB) UpdateBusiness(ctx context.Context, b *models.Business) error {
	query := `UPDATE businesses SET name = ?, slug = ?, timezone = ?, opens_at = ?, closes_at = ?,
                 closed_days = ?, slot_mode = ?, slot_minutes = ?, daily_quota = ?, owner_id = ?, updated_at = ?
              WHERE id = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		b.Name, b.Slug, b.Timezone, int(b.OpensAt), int(b.ClosesAt), formatWeekdays(b.ClosedDays),
		b.SlotMode, b.SlotMinutes, b.DailyQuota, b.OwnerID, now, b.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Invalid("slug", "already in use")
		}
		return fmt.Errorf("failed to update business: %w", err)
	}
	if err := checkAffected(result, fmt.Errorf("business %d: %w", b.ID, domain.ErrNotFound)); err != nil {
		return err
	}
	b.UpdatedAt = now
	return nil
}

func (db *DB) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	row := db.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = ?`, id)
	b, err := scanBusiness(row)
	if err != nil {
		return nil, notFound(err, "business %d", id)
	}
	return b, nil
}

func (db *DB) GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error) {
	row := db.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE slug = ?`, slug)
	b, err := scanBusiness(row)
	if err != nil {
		return nil, notFound(err, "business %q", slug)
	}
	return b, nil
}

func scanBusiness(row *sql.Row) (*models.Business, error) {
	var b models.Business
	var opens, closes int
	var closedDays string
	err := row.Scan(&b.ID, &b.Name, &b.Slug, &b.Timezone, &opens, &closes, &closedDays,
		&b.SlotMode, &b.SlotMinutes, &b.DailyQuota, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.OpensAt, b.ClosesAt = models.Clock(opens), models.Clock(closes)
	if b.ClosedDays, err = parseWeekdays(closedDays); err != nil {
		return nil, err
	}
	return &b, nil
}

const resourceColumns = `id, business_id, name, opens_at, closes_at, days_off,
                 half_day_weekday, half_day_half, active, created_at, updated_at`

func halfDayColumns(r *models.Resource) (int, string) {
	if r.HalfDay == nil {
		return -1, ""
	}
	return int(r.HalfDay.Weekday), r.HalfDay.Half
}

func (db *DB) CreateResource(ctx context.Context, r *models.Resource) error {
	query := `INSERT INTO resources (business_id, name, opens_at, closes_at, days_off,
                 half_day_weekday, half_day_half, active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	weekday, half := halfDayColumns(r)
	result, err := db.ExecContext(ctx, query,
		r.BusinessID, r.Name, int(r.OpensAt), int(r.ClosesAt), formatWeekdays(r.DaysOff),
		weekday, half, r.Active, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (db *DB) UpdateResource(ctx context.Context, r *models.Resource) error {
	query := `UPDATE resources SET name = ?, opens_at = ?, closes_at = ?, days_off = ?,
                 half_day_weekday = ?, half_day_half = ?, active = ?, updated_at = ?
              WHERE id = ? AND business_id = ?`
	now := time.Now()
	weekday, half := halfDayColumns(r)
	result, err := db.ExecContext(ctx, query,
		r.Name, int(r.OpensAt), int(r.ClosesAt), formatWeekdays(r.DaysOff),
		weekday, half, r.Active, now, r.ID, r.BusinessID,
	)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	if err := checkAffected(result, fmt.Errorf("resource %d: %w", r.ID, domain.ErrNotFound)); err != nil {
		return err
	}
	r.UpdatedAt = now
	return nil
}

func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	resources, err := scanResources(rows)
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("resource %d: %w", id, domain.ErrNotFound)
	}
	return resources[0], nil
}

func (db *DB) ListResources(ctx context.Context, businessID int64) ([]*models.Resource, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE business_id = ? ORDER BY name, id`, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return scanResources(rows)
}

func scanResources(rows *sql.Rows) ([]*models.Resource, error) {
	defer rows.Close()

	var resources []*models.Resource
	for rows.Next() {
		var r models.Resource
		var opens, closes, halfWeekday int
		var daysOff, half string
		if err := rows.Scan(&r.ID, &r.BusinessID, &r.Name, &opens, &closes, &daysOff,
			&halfWeekday, &half, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		r.OpensAt, r.ClosesAt = models.Clock(opens), models.Clock(closes)
		days, err := parseWeekdays(daysOff)
		if err != nil {
			return nil, fmt.Errorf("resource %d: %w", r.ID, err)
		}
		r.DaysOff = days
		if halfWeekday >= 0 && half != "" {
			r.HalfDay = &models.HalfDayException{Weekday: time.Weekday(halfWeekday), Half: half}
		}
		resources = append(resources, &r)
	}
	return resources, rows.Err()
}

func (db *DB) CreateService(ctx context.Context, s *models.Service) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO services (business_id, name, price_cents, duration_minutes, active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := tx.ExecContext(ctx, query, s.BusinessID, s.Name, s.PriceCents, s.DurationMinutes, s.Active, now, now)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := replaceServiceResources(ctx, tx, id, s.ResourceIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit service: %w", err)
	}

	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

func (db *DB) UpdateService(ctx context.Context, s *models.Service) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE services SET name = ?, price_cents = ?, duration_minutes = ?, active = ?, updated_at = ?
              WHERE id = ? AND business_id = ?`
	now := time.Now()
	result, err := tx.ExecContext(ctx, query, s.Name, s.PriceCents, s.DurationMinutes, s.Active, now, s.ID, s.BusinessID)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if err := checkAffected(result, fmt.Errorf("service %d: %w", s.ID, domain.ErrNotFound)); err != nil {
		return err
	}

	if err := replaceServiceResources(ctx, tx, s.ID, s.ResourceIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit service: %w", err)
	}
	s.UpdatedAt = now
	return nil
}

func replaceServiceResources(ctx context.Context, q queryer, serviceID int64, resourceIDs []int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM service_resources WHERE service_id = ?`, serviceID); err != nil {
		return fmt.Errorf("failed to clear service resources: %w", err)
	}
	for _, rid := range resourceIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO service_resources (service_id, resource_id) VALUES (?, ?)`, serviceID, rid); err != nil {
			return fmt.Errorf("failed to link service %d to resource %d: %w", serviceID, rid, err)
		}
	}
	return nil
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	services, err := db.queryServices(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %d: %w", id, domain.ErrNotFound)
	}
	return services[0], nil
}

func (db *DB) ListServices(ctx context.Context, businessID int64) ([]*models.Service, error) {
	return db.queryServices(ctx, `WHERE business_id = ? ORDER BY name, id`, businessID)
}

func (db *DB) queryServices(ctx context.Context, where string, args ...interface{}) ([]*models.Service, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, business_id, name, price_cents, duration_minutes, active,
                 created_at, updated_at FROM services `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}

	var services []*models.Service
	func() {
		defer rows.Close()
		for rows.Next() {
			var s models.Service
			if err = rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.PriceCents, &s.DurationMinutes, &s.Active,
				&s.CreatedAt, &s.UpdatedAt); err != nil {
				return
			}
			services = append(services, &s)
		}
		err = rows.Err()
	}()
	if err != nil {
		return nil, fmt.Errorf("failed to scan service: %w", err)
	}

	for _, s := range services {
		ids, err := db.serviceResourceIDs(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		s.ResourceIDs = ids
	}
	return services, nil
}

func (db *DB) serviceResourceIDs(ctx context.Context, serviceID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT resource_id FROM service_resources WHERE service_id = ? ORDER BY resource_id`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get service resources: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan service resource: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, domain.ErrNotFound)...)
	}
	return fmt.Errorf("failed to get "+format+": %w", append(args, err)...)
}

// checkAffected returns none when the statement touched no row.
func checkAffected(result sql.Result, none error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}
