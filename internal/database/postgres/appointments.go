package postgres

import (
	"context"
	"fmt"
	"time"

	"turnero/internal/availability"
	"turnero/internal/domain"
	"turnero/internal/models"

	"github.com/jackc/pgx/v5"
)

const appointmentColumns = `id, group_id, business_id, resource_id, resource_name, service_id, service_name,
        duration_minutes, date, start_minute, end_minute, client_id, client_name, client_contact,
        status, blocked, comment, version, created_at, updated_at`

// CommitAppointments serializes writers per resource day with a
// transaction-scoped advisory lock, then checks and inserts the batch.
func (s *Store) CommitAppointments(ctx context.Context, appts []*models.Appointment) error {
	if len(appts) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	days := make(map[int64][]*models.Appointment)
	for _, a := range appts {
		key := dayLockKey(a.ResourceID, a.Date)
		existing, ok := days[key]
		if !ok {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
				return fmt.Errorf("failed to lock resource day: %w", err)
			}
			existing, err = listDay(ctx, tx, a.ResourceID, a.Date)
			if err != nil {
				return err
			}
		}

		if conflict := availability.FindConflict(existing, a); conflict != nil {
			return fmt.Errorf("%w: %s %s-%s overlaps %s-%s", domain.ErrSlotTaken,
				a.DateString(), a.Start, a.End, conflict.Start, conflict.End)
		}

		err := tx.QueryRow(ctx, `INSERT INTO appointments (id, group_id, business_id, resource_id, resource_name,
                service_id, service_name, duration_minutes, date, start_minute, end_minute, client_id,
                client_name, client_contact, status, blocked, comment)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
            RETURNING version, created_at, updated_at`,
			a.ID, a.GroupID, a.BusinessID, a.ResourceID, a.ResourceName, a.ServiceID, a.ServiceName,
			a.DurationMinutes, a.Date, int(a.Start), int(a.End), a.ClientID, a.ClientName, a.ClientContact,
			a.Status, a.Blocked, a.Comment,
		).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s %s", domain.ErrSlotTaken, a.DateString(), a.Start)
			}
			return fmt.Errorf("failed to insert appointment in tx: %w", err)
		}
		days[key] = append(existing, a)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit appointments: %w", err)
	}
	return nil
}

func listDay(ctx context.Context, q pgx.Tx, resourceID int64, date time.Time) ([]*models.Appointment, error) {
	rows, err := q.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments
        WHERE resource_id = $1 AND date = $2 AND status <> $3 ORDER BY start_minute`,
		resourceID, date, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list day appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (s *Store) ListDayAppointments(ctx context.Context, resourceID int64, date time.Time) ([]*models.Appointment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments
        WHERE resource_id = $1 AND date = $2 AND status <> $3 ORDER BY start_minute`,
		resourceID, date, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list day appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (s *Store) ListAppointmentsRange(ctx context.Context, businessID int64, from, to time.Time) ([]*models.Appointment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments
        WHERE business_id = $1 AND date BETWEEN $2 AND $3 AND status <> $4
        ORDER BY date, resource_id, start_minute`,
		businessID, from, to, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointments by date range: %w", err)
	}
	return collectAppointments(rows)
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, fmt.Errorf("appointment %s: %w", id, domain.ErrNotFound)
	}
	return appts[0], nil
}

func (s *Store) DeleteAppointments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointments WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to delete appointments: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments %v: %w", ids, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteBlockedForDay(ctx context.Context, resourceID int64, date time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointments WHERE resource_id = $1 AND date = $2 AND blocked`,
		resourceID, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete blocked appointments: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) UpdateAppointmentStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE appointments SET status = $1, version = version + 1, updated_at = now()
        WHERE id = $2 AND version = $3`, status, id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

func collectAppointments(rows pgx.Rows) ([]*models.Appointment, error) {
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		var a models.Appointment
		var start, end int
		err := rows.Scan(&a.ID, &a.GroupID, &a.BusinessID, &a.ResourceID, &a.ResourceName, &a.ServiceID,
			&a.ServiceName, &a.DurationMinutes, &a.Date, &start, &end, &a.ClientID, &a.ClientName,
			&a.ClientContact, &a.Status, &a.Blocked, &a.Comment, &a.Version, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		a.Start, a.End = models.Clock(start), models.Clock(end)
		appts = append(appts, &a)
	}
	return appts, rows.Err()
}
