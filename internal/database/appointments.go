package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"turnero/internal/availability"
	"turnero/internal/domain"
	"turnero/internal/models"
)

const appointmentColumns = `id, group_id, business_id, resource_id, resource_name, service_id, service_name,
                 duration_minutes, date, start_minute, end_minute, client_id, client_name, client_contact,
                 status, blocked, comment, version, created_at, updated_at`

// CommitAppointments is the conditional commit used for bookings and blocks.
// All appointments are checked against the live day set and inserted in one
// immediate transaction; any overlap rolls the whole batch back.
func (db *DB) CommitAppointments(ctx context.Context, appts []*models.Appointment) error {
	if len(appts) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	days := make(map[string][]*models.Appointment)
	now := time.Now()
	for _, a := range appts {
		key := fmt.Sprintf("%d/%s", a.ResourceID, a.DateString())
		existing, ok := days[key]
		if !ok {
			existing, err = listDay(ctx, tx, a.ResourceID, a.Date)
			if err != nil {
				return err
			}
		}

		if conflict := availability.FindConflict(existing, a); conflict != nil {
			return fmt.Errorf("%w: %s %s-%s overlaps %s-%s", domain.ErrSlotTaken,
				a.DateString(), a.Start, a.End, conflict.Start, conflict.End)
		}

		if err := insertAppointment(ctx, tx, a, now); err != nil {
			return err
		}
		days[key] = append(existing, a)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: commit", domain.ErrSlotTaken)
		}
		return fmt.Errorf("failed to commit appointments: %w", err)
	}
	return nil
}

func insertAppointment(ctx context.Context, q queryer, a *models.Appointment, now time.Time) error {
	query := `INSERT INTO appointments (` + appointmentColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		a.ID, a.GroupID, a.BusinessID, a.ResourceID, a.ResourceName, a.ServiceID, a.ServiceName,
		a.DurationMinutes, a.DateString(), int(a.Start), int(a.End), a.ClientID, a.ClientName, a.ClientContact,
		a.Status, a.Blocked, a.Comment, 1, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s", domain.ErrSlotTaken, a.DateString(), a.Start)
		}
		return fmt.Errorf("failed to insert appointment in tx: %w", err)
	}
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func listDay(ctx context.Context, q queryer, resourceID int64, date time.Time) ([]*models.Appointment, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+appointmentColumns+` FROM appointments
              WHERE resource_id = ? AND date = ? AND status != ? ORDER BY start_minute`,
		resourceID, date.Format(models.DateLayout), models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list day appointments: %w", err)
	}
	return scanAppointments(rows)
}

func (db *DB) ListDayAppointments(ctx context.Context, resourceID int64, date time.Time) ([]*models.Appointment, error) {
	return listDay(ctx, db, resourceID, date)
}

func (db *DB) ListAppointmentsRange(ctx context.Context, businessID int64, from, to time.Time) ([]*models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+appointmentColumns+` FROM appointments
              WHERE business_id = ? AND date >= ? AND date <= ? AND status != ?
              ORDER BY date, resource_id, start_minute`,
		businessID, from.Format(models.DateLayout), to.Format(models.DateLayout), models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointments by date range: %w", err)
	}
	return scanAppointments(rows)
}

func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	appts, err := scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, fmt.Errorf("appointment %s: %w", id, domain.ErrNotFound)
	}
	return appts[0], nil
}

// DeleteAppointments hard-deletes the given appointments in one statement.
// It returns ErrNotFound when none of them existed anymore.
func (db *DB) DeleteAppointments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := db.ExecContext(ctx, `DELETE FROM appointments WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete appointments: %w", err)
	}
	return checkAffected(result, fmt.Errorf("appointments %v: %w", ids, domain.ErrNotFound))
}

func (db *DB) DeleteBlockedForDay(ctx context.Context, resourceID int64, date time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM appointments WHERE resource_id = ? AND date = ? AND blocked = 1`,
		resourceID, date.Format(models.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete blocked appointments: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted blocks: %w", err)
	}
	return n, nil
}

func (db *DB) UpdateAppointmentStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error {
	query := `UPDATE appointments SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return checkAffected(result, domain.ErrConcurrentModification)
}

func scanAppointments(rows *sql.Rows) ([]*models.Appointment, error) {
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		var a models.Appointment
		var dateStr string
		var start, end int
		err := rows.Scan(&a.ID, &a.GroupID, &a.BusinessID, &a.ResourceID, &a.ResourceName, &a.ServiceID,
			&a.ServiceName, &a.DurationMinutes, &dateStr, &start, &end, &a.ClientID, &a.ClientName,
			&a.ClientContact, &a.Status, &a.Blocked, &a.Comment, &a.Version, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		a.Date, err = time.Parse(models.DateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse appointment date %s: %w", dateStr, err)
		}
		a.Start, a.End = models.Clock(start), models.Clock(end)
		appts = append(appts, &a)
	}
	return appts, rows.Err()
}
