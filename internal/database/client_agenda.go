package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"turnero/internal/models"
)

// SaveCopies writes the client agenda copies of appts in one transaction.
// Blocked entries have no client and are skipped.
func (db *DB) SaveCopies(ctx context.Context, appts []*models.Appointment) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, a := range appts {
		if a.Blocked || a.ClientID == "" {
			continue
		}
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal client copy: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO client_appointments
              (client_id, appointment_id, date, start_minute, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			a.ClientID, a.ID, a.DateString(), int(a.Start), string(payload), now)
		if err != nil {
			return fmt.Errorf("failed to save client copy: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit client copies: %w", err)
	}
	return nil
}

func (db *DB) DeleteCopy(ctx context.Context, clientID, appointmentID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM client_appointments WHERE client_id = ? AND appointment_id = ?`,
		clientID, appointmentID)
	if err != nil {
		return fmt.Errorf("failed to delete client copy: %w", err)
	}
	return nil
}

func (db *DB) ListCopies(ctx context.Context, clientID string) ([]*models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `SELECT payload FROM client_appointments
              WHERE client_id = ? ORDER BY date, start_minute`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list client copies: %w", err)
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan client copy: %w", err)
		}
		var a models.Appointment
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("failed to decode client copy: %w", err)
		}
		appts = append(appts, &a)
	}
	return appts, rows.Err()
}
