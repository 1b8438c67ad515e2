package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"turnero/internal/models"
)

func (s *Store) SaveCopies(ctx context.Context, appts []*models.Appointment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range appts {
		if a.Blocked || a.ClientID == "" {
			continue
		}
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal client copy: %w", err)
		}
		_, err = tx.Exec(ctx, `INSERT INTO client_appointments (client_id, appointment_id, date, start_minute, payload)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (client_id, appointment_id) DO UPDATE SET payload = EXCLUDED.payload`,
			a.ClientID, a.ID, a.Date, int(a.Start), payload)
		if err != nil {
			return fmt.Errorf("failed to save client copy: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit client copies: %w", err)
	}
	return nil
}

func (s *Store) DeleteCopy(ctx context.Context, clientID, appointmentID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM client_appointments WHERE client_id = $1 AND appointment_id = $2`,
		clientID, appointmentID); err != nil {
		return fmt.Errorf("failed to delete client copy: %w", err)
	}
	return nil
}

func (s *Store) ListCopies(ctx context.Context, clientID string) ([]*models.Appointment, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM client_appointments
        WHERE client_id = $1 ORDER BY date, start_minute`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list client copies: %w", err)
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan client copy: %w", err)
		}
		var a models.Appointment
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("failed to decode client copy: %w", err)
		}
		appts = append(appts, &a)
	}
	return appts, rows.Err()
}
