package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"turnero/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Store is the PostgreSQL implementation of the rule, appointment,
// client agenda and task stores.
type Store struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func New(ctx context.Context, cfg config.PostgresConfig, logger *zerolog.Logger) (*Store, error) {
	return Open(ctx, cfg.DSN(), cfg, logger)
}

// Open connects using dsn; pool sizing comes from cfg.
func Open(ctx context.Context, dsn string, cfg config.PostgresConfig, logger *zerolog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		poolConfig.MinConns = int32(cfg.MinConnections)
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	}
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Str("host", poolConfig.ConnConfig.Host).Msg("PostgreSQL store initialized")
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS businesses (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            slug TEXT NOT NULL UNIQUE,
            timezone TEXT NOT NULL DEFAULT 'UTC',
            opens_at INT NOT NULL,
            closes_at INT NOT NULL,
            closed_days INT[] NOT NULL DEFAULT '{}',
            slot_mode TEXT NOT NULL DEFAULT 'fixed',
            slot_minutes INT NOT NULL DEFAULT 30,
            daily_quota INT NOT NULL DEFAULT 0,
            owner_id TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE TABLE IF NOT EXISTS resources (
            id BIGSERIAL PRIMARY KEY,
            business_id BIGINT NOT NULL REFERENCES businesses(id),
            name TEXT NOT NULL,
            opens_at INT NOT NULL DEFAULT 0,
            closes_at INT NOT NULL DEFAULT 0,
            days_off INT[] NOT NULL DEFAULT '{}',
            half_day_weekday INT NOT NULL DEFAULT -1,
            half_day_half TEXT NOT NULL DEFAULT '',
            active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE TABLE IF NOT EXISTS services (
            id BIGSERIAL PRIMARY KEY,
            business_id BIGINT NOT NULL REFERENCES businesses(id),
            name TEXT NOT NULL,
            price_cents BIGINT NOT NULL DEFAULT 0,
            duration_minutes INT NOT NULL CHECK (duration_minutes > 0),
            resource_ids BIGINT[] NOT NULL DEFAULT '{}',
            active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE TABLE IF NOT EXISTS appointments (
            id TEXT PRIMARY KEY,
            group_id TEXT NOT NULL DEFAULT '',
            business_id BIGINT NOT NULL,
            resource_id BIGINT NOT NULL,
            resource_name TEXT NOT NULL DEFAULT '',
            service_id BIGINT NOT NULL DEFAULT 0,
            service_name TEXT NOT NULL DEFAULT '',
            duration_minutes INT NOT NULL,
            date DATE NOT NULL,
            start_minute INT NOT NULL,
            end_minute INT NOT NULL,
            client_id TEXT NOT NULL DEFAULT '',
            client_name TEXT NOT NULL DEFAULT '',
            client_contact TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            blocked BOOLEAN NOT NULL DEFAULT FALSE,
            comment TEXT NOT NULL DEFAULT '',
            version BIGINT NOT NULL DEFAULT 1,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE TABLE IF NOT EXISTS client_appointments (
            client_id TEXT NOT NULL,
            appointment_id TEXT NOT NULL,
            date DATE NOT NULL,
            start_minute INT NOT NULL,
            payload JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (client_id, appointment_id)
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id BIGSERIAL PRIMARY KEY,
            task_type TEXT NOT NULL,
            appointment_id TEXT NOT NULL DEFAULT '',
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INT NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            processed_at TIMESTAMPTZ,
            next_retry_at TIMESTAMPTZ
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_slot ON appointments(resource_id, date, start_minute)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_business_date ON appointments(business_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to migrate postgres schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// dayLockKey identifies the advisory lock guarding one resource day.
func dayLockKey(resourceID int64, date time.Time) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "appointments:%d:%s", resourceID, date.Format("2006-01-02"))
	return int64(h.Sum64())
}

func toInt32s(days []time.Weekday) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func toWeekdays(days []int32) []time.Weekday {
	if len(days) == 0 {
		return nil
	}
	out := make([]time.Weekday, len(days))
	for i, d := range days {
		out[i] = time.Weekday(d)
	}
	return out
}
