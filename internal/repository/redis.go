package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"turnero/internal/config"
	"turnero/internal/models"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// RedisLimiter counts attempts in fixed windows keyed by caller.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (r *RedisLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	redisKey := "rate_limit:" + key
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, redisKey, window)
	}

	return count <= int64(limit), nil
}

// RedisClientAgenda keeps each client's appointment copies in one hash,
// field = appointment id, value = JSON snapshot.
type RedisClientAgenda struct {
	client *redis.Client
}

func NewRedisClientAgenda(client *redis.Client) *RedisClientAgenda {
	return &RedisClientAgenda{client: client}
}

func agendaKey(clientID string) string {
	return "client_agenda:" + clientID
}

func (r *RedisClientAgenda) SaveCopies(ctx context.Context, appts []*models.Appointment) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	pipe := r.client.TxPipeline()
	for _, a := range appts {
		if a.Blocked || a.ClientID == "" {
			continue
		}
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal client copy: %w", err)
		}
		pipe.HSet(ctx, agendaKey(a.ClientID), a.ID, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save client copies: %w", err)
	}
	return nil
}

func (r *RedisClientAgenda) DeleteCopy(ctx context.Context, clientID, appointmentID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.HDel(ctx, agendaKey(clientID), appointmentID).Err(); err != nil {
		return fmt.Errorf("failed to delete client copy: %w", err)
	}
	return nil
}

func (r *RedisClientAgenda) ListCopies(ctx context.Context, clientID string) ([]*models.Appointment, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	values, err := r.client.HGetAll(ctx, agendaKey(clientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list client copies: %w", err)
	}

	appts := make([]*models.Appointment, 0, len(values))
	for _, raw := range values {
		var a models.Appointment
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal client copy: %w", err)
		}
		appts = append(appts, &a)
	}

	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].Date.Equal(appts[j].Date) {
			return appts[i].Date.Before(appts[j].Date)
		}
		return appts[i].Start < appts[j].Start
	})
	return appts, nil
}
