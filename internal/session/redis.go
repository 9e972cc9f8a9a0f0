package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// RedisRegistry is a Registry backed by a shared redis instance, for
// deployments where revocation must be visible across processes. Expiry is
// enforced by the key TTL.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry creates a registry on top of an existing client
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// Create records a new active session and returns its id.
func (r *RedisRegistry) Create(ctx context.Context, userID int64, clientAddr string, ttl time.Duration) (string, error) {
	now := time.Now()
	rec := Record{
		ID:         uuid.NewString(),
		UserID:     userID,
		ClientAddr: clientAddr,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
		Active:     true,
		LastUsedAt: now,
	}
	if err := r.set(ctx, rec, ttl); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Touch refreshes the last-used timestamp, preserving the key's TTL.
func (r *RedisRegistry) Touch(ctx context.Context, sessionID string) error {
	rec, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.LastUsedAt = time.Now()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+sessionID, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// Revoke flips the active flag false, keeping the record until expiry for audit.
func (r *RedisRegistry) Revoke(ctx context.Context, sessionID string) error {
	rec, err := r.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rec.Active = false

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+sessionID, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsActive reports whether the session exists, is unexpired and unrevoked.
func (r *RedisRegistry) IsActive(ctx context.Context, sessionID string) (bool, error) {
	rec, err := r.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Active && time.Now().Before(rec.ExpiresAt), nil
}

// Get returns the session record.
func (r *RedisRegistry) Get(ctx context.Context, sessionID string) (Record, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return rec, nil
}

func (r *RedisRegistry) set(ctx context.Context, rec Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+rec.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}
