package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shieldstore/server/internal/model"
)

// APIKeyRepo stores one-way hashes of issued API keys
type APIKeyRepo interface {
	Insert(ctx context.Context, userID int64, keyHash string, expiresAt *time.Time) (model.APIKey, error)
	GetByHash(ctx context.Context, keyHash string) (model.APIKey, error)
	Deactivate(ctx context.Context, id int64) error
}

type apiKeyRepo struct {
	db *sql.DB
}

// NewAPIKeyRepo creates a new APIKeyRepo instance
func NewAPIKeyRepo(db *sql.DB) APIKeyRepo {
	return &apiKeyRepo{db: db}
}

// Insert stores the hash of a freshly issued key.
func (r *apiKeyRepo) Insert(ctx context.Context, userID int64, keyHash string, expiresAt *time.Time) (model.APIKey, error) {
	query := `
		INSERT INTO api_keys (user_id, key_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, key_hash, active, expires_at, created_at
	`
	var key model.APIKey
	err := r.db.QueryRowContext(ctx, query, userID, keyHash, expiresAt).Scan(
		&key.ID,
		&key.UserID,
		&key.KeyHash,
		&key.Active,
		&key.ExpiresAt,
		&key.CreatedAt,
	)
	if err != nil {
		return model.APIKey{}, fmt.Errorf("failed to insert api key: %w", err)
	}
	return key, nil
}

// GetByHash retrieves an active, unexpired key by its lookup hash.
func (r *apiKeyRepo) GetByHash(ctx context.Context, keyHash string) (model.APIKey, error) {
	query := `
		SELECT id, user_id, key_hash, active, expires_at, created_at
		FROM api_keys
		WHERE key_hash = $1
		  AND active
		  AND (expires_at IS NULL OR expires_at > now())
	`
	var key model.APIKey
	err := r.db.QueryRowContext(ctx, query, keyHash).Scan(
		&key.ID,
		&key.UserID,
		&key.KeyHash,
		&key.Active,
		&key.ExpiresAt,
		&key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.APIKey{}, ErrNotFound
		}
		return model.APIKey{}, fmt.Errorf("failed to query api key: %w", err)
	}
	return key, nil
}

// Deactivate flips the active flag false.
func (r *apiKeyRepo) Deactivate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE api_keys SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
