// Package session keeps server-side records of issued bearer tokens so they
// can be revoked before their embedded expiry. Registry state is advisory:
// identity correctness is guaranteed by the token signature, and callers
// tolerate a missing record rather than rejecting the request.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a session id.
var ErrNotFound = errors.New("session not found")

// Record is one active-session entry.
type Record struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	ClientAddr string    `json:"client_addr"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Active     bool      `json:"active"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Registry records sessions for revocation and audit. Implementations must be
// safe for concurrent use by requests belonging to the same session;
// last-writer-wins on LastUsedAt is acceptable.
type Registry interface {
	Create(ctx context.Context, userID int64, clientAddr string, ttl time.Duration) (string, error)
	Touch(ctx context.Context, sessionID string) error
	Revoke(ctx context.Context, sessionID string) error
	IsActive(ctx context.Context, sessionID string) (bool, error)
	Get(ctx context.Context, sessionID string) (Record, error)
}
