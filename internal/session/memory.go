package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry is a mutex-guarded in-process Registry. Records are lost on
// restart, which only shortens revocation coverage; tokens stay self-verifying.
type MemoryRegistry struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]*Record)}
}

// Create records a new active session and returns its id.
func (r *MemoryRegistry) Create(_ context.Context, userID int64, clientAddr string, ttl time.Duration) (string, error) {
	now := time.Now()
	rec := &Record{
		ID:         uuid.NewString(),
		UserID:     userID,
		ClientAddr: clientAddr,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
		Active:     true,
		LastUsedAt: now,
	}

	r.mu.Lock()
	r.records[rec.ID] = rec
	r.mu.Unlock()
	return rec.ID, nil
}

// Touch refreshes the last-used timestamp.
func (r *MemoryRegistry) Touch(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	rec.LastUsedAt = time.Now()
	return nil
}

// Revoke flips the active flag false. Revoking an unknown session is a no-op.
func (r *MemoryRegistry) Revoke(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[sessionID]; ok {
		rec.Active = false
	}
	return nil
}

// IsActive reports whether the session exists, is unexpired and unrevoked.
func (r *MemoryRegistry) IsActive(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sessionID]
	if !ok {
		return false, nil
	}
	return rec.Active && time.Now().Before(rec.ExpiresAt), nil
}

// Get returns a copy of the session record.
func (r *MemoryRegistry) Get(_ context.Context, sessionID string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}
