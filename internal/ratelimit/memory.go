package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = 10 * time.Minute

type bucket struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is an in-process Store. A background sweep evicts expired
// buckets to bound memory.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	stopped sync.Once
}

// NewMemoryStore creates a memory store and starts its sweeper
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Incr counts an attempt under key, opening or resetting the window as needed.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.After(b.resetAt) {
		s.buckets[key] = &bucket{count: 1, resetAt: now.Add(window)}
		return 1, nil
	}
	b.count++
	return b.count, nil
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() {
	s.stopped.Do(func() { close(s.stop) })
}

// sweep evicts expired buckets. The lock is taken per eviction, never across
// the whole scan, so in-flight increments are not stalled.
func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			keys := make([]string, 0, len(s.buckets))
			for k := range s.buckets {
				keys = append(keys, k)
			}
			s.mu.Unlock()

			for _, k := range keys {
				s.mu.Lock()
				if b, ok := s.buckets[k]; ok && time.Now().After(b.resetAt) {
					delete(s.buckets, k)
				}
				s.mu.Unlock()
			}
		}
	}
}
