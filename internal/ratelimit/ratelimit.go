// Package ratelimit provides fixed-window request counters keyed by client identity.
//
// A counter lives for a fixed window after its last increment; a burst
// straddling a window boundary can therefore admit up to roughly twice the
// configured threshold. Callers reject a request when the count returned by
// Increment exceeds their threshold.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store is a shared counter with fixed-window expiry.
type Store interface {
	// Increment atomically bumps the counter at key, (re)arms its expiry,
	// and returns the new count. An expired counter restarts at 1.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// sweepEvery bounds how often the in-memory store scans for dead counters.
const sweepEvery = 1024

type counter struct {
	expiresAt time.Time
	count     int64
}

// MemoryStore is an in-process Store backed by a mutex-guarded map.
// It serves single-node deployments and tests; multi-node deployments
// share counters through RedisStore instead.
type MemoryStore struct {
	now      func() time.Time
	counters map[string]*counter
	mu       sync.Mutex
	ops      int
}

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	s.ops++
	if s.ops >= sweepEvery {
		s.ops = 0
		for k, c := range s.counters {
			if now.After(c.expiresAt) {
				delete(s.counters, k)
			}
		}
	}

	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &counter{}
		s.counters[key] = c
	}

	c.count++
	c.expiresAt = now.Add(window)

	return c.count, nil
}
