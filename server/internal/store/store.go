package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is a stored value together with its expiry.
type Entry struct {
	Value     string
	ExpiresAt time.Time
}

// Store is a thread-safe in-memory store with a fixed TTL. A background
// goroutine (Run) periodically evicts expired entries.
type Store struct {
	mu   sync.Mutex
	data map[string]Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store whose entries live for ttl.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the lifetime of new entries.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Put stores value under key, replacing any previous entry and restarting its TTL.
func (s *Store) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Entry{
		Value:     value,
		ExpiresAt: s.now().Add(s.ttl),
	}
}

// Take removes key and returns its value. It reports false when the key is
// missing or expired; an expired entry is removed as well.
func (s *Store) Take(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		return "", false
	}
	delete(s.data, key)
	if !s.now().Before(e.ExpiresAt) {
		return "", false
	}
	return e.Value, true
}

// Count returns the number of entries currently held, including expired ones
// not yet evicted.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Evict removes entries that have expired at now and returns how many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.data {
		if !now.Before(e.ExpiresAt) {
			delete(s.data, k)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL (minimum
// one second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted expired entries", "count", n)
			}
		}
	}
}
