package sigstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a simple, goroutine-safe Store backed by maps.
// It is non-durable and intended for tests and single-process runs.
type MemoryStore struct {
	mu    sync.Mutex
	sigs  map[string][]byte
	locks map[string]lease
}

type lease struct {
	owner   string
	expires time.Time
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sigs:  make(map[string][]byte),
		locks: make(map[string]lease),
	}
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.sigs[key]
	if !ok {
		return nil, ErrNotFound
	}
	// Copy so callers cannot mutate the stored record.
	out := make([]byte, len(sig))
	copy(out, sig)
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, sig []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(sig))
	copy(stored, sig)
	s.sigs[key] = stored
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.sigs))
	for k := range s.sigs {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *MemoryStore) Remove(ctx context.Context, keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, k := range keys {
		if _, ok := s.sigs[k]; ok {
			delete(s.sigs, k)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sigs = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) TryAcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if ok && l.owner != owner && time.Now().Before(l.expires) {
		return false, nil
	}

	s.locks[key] = lease{owner: owner, expires: time.Now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) RenewLock(ctx context.Context, key, owner string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok || l.owner != owner {
		return fmt.Errorf("lock for %s is not held by %s", key, owner)
	}

	s.locks[key] = lease{owner: owner, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) ReleaseLock(ctx context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[key]; ok && l.owner == owner {
		delete(s.locks, key)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
