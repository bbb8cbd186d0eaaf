package lease

import (
	"context"
	"sync"
	"time"
)

type memoryLease struct {
	token   string
	expires time.Time
}

// MemoryStore is an in-process lease store for tests and single-node runs.
// Expired leases are treated as absent on every access.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leases: make(map[string]memoryLease), now: time.Now}
}

// Acquire takes the lease unless a live one exists.
func (s *MemoryStore) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.leases[key]; ok && existing.expires.After(s.now()) {
		return false, nil
	}
	s.leases[key] = memoryLease{token: token, expires: s.now().Add(ttl)}
	return true, nil
}

// Get returns the live owner token, if any.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.leases[key]
	if !ok || !existing.expires.After(s.now()) {
		return "", false, nil
	}
	return existing.token, true, nil
}

// Release deletes the lease when token matches the live owner value.
func (s *MemoryStore) Release(_ context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.leases[key]
	if !ok || !existing.expires.After(s.now()) || existing.token != token {
		return false, nil
	}
	delete(s.leases, key)
	return true, nil
}
