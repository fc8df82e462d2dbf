package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memoryItem
	now  func() time.Time
}

type memoryItem struct {
	val       []byte
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]memoryItem{}, now: time.Now}
}

// SetClock overrides the expiry clock.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		return nil, false, nil
	}
	return slices.Clone(item.val), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := memoryItem{val: slices.Clone(val)}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = item
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
