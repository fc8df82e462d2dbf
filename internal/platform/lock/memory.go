package lock

import (
	"context"
	"sync"
	"time"

	"github.com/fatflowers/paysettle/pkg/tool"
)

// MemoryLocker is a single-process Locker with the same lease semantics as
// RedisLocker. It backs tests and local runs.
type MemoryLocker struct {
	mu       sync.Mutex
	held     map[string]memoryEntry
	leaseTTL time.Duration
	interval time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryLocker(leaseTTL, interval time.Duration) *MemoryLocker {
	return &MemoryLocker{
		held:     map[string]memoryEntry{},
		leaseTTL: leaseTTL,
		interval: interval,
		now:      time.Now,
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (Lease, bool, error) {
	token := tool.GenerateToken()
	return poll(ctx, Resource(key), timeout, l.interval, func(ctx context.Context) (Lease, bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		now := l.now()
		if e, ok := l.held[key]; ok && now.Before(e.expiresAt) {
			return nil, false, nil
		}
		l.held[key] = memoryEntry{token: token, expiresAt: now.Add(l.leaseTTL)}
		return &memoryLease{owner: l, key: key, token: token}, true, nil
	})
}

type memoryLease struct {
	owner *MemoryLocker
	key   string
	token string
}

func (l *memoryLease) Key() string { return l.key }

func (l *memoryLease) Release(ctx context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	e, ok := l.owner.held[l.key]
	if !ok || e.token != l.token || !l.owner.now().Before(e.expiresAt) {
		return ErrNotHeld
	}
	delete(l.owner.held, l.key)
	return nil
}
