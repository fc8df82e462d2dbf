// Package cache is the key-value store behind the idempotency guard and the
// checkout reference hints.
package cache

import (
	"context"
	"time"
)

type Store interface {
	// Get reports found=false, with a nil error, for a missing or expired key.
	Get(ctx context.Context, key string) (val []byte, found bool, err error)
	// Set stores val for ttl. A zero ttl keeps the key until it is deleted.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
