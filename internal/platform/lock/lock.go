// Package lock provides lease based mutual exclusion keyed by resource name.
// A lease expires on its own if the holder dies, so Release is best effort
// from the caller's point of view but still reports a lost lease.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/fatflowers/paysettle/pkg/metrics"
)

var ErrNotHeld = errors.New("lock: lease not held")

type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire waits up to timeout for key. It returns ok=false, with a nil
	// error, when the timeout elapses first.
	Acquire(ctx context.Context, key string, timeout time.Duration) (Lease, bool, error)
}

type tryFunc func(ctx context.Context) (Lease, bool, error)

// poll retries try every interval until it succeeds, fails, or the timeout
// passes. The outcome is recorded against resource in the lock wait metric.
func poll(ctx context.Context, resource string, timeout, interval time.Duration, try tryFunc) (Lease, bool, error) {
	start := time.Now()
	deadline := start.Add(timeout)
	for {
		lease, ok, err := try(ctx)
		if err != nil {
			return nil, false, err
		}
		if ok {
			metrics.ObserveLockWait(resource, true, start)
			return lease, true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			metrics.ObserveLockWait(resource, false, start)
			return nil, false, nil
		}
		wait := min(interval, remaining)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false, ctx.Err()
		case <-timer.C:
		}
	}
}

// Resource strips the id from a key such as subscription:activate:<id> so
// metrics stay low cardinality.
func Resource(key string) string {
	n := 0
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			n++
			if n == 2 {
				return key[:i]
			}
		}
	}
	return key
}
