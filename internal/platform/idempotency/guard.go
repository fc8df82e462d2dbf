// Package idempotency caches the result of an operation under a
// deterministic key so a retried call replays it instead of re-executing.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/paysettle/internal/platform/cache"
	"github.com/fatflowers/paysettle/pkg/logctx"
)

var ErrEmptyKey = errors.New("idempotency: empty key")

const keyPrefix = "idem:"

type Guard struct {
	cache cache.Store
	log   *zap.SugaredLogger
}

func NewGuard(c cache.Store, log *zap.SugaredLogger) *Guard {
	return &Guard{cache: c, log: log}
}

// Execute runs fn once per key within ttl. A cached value is decoded and
// returned with replayed=true. keep decides whether a fresh result is worth
// caching; nil keeps every result. Errors from fn are never cached.
//
// A failed cache read is returned as an error because running fn without
// knowing whether it already ran could repeat side effects. A failed write
// only loses the replay, so it is logged.
func Execute[T any](ctx context.Context, g *Guard, key string, ttl time.Duration, fn func(ctx context.Context) (T, error), keep func(T) bool) (result T, replayed bool, err error) {
	if strings.TrimSpace(key) == "" {
		return result, false, ErrEmptyKey
	}
	lg := logctx.FromCtx(ctx, g.log)

	raw, found, err := g.cache.Get(ctx, keyPrefix+key)
	if err != nil {
		return result, false, fmt.Errorf("failed to read idempotency record %s: %w", key, err)
	}
	if found {
		var cached T
		decodeErr := json.Unmarshal(raw, &cached)
		if decodeErr == nil {
			lg.Debugw("idempotent replay", "key", key)
			return cached, true, nil
		}
		lg.Warnw("discarding undecodable idempotency record", "key", key, "err", decodeErr)
	}

	result, err = fn(ctx)
	if err != nil {
		return result, false, err
	}
	if keep != nil && !keep(result) {
		return result, false, nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		lg.Warnw("failed to encode idempotency record", "key", key, "err", err)
		return result, false, nil
	}
	if err := g.cache.Set(ctx, keyPrefix+key, payload, ttl); err != nil {
		lg.Warnw("failed to store idempotency record", "key", key, "err", err)
	}
	return result, false, nil
}

var Module = fx.Options(
	fx.Provide(NewGuard),
)
