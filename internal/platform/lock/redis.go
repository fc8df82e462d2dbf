package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/fatflowers/paysettle/pkg/tool"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token, so an
// expired lease never removes a newer holder's lock.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client   goredis.UniversalClient
	prefix   string
	leaseTTL time.Duration
	interval time.Duration
}

func NewRedisLocker(client goredis.UniversalClient, prefix string, leaseTTL, interval time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, leaseTTL: leaseTTL, interval: interval}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (Lease, bool, error) {
	full := l.prefix + "lock:" + key
	token := tool.GenerateToken()
	return poll(ctx, Resource(key), timeout, l.interval, func(ctx context.Context) (Lease, bool, error) {
		ok, err := l.client.SetNX(ctx, full, token, l.leaseTTL).Result()
		if err != nil {
			return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if !ok {
			return nil, false, nil
		}
		return &redisLease{client: l.client, key: key, full: full, token: token}, true, nil
	})
}

type redisLease struct {
	client goredis.UniversalClient
	key    string
	full   string
	token  string
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.full}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
