package lock

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/paysettle/pkg/config"
)

func New(l *zap.SugaredLogger, cfg *cfgpkg.Config, client *goredis.Client) (Locker, error) {
	switch cfg.Lock.Driver {
	case cfgpkg.DriverRedis:
		if client == nil {
			return nil, fmt.Errorf("lock driver redis requires a redis client")
		}
		return NewRedisLocker(client, cfg.Cache.KeyPrefix, cfg.Lock.LeaseTTL, cfg.Lock.RetryInterval), nil
	case cfgpkg.DriverMemory:
		l.Warnw("using in-memory lock, not safe across processes")
		return NewMemoryLocker(cfg.Lock.LeaseTTL, cfg.Lock.RetryInterval), nil
	}
	return nil, fmt.Errorf("unknown lock driver %q", cfg.Lock.Driver)
}

var Module = fx.Options(
	fx.Provide(New),
)
