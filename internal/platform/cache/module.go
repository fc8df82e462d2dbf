package cache

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/paysettle/pkg/config"
)

func New(l *zap.SugaredLogger, cfg *cfgpkg.Config, client *goredis.Client) (Store, error) {
	switch cfg.Cache.Driver {
	case cfgpkg.DriverRedis:
		if client == nil {
			return nil, fmt.Errorf("cache driver redis requires a redis client")
		}
		return NewRedisStore(client, cfg.Cache.KeyPrefix), nil
	case cfgpkg.DriverMemory:
		l.Warnw("using in-memory cache, idempotency records are per process")
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
}

var Module = fx.Options(
	fx.Provide(New),
)
