package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/paysettle/pkg/config"
)

// NewClient returns nil when neither the lock nor the cache uses redis.
func NewClient(lc fx.Lifecycle, l *zap.SugaredLogger, cfg *cfgpkg.Config) (*goredis.Client, error) {
	if cfg.Lock.Driver != cfgpkg.DriverRedis && cfg.Cache.Driver != cfgpkg.DriverRedis {
		l.Infow("redis disabled, lock and cache run in memory")
		return nil, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
			}
			l.Infow("connected to redis", "addr", cfg.Redis.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Infow("closing redis client")
			return client.Close()
		},
	})
	return client, nil
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
