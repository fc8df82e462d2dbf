package db

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fatflowers/paysettle/internal/models"
	cfgpkg "github.com/fatflowers/paysettle/pkg/config"
	gormzap "github.com/fatflowers/paysettle/pkg/gormlog"
)

func NewDB(l *zap.SugaredLogger, cfg *cfgpkg.Config) (*gorm.DB, error) {
	if cfg.Database.DSN == "" {
		l.Error("database DSN is empty")
		return nil, gorm.ErrInvalidDB
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger:  gormzap.New(l, cfg.IsDev()),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		l.Errorf("failed to connect database: %v", err)
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Every settlement holds one connection for its transaction; max_open_conns
	// bounds concurrent settlements plus the async journal writes.
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	l.Infow("connected to postgres", "max_open_conns", cfg.Database.MaxOpenConns)
	return db, nil
}

var Module = fx.Options(
	fx.Provide(NewDB),
	fx.Invoke(AutoMigrate),
	fx.Invoke(registerDBClose),
)

// AutoMigrate runs GORM migrations on startup unless database.auto_migrate is off.
func AutoMigrate(l *zap.SugaredLogger, cfg *cfgpkg.Config, db *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		l.Infow("automigrate disabled")
		return nil
	}
	if err := db.AutoMigrate(
		&models.Plan{},
		&models.User{},
		&models.Subscription{},
		&models.SubscriptionHistory{},
		&models.Payment{},
		&models.AuditLog{},
		&models.PaymentNotificationLog{},
		&models.UnmatchedPayment{},
	); err != nil {
		l.Errorf("automigrate failed: %v", err)
		return err
	}
	l.Infow("automigrate completed")
	return nil
}

// registerDBClose ensures the underlying *sql.DB is closed on shutdown
func registerDBClose(lc fx.Lifecycle, l *zap.SugaredLogger, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				l.Warnw("gorm: get sql.DB failed", "err", err)
				return nil
			}
			l.Infow("closing postgres connection pool")
			return sqlDB.Close()
		},
	})
}
