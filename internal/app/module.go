package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/paysettle/internal/app/api/server"
	"github.com/fatflowers/paysettle/internal/app/service/activation"
	"github.com/fatflowers/paysettle/internal/app/service/audit"
	"github.com/fatflowers/paysettle/internal/app/service/cancellation"
	"github.com/fatflowers/paysettle/internal/app/service/correlation"
	notificationhandler "github.com/fatflowers/paysettle/internal/app/service/notification_handler"
	"github.com/fatflowers/paysettle/internal/app/service/reconcile"
	"github.com/fatflowers/paysettle/internal/app/service/settlement"
	"github.com/fatflowers/paysettle/internal/app/service/statistics"
	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/platform/cache"
	"github.com/fatflowers/paysettle/internal/platform/db"
	"github.com/fatflowers/paysettle/internal/platform/idempotency"
	"github.com/fatflowers/paysettle/internal/platform/lock"
	"github.com/fatflowers/paysettle/internal/platform/processor"
	"github.com/fatflowers/paysettle/internal/platform/redis"
	"github.com/fatflowers/paysettle/pkg/config"
	"github.com/fatflowers/paysettle/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// Core is everything except the HTTP server, shared by the API and the ops CLI.
var Core = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	redis.Module,
	lock.Module,
	cache.Module,
	idempotency.Module,
	processor.Module,
	store.Module,
	audit.Module,
	correlation.Module,
	activation.Module,
	cancellation.Module,
	settlement.Module,
	statistics.Module,
	reconcile.Module,
	notificationhandler.Module,
)

var Module = fx.Options(
	Core,
	server.Module,
)
