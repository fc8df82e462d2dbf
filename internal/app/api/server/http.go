package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/paysettle/docs"
	"github.com/fatflowers/paysettle/internal/app/api/handlers"
	mw "github.com/fatflowers/paysettle/internal/app/api/middleware"
	"github.com/fatflowers/paysettle/internal/app/service/cancellation"
	"github.com/fatflowers/paysettle/internal/app/service/correlation"
	nh "github.com/fatflowers/paysettle/internal/app/service/notification_handler"
	"github.com/fatflowers/paysettle/internal/app/service/settlement"
	"github.com/fatflowers/paysettle/internal/app/service/statistics"
	cfgpkg "github.com/fatflowers/paysettle/pkg/config"
	"github.com/fatflowers/paysettle/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	lc fx.Lifecycle,
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	notifHandler *nh.NotificationHandler,
	settle *settlement.Service,
	cancel *cancellation.Service,
	matcher *correlation.Matcher,
	stats *statistics.Service,
) {
	// Business metrics are registered with the HTTP ones. /metrics moves to
	// MetricsAddr when set.
	p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
		MetricsList: metrics.BusinessMetrics,
		ReqCntURLLabelMappingFn: func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return c.Request.URL.Path
		},
		Logger: log,
	})
	if cfg.MetricsAddr != "" {
		p.SetListenAddress(cfg.MetricsAddr)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				p.Start()
				log.Infow("metrics started", "addr", cfg.MetricsAddr)
				return nil
			},
			OnStop: p.Shutdown,
		})
	}
	p.Use(r)

	withLogs := []gin.HandlerFunc{mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log)}

	pub := r.Group("/", withLogs...)
	handlers.RegisterHealthRoutes(pub)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Admin APIs; authentication is enforced by the ingress in front of /api/v1/admin.
	apiV1 := r.Group("/api/v1", withLogs...)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), settle, stats)

	apiV2 := r.Group("/api/v2", withLogs...)
	handlers.RegisterPaymentRoutes(apiV2.Group("/payment"), notifHandler)
	handlers.RegisterSubscriptionRoutes(apiV2.Group("/subscription"), cancel)
	handlers.RegisterCheckoutRoutes(apiV2.Group("/checkout"), matcher)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine, shutdowner fx.Shutdowner) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
