package main

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/carehub/ledger/internal/config"
	"github.com/carehub/ledger/internal/domain/bloodbank"
	"github.com/carehub/ledger/internal/domain/credentials"
	"github.com/carehub/ledger/internal/domain/facility"
	"github.com/carehub/ledger/internal/domain/orders"
	"github.com/carehub/ledger/internal/domain/support"
	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/internal/platform/db"
	"github.com/carehub/ledger/internal/platform/metrics"
	"github.com/carehub/ledger/internal/platform/middleware"
	"github.com/carehub/ledger/internal/platform/remote"
)

type stopper interface {
	Collections() []ledger.Refreshable
	Stop()
}

// app is the assembled service: the HTTP surface plus the background
// pieces that must be stopped with it.
type app struct {
	echo     *echo.Echo
	audit    *ledger.AuditQueue
	services []stopper
	logger   zerolog.Logger
}

func newApp(cfg *config.Config, store remote.Store, health db.Pinger, reg *prometheus.Registry, logger zerolog.Logger) *app {
	m := metrics.NewLedger(reg)

	audit := ledger.NewAuditQueue(cfg.AuditQueueSize, cfg.AuditTimeout, logger.With().Str("component", "audit").Logger(), m)
	audit.Start()
	updater := ledger.NewUpdater(store, audit, logger.With().Str("component", "updater").Logger(), m)
	opts := ledger.CollectionOptions{
		Delay:   cfg.RefreshDelay,
		Timeout: cfg.RemoteCallTimeout,
		MaxAge:  cfg.ListMaxAge,
		Logger:  logger.With().Str("component", "reconcile").Logger(),
		Metrics: m,
	}

	orderSvc := orders.NewService(orders.NewRepository(store), updater, opts)
	facilitySvc := facility.NewService(facility.NewRepository(store), updater, opts)
	bloodSvc := bloodbank.NewService(bloodbank.NewRepository(store), updater, opts)
	supportSvc := support.NewService(support.NewRepository(store), updater, opts)
	orch := credentials.NewOrchestrator(credentials.NewRepository(store), updater, logger.With().Str("component", "credentials").Logger(), opts)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", db.HealthHandler(health, cfg.RemoteCallTimeout))
	e.GET("/metrics", metrics.Handler(reg))

	admin := e.Group("/api/v1/admin")
	if cfg.IsDev() {
		admin.Use(auth.DevAuthMiddleware())
	} else {
		admin.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthJWTSecret),
		}))
	}
	admin.Use(auth.RequireRole(auth.RoleAdmin))
	admin.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	orders.NewHandler(orderSvc).RegisterRoutes(admin)
	facility.NewHandler(facilitySvc).RegisterRoutes(admin)
	bloodbank.NewHandler(bloodSvc).RegisterRoutes(admin)
	support.NewHandler(supportSvc).RegisterRoutes(admin)
	credentials.NewHandler(orch).RegisterRoutes(admin)

	return &app{
		echo:     e,
		audit:    audit,
		services: []stopper{orderSvc, facilitySvc, bloodSvc, supportSvc, orch},
		logger:   logger,
	}
}

func (a *app) collections() []ledger.Refreshable {
	var cols []ledger.Refreshable
	for _, s := range a.services {
		cols = append(cols, s.Collections()...)
	}
	return cols
}

// sweep re-reads every reconciled collection on schedule so that state
// changed by other writers surfaces without an admin action.
func (a *app) sweep(schedule string, timeout time.Duration) (*cron.Cron, error) {
	c := cron.New()
	cols := a.collections()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := ledger.Sweep(ctx, a.logger, cols...); err != nil {
			a.logger.Warn().Err(err).Msg("reconciliation sweep incomplete")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// close stops pending refresh timers and drains queued audit writes.
func (a *app) close() {
	for _, s := range a.services {
		s.Stop()
	}
	a.audit.Close()
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
