package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loyalty-hub/internal/api"
	"loyalty-hub/internal/api/middleware"
	v1 "loyalty-hub/internal/api/v1"
	"loyalty-hub/internal/config"
	"loyalty-hub/internal/event"
	"loyalty-hub/internal/notify"
	"loyalty-hub/internal/ratelimit"
	"loyalty-hub/internal/repository/postgres"
	"loyalty-hub/internal/scheduler"
	"loyalty-hub/internal/service"
	jwtutil "loyalty-hub/pkg/jwt"
	systemlog "loyalty-hub/pkg/logger"
)

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, err := config.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	anomalies := systemlog.NewAnomalyLog(0)
	logger := anomalies.Tee(baseLogger)
	defer logger.Sync() //nolint:errcheck

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	publicKey, err := jwtutil.ParsePublicKey(cfg.Security.JWTPublicKey)
	if err != nil {
		return fmt.Errorf("load jwt public key: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := newDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbPool.Close()

	uow := postgres.NewUnitOfWork(dbPool)
	eventBus := event.NewBus()

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()
	notify.NewForwarder(publisher, cfg.RabbitMQ.Exchange, logger).Attach(eventBus)

	redeemLimiter, closeLimiter := newRedeemLimiter(ctx, cfg, logger)
	defer closeLimiter()

	codes := service.NewCodeGenerator(cfg.Redemption.MaxCodeAttempts, logger)
	ledgerSvc := service.NewLedgerService(uow, logger)
	redemptionSvc := service.NewRedemptionService(uow, codes, eventBus, logger)
	visitSvc := service.NewVisitService(uow, redemptionSvc, eventBus, logger)
	reportSvc := service.NewReportService(uow, logger)

	tierJob := scheduler.NewTierJob(reportSvc, logger)
	cronRunner := scheduler.NewScheduler(scheduler.Deps{
		TierJob:         tierJob,
		TierRefreshSpec: cfg.Scheduler.TierRefreshSpec,
	}, logger)
	cronRunner.Start()
	defer func() {
		stopCtx := cronRunner.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(2 * time.Second):
		}
	}()
	go tierJob.Refresh()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(buildCORSMiddleware(cfg))
	router.Use(middleware.RequestLogger(logger))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	readyHandler := func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), cfg.Database.PingTimeout)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  "database unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}

	router.GET("/health", healthHandler)
	router.GET("/health/ready", readyHandler)

	api.RegisterInternalRoutes(router, cfg.Security.InternalToken, anomalies, logger)
	api.RegisterV1Routes(router, publicKey, api.Services{
		Visits:      visitSvc,
		Redemptions: redemptionSvc,
		Ledger:      ledgerSvc,
		Tiers:       reportSvc,
	}, v1.RedeemLimit{
		Limiter:   redeemLimiter,
		PerMinute: cfg.RateLimit.RedeemPerMinute,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("server started",
			zap.String("addr", srv.Addr),
			zap.String("version", Version),
			zap.String("commit", Commit),
			zap.String("build_time", BuildTime),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exited unexpectedly: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown server failed", zap.Error(err))
			return err
		}
		return nil
	})

	err = group.Wait()
	logger.Info("server stopped")
	return err
}

func newDBPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database.url failed: %w", err)
	}

	const maxInt32 = int(^uint32(0) >> 1)
	if cfg.Database.MaxConns > maxInt32 {
		return nil, fmt.Errorf("database.max_conns must be <= %d", maxInt32)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns) // #nosec G115 -- validated upper bound above.

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	return pool, nil
}

// newPublisher falls back to a no-op publisher so a broker outage never
// blocks the ledger.
func newPublisher(cfg config.Config, logger *zap.Logger) notify.Publisher {
	if strings.TrimSpace(cfg.RabbitMQ.URL) == "" {
		logger.Info("rabbitmq disabled, events stay in process")
		return notify.NopPublisher{}
	}

	publisher, err := notify.NewAMQPPublisher(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("connect rabbitmq failed, events stay in process", zap.Error(err))
		return notify.NopPublisher{}
	}
	return publisher
}

// newRedeemLimiter returns a nil interface when redis is not configured so
// the middleware skips limiting. The returned func closes the redis client.
func newRedeemLimiter(ctx context.Context, cfg config.Config, logger *zap.Logger) (middleware.Limiter, func()) {
	noop := func() {}
	if strings.TrimSpace(cfg.Redis.URL) == "" {
		logger.Info("redis disabled, redemption rate limit off")
		return nil, noop
	}

	client, err := ratelimit.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Warn("connect redis failed, redemption rate limit off", zap.Error(err))
		return nil, noop
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis client failed", zap.Error(err))
		}
	}
	return ratelimit.NewRedisLimiter(client, cfg.Redis.Prefix), closeClient
}

func buildCORSMiddleware(cfg config.Config) gin.HandlerFunc {
	origins := make([]string, 0, len(cfg.CORS.AllowOrigins))
	for _, origin := range cfg.CORS.AllowOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Type", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

