package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/like-notify-job/internal/config"
	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"github.com/kursadbilgin/like-notify-job/internal/handler"
	"github.com/kursadbilgin/like-notify-job/internal/infra/postgresql"
	"github.com/kursadbilgin/like-notify-job/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/like-notify-job/internal/infra/redis"
	"github.com/kursadbilgin/like-notify-job/internal/likesync"
	"github.com/kursadbilgin/like-notify-job/internal/observability"
	"github.com/kursadbilgin/like-notify-job/internal/provider"
	"github.com/kursadbilgin/like-notify-job/internal/queue"
	"github.com/kursadbilgin/like-notify-job/internal/ratelimit"
	"github.com/kursadbilgin/like-notify-job/internal/repository"
	"github.com/kursadbilgin/like-notify-job/internal/service"
	"github.com/kursadbilgin/like-notify-job/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const httpShutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, cfg.WorkerConcurrency)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	relations := repository.NewGormRelationRepo(db)
	runs := repository.NewGormRunRepo(db)
	owners, err := infraredis.NewCachedOwnerResolver(rdb, repository.NewGormOwnerResolver(db), cfg.OwnerCacheTTL(), logger)
	if err != nil {
		logger.Fatal("owner resolver initialization failed", zap.Error(err))
	}

	var limiter ratelimit.RateLimiter
	if cfg.RateLimitPerSec > 0 {
		limiter, err = infraredis.NewDeliveryRateLimiter(rdb, cfg.RateLimitPerSec, logger)
		if err != nil {
			logger.Fatal("rate limiter initialization failed", zap.Error(err))
		}
	}

	sender, closeSender, err := newSender(cfg)
	if err != nil {
		logger.Fatal("notification sender initialization failed", zap.Error(err))
	}
	defer closeSender()

	guard := likesync.NewMemoryGuard(cfg.MemoryHighWatermark(), cfg.MemoryHardLimit(), logger)
	guard.SetMetrics(metrics)

	fetcher, err := likesync.NewPageFetcher(relations, domain.RelationTypeUserLikeContent, cfg.FetchRetryDelay(), logger)
	if err != nil {
		logger.Fatal("page fetcher initialization failed", zap.Error(err))
	}
	builder, err := likesync.NewNotificationBuilder(owners, guard, logger)
	if err != nil {
		logger.Fatal("notification builder initialization failed", zap.Error(err))
	}
	dispatcher, err := likesync.NewNotificationDispatcher(sender, limiter, guard, logger)
	if err != nil {
		logger.Fatal("notification dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	coordinator, err := likesync.NewCoordinator(fetcher, builder, dispatcher, guard, cfg.WorkerConcurrency, cfg.RunDeadline(), logger)
	if err != nil {
		logger.Fatal("coordinator initialization failed", zap.Error(err))
	}
	coordinator.SetMetrics(metrics)

	manager, err := likesync.NewManager(relations, runs, coordinator, likesync.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown()), logger)
	if err != nil {
		logger.Fatal("run manager initialization failed", zap.Error(err))
	}
	manager.SetMetrics(metrics)
	manager.SetGracePeriods(cfg.ShutdownGrace(), cfg.PoolGrace())

	jobService, err := service.NewJobService(manager, runs, version, logger)
	if err != nil {
		logger.Fatal("job service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app,
		handler.ReadinessCheck{Name: "postgres", Check: sqlDB.PingContext},
		handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
	if err := handler.RegisterJobRoutes(app, jobService, logger); err != nil {
		logger.Fatal("job routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	at, scheduled, err := cfg.DailySchedule()
	if err != nil {
		logger.Fatal("invalid schedule", zap.Error(err))
	}
	if scheduled {
		scheduler, err := service.NewScheduler(manager, at, time.Local, logger)
		if err != nil {
			logger.Fatal("scheduler initialization failed", zap.Error(err))
		}
		g.Go(func() error {
			return scheduler.Start(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("like-notify-job started",
			zap.Int("port", cfg.APIPort),
			zap.String("version", version),
			zap.String("transport", cfg.NotifyTransport),
			zap.Bool("scheduled", scheduled),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace()+cfg.PoolGrace()+time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("sync run did not finish before shutdown", zap.Error(err))
		}

		return app.ShutdownWithTimeout(httpShutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("like-notify-job stopped with error", zap.Error(err))
		return
	}
	logger.Info("like-notify-job stopped")
}

func newSender(cfg *config.Config) (provider.Sender, func(), error) {
	switch cfg.NotifyTransport {
	case config.NotifyTransportRabbitMQ:
		client, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return nil, nil, err
		}
		publisher := queue.NewRabbitMQPublisher(client)
		sender, err := queue.NewQueueSender(publisher)
		if err != nil {
			_ = publisher.Close()
			return nil, nil, err
		}
		return sender, func() { _ = publisher.Close() }, nil
	default:
		sender, err := provider.NewHTTPSender(cfg.NotifyServiceURL)
		if err != nil {
			return nil, nil, err
		}
		return sender, func() {}, nil
	}
}
