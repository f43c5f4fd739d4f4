package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/risk-alert-engine/internal/config"
	"github.com/kursadbilgin/risk-alert-engine/internal/handler"
	"github.com/kursadbilgin/risk-alert-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/risk-alert-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/risk-alert-engine/internal/infra/redis"
	"github.com/kursadbilgin/risk-alert-engine/internal/lock"
	"github.com/kursadbilgin/risk-alert-engine/internal/observability"
	"github.com/kursadbilgin/risk-alert-engine/internal/repository"
	"github.com/kursadbilgin/risk-alert-engine/internal/service"
	"github.com/kursadbilgin/risk-alert-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("risk-alert-engine stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
	})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	notificationRepo := repository.NewGormNotificationRepo(db)
	academicRepo := repository.NewGormAcademicRepo(db)
	directoryRepo := repository.NewGormDirectoryRepo(db)

	reader, err := service.NewRiskReader(academicRepo, logger)
	if err != nil {
		return err
	}
	writer, err := service.NewAlertWriter(notificationRepo, metrics, logger)
	if err != nil {
		return err
	}
	engine, err := service.NewAlertEngine(reader, directoryRepo, writer, cfg.Rules(), logger)
	if err != nil {
		return err
	}
	lifecycle, err := service.NewLifecycleService(notificationRepo, cfg.StatsWindowDays, logger)
	if err != nil {
		return err
	}
	sweeper, err := service.NewRetentionSweeper(notificationRepo, cfg.Rules().Retention, metrics, logger)
	if err != nil {
		return err
	}

	location, err := cfg.Location()
	if err != nil {
		return err
	}

	var locker lock.Locker = lock.Noop{}
	if cfg.JobLockEnabled {
		jobLock, err := infraredis.NewJobLock(rdb, cfg.JobLockTTL)
		if err != nil {
			return fmt.Errorf("job lock initialization failed: %w", err)
		}
		locker = jobLock
	}

	registry, err := service.NewJobRegistry(location, locker, metrics, logger)
	if err != nil {
		return err
	}
	jobs := service.DefaultJobs(engine, sweeper, lifecycle, service.JobSpecs{
		LowAttendance: cfg.AttendanceCron,
		AtRisk:        cfg.AtRiskCron,
		Retention:     cfg.RetentionCron,
		DeliveryStats: cfg.StatsCron,
	}, logger)
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return fmt.Errorf("register job %s: %w", job.Name, err)
		}
	}
	if cfg.SchedulerEnabled {
		if err := registry.StartAll(); err != nil {
			return err
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "risk-alert-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, handler.PostgresCheck(sqlDB), handler.RedisCheck(rdb))
	if err := handler.RegisterNotificationRoutes(app, lifecycle); err != nil {
		return err
	}
	if err := handler.RegisterAdminRoutes(app, engine, sweeper, lifecycle, registry); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("risk-alert-engine api started",
			zap.Int("port", cfg.APIPort),
			zap.Bool("scheduler_enabled", cfg.SchedulerEnabled),
			zap.Bool("job_lock_enabled", cfg.JobLockEnabled),
		)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(groupCtx)
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
		return app.ShutdownWithTimeout(cfg.ShutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("risk-alert-engine stopped")
	return nil
}
