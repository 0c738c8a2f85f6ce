package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	pgRepo "postbridge/internal/infra/adapter/persistence/postgres"
	"postbridge/internal/infra/db"
	"postbridge/internal/infra/platform"
	workerPkg "postbridge/internal/infra/worker"
	"postbridge/internal/observability/logging"
	"postbridge/internal/usecase/delivery"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database := initDatabase(ctx, logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// Worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("sweep_schedule", workerConfig.SweepSchedule),
		slog.String("monitor_schedule", workerConfig.MonitorSchedule),
		slog.String("janitor_schedule", workerConfig.JanitorSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("queue_depth", workerConfig.QueueDepth),
		slog.Int("queue_workers", workerConfig.QueueWorkers),
		slog.Int("health_port", workerConfig.HealthPort))

	platformConfig := loadPlatformConfig(logger)
	platformClient := platform.NewHTTPClient(platformConfig)
	if platformConfig.Active() {
		logger.Info("platform integration enabled",
			slog.String("base_url", platformConfig.BaseURL))
	} else {
		logger.Warn("platform integration disabled; deliveries will be skipped")
	}

	deliveryRepo := pgRepo.NewDeliveryRepo(database)
	postRepo := pgRepo.NewPostRepo(database)

	worker := delivery.NewWorker(
		deliveryRepo,
		postRepo,
		platformClient,
		platformConfig,
		delivery.NewBackoff(),
		delivery.WorkerConfig{SubmitTimeout: workerConfig.SubmitTimeout},
	)

	scheduler := delivery.NewInProcessScheduler(delivery.QueueConfig{
		Depth:   workerConfig.QueueDepth,
		Workers: workerConfig.QueueWorkers,
	}, worker)
	scheduler.Start()
	logger.Info("delivery queue started",
		slog.Int("depth", workerConfig.QueueDepth),
		slog.Int("workers", workerConfig.QueueWorkers))

	sweeper := delivery.NewSweeper(deliveryRepo, scheduler, delivery.SweeperConfig{})
	monitor := delivery.NewMonitor(deliveryRepo, delivery.MonitorConfig{
		AlertThreshold: workerConfig.AlertThreshold(),
	})
	janitor := delivery.NewJanitor(deliveryRepo, delivery.JanitorConfig{
		SuccessRetention: workerConfig.SuccessRetention,
		FailedRetention:  workerConfig.FailedRetention,
	})

	// Metrics HTTP server
	startMetricsServer(ctx, logger)

	// Health check server, with the monitor feeding /health/delivery
	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger, monitor)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	cronRunner := startCronJobs(logger, workerConfig, workerMetrics, sweeper, monitor, janitor)
	healthServer.SetReady(true)
	logger.Info("worker started")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	cronCtx := cronRunner.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Error("delivery queue shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("delivery queue drained")
	}
}

// initDatabase opens the connection pool and applies the idempotent schema
// migrations.
func initDatabase(ctx context.Context, logger *slog.Logger) *sql.DB {
	database, err := db.Open(ctx)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// loadPlatformConfig reads the platform integration config from a YAML file
// when PLATFORM_CONFIG_FILE is set, otherwise from environment variables.
// Configuration failures disable the integration instead of aborting startup.
func loadPlatformConfig(logger *slog.Logger) *platform.Config {
	var (
		cfg *platform.Config
		err error
	)
	if path := os.Getenv("PLATFORM_CONFIG_FILE"); path != "" {
		cfg, err = platform.LoadConfig(path)
	} else {
		cfg, err = platform.LoadConfigFromEnv()
	}
	if err != nil {
		logger.Warn("platform configuration invalid, integration disabled",
			slog.Any("error", err))
		return &platform.Config{}
	}
	return cfg
}

// startCronJobs registers the sweep, monitor and janitor jobs and starts the
// cron runner in the configured timezone.
func startCronJobs(
	logger *slog.Logger,
	cfg *workerPkg.WorkerConfig,
	metrics *workerPkg.WorkerMetrics,
	sweeper *delivery.Sweeper,
	monitor *delivery.Monitor,
	janitor *delivery.Janitor,
) *cron.Cron {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC",
			slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	addJob(logger, c, cfg.SweepSchedule, workerPkg.JobSweep, metrics, func(ctx context.Context) error {
		report, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Info("sweep completed",
			slog.Int("checked", report.Checked),
			slog.Int("retried", report.Retried))
		return nil
	})

	addJob(logger, c, cfg.MonitorSchedule, workerPkg.JobMonitor, metrics, func(ctx context.Context) error {
		report, err := monitor.Report(ctx)
		if err != nil {
			return err
		}
		logger.Info("health report generated",
			slog.Int64("retry_queue_total", report.RetryTotal),
			slog.Int64("retry_queue_due", report.RetryDue),
			slog.Bool("alert", report.Alert))
		return nil
	})

	addJob(logger, c, cfg.JanitorSchedule, workerPkg.JobJanitor, metrics, func(ctx context.Context) error {
		report, err := janitor.Purge(ctx)
		if err != nil {
			return err
		}
		logger.Info("retention purge completed",
			slog.Int64("success_purged", report.SuccessPurged),
			slog.Int64("failed_purged", report.FailedPurged))
		return nil
	})

	c.Start()
	logger.Info("cron jobs scheduled",
		slog.String("sweep", cfg.SweepSchedule),
		slog.String("monitor", cfg.MonitorSchedule),
		slog.String("janitor", cfg.JanitorSchedule),
		slog.String("timezone", cfg.Timezone))
	return c
}

// addJob registers one cron job wrapped with run metrics and a bounded
// execution timeout.
func addJob(
	logger *slog.Logger,
	c *cron.Cron,
	schedule, name string,
	metrics *workerPkg.WorkerMetrics,
	run func(context.Context) error,
) {
	_, err := c.AddFunc(schedule, func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := run(ctx); err != nil {
			logger.Error("cron job failed",
				slog.String("job", name), slog.Any("error", err))
			metrics.RecordJobRun(name, "failure")
			metrics.RecordJobDuration(name, time.Since(start).Seconds())
			return
		}
		metrics.RecordJobRun(name, "success")
		metrics.RecordJobDuration(name, time.Since(start).Seconds())
		metrics.RecordLastSuccess(name)
	})
	if err != nil {
		logger.Error("failed to add cron job",
			slog.String("job", name), slog.Any("error", err))
		os.Exit(1)
	}
}
