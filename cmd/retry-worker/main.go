package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/ticket-broker/internal/di"
	"github.com/prohmpiriya/ticket-broker/internal/metrics"
	"github.com/prohmpiriya/ticket-broker/internal/repository"
	"github.com/prohmpiriya/ticket-broker/internal/service"
	"github.com/prohmpiriya/ticket-broker/internal/worker"
	"github.com/prohmpiriya/ticket-broker/pkg/config"
	"github.com/prohmpiriya/ticket-broker/pkg/database"
	"github.com/prohmpiriya/ticket-broker/pkg/logger"
	pkgredis "github.com/prohmpiriya/ticket-broker/pkg/redis"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "retry-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Sale Retry Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics
	if err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "retry-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry init failed: %v", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to initialize metrics: %v", err))
	}

	// Initialize database connection
	dbCfg := di.PostgresConfig(cfg)
	dbCfg.MaxConns = 5
	dbCfg.MinConns = 1
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	if err := repository.EnsureSchema(ctx, db.Pool()); err != nil {
		appLog.Fatal(fmt.Sprintf("Schema migration failed: %v", err))
	}

	// Initialize Redis for the confirmation guard shared with the API
	redisCfg := di.RedisConfig(cfg)
	redisCfg.PoolSize = 5
	redisCfg.MinIdleConns = 1
	redisClient, err := pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")
	guard := repository.NewRedisLockStore(redisClient)
	if err := guard.LoadScripts(ctx); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
	}

	// Initialize the secondary sale channel. Without a broker there is
	// nothing to retry through.
	secondary, err := di.NewSecondary(ctx, cfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Secondary channel %s unavailable: %v", cfg.Sale.SecondaryChannel, err))
	}
	defer secondary.Close()
	if secondary.Publisher.Name() == "none" {
		appLog.Warn("SALE_SECONDARY_CHANNEL=none, every retry will fail until a broker is configured")
	}

	// Sweeps only use the sale store, the guard and the secondary channel
	notifier := service.NewNotificationPipeline(nil, secondary.Publisher, &service.PipelineConfig{
		SecondaryTimeout: cfg.Sale.SecondaryTimeout,
	})
	sales := service.NewSaleService(
		repository.NewPostgresSaleRepository(db.Pool()),
		repository.NewPostgresEventRepository(db.Pool()),
		nil,
		guard,
		nil,
		notifier,
		di.SaleServiceConfig(cfg),
	)

	// Create worker
	retryWorker := worker.NewSaleRetryWorker(sales, &worker.SaleRetryWorkerConfig{
		Interval: cfg.RetryWorker.Interval,
	})

	// Start worker
	if err := retryWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Worker error: %v", err))
	}
	appLog.Info(fmt.Sprintf("Sale Retry Worker started (channel: %s, interval: %s)",
		secondary.Publisher.Name(), cfg.RetryWorker.Interval))

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	retryWorker.Stop()
	cancel()

	stats := retryWorker.GetStats()
	appLog.Info(fmt.Sprintf("Worker exited gracefully (sweeps: %d, confirmed: %d, failed: %d)",
		stats.TotalSweeps, stats.TotalConfirmed, stats.TotalFailed))
}
