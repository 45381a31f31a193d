package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/ticket-broker/internal/di"
	"github.com/prohmpiriya/ticket-broker/internal/handler"
	"github.com/prohmpiriya/ticket-broker/internal/metrics"
	"github.com/prohmpiriya/ticket-broker/internal/repository"
	"github.com/prohmpiriya/ticket-broker/internal/service"
	"github.com/prohmpiriya/ticket-broker/internal/worker"
	"github.com/prohmpiriya/ticket-broker/pkg/config"
	"github.com/prohmpiriya/ticket-broker/pkg/database"
	"github.com/prohmpiriya/ticket-broker/pkg/logger"
	"github.com/prohmpiriya/ticket-broker/pkg/middleware"
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
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Ticket Broker...")

	ctx := context.Background()

	// Initialize tracing
	if err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry init failed, tracing disabled: %v", err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to initialize metrics: %v", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	// Initialize database connection
	dbCfg := di.PostgresConfig(cfg)
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

	if err := repository.EnsureSchema(ctx, db.Pool()); err != nil {
		appLog.Fatal(fmt.Sprintf("Schema migration failed: %v", err))
	}

	// Initialize Redis connection
	redisCfg := di.RedisConfig(cfg)
	redisClient, err := pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()
	appLog.Info(fmt.Sprintf("Redis connected (pool: %d, minIdle: %d)", redisCfg.PoolSize, redisCfg.MinIdleConns))

	// Initialize the secondary sale channel
	secondary, err := di.NewSecondary(ctx, cfg)
	if err != nil {
		appLog.Warn(fmt.Sprintf("Secondary channel %s unavailable, using no-op publisher: %v", cfg.Sale.SecondaryChannel, err))
	} else {
		appLog.Info(fmt.Sprintf("Secondary channel: %s", secondary.Publisher.Name()))
	}
	defer secondary.Close()

	// Initialize repositories
	lockStore := repository.NewRedisLockStore(redisClient)
	if err := lockStore.LoadScripts(ctx); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
	} else {
		appLog.Info("Lua scripts pre-loaded into Redis")
	}

	authorityClient := di.NewAuthorityClient(cfg)

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:                 db,
		Redis:              redisClient,
		LockStore:          lockStore,
		SessionRepo:        repository.NewRedisSessionRepository(redisClient, cfg.Session.TTL),
		SaleRepo:           repository.NewPostgresSaleRepository(db.Pool()),
		EventRepo:          repository.NewPostgresEventRepository(db.Pool()),
		Blocker:            authorityClient,
		Confirmer:          authorityClient,
		SecondaryPublisher: secondary.Publisher,
		SeatLockTTL:        cfg.SeatLock.TTL,
		PipelineConfig: &service.PipelineConfig{
			PrimaryTimeout:   cfg.Authority.Timeout,
			SecondaryTimeout: cfg.Sale.SecondaryTimeout,
		},
		SaleConfig:        di.SaleServiceConfig(cfg),
		WorkerConfig:      &worker.SaleRetryWorkerConfig{Interval: cfg.RetryWorker.Interval},
		ExtraHealthChecks: map[string]handler.HealthChecker{"secondary": secondary.Check},
	})

	// Start the embedded retry worker
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.RetryWorker.Enabled {
		if err := container.RetryWorker.Start(workerCtx); err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to start retry worker: %v", err))
		}
		appLog.Info(fmt.Sprintf("Retry worker started (interval: %s)", cfg.RetryWorker.Interval))
	}

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(telemetry.TracingMiddleware("/health", "/ready"))
	router.Use(middleware.AccessLog(appLog))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Idempotency for write operations, scoped to the purchase session
	idempotencyConfig := middleware.DefaultIdempotencyConfig(redisClient.Client())
	idempotencyConfig.ScopeHeaders = []string{handler.SessionHeader}
	idempotent := middleware.Idempotency(idempotencyConfig)

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": cfg.App.Name,
			})
		})

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", idempotent, container.SessionHandler.StartSession)
			sessions.GET("/:id", container.SessionHandler.GetSession)
		}

		reservations := v1.Group("/events/:eventId/reservations")
		{
			reservations.POST("", idempotent, container.SessionHandler.ReserveSeats)
			reservations.DELETE("", idempotent, container.SessionHandler.ReleaseSeats)
		}

		sales := v1.Group("/sales")
		{
			sales.POST("/confirm", idempotent, container.SaleHandler.ConfirmSale)
			sales.GET("", container.SaleHandler.ListSales)
			sales.GET("/:id", container.SaleHandler.GetSale)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/sales/pending", container.AdminHandler.ListPendingSales)
			admin.POST("/sales/retry-sweep", container.AdminHandler.RunRetrySweep)
			admin.PUT("/events/:externalId", idempotent, container.AdminHandler.UpsertEvent)
		}
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Ticket Broker listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	if cfg.RetryWorker.Enabled {
		container.RetryWorker.Stop()
	}

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
