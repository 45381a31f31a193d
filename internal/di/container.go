package di

import (
	"time"

	"github.com/prohmpiriya/ticket-broker/internal/handler"
	"github.com/prohmpiriya/ticket-broker/internal/repository"
	"github.com/prohmpiriya/ticket-broker/internal/service"
	"github.com/prohmpiriya/ticket-broker/internal/worker"
	"github.com/prohmpiriya/ticket-broker/pkg/database"
	"github.com/prohmpiriya/ticket-broker/pkg/redis"
)

// Container holds all dependencies for the ticket broker
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	LockStore   repository.LockStore
	SessionRepo repository.SessionRepository
	SaleRepo    repository.SaleRepository
	EventRepo   repository.EventRepository

	// Authority and broker
	Blocker            service.SeatBlocker
	Confirmer          service.SaleConfirmer
	SecondaryPublisher service.SalePublisher

	// Services
	SeatLocks      *service.SeatLockRegistry
	Coordinator    *service.ReservationCoordinator
	Notifier       *service.NotificationPipeline
	SessionService service.SessionService
	SaleService    service.SaleService
	EventService   service.EventService

	// Workers
	RetryWorker *worker.SaleRetryWorker

	// Handlers
	HealthHandler  *handler.HealthHandler
	SessionHandler *handler.SessionHandler
	SaleHandler    *handler.SaleHandler
	AdminHandler   *handler.AdminHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB          *database.PostgresDB
	Redis       *redis.Client
	LockStore   repository.LockStore
	SessionRepo repository.SessionRepository
	SaleRepo    repository.SaleRepository
	EventRepo   repository.EventRepository

	Blocker            service.SeatBlocker
	Confirmer          service.SaleConfirmer
	SecondaryPublisher service.SalePublisher

	SeatLockTTL    time.Duration
	PipelineConfig *service.PipelineConfig
	SaleConfig     *service.SaleServiceConfig
	WorkerConfig   *worker.SaleRetryWorkerConfig

	// ExtraHealthChecks are added to the readiness probe, e.g. the Kafka producer
	ExtraHealthChecks map[string]handler.HealthChecker
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:                 cfg.DB,
		Redis:              cfg.Redis,
		LockStore:          cfg.LockStore,
		SessionRepo:        cfg.SessionRepo,
		SaleRepo:           cfg.SaleRepo,
		EventRepo:          cfg.EventRepo,
		Blocker:            cfg.Blocker,
		Confirmer:          cfg.Confirmer,
		SecondaryPublisher: cfg.SecondaryPublisher,
	}

	// Initialize services
	c.SeatLocks = service.NewSeatLockRegistry(c.LockStore, cfg.SeatLockTTL)
	c.Coordinator = service.NewReservationCoordinator(c.SeatLocks, c.Blocker)
	c.Notifier = service.NewNotificationPipeline(c.Confirmer, c.SecondaryPublisher, cfg.PipelineConfig)

	c.SessionService = service.NewSessionService(c.SessionRepo, c.Coordinator, c.SeatLocks)
	c.SaleService = service.NewSaleService(
		c.SaleRepo,
		c.EventRepo,
		c.SessionRepo,
		c.LockStore,
		c.SeatLocks,
		c.Notifier,
		cfg.SaleConfig,
	)
	c.EventService = service.NewEventService(c.EventRepo)

	c.RetryWorker = worker.NewSaleRetryWorker(c.SaleService, cfg.WorkerConfig)

	// Initialize handlers
	checks := map[string]handler.HealthChecker{}
	if c.DB != nil {
		checks["postgres"] = c.DB
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	for name, chk := range cfg.ExtraHealthChecks {
		checks[name] = chk
	}
	c.HealthHandler = handler.NewHealthHandler(checks)
	c.SessionHandler = handler.NewSessionHandler(c.SessionService)
	c.SaleHandler = handler.NewSaleHandler(c.SaleService)
	c.AdminHandler = handler.NewAdminHandler(c.SaleService, c.EventService)

	return c
}
