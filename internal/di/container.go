package di

import (
	"github.com/tobslayerr/sievent-ticketing/internal/database"
	"github.com/tobslayerr/sievent-ticketing/internal/gateway"
	"github.com/tobslayerr/sievent-ticketing/internal/handler"
	"github.com/tobslayerr/sievent-ticketing/internal/redisclient"
	"github.com/tobslayerr/sievent-ticketing/internal/repository"
	"github.com/tobslayerr/sievent-ticketing/internal/service"
	"github.com/tobslayerr/sievent-ticketing/internal/worker"
)

// Container holds all dependencies for the ticketing service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redisclient.Client

	// Repositories
	CatalogRepo repository.CatalogRepository
	LedgerRepo  repository.LedgerRepository
	OrderRepo   repository.OrderRepository

	// Gateway
	Gateway gateway.PaymentGateway

	// Services
	PurchaseService   service.PurchaseService
	ReconcilerService service.ReconcilerService
	CatalogService    service.CatalogService
	LedgerSyncer      service.LedgerSyncer

	// Workers
	ExpiryWorker *worker.ExpiryWorker

	// Handlers
	HealthHandler   *handler.HealthHandler
	PurchaseHandler *handler.PurchaseHandler
	CatalogHandler  *handler.CatalogHandler
	WebhookHandler  *handler.WebhookHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB          *database.PostgresDB
	Redis       *redisclient.Client
	CatalogRepo repository.CatalogRepository
	LedgerRepo  repository.LedgerRepository
	OrderRepo   repository.OrderRepository
	Gateway     gateway.PaymentGateway

	PurchaseConfig *service.PurchaseServiceConfig
	WebhookConfig  *handler.WebhookHandlerConfig
	ExpiryConfig   *worker.ExpiryWorkerConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:          cfg.DB,
		Redis:       cfg.Redis,
		CatalogRepo: cfg.CatalogRepo,
		LedgerRepo:  cfg.LedgerRepo,
		OrderRepo:   cfg.OrderRepo,
		Gateway:     cfg.Gateway,
	}

	// Initialize services
	c.LedgerSyncer = service.NewLedgerSyncer(c.CatalogRepo, c.LedgerRepo)
	c.PurchaseService = service.NewPurchaseService(
		c.CatalogRepo,
		c.LedgerRepo,
		c.OrderRepo,
		c.Gateway,
		c.LedgerSyncer,
		cfg.PurchaseConfig,
	)
	c.ReconcilerService = service.NewReconcilerService(c.OrderRepo, c.LedgerRepo)
	c.CatalogService = service.NewCatalogService(c.CatalogRepo, c.LedgerRepo)

	// Initialize workers
	c.ExpiryWorker = worker.NewExpiryWorker(c.ReconcilerService, cfg.ExpiryConfig)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.PurchaseHandler = handler.NewPurchaseHandler(c.PurchaseService)
	c.CatalogHandler = handler.NewCatalogHandler(c.CatalogService)
	c.WebhookHandler = handler.NewWebhookHandler(c.ReconcilerService, cfg.WebhookConfig)

	return c
}
