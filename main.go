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
	"github.com/tobslayerr/sievent-ticketing/internal/config"
	"github.com/tobslayerr/sievent-ticketing/internal/consumer"
	"github.com/tobslayerr/sievent-ticketing/internal/database"
	"github.com/tobslayerr/sievent-ticketing/internal/di"
	"github.com/tobslayerr/sievent-ticketing/internal/gateway"
	"github.com/tobslayerr/sievent-ticketing/internal/handler"
	"github.com/tobslayerr/sievent-ticketing/internal/logger"
	"github.com/tobslayerr/sievent-ticketing/internal/redisclient"
	"github.com/tobslayerr/sievent-ticketing/internal/repository"
	"github.com/tobslayerr/sievent-ticketing/internal/service"
	"github.com/tobslayerr/sievent-ticketing/internal/telemetry"
	"github.com/tobslayerr/sievent-ticketing/internal/worker"
	"github.com/tobslayerr/sievent-ticketing/migrations"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: cfg.App.Name,
		Development: cfg.App.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting ticketing service...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment))

	ctx := context.Background()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		appLog.Fatal(fmt.Sprintf("Telemetry init failed: %v", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	// Initialize database connection
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Apply schema migrations
	if err := migrations.Apply(ctx, db.Pool()); err != nil {
		appLog.Fatal(fmt.Sprintf("Migrations failed: %v", err))
	}
	appLog.Info("Migrations applied")

	// Initialize Redis connection
	redisClient, err := redisclient.NewClient(ctx, &redisclient.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	// Initialize repositories
	catalogRepo := repository.NewPostgresCatalogRepository(db.Pool())
	orderRepo := repository.NewPostgresOrderRepository(db.Pool())
	ledgerRepo := repository.NewRedisLedgerRepository(redisClient)

	// Pre-load Lua scripts into Redis
	if err := ledgerRepo.LoadScripts(ctx); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
	} else {
		appLog.Info("Lua scripts pre-loaded into Redis")
	}

	// Initialize payment gateway
	var paymentGateway gateway.PaymentGateway
	if cfg.Midtrans.Enabled {
		paymentGateway, err = gateway.NewMidtransGateway(&gateway.MidtransGatewayConfig{
			BaseURL:   cfg.Midtrans.BaseURL,
			ServerKey: cfg.Midtrans.ServerKey,
		})
		if err != nil {
			appLog.Fatal(fmt.Sprintf("Midtrans gateway init failed: %v", err))
		}
		appLog.Info("Midtrans gateway configured", zap.String("base_url", cfg.Midtrans.BaseURL))
	} else {
		paymentGateway = gateway.NewMockGateway(nil)
		appLog.Warn("Midtrans disabled, using mock payment gateway")
	}

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:          db,
		Redis:       redisClient,
		CatalogRepo: catalogRepo,
		LedgerRepo:  ledgerRepo,
		OrderRepo:   orderRepo,
		Gateway:     paymentGateway,
		PurchaseConfig: &service.PurchaseServiceConfig{
			HoldTTL:     cfg.Purchase.HoldTTL,
			MaxPerOrder: cfg.Purchase.MaxPerOrder,
			Currency:    cfg.Purchase.Currency,
		},
		WebhookConfig: &handler.WebhookHandlerConfig{
			ServerKey:       cfg.Midtrans.ServerKey,
			VerifySignature: cfg.Midtrans.Enabled,
		},
		ExpiryConfig: &worker.ExpiryWorkerConfig{
			SweepInterval: cfg.Purchase.SweepInterval,
			BatchSize:     cfg.Purchase.SweepBatchSize,
		},
	})

	// Start hold expiry worker
	if err := container.ExpiryWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Expiry worker start failed: %v", err))
	}
	defer container.ExpiryWorker.Stop()

	// Start Kafka payment outcome consumer
	var outcomeConsumer *consumer.PaymentOutcomeConsumer
	if cfg.Kafka.Enabled {
		outcomeConsumer, err = consumer.NewPaymentOutcomeConsumer(ctx, &consumer.PaymentOutcomeConsumerConfig{
			Brokers:  cfg.Kafka.Brokers,
			GroupID:  cfg.Kafka.ConsumerGroup,
			ClientID: cfg.Kafka.ClientID,
			Topic:    cfg.Kafka.OutcomeTopic,
		}, container.ReconcilerService)
		if err != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, relying on webhook only: %v", err))
		} else {
			go func() {
				if err := outcomeConsumer.Start(ctx); err != nil && err != context.Canceled {
					appLog.Error("Payment outcome consumer stopped", zap.Error(err))
				}
			}()
			defer outcomeConsumer.Stop()
			appLog.Info("Kafka payment outcome consumer started",
				zap.String("topic", cfg.Kafka.OutcomeTopic))
		}
	}

	// Setup Gin
	if !cfg.App.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

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

		// Public catalog reads
		v1.GET("/events/:id", container.CatalogHandler.GetEvent)
		v1.GET("/ticket-types/:id/availability", container.CatalogHandler.GetTicketTypeAvailability)

		// Creator capacity edits
		v1.PUT("/ticket-types/:id/capacity", container.CatalogHandler.UpdateCapacity)

		// Purchase routes
		purchases := v1.Group("/")
		purchases.Use(buyerIDMiddleware())
		{
			purchases.POST("/purchases", container.PurchaseHandler.SubmitPurchase)
			purchases.GET("/orders", container.PurchaseHandler.ListOrders)
			purchases.GET("/orders/:id", container.PurchaseHandler.GetOrder)
		}

		// Gateway webhook
		v1.POST("/webhooks/midtrans", container.WebhookHandler.HandleNotification)
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Ticketing service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}

// buyerIDMiddleware extracts the buyer id from the X-Buyer-ID header. The
// gateway in front of this service authenticates buyers and injects it.
func buyerIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		buyerID := c.GetHeader("X-Buyer-ID")
		if buyerID != "" {
			c.Set("buyer_id", buyerID)
		}
		c.Next()
	}
}
