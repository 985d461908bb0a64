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

	"table-service/config"
	"table-service/internal/api"
	"table-service/internal/broker"
	"table-service/internal/redisclient"
	"table-service/internal/service"
	"table-service/internal/store"
	"table-service/internal/util"
	"table-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// catalogStore is the authoritative product source of either repository
type catalogStore interface {
	service.ProductSource
	store.ProductWriter
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting table service", zap.String("instance_id", cfg.Server.InstanceID))

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	ctx := context.Background()
	memStore := store.NewMemoryStore()

	var (
		repo     service.Repository   = memStore
		products catalogStore         = memStore
		profiles service.ProfileStore = memStore
	)
	checks := map[string]api.ReadinessCheck{}

	if cfg.Storage.Driver == "postgres" {
		db, err := store.NewStore(cfg.Storage.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		repo, products = db, db
		checks["postgres"] = db.Ping
		logger.Info("Database connected")
	}

	if cfg.Storage.CatalogSeed != "" {
		n, err := store.SeedProducts(ctx, products, cfg.Storage.CatalogSeed)
		if err != nil {
			logger.Fatal("Failed to seed catalog", zap.Error(err))
		}
		logger.Info("Catalog seeded", zap.Int("products", n))
	}

	hub := broker.NewHub()
	sinks := []broker.Sink{hub}

	var cache service.ProductCache
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		cache = redisClient
		sinks = append(sinks, broker.NewRedisSink(redisClient, "tables:"))
		checks["redis"] = redisClient.Ping
		logger.Info("Redis connected")
	}

	var producer *broker.Producer
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		sinks = append(sinks, broker.NewKafkaSink(producer))
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))
	}

	if cfg.Mongo.Enabled {
		profileStore, err := store.NewProfileStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			profileStore.Close(ctx)
		}()
		profiles = profileStore
		logger.Info("MongoDB connected")
	}

	broadcaster := broker.NewBroadcaster(cfg.Events.BufferSize, sinks...)
	broadcaster.Start()

	executor := service.NewTableExecutor(repo, broadcaster, cfg.Server.InstanceID)
	catalog := service.NewCatalogClient(products, cache, cfg.Business.ProductCacheTTL, cfg.Business.CollaboratorTimeout)
	stats := service.NewCustomerStats(profiles, cfg.Business.CollaboratorTimeout)

	tableService := service.NewTableService(executor)
	orderService := service.NewOrderService(executor, catalog)
	paymentService := service.NewPaymentService(executor, stats)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var relay *worker.RelayWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		relay = worker.NewRelayWorker(consumer, hub, cfg.Server.InstanceID)
		go func() {
			if err := relay.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Relay worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(tableService, orderService, paymentService, hub, cfg.Auth.JWTSecret)
	for name, check := range checks {
		handler.AddReadinessCheck(name, check)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Close SSE streams before draining connections
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if relay != nil {
		relay.Stop()
	}

	broadcaster.Close()
	if producer != nil {
		producer.Close()
	}

	logger.Info("Server exited")
}
