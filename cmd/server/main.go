package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/api"
	"github.com/fiufit-grupo-4/goals-microservice/internal/clients"
	"github.com/fiufit-grupo-4/goals-microservice/internal/config"
	"github.com/fiufit-grupo-4/goals-microservice/internal/logger"
	"github.com/fiufit-grupo-4/goals-microservice/internal/metrics"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository/memory"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository/mongo"
	"github.com/fiufit-grupo-4/goals-microservice/internal/service"
	"github.com/fiufit-grupo-4/goals-microservice/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// @title Goals API
// @version 1.0
// @description API for athlete goals: creation, lifecycle transitions and progress tracking.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logrus.Fatalf("Could not load config: %v", err)
	}

	// --- Logging ---
	log, err := logger.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Could not initialize logger: %v", err)
	}
	defer logger.Flush()
	log.Info("Starting Goals Server...")

	// --- Goal Store ---
	var goalRepo repository.GoalRepository
	switch cfg.Database.Driver {
	case "memory":
		log.Warn("Using in-memory goal store; data is lost on restart")
		goalRepo = memory.NewGoalRepository()
	default:
		dbClient, err := mongo.ConnectDB(cfg.Database.URI, cfg.Database.Timeout)
		if err != nil {
			log.Fatalf("Could not connect to MongoDB: %v", err)
		}
		defer func() {
			log.Info("Disconnecting MongoDB...")
			if err := mongo.DisconnectDB(dbClient); err != nil {
				log.WithError(err).Error("Failed to disconnect MongoDB")
			}
		}()
		appDB := dbClient.Database(cfg.Database.Name)
		log.WithField("database", cfg.Database.Name).Info("Database connection established")

		// --- Ensure Indexes ---
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
			defer cancel()
			if err := mongo.EnsureGoalIndexes(ctx, appDB.Collection(mongo.GoalCollectionName)); err != nil {
				log.WithError(err).Error("Failed to ensure goal indexes")
				return
			}
			log.Info("Index creation process completed")
		}()

		goalRepo = mongo.NewMongoGoalRepository(appDB)
	}

	// --- Receipt Storage ---
	var receipts storage.FileStorage
	if cfg.S3.Enabled() {
		s3Storage, err := storage.NewS3Storage(context.Background(), cfg.S3, log)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
		receipts = s3Storage
	} else {
		log.Info("S3 bucket not configured; completion receipts are disabled")
	}

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	// --- Downstream Clients ---
	httpClient := clients.NewHTTPClient(cfg.Services.Timeout)
	userClient := clients.NewUserClient(cfg.Services.UsersURL, httpClient)
	trainingClient := clients.NewTrainingClient(cfg.Services.TrainingsURL, httpClient)

	// --- Initialize Services ---
	notifier := service.NewCompletionNotifier(trainingClient, userClient, receipts, appMetrics, log, nil)
	goalService := service.NewGoalService(goalRepo, notifier, receipts, appMetrics, log, nil, service.Options{
		DefaultPageSize:  cfg.Goals.DefaultPageSize,
		MaxPageSize:      cfg.Goals.MaxPageSize,
		ReceiptURLExpiry: cfg.S3.PresignExpiry,
	})

	// --- Initialize Gin Engine ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	rootCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var limiter *api.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		go limiter.Cleanup(rootCtx, time.Minute, 3*time.Minute)
	}

	api.SetupRoutes(router, api.RouterConfig{
		JWTSecret:           cfg.JWT.Secret,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		MetricsUsername:     cfg.Metrics.Username,
		MetricsPasswordHash: cfg.Metrics.PasswordHash,
		RateLimiter:         limiter,
	}, goalService, appMetrics, log)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", api.RequestIDHeader}),
		handlers.ExposedHeaders([]string{api.RequestIDHeader}),
	)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      corsHandler(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	log.WithField("address", cfg.Server.Address).Info("Server starting")

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exiting.")
}
