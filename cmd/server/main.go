package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/internal/auth"
	"checkout-service/internal/cache"
	"checkout-service/internal/client"
	"checkout-service/internal/events"
	"checkout-service/internal/handler"
	"checkout-service/internal/provider/payos"
	"checkout-service/internal/repository"
	"checkout-service/internal/router"
	"checkout-service/internal/usecase/order"
	"checkout-service/internal/usecase/payment"
	"checkout-service/internal/usecase/wallet"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting checkout service")

	// Load configuration
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	// Connect to database
	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := dbPool.Ping(pingCtx); err != nil {
		cancel()
		logger.Fatal("database ping failed", zap.Error(err))
	}
	cancel()

	logger.Info("connected to database",
		zap.String("database", cfg.Database.DBName))

	// Connect to redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(dbPool)
	walletRepo := repository.NewWalletRepository(dbPool)
	settlementRepo := repository.NewSettlementRepository(dbPool)

	// Initialize infrastructure
	walletCache := cache.NewWalletCache(redisClient)
	gateway := payos.New(cfg.Gateway)
	catalogClient := client.NewCatalogClient(cfg.Catalog, logger)
	publisher := events.NewPublisher(cfg.Kafka, logger)
	defer publisher.Close()

	validate := validator.New()
	authMW := auth.NewMiddleware(cfg.Auth.JWTSecret)

	// Initialize usecases
	notifier := wallet.NewNotifier(logger)
	walletUC := wallet.New(walletRepo, walletCache, notifier, cfg.Currency, logger)
	orderUC := order.New(orderRepo, catalogClient, cfg.Currency, logger)
	paymentUC := payment.New(
		orderRepo,
		walletRepo,
		settlementRepo,
		gateway,
		walletUC,
		publisher,
		cfg,
		logger,
	)

	// Initialize handlers
	orderHandler := handler.NewOrderHandler(orderUC, validate, logger)
	paymentHandler := handler.NewPaymentHandler(paymentUC, validate, logger)
	walletHandler := handler.NewWalletHandler(walletUC, logger)
	callbackHandler := handler.NewCallbackHandler(paymentUC, gateway, logger)
	adminHandler := handler.NewAdminHandler(orderUC, paymentUC, validate, logger)

	// Setup routes
	r := router.SetupRoutes(
		orderHandler,
		paymentHandler,
		walletHandler,
		callbackHandler,
		adminHandler,
		authMW,
		logger,
	)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("checkout service started successfully",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Env))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
