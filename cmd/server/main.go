// Package main provides the API server entry point for the address registry service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/address-registry/internal/api"
	"github.com/address-registry/internal/config"
	"github.com/address-registry/internal/logging"
	"github.com/address-registry/internal/metrics"
	"github.com/address-registry/internal/ratelimit"
	"github.com/address-registry/internal/retry"
	"github.com/address-registry/internal/service"
	"github.com/address-registry/internal/storage"
)

func main() {
	fmt.Println("Address Registry API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	defer func() {
		_ = logger.Sync()
	}()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run serves until a shutdown signal or a server failure. The store and
// limiter are closed on every return.
func run(cfg *config.Config, logger *logging.Logger) error {
	ctx := logging.WithLogger(context.Background(), logger)

	// Open the store
	backend := cfg.Database.Backend()
	logger.WithField("backend", backend).Info("Opening address store...")

	store, err := storage.Open(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open address store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Error("Error closing address store")
		}
	}()

	err = retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context, attempt int) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return store.Ping(pingCtx)
	})
	if err != nil {
		logger.WithError(err).Warn("Address store is not reachable yet")
	}

	// Create or adopt the addresses table
	if err := store.EnsureSchema(ctx); err != nil {
		if backend == config.BackendSQLite {
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		logger.WithError(err).Error("Failed to initialize database schema")
	} else {
		logger.Info("Database schema ready")
	}

	// Initialize services
	addressService := service.NewAddressService(
		store,
		service.NewSignatureVerifier(),
		service.WithRequireSignature(cfg.Signature.Required),
		service.WithLogger(logger),
	)

	limiter, closeLimiter, err := ratelimit.New(&ratelimit.Config{
		RequestsPerSecond: float64(cfg.RateLimit.RequestsPerSecond),
		Burst:             cfg.RateLimit.Burst,
		RedisURL:          cfg.RateLimit.RedisURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	defer func() {
		if err := closeLimiter(); err != nil {
			logger.WithError(err).Error("Error closing rate limiter")
		}
	}()

	pruneCtx, stopPruner := context.WithCancel(ctx)
	defer stopPruner()
	if local, ok := limiter.(*ratelimit.LocalLimiter); ok {
		go local.RunPruner(pruneCtx, time.Minute, 10*time.Minute)
	}

	logger.WithFields(map[string]interface{}{
		"rps":              cfg.RateLimit.RequestsPerSecond,
		"burst":            cfg.RateLimit.Burst,
		"redis":            cfg.RateLimit.RedisURL != "",
		"requireSignature": cfg.Signature.Required,
	}).Info("Services initialized")

	// Port was validated by LoadConfig
	port, _ := strconv.Atoi(cfg.Server.Port)

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            port,
		PublicDir:       cfg.Server.PublicDir,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	opts := []api.Option{
		api.WithMetrics(metrics.New()),
		api.WithLogger(logger),
	}
	if limiter != nil {
		opts = append(opts, api.WithRateLimiter(limiter))
	}
	server := api.NewServer(serverConfig, addressService, store, opts...)

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logger.WithFields(map[string]interface{}{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"backend": backend,
	}).Info("Server started successfully")

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
	return nil
}
