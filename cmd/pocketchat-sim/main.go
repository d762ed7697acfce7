package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pocketchat/pocketchat-go/internal/config"
	"github.com/pocketchat/pocketchat-go/internal/sim"
	"github.com/pocketchat/pocketchat-go/pkg/domain"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	newLogger := zap.NewProduction
	if cfg.Debug {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Product catalog: configured file, or the built-in mini catalog
	products := sim.DefaultProducts()
	if cfg.Catalog.Path != "" {
		catalog, err := domain.LoadCatalog(cfg.Catalog.Path)
		if err != nil {
			logger.Warn("Failed to load catalog, using built-in products", zap.Error(err))
		} else {
			products = catalog.Products()
		}
	}

	handler := sim.NewHandler(
		sim.NewResponder(products),
		cfg.Sim.Dialect,
		cfg.Sim.Suggestions,
		30*time.Millisecond,
		logger,
	)

	// Setup router
	router := sim.SetupRouter(handler, sim.RouterConfig{
		APIKey:       cfg.Sim.APIKey,
		AllowOrigins: []string{"*"},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.SimAddress(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting assistant simulator",
			zap.String("address", cfg.SimAddress()),
			zap.String("dialect", cfg.Sim.Dialect),
			zap.String("suggestions", cfg.Sim.Suggestions),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
