package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/handlers"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/router"
	"github.com/soltixdb/insight/internal/services"
	"github.com/soltixdb/insight/internal/utils"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	logger.Info("Insight service starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := services.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize analytics service", "error", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("Failed to release resources", "error", err)
		}
	}()

	if cfg.Auth.Enabled {
		logger.Info("API key authentication enabled", "num_keys", len(cfg.Auth.APIKeys))
	} else {
		logger.Warn("API key authentication DISABLED - all requests will be allowed")
	}

	app := router.New(logger, rt.Service, *cfg, handlers.Info{
		Version:    Version,
		SourceType: cfg.Source.Type,
	})

	go func() {
		addr := cfg.GetServerAddress()
		logger.Info("Server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), utils.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
