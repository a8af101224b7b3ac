package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fixora/pim/internal/app"
	"github.com/fixora/pim/internal/config"
	"github.com/fixora/pim/internal/logger"
)

// Version and build information
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	structuredLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: cfg.Logging.ServiceName,
		Output:      os.Stdout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
		"env":        cfg.Server.Environment,
	})

	application, err := app.Build(ctx, cfg, structuredLogger)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize application", err, nil)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	// Background chain verification and retention
	go application.Verifier.Run(ctx)

	server := application.Server()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		structuredLogger.Info(ctx, "Shutdown signal received", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			structuredLogger.Error(ctx, "HTTP server failed", err, nil)
		}
	}
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(shutdownCtx, "Error during server shutdown", err, nil)
	}
	structuredLogger.Info(shutdownCtx, "Server stopped", nil)
}
