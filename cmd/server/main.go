package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/firedesk/firedesk/internal/infrastructure/config"
	"github.com/firedesk/firedesk/internal/infrastructure/logging"
	"github.com/firedesk/firedesk/internal/server"
)

func main() {
	// Bootstrap logger for failures before the configured one exists.
	boot := logging.NewDefault()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal("failed to load config", zap.Error(err))
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		boot.Fatal("failed to create server", zap.Error(err))
	}

	// Align persisted state with reality before accepting requests.
	reconcileCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	srv.Reconcile(reconcileCtx)
	cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		if err := srv.Close(); err != nil {
			boot.Error("error during shutdown", zap.Error(err))
		}
	case err := <-errChan:
		boot.Fatal("server error", zap.Error(err))
	}
}
