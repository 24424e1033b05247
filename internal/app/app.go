package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/climate-api/internal/controllers/restserver"
	"github.com/chrissnell/climate-api/internal/database"
	"github.com/chrissnell/climate-api/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	config *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	return &App{
		config: cfg,
		logger: logger,
	}
}

// Run connects to the store, verifies its schema, starts the REST server and
// blocks until shutdown. A store that is unreachable or missing the expected
// tables is a startup error.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	storage := a.config.Storage
	storage.ReadOnly = true

	client := database.NewClient(storage, a.logger)
	if err := client.Connect(); err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			a.logger.Errorf("error closing store: %v", err)
		}
	}()

	if err := client.VerifySchema(); err != nil {
		return err
	}

	rest, err := restserver.NewController(ctx, &wg, a.config, client, a.logger)
	if err != nil {
		return fmt.Errorf("error creating REST server: %w", err)
	}
	if err := rest.StartController(); err != nil {
		return err
	}

	a.logger.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}
