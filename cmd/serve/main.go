package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bankfeed/internal/api"
	"bankfeed/internal/config"
	"bankfeed/internal/database"
	"bankfeed/internal/logger"
	"bankfeed/internal/runs"
)

const (
	queueBuffer  = 16
	queueWorkers = 2
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := runs.NewRunner(dbManager.DB(), cfg, log)
	queue := runs.NewQueue(queueBuffer)
	queue.Start(ctx, queueWorkers, runner.Handle)

	router := api.NewRouter(cfg, queue)

	errChan := make(chan error, 1)
	go func() {
		log.Infof("Starting server on port %s", cfg.Port)
		errChan <- router.Run(":" + cfg.Port)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		log.Info("Shutting down, draining in-flight runs...")
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return queue.Stop(drainCtx)
	}
}
