package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bankfeed/internal/config"
	"bankfeed/internal/database"
	"bankfeed/internal/logger"
	"bankfeed/internal/runs"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Import error: %v", err)
	}
}

func run() error {
	dir := flag.String("dir", "", "directory of bank export files; defaults to EXPORTS_DIR")
	flag.Parse()

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := runs.NewRunner(dbManager.DB(), cfg, log)
	summary, err := runner.RunImport(ctx, *dir)
	if err != nil {
		return err
	}

	fmt.Printf("Inserted:           %d\n", summary.Inserted)
	fmt.Printf("Skipped duplicates: %d\n", summary.SkippedDuplicate)
	fmt.Printf("Malformed skipped:  %d\n", summary.MalformedSkipped)
	fmt.Printf("Failed:             %d\n", summary.Failed)
	if summary.FatalError != "" {
		return fmt.Errorf("%s", summary.FatalError)
	}
	return nil
}
