package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bankfeed/internal/config"
	"bankfeed/internal/database"
	"bankfeed/internal/ingest"
	"bankfeed/internal/logger"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Clean error: %v", err)
	}
}

func run() error {
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

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

	if !*yes && !confirm(cfg.UserID) {
		fmt.Println("Aborted.")
		return nil
	}

	cleaner := ingest.NewCleaner(dbManager.DB())
	result, err := cleaner.Purge(context.Background(), cfg.UserID)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d transactions and %d category assignments\n",
		result.Transactions, result.Assignments)
	return nil
}

func confirm(userID string) bool {
	fmt.Printf("This deletes ALL transactions and category assignments for user %s.\n", userID)
	fmt.Print("Type 'yes' to continue: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}
