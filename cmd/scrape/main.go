package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bankfeed/internal/config"
	"bankfeed/internal/database"
	"bankfeed/internal/logger"
	"bankfeed/internal/runs"
	"bankfeed/internal/scraper"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Scrape error: %v", err)
	}
}

func run() error {
	bank := flag.String("bank", "", "scrape a single bank; omit to scrape all configured banks")
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
	runner.Resolver = promptForCode

	var summary *runs.Summary
	if *bank != "" {
		summary, err = runner.RunScrape(ctx, *bank)
		if err != nil {
			return err
		}
	} else {
		summary = runner.RunScrapeAll(ctx)
	}

	printSummary(summary)
	if summary.FatalError != "" {
		return fmt.Errorf("%s", summary.FatalError)
	}
	return nil
}

// promptForCode asks the operator for the one-time code the portal sent.
func promptForCode(ctx context.Context, challenge *scraper.Challenge) {
	fmt.Printf("\n[%s] %s\n", challenge.Bank, challenge.Prompt)
	fmt.Print("Enter code: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		logger.Get().Warnf("Failed to read challenge code: %v", err)
		return
	}
	challenge.Resolve(strings.TrimSpace(line))
}

func printSummary(summary *runs.Summary) {
	fmt.Printf("Inserted:           %d\n", summary.Inserted)
	fmt.Printf("Skipped duplicates: %d\n", summary.SkippedDuplicate)
	fmt.Printf("Malformed skipped:  %d\n", summary.MalformedSkipped)
	fmt.Printf("Failed:             %d\n", summary.Failed)
	for _, failure := range summary.Failures {
		fmt.Printf("  %s: %s\n", failure.ExternalRef, failure.Reason)
	}
}
