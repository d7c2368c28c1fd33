package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/app"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		// stderr sync fails on some terminals; nothing useful to do about it
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	report, err := runner.Run(ctx)
	if err != nil {
		logger.Error("crawl aborted", zap.Error(err))
		fmt.Fprintf(os.Stderr, "crawl aborted: %v\n", err)
		return 1
	}

	failed := 0
	for _, r := range report.Results {
		if r.Failed() {
			failed++
		}
	}
	logger.Info("crawl finished",
		zap.String("run_id", report.RunID),
		zap.Int("categories", len(report.Results)),
		zap.Int("categories_failed", failed),
		zap.Int("total_found", report.TotalFound),
		zap.Int("total_written", report.TotalWritten),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	fmt.Printf("products written: %d (found %d across %d categories)\n",
		report.TotalWritten, report.TotalFound, len(report.Results))
	return 0
}
