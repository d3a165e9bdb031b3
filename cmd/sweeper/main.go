package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/magabrotheeeer/listing-entitlements/internal/app/sweeper"
	"github.com/magabrotheeeer/listing-entitlements/internal/config"
)

func main() {
	once := flag.Bool("once", true, "run a single sweep pass and exit")
	dryRun := flag.Bool("dry-run", false, "count expirable rows without modifying anything")
	batchSize := flag.Int("batch-size", 0, "max rows claimed per pass (default from config)")
	interval := flag.Duration("interval", 0, "run continuously with this period instead of a single pass")
	flag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts := sweeper.Options{
		Once:      *once,
		DryRun:    *dryRun,
		BatchSize: *batchSize,
		Interval:  *interval,
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = cfg.SweepBatchSize
	}
	if opts.Interval > 0 {
		opts.Once = false
	} else {
		opts.Interval = cfg.SweepInterval
	}

	logger.Info("starting sweeper",
		slog.String("env", cfg.Env),
		slog.Bool("once", opts.Once),
		slog.Bool("dry_run", opts.DryRun),
		slog.Int("batch_size", opts.BatchSize),
		slog.Duration("interval", opts.Interval))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := sweeper.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", slog.Any("err", err))
		os.Exit(1)
	}

	start := time.Now()
	if err := app.Run(ctx, opts); err != nil {
		logger.Error("sweeper stopped with error", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("sweeper finished", slog.Duration("elapsed", time.Since(start)))
}
