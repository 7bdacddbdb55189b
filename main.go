package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"folio/internal/app"
	"folio/internal/config"
	"folio/internal/logger"
)

func main() {
	log := logger.New(os.Stdout, slog.LevelInfo)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a := app.New(cfg, deps.DB, deps.Store, deps.Embedder, deps.Generator, deps.QueryLogger)
	log.Info("dependencies ready", "backend", cfg.VectorBackend, "ingest_worker", cfg.EnableIngestWorker)
	return a.Run(ctx)
}
