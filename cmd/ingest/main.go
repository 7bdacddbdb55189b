// Command ingest loads documents into the vector index, either directly or
// by queueing them for the API's ingestion worker.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"folio/internal/adapter/gemini"
	"folio/internal/app"
	"folio/internal/config"
	"folio/internal/ingest"
	"folio/internal/logger"
	"folio/internal/retrieval"
)

func main() {
	file := flag.String("file", "", "document to ingest (.pdf or UTF-8 text)")
	pattern := flag.String("glob", "", "doublestar pattern of documents to ingest, e.g. data/**/*.md")
	wipe := flag.Bool("wipe", false, "delete the whole index before the first document")
	publish := flag.Bool("publish", false, "queue documents on NSQ instead of ingesting in-process")
	dryRun := flag.Bool("dry-run", false, "chunk only, store nothing")
	flag.Parse()

	slog.SetDefault(logger.New(os.Stderr, slog.LevelInfo))

	files, err := resolveFiles(*file, *pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *publish {
		err = publishFiles(cfg, files, *wipe)
	} else {
		err = ingestFiles(ctx, cfg, files, *wipe, *dryRun)
	}
	if err != nil {
		slog.Error("ingestion failed", "error", err)
		os.Exit(1)
	}
}

func ingestFiles(ctx context.Context, cfg *config.Config, files []string, wipe, dryRun bool) error {
	if err := checkTarget(cfg, dryRun); err != nil {
		return err
	}
	if cfg.GeminiAPIKey == "" && !dryRun {
		return fmt.Errorf("%w: GEMINI_API_KEY", config.ErrMissingRequired)
	}

	var index ingest.Index = nopIndex{}
	if !dryRun {
		idx, closeFn, err := openIndex(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeFn()
		index = idx
	}

	svc := ingest.NewService(index, ingest.Config{ChunkSize: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	results, err := runAll(ctx, svc, files, wipe, dryRun, newProgress)
	for _, res := range results {
		printResult(os.Stdout, res, dryRun)
	}
	return err
}

// openIndex connects to the configured vector backend.
func openIndex(ctx context.Context, cfg *config.Config) (*retrieval.Index, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var db *sql.DB
	if cfg.VectorBackend == config.BackendPostgres {
		conn, err := app.OpenDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { conn.Close() })
		db = conn
	}

	store, err := app.NewVectorStore(ctx, cfg, db)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("gemini client error: %w", err)
	}
	closers = append(closers, func() { embedder.Close() })

	return retrieval.NewIndex(embedder, store, cfg.EmbeddingDim, nil), closeAll, nil
}

func publishFiles(cfg *config.Config, files []string, wipe bool) error {
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("nsq producer error: %w", err)
	}
	defer producer.Stop()

	return publishAll(producer, files, wipe)
}
