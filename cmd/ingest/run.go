package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"folio/internal/config"
	"folio/internal/ingest"
	"folio/internal/worker"
)

const defaultFile = "data/resume.pdf"

var (
	errNoFiles        = errors.New("no documents matched")
	errEphemeralIndex = errors.New("memory backend without MEMORY_INDEX_PATH would discard the index on exit; set MEMORY_INDEX_PATH, -publish or -dry-run")
)

// checkTarget rejects an in-process ingest whose index cannot outlive the
// command.
func checkTarget(cfg *config.Config, dryRun bool) error {
	if !dryRun && cfg.VectorBackend == config.BackendMemory && cfg.MemoryIndexPath == "" {
		return errEphemeralIndex
	}
	return nil
}

// resolveFiles returns file followed by the sorted matches of pattern, with
// duplicates removed. With neither given it falls back to defaultFile.
func resolveFiles(file, pattern string) ([]string, error) {
	if file == "" && pattern == "" {
		file = defaultFile
	}

	var files []string
	if file != "" {
		files = append(files, filepath.Clean(file))
	}

	if pattern != "" {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		slices.Sort(matches)
		for _, m := range matches {
			m = filepath.Clean(m)
			if !slices.Contains(files, m) {
				files = append(files, m)
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", errNoFiles, pattern)
	}
	return files, nil
}

// runAll ingests files in order. Only the first document wipes, so a
// multi-file run replaces the index with all of them.
func runAll(ctx context.Context, svc worker.Ingester, files []string, wipe, dryRun bool, progress func(path string) ingest.Progress) ([]ingest.Result, error) {
	results := make([]ingest.Result, 0, len(files))
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := svc.Ingest(ctx, ingest.Request{
			Path:     path,
			Wipe:     wipe && i == 0,
			DryRun:   dryRun,
			Progress: progress(path),
		})
		if err != nil {
			return results, fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// publishAll queues one message per file. Paths are made absolute because
// the worker may run from another directory.
func publishAll(p worker.Publisher, files []string, wipe bool) error {
	for i, path := range files {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		payload := worker.IngestPayload{Path: abs, Wipe: wipe && i == 0, CorrelationID: uuid.NewString()}
		if err := worker.PublishIngest(p, payload); err != nil {
			return err
		}
		fmt.Printf("queued %s (correlation_id=%s)\n", abs, payload.CorrelationID)
	}
	return nil
}

func printResult(w io.Writer, res ingest.Result, dryRun bool) {
	fmt.Fprintf(w, "%s\n", res.Path)
	fmt.Fprintf(w, "  extracted %d characters into %d chunks\n", res.Characters, res.Chunks)
	for i, p := range res.Preview {
		fmt.Fprintf(w, "    chunk[%d]: %q\n", i, p)
	}
	if rest := res.Chunks - len(res.Preview); rest > 0 {
		fmt.Fprintf(w, "    ... and %d more\n", rest)
	}
	if dryRun {
		fmt.Fprintln(w, "  dry run, nothing stored")
		return
	}
	if res.Removed > 0 {
		fmt.Fprintf(w, "  wiped %d existing chunks\n", res.Removed)
	}
	fmt.Fprintf(w, "  added %d new chunks (skipped %d duplicates)\n", res.Added, res.Duplicates)
	fmt.Fprintf(w, "  total documents in index: %d\n", res.Total)
}

// nopIndex stands in for the real index on dry runs.
type nopIndex struct{}

func (nopIndex) Add(context.Context, []string) (int, error) { return 0, nil }
func (nopIndex) Wipe(context.Context) (int, error)          { return 0, nil }
func (nopIndex) Count(context.Context) (int, error)         { return 0, nil }
