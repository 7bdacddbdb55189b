package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"folio/internal/text"
)

var ErrEmptyDocument = errors.New("document has no text to ingest")

type Index interface {
	Add(ctx context.Context, chunks []string) (int, error)
	Wipe(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

// Progress receives per-chunk updates. All methods may be no-ops.
type Progress interface {
	Start(total int)
	Increment()
	Finish()
}

type Config struct {
	ChunkSize int
	Overlap   int
}

type Request struct {
	Path string `json:"path"`
	// Wipe replaces the whole corpus with this document.
	Wipe   bool `json:"wipe"`
	DryRun bool `json:"dry_run"`

	Progress Progress `json:"-"`
}

type Result struct {
	Path       string `json:"path"`
	Characters int    `json:"characters"`
	Chunks     int    `json:"chunks"`
	Removed    int    `json:"removed"`
	Added      int    `json:"added"`
	Duplicates int    `json:"duplicates"`
	Total      int    `json:"total"`

	// Preview holds the leading runes of the first few chunks.
	Preview []string `json:"preview,omitempty"`
}

const (
	previewChunks = 3
	previewRunes  = 80
)

type Service struct {
	index Index
	cfg   Config
}

func NewService(index Index, cfg Config) *Service {
	return &Service{index: index, cfg: cfg}
}

// Ingest loads, chunks and indexes one document. A wipe only happens once
// the document is known to produce chunks.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	res := Result{Path: req.Path}

	content, err := LoadText(req.Path)
	if err != nil {
		return res, err
	}
	res.Characters = utf8.RuneCountInString(content)

	chunks := text.ChunkText(content, s.cfg.ChunkSize, s.cfg.Overlap)
	res.Chunks = len(chunks)
	if len(chunks) == 0 {
		return res, fmt.Errorf("%s: %w", req.Path, ErrEmptyDocument)
	}
	res.Preview = preview(chunks)

	slog.InfoContext(ctx, "document chunked", "path", req.Path, "characters", res.Characters, "chunks", res.Chunks)
	if req.DryRun {
		return res, nil
	}

	if req.Wipe {
		res.Removed, err = s.index.Wipe(ctx)
		if err != nil {
			return res, err
		}
		slog.InfoContext(ctx, "corpus wiped", "removed", res.Removed)
	}

	progress := req.Progress
	if progress == nil {
		progress = nopProgress{}
	}
	progress.Start(len(chunks))
	defer progress.Finish()

	for _, chunk := range chunks {
		n, err := s.index.Add(ctx, []string{chunk})
		if err != nil {
			return res, err
		}
		res.Added += n
		progress.Increment()
	}
	res.Duplicates = res.Chunks - res.Added

	res.Total, err = s.index.Count(ctx)
	if err != nil {
		return res, err
	}

	slog.InfoContext(ctx, "ingestion finished",
		"path", req.Path, "added", res.Added, "duplicates", res.Duplicates, "total", res.Total)
	return res, nil
}

// LoadText reads a PDF through ExtractPDF and anything else as UTF-8 text.
func LoadText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return ExtractPDF(path)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: not valid UTF-8", path)
	}
	return string(data), nil
}

func preview(chunks []string) []string {
	out := make([]string, 0, min(len(chunks), previewChunks))
	for _, c := range chunks[:min(len(chunks), previewChunks)] {
		c = strings.ReplaceAll(c, "\n", " ")
		if r := []rune(c); len(r) > previewRunes {
			c = string(r[:previewRunes]) + "…"
		}
		out = append(out, c)
	}
	return out
}

type nopProgress struct{}

func (nopProgress) Start(int)  {}
func (nopProgress) Increment() {}
func (nopProgress) Finish()    {}
