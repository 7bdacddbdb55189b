package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"folio/internal/ingest"
	"folio/internal/middleware"
)

type IngestConsumer struct {
	ingester Ingester
}

func NewIngestConsumer(i Ingester) *IngestConsumer {
	return &IngestConsumer{ingester: i}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if payload.Path == "" {
		slog.Error("poison pill: missing path")
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	res, err := h.ingester.Ingest(ctx, ingest.Request{Path: payload.Path, Wipe: payload.Wipe})
	if err != nil {
		slog.ErrorContext(ctx, "ingestion failed", "error", err, "path", payload.Path, "attempts", m.Attempts)
		return err // Retry
	}

	slog.InfoContext(ctx, "document ingested", "path", res.Path, "added", res.Added, "total", res.Total)
	return nil
}
