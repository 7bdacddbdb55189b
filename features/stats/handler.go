package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"folio/internal/middleware"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	index   Counter
	backend string
}

// NewHandler reports the size of index; backend names the vector store in use.
func NewHandler(index Counter, backend string) *Handler {
	return &Handler{index: index, backend: backend}
}

type StatsResponse struct {
	Documents int    `json:"documents"`
	Backend   string `json:"backend"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	documents, err := h.index.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := StatsResponse{Documents: documents, Backend: h.backend}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
