package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"folio/internal/apperr"
	"folio/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Chat answers a question as a server-sent event stream, one event per token.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid request body", http.StatusBadRequest)
		return
	}

	// Checked before Ask: once the question is saved the reply must be drained.
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(ctx, w, "INTERNAL_ERROR", "Streaming not supported", http.StatusInternalServerError)
		return
	}

	reply, err := h.service.Ask(ctx, req)
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for token := range reply.Tokens() {
		if err := writeEvent(w, token); err != nil {
			slog.InfoContext(ctx, "stopped streaming to client", "error", err)
			return
		}
		flusher.Flush()
	}
}

// History lists the stored turns of one session.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	turns, err := h.service.History(ctx, r.URL.Query().Get("session_id"))
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(turns); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// writeEvent frames token as one SSE event. Each line of a multi-line token
// gets its own data field so the client rebuilds it with newlines. CR and
// CRLF are line terminators in SSE too, so they become plain newlines.
func writeEvent(w http.ResponseWriter, token string) error {
	var sb strings.Builder
	for _, line := range strings.Split(lineBreaks.Replace(token), "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	_, err := fmt.Fprint(w, sb.String())
	return err
}

func (h *Handler) writeAppError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind != apperr.KindValidation && kind != apperr.KindRateLimit {
		slog.ErrorContext(ctx, "chat request failed", "error", err)
	}
	h.writeError(ctx, w, apperr.Code(kind), apperr.Message(err), apperr.HTTPStatus(kind))
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
