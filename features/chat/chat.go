package chat

import (
	"context"
	"iter"
	"time"

	"folio/internal/prompt"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	MaxSessionIDLength = 100
)

// Turn is one stored message of a conversation.
type Turn struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"-"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists conversation turns. Save fills in ID and CreatedAt.
type Repository interface {
	Save(ctx context.Context, turn *Turn) error
	Recent(ctx context.Context, sessionID string, beforeID int64, limit int) ([]Turn, error)
	History(ctx context.Context, sessionID string) ([]Turn, error)
}

type PromptBuilder interface {
	Build(ctx context.Context, query string, history []prompt.Message, topK int) ([]prompt.Message, error)
}

type Generator interface {
	Stream(ctx context.Context, messages []prompt.Message) iter.Seq2[string, error]
}

type Limiter interface {
	Allow(key string) bool
}

type AskRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}
