package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"folio/internal/apperr"
	"folio/internal/logger"
	"folio/internal/prompt"
)

const saveTimeout = 10 * time.Second

type Config struct {
	MaxMessageLength int
	MaxHistory       int
	RateLimitMax     int
	RateLimitWindow  time.Duration
}

type Service struct {
	repo      Repository
	builder   PromptBuilder
	generator Generator
	limiter   Limiter
	cfg       Config
}

func NewService(repo Repository, b PromptBuilder, g Generator, l Limiter, cfg Config) *Service {
	return &Service{repo: repo, builder: b, generator: g, limiter: l, cfg: cfg}
}

// Ask validates and records the question, then returns a Reply whose
// tokens stream the answer. Errors returned here happen before any token
// and are *apperr.Error.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Reply, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if err := s.validate(sessionID, req.Message); err != nil {
		return nil, err
	}

	if !s.limiter.Allow(sessionID) {
		return nil, apperr.New(apperr.KindRateLimit, fmt.Sprintf("Rate limit exceeded. Max %d requests per %ds.",
			s.cfg.RateLimitMax, int(s.cfg.RateLimitWindow.Seconds())))
	}

	ctx = logger.WithSessionID(ctx, sessionID)

	question := &Turn{SessionID: sessionID, Role: RoleUser, Message: req.Message}
	if err := s.repo.Save(ctx, question); err != nil {
		slog.ErrorContext(ctx, "failed to save user turn", "error", err)
		return nil, apperr.Wrap(apperr.KindStorage, "Internal server error.", err)
	}

	var recent []Turn
	if s.cfg.MaxHistory > 0 {
		var err error
		recent, err = s.repo.Recent(ctx, sessionID, question.ID, s.cfg.MaxHistory)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load history", "error", err)
			return nil, apperr.Wrap(apperr.KindStorage, "Internal server error.", err)
		}
	}

	messages, err := s.builder.Build(ctx, req.Message, toMessages(recent), 0)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build prompt", "error", err)
		return nil, apperr.Wrap(apperr.KindStorage, "Failed to process your question.", err)
	}

	return &Reply{svc: s, ctx: ctx, sessionID: sessionID, messages: messages}, nil
}

// History returns every turn of the session, oldest first.
func (s *Service) History(ctx context.Context, sessionID string) ([]Turn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperr.New(apperr.KindValidation, "session_id is required.")
	}
	turns, err := s.repo.History(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "Internal server error.", err)
	}
	return turns, nil
}

func (s *Service) validate(sessionID, message string) error {
	switch {
	case sessionID == "":
		return apperr.New(apperr.KindValidation, "session_id is required.")
	case utf8.RuneCountInString(sessionID) > MaxSessionIDLength:
		return apperr.New(apperr.KindValidation, fmt.Sprintf("session_id must be at most %d characters.", MaxSessionIDLength))
	case strings.TrimSpace(message) == "":
		return apperr.New(apperr.KindValidation, "message is required.")
	case utf8.RuneCountInString(message) > s.cfg.MaxMessageLength:
		return apperr.New(apperr.KindValidation, fmt.Sprintf("Message too long. Max %d characters.", s.cfg.MaxMessageLength))
	}
	return nil
}

func toMessages(turns []Turn) []prompt.Message {
	msgs := make([]prompt.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, prompt.Message{Role: t.Role, Content: t.Message})
	}
	return msgs
}

// Reply is the pending answer to one question.
type Reply struct {
	svc       *Service
	ctx       context.Context
	sessionID string
	messages  []prompt.Message
	used      atomic.Bool
}

// Tokens streams the answer. Generation failures surface as one final
// user-facing token rather than an error. When the sequence ends, however
// it ends, the assistant turn is saved once. Only the first call yields.
func (r *Reply) Tokens() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !r.used.CompareAndSwap(false, true) {
			return
		}

		var full strings.Builder
		var failure error
		defer func() { r.persist(full.String(), failure) }()

		for token, err := range r.svc.generator.Stream(r.ctx, r.messages) {
			if err != nil {
				if errors.Is(err, context.Canceled) && r.ctx.Err() != nil {
					slog.InfoContext(r.ctx, "client went away mid-stream", "received", full.Len())
					return
				}
				failure = err
				yield(friendlyMessage(r.ctx, err))
				return
			}
			full.WriteString(token)
			if !yield(token) {
				return
			}
		}
	}
}

func friendlyMessage(ctx context.Context, err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindUnavailable, apperr.KindTimeout, apperr.KindUpstream:
		slog.WarnContext(ctx, "generation failed", "error", err)
		return apperr.Message(err)
	default:
		slog.ErrorContext(ctx, "unexpected streaming error", "error", err)
		return apperr.MsgInternal
	}
}

func (r *Reply) persist(text string, failure error) {
	if failure != nil {
		text = "[Error] " + failure.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), saveTimeout)
	defer cancel()

	turn := &Turn{SessionID: r.sessionID, Role: RoleAssistant, Message: text}
	if err := r.svc.repo.Save(ctx, turn); err != nil {
		slog.ErrorContext(ctx, "failed to save assistant turn", "error", err)
	}
}
