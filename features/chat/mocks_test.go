package chat_test

import (
	"context"
	"iter"
	"sync"

	"github.com/stretchr/testify/mock"

	"folio/features/chat"
	"folio/internal/prompt"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Save(ctx context.Context, turn *chat.Turn) error {
	return m.Called(ctx, turn).Error(0)
}

func (m *MockRepo) Recent(ctx context.Context, sessionID string, beforeID int64, limit int) ([]chat.Turn, error) {
	args := m.Called(ctx, sessionID, beforeID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chat.Turn), args.Error(1)
}

func (m *MockRepo) History(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chat.Turn), args.Error(1)
}

type MockBuilder struct{ mock.Mock }

func (m *MockBuilder) Build(ctx context.Context, query string, history []prompt.Message, topK int) ([]prompt.Message, error) {
	args := m.Called(ctx, query, history, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]prompt.Message), args.Error(1)
}

// fakeGenerator yields tokens, then err if set.
type fakeGenerator struct {
	tokens   []string
	err      error
	messages []prompt.Message
}

func (g *fakeGenerator) Stream(_ context.Context, messages []prompt.Message) iter.Seq2[string, error] {
	g.messages = messages
	return func(yield func(string, error) bool) {
		for _, tok := range g.tokens {
			if !yield(tok, nil) {
				return
			}
		}
		if g.err != nil {
			yield("", g.err)
		}
	}
}

type fakeLimiter struct {
	mu    sync.Mutex
	allow bool
	calls int
}

func (l *fakeLimiter) Allow(string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.allow
}

func isRole(role string) interface{} {
	return mock.MatchedBy(func(t *chat.Turn) bool { return t.Role == role })
}
