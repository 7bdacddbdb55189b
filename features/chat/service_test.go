package chat_test

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"folio/features/chat"
	"folio/internal/apperr"
	"folio/internal/prompt"
)

var testConfig = chat.Config{
	MaxMessageLength: 20,
	MaxHistory:       10,
	RateLimitMax:     20,
	RateLimitWindow:  60 * time.Second,
}

var builtPrompt = []prompt.Message{{Role: "system", Content: "rules"}, {Role: "user", Content: "question"}}

type fixture struct {
	repo    *MockRepo
	builder *MockBuilder
	gen     *fakeGenerator
	limiter *fakeLimiter
	svc     *chat.Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:    new(MockRepo),
		builder: new(MockBuilder),
		gen:     &fakeGenerator{},
		limiter: &fakeLimiter{allow: true},
	}
	f.svc = chat.NewService(f.repo, f.builder, f.gen, f.limiter, testConfig)
	return f
}

// expectQuestion wires the happy path up to the returned Reply and captures
// the saved assistant turn.
func (f *fixture) expectQuestion(assistant *chat.Turn) {
	f.repo.On("Save", mock.Anything, isRole(chat.RoleUser)).
		Run(func(args mock.Arguments) { args.Get(1).(*chat.Turn).ID = 42 }).
		Return(nil).Once()
	f.repo.On("Recent", mock.Anything, "s1", int64(42), 10).Return([]chat.Turn{}, nil)
	f.builder.On("Build", mock.Anything, "hi", []prompt.Message{}, 0).Return(builtPrompt, nil)
	f.repo.On("Save", mock.Anything, isRole(chat.RoleAssistant)).
		Run(func(args mock.Arguments) { *assistant = *args.Get(1).(*chat.Turn) }).
		Return(nil).Once()
}

func TestAsk_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     chat.AskRequest
		message string
	}{
		{"Missing Session", chat.AskRequest{SessionID: "  ", Message: "hi"}, "session_id is required."},
		{"Long Session", chat.AskRequest{SessionID: strings.Repeat("s", 101), Message: "hi"}, "session_id must be at most 100 characters."},
		{"Empty Message", chat.AskRequest{SessionID: "s1", Message: " \n"}, "message is required."},
		{"Long Message", chat.AskRequest{SessionID: "s1", Message: strings.Repeat("é", 21)}, "Message too long. Max 20 characters."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			reply, err := f.svc.Ask(context.Background(), tt.req)

			assert.Nil(t, reply)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.message, apperr.Message(err))
			assert.Zero(t, f.limiter.calls, "validation runs before the limiter")
			f.repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestAsk_MessageAtLimit(t *testing.T) {
	f := newFixture()
	f.repo.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.repo.On("Recent", mock.Anything, "s1", int64(0), 10).Return([]chat.Turn{}, nil)
	f.builder.On("Build", mock.Anything, mock.Anything, mock.Anything, 0).Return(builtPrompt, nil)

	_, err := f.svc.Ask(context.Background(), chat.AskRequest{SessionID: "s1", Message: strings.Repeat("é", 20)})
	assert.NoError(t, err)
}

func TestAsk_RateLimited(t *testing.T) {
	f := newFixture()
	f.limiter.allow = false

	_, err := f.svc.Ask(context.Background(), chat.AskRequest{SessionID: "s1", Message: "hi"})

	assert.Equal(t, apperr.KindRateLimit, apperr.KindOf(err))
	assert.Equal(t, "Rate limit exceeded. Max 20 requests per 60s.", apperr.Message(err))
	assert.Equal(t, http.StatusTooManyRequests, apperr.HTTPStatus(apperr.KindOf(err)))
	f.repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAsk_SaveFailure(t *testing.T) {
	f := newFixture()
	f.repo.On("Save", mock.Anything, isRole(chat.RoleUser)).Return(errors.New("pq: connection refused"))

	_, err := f.svc.Ask(context.Background(), chat.AskRequest{SessionID: "s1", Message: "hi"})

	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Equal(t, "Internal server error.", apperr.Message(err))
}

func TestAsk_BuildFailure(t *testing.T) {
	f := newFixture()
	f.repo.On("Save", mock.Anything, isRole(chat.RoleUser)).Return(nil)
	f.repo.On("Recent", mock.Anything, "s1", int64(0), 10).Return([]chat.Turn{}, nil)
	f.builder.On("Build", mock.Anything, "hi", []prompt.Message{}, 0).Return(nil, errors.New("index offline"))

	_, err := f.svc.Ask(context.Background(), chat.AskRequest{SessionID: "s1", Message: "hi"})

	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Equal(t, "Failed to process your question.", apperr.Message(err))
}

func TestAsk_PassesHistoryInOrder(t *testing.T) {
	f := newFixture()
	f.repo.On("Save", mock.Anything, isRole(chat.RoleUser)).
		Run(func(args mock.Arguments) { args.Get(1).(*chat.Turn).ID = 7 }).
		Return(nil)
	f.repo.On("Recent", mock.Anything, "s1", int64(7), 10).Return([]chat.Turn{
		{ID: 5, Role: chat.RoleUser, Message: "earlier question"},
		{ID: 6, Role: chat.RoleAssistant, Message: "earlier answer"},
	}, nil)
	f.builder.On("Build", mock.Anything, "hi", []prompt.Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}, 0).Return(builtPrompt, nil)

	_, err := f.svc.Ask(context.Background(), chat.AskRequest{SessionID: " s1 ", Message: "hi"})
	require.NoError(t, err)
	f.builder.AssertExpectations(t)
}

func TestReply_StreamsAndPersists(t *testing.T) {
	f := newFixture()
	var saved chat.Turn
	f.expectQuestion(&saved)
	f.gen.tokens = []string{"Hi", " there"}

	reply, err := f.svc.Ask(context.Background(), chat.AskRequest{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)

	tokens := slices.Collect(reply.Tokens())
	assert.Equal(t, []string{"Hi", " there"}, tokens)
	assert.Equal(t, builtPrompt, f.gen.messages)
	assert.Equal(t, "Hi there", saved.Message)
	assert.Equal(t, "s1", saved.SessionID)

	assert.Empty(t, slices.Collect(reply.Tokens()), "a reply streams once")
	f.repo.AssertNumberOfCalls(t, "Save", 2)
}

func TestReply_UpstreamFailure(t *testing.T) {
	f := newFixture()
	var saved chat.Turn
	f.expectQuestion(&saved)
	f.gen.tokens = []string{"partial"}
	f.gen.err = apperr.Upstream(http.StatusUnauthorized, errors.New("openrouter returned 401"))

	reply, err := f.svc.Ask(context.Background(), chat.AskRequest{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)

	tokens := slices.Collect(reply.Tokens())
	assert.Equal(t, []string{"partial", apperr.MsgUpstream}, tokens)
	assert.True(t, strings.HasPrefix(saved.Message, "[Error] "), saved.Message)
	assert.Contains(t, saved.Message, "401")
}

func TestReply_FriendlyMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"Unavailable", apperr.Wrap(apperr.KindUnavailable, apperr.MsgUnavailable, errors.New("dial tcp: refused")), apperr.MsgUnavailable},
		{"Timeout", apperr.Wrap(apperr.KindTimeout, apperr.MsgTimeout, errors.New("deadline")), apperr.MsgTimeout},
		{"Unexpected", errors.New("boom"), "Sorry, something went wrong. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			var saved chat.Turn
			f.expectQuestion(&saved)
			f.gen.err = tt.err

			reply, err := f.svc.Ask(context.Background(), chat.AskRequest{SessionID: "s1", Message: "hi"})
			require.NoError(t, err)

			assert.Equal(t, []string{tt.want}, slices.Collect(reply.Tokens()))
			assert.Equal(t, "[Error] "+tt.err.Error(), saved.Message)
		})
	}
}

func TestReply_ConsumerStopsEarly(t *testing.T) {
	f := newFixture()
	var saved chat.Turn
	f.expectQuestion(&saved)
	f.gen.tokens = []string{"one", "two", "three"}

	reply, err := f.svc.Ask(context.Background(), chat.AskRequest{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)

	for tok := range reply.Tokens() {
		assert.Equal(t, "one", tok)
		break
	}
	assert.Equal(t, "one", saved.Message)
}

func TestReply_PersistsWithDetachedContext(t *testing.T) {
	f := newFixture()
	f.repo.On("Save", mock.Anything, isRole(chat.RoleUser)).Return(nil)
	f.repo.On("Recent", mock.Anything, "s1", int64(0), 10).Return([]chat.Turn{}, nil)
	f.builder.On("Build", mock.Anything, "hi", []prompt.Message{}, 0).Return(builtPrompt, nil)

	var saveCtxErr error
	var hasDeadline bool
	f.repo.On("Save", mock.Anything, isRole(chat.RoleAssistant)).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			saveCtxErr = ctx.Err()
			_, hasDeadline = ctx.Deadline()
		}).
		Return(errors.New("db gone"))
	f.gen.tokens = []string{"answer"}

	ctx, cancel := context.WithCancel(context.Background())
	reply, err := f.svc.Ask(ctx, chat.AskRequest{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)
	cancel()

	assert.Equal(t, []string{"answer"}, slices.Collect(reply.Tokens()), "a failed save does not surface")
	assert.NoError(t, saveCtxErr)
	assert.True(t, hasDeadline)
}

func TestService_History(t *testing.T) {
	f := newFixture()

	_, err := f.svc.History(context.Background(), "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	turns := []chat.Turn{{ID: 1, Role: "user", Message: "hi"}}
	f.repo.On("History", mock.Anything, "s1").Return(turns, nil)
	got, err := f.svc.History(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, turns, got)
}
