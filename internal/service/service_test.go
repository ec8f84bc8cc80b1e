// ABOUTME: Tests for the chat service over a real control loop and sqlite store
// ABOUTME: Covers validation, session continuity, persistence and projection
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/twin/internal/handlers"
	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/orchestrator"
	"github.com/harper/twin/internal/router"
	"github.com/harper/twin/internal/storage"
	"github.com/harper/twin/internal/storage/sqlite"
)

// echoHandler answers with the number of messages it saw and the latest text
type echoHandler struct {
	label models.Label
}

func (h echoHandler) Label() models.Label { return h.label }

func (h echoHandler) Handle(_ context.Context, state *models.TurnState) (handlers.Reply, error) {
	latest, ok := state.LatestUserMessage()
	if !ok {
		return handlers.Reply{}, handlers.ErrNoUserMessage
	}
	return handlers.Reply{Text: fmt.Sprintf("%s[%d]: %s", h.label, len(state.Messages()), latest.Content)}, nil
}

func newTestService(t *testing.T, withStore bool) *Service {
	t.Helper()

	registry := handlers.NewRegistry(echoHandler{label: models.LabelGeneral}, zerolog.Nop())
	for _, l := range models.Labels {
		if l != models.LabelGeneral {
			registry.Register(echoHandler{label: l})
		}
	}
	rt := router.New(nil, router.WithLogger(zerolog.Nop()))
	orch := orchestrator.New(rt, registry)

	var store storage.ConversationStore
	if withStore {
		db, err := sqlite.OpenInMemory()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		store = sqlite.NewConversationStore(db)
	}

	return New(orch, rt, store, WithLogger(zerolog.Nop()), WithMaxMessageLength(50))
}

func TestChat_Validation(t *testing.T) {
	svc := newTestService(t, true)

	tests := []struct {
		name string
		req  ChatRequest
	}{
		{"empty message", ChatRequest{Message: ""}},
		{"whitespace message", ChatRequest{Message: "   "}},
		{"too long", ChatRequest{Message: strings.Repeat("x", 51)}},
		{"negative iterations", ChatRequest{Message: "hi", MaxIterations: -1}},
		{"too many iterations", ChatRequest{Message: "hi", MaxIterations: 21}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Chat(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	convs, err := svc.ListConversations(context.Background(), DefaultUserID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, convs, "rejected requests must not create conversations")
}

func TestChat_ProjectsTurn(t *testing.T) {
	svc := newTestService(t, true)

	resp, err := svc.Chat(context.Background(), ChatRequest{Message: "Can you help me debug this python code?"})
	require.NoError(t, err)

	assert.Equal(t, models.LabelProfessional, resp.AgentUsed)
	assert.InDelta(t, 0.75, resp.Confidence, 1e-9)
	assert.Equal(t, "professional[1]: Can you help me debug this python code?", resp.Response)
	assert.Equal(t, 1, resp.Iterations)
	assert.True(t, strings.HasPrefix(resp.SessionID, "session_"))
	assert.True(t, strings.HasPrefix(resp.ConversationID, "conv_"))
	assert.NotEmpty(t, resp.TurnID)
	assert.Len(t, resp.RoutingHistory, 1)
	assert.GreaterOrEqual(t, resp.ProcessingTimeMS, 0.0)
	assert.Empty(t, resp.Error)

	seen := map[models.LogKey]bool{}
	for _, e := range resp.IterationDetails {
		assert.False(t, seen[e.Key()], "duplicate log entry %v", e.Key())
		seen[e.Key()] = true
	}
}

func TestChat_ContinuesSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, true)

	first, err := svc.Chat(ctx, ChatRequest{Message: "hello", UserID: "alice", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "s1", first.SessionID)
	assert.Equal(t, "general[1]: hello", first.Response)

	second, err := svc.Chat(ctx, ChatRequest{Message: "again", UserID: "alice", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	// two stored messages seed the turn before the new user message
	assert.Equal(t, "general[3]: again", second.Response)

	byID, err := svc.Chat(ctx, ChatRequest{Message: "third", UserID: "alice", ConversationID: first.ConversationID})
	require.NoError(t, err)
	assert.Equal(t, "s1", byID.SessionID)
	assert.Equal(t, "general[5]: third", byID.Response)

	conv, err := svc.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 6)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, models.LabelGeneral, conv.Messages[1].Label)
	assert.InDelta(t, 0.6, conv.Messages[1].Confidence, 1e-9)
}

func TestChat_ForeignConversationIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, true)

	resp, err := svc.Chat(ctx, ChatRequest{Message: "hello", UserID: "alice"})
	require.NoError(t, err)

	_, err = svc.Chat(ctx, ChatRequest{Message: "hi", UserID: "bob", ConversationID: resp.ConversationID})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Chat(ctx, ChatRequest{Message: "hi", ConversationID: "conv_missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChat_WithoutStore(t *testing.T) {
	svc := newTestService(t, false)

	resp, err := svc.Chat(context.Background(), ChatRequest{Message: "should i choose go or rust?"})
	require.NoError(t, err)
	assert.Equal(t, models.LabelDecision, resp.AgentUsed)
	assert.Empty(t, resp.ConversationID)
	assert.NotEmpty(t, resp.SessionID)

	convs, err := svc.ListConversations(context.Background(), "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, convs)

	_, err = svc.GetConversation(context.Background(), "conv_x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChat_ConcurrentSameSessionSharesConversation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, true)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.Chat(ctx, ChatRequest{Message: fmt.Sprintf("msg %d", i), UserID: "alice", SessionID: "shared"})
			errs[i] = err
			if err == nil {
				ids[i] = resp.ConversationID
			}
		}()
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	conv, err := svc.GetConversation(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 16)
}

func TestListAndDeleteConversations(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, true)

	for i := 0; i < 3; i++ {
		_, err := svc.Chat(ctx, ChatRequest{Message: "hi", UserID: "alice", SessionID: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
	}

	convs, err := svc.ListConversations(ctx, "alice", 2, 0)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, 2, convs[0].MessageCount)
	assert.True(t, strings.HasPrefix(convs[0].Title, "Conversation "))
	assert.False(t, convs[0].UpdatedAt.Before(convs[1].UpdatedAt))

	require.NoError(t, svc.DeleteConversation(ctx, convs[0].ID))
	err = svc.DeleteConversation(ctx, convs[0].ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	remaining, err := svc.ListConversations(ctx, "alice", 0, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

// historyReadCounter records full history reads
type historyReadCounter struct {
	storage.ConversationStore
	mu    sync.Mutex
	reads int
}

func (c *historyReadCounter) Messages(ctx context.Context, conversationID string, limit int) ([]models.StoredMessage, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.ConversationStore.Messages(ctx, conversationID, limit)
}

func TestListConversations_CountsWithoutReadingHistory(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, true)
	for i := 0; i < 3; i++ {
		_, err := svc.Chat(ctx, ChatRequest{Message: "hi", UserID: "alice", SessionID: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
	}

	counter := &historyReadCounter{ConversationStore: svc.Store()}
	listing := New(nil, nil, counter)

	convs, err := listing.ListConversations(ctx, "alice", 0, 0)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	for _, c := range convs {
		assert.Equal(t, 2, c.MessageCount)
	}
	assert.Zero(t, counter.reads)
}

func TestRoute(t *testing.T) {
	svc := newTestService(t, false)

	resp, err := svc.Route(context.Background(), "help me write an email")
	require.NoError(t, err)
	assert.Equal(t, models.LabelCommunication, resp.Label)
	assert.Equal(t, models.SourceKeyword, resp.Source)

	_, err = svc.Route(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestProject_SubstitutedHandlerLabel(t *testing.T) {
	state, err := models.NewTurnState("u", "s", 3, nil)
	require.NoError(t, err)
	user, _ := models.NewMessage(models.RoleUser, "q", "")
	state.AppendMessage(user)
	d, err := models.NewRoutingDecision(models.Classification{Label: models.LabelDecision, Confidence: 0.8, Source: models.SourceModel})
	require.NoError(t, err)
	state.AppendRoutingDecision(*d)
	reply, _ := models.NewMessage(models.RoleAssistant, "fallback answer", models.LabelGeneral)
	state.AppendMessage(reply)
	state.SetFinalResponse(reply.Content)

	resp := Project(state, 1500*time.Microsecond)
	assert.Equal(t, models.LabelGeneral, resp.AgentUsed)
	assert.InDelta(t, 0.8, resp.Confidence, 1e-9)
	assert.Equal(t, "fallback answer", resp.Response)
	assert.InDelta(t, 1.5, resp.ProcessingTimeMS, 1e-9)
}

func TestExampleState(t *testing.T) {
	snap := ExampleState().Snapshot()
	assert.Len(t, snap.Messages, 2)
	assert.Len(t, snap.RoutingHistory, 1)
	require.NotNil(t, snap.FinalResponse)
	assert.Equal(t, "Example response", *snap.FinalResponse)
	assert.False(t, snap.ShouldContinue)
}
