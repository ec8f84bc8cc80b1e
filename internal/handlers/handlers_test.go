// ABOUTME: Tests for handler profiles, LLM handlers and registry dispatch
// ABOUTME: Covers failure substitution, panics, history windows and retrieved context
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/harper/twin/internal/llm"
	"github.com/harper/twin/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	label models.Label
	reply Reply
	err   error
	panic string
	calls int
}

func (s *stubHandler) Label() models.Label { return s.label }

func (s *stubHandler) Handle(ctx context.Context, state *models.TurnState) (Reply, error) {
	s.calls++
	if s.panic != "" {
		panic(s.panic)
	}
	return s.reply, s.err
}

type stubRetriever struct {
	text    string
	domains []models.Domain
}

func (s *stubRetriever) RetrieveContext(ctx context.Context, query string, domain models.Domain, topK int) string {
	s.domains = append(s.domains, domain)
	return s.text
}

func newState(t *testing.T, text string) *models.TurnState {
	t.Helper()
	s, err := models.NewTurnState("u", "s", 5, nil)
	require.NoError(t, err)
	m, err := models.NewMessage(models.RoleUser, text, "")
	require.NoError(t, err)
	s.AppendMessage(m)
	return s
}

func TestLoadProfiles(t *testing.T) {
	profiles, err := LoadProfiles()
	require.NoError(t, err)
	require.Len(t, profiles, len(models.Labels))

	assert.InDelta(t, 0.3, profiles[models.LabelProfessional].Temperature, 1e-9)
	assert.InDelta(t, 0.5, profiles[models.LabelCommunication].Temperature, 1e-9)
	assert.InDelta(t, 0.4, profiles[models.LabelKnowledge].Temperature, 1e-9)
	assert.InDelta(t, 0.4, profiles[models.LabelDecision].Temperature, 1e-9)
	assert.InDelta(t, 0.7, profiles[models.LabelGeneral].Temperature, 1e-9)
	assert.Equal(t, 10, profiles[models.LabelKnowledge].History)

	assert.Less(t, profiles[models.LabelProfessional].Temperature, profiles[models.LabelGeneral].Temperature,
		"technical handler must be less random than the general handler")
	for label, p := range profiles {
		assert.NotEmpty(t, p.Prompt, "prompt for %s", label)
	}
}

func TestParseProfiles_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "profiles: [unclosed"},
		{"unknown label", "profiles:\n  - label: weather\n    temperature: 0.1\n"},
		{"missing labels", "profiles:\n  - label: general\n    temperature: 0.7\n"},
		{"bad temperature", "profiles:\n  - label: general\n    temperature: 5\n"},
		{"duplicate", "profiles:\n  - label: general\n  - label: general\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfiles([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLLMHandler_Handle(t *testing.T) {
	var captured llm.Request
	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		captured = req
		return llm.StructuredResponse(map[string]any{"content": "structured answer"}), nil
	})
	retriever := &stubRetriever{text: "Retrieved Context:\n[Document 1 - Source: notes.md]\nGo is fun"}
	profile := Profile{Label: models.LabelProfessional, Temperature: 0.3, History: 1, Prompt: "Be technical.", ContextNote: "Use it."}

	h := NewLLMHandler(profile, gen, retriever, 3)
	reply, err := h.Handle(context.Background(), newState(t, "Help me debug this"))
	require.NoError(t, err)

	assert.Equal(t, "structured answer", reply.Text)
	assert.False(t, reply.Final)
	assert.InDelta(t, 0.3, captured.Temperature, 1e-9)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "Help me debug this", captured.Messages[0].Content)
	assert.True(t, strings.HasPrefix(captured.System, "Be technical."))
	assert.Contains(t, captured.System, "Source: notes.md")
	assert.True(t, strings.HasSuffix(captured.System, "Use it."))
	assert.Equal(t, []models.Domain{models.Domain(models.LabelProfessional)}, retriever.domains)
}

func TestLLMHandler_NoContextKeepsBarePrompt(t *testing.T) {
	var captured llm.Request
	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		captured = req
		return llm.TextResponse("ok"), nil
	})
	profile := Profile{Label: models.LabelGeneral, Temperature: 0.7, History: 1, Prompt: "Be nice.\n"}

	_, err := NewLLMHandler(profile, gen, &stubRetriever{}, 3).Handle(context.Background(), newState(t, "hi"))
	require.NoError(t, err)
	assert.Equal(t, "Be nice.", captured.System)

	_, err = NewLLMHandler(profile, gen, nil, 3).Handle(context.Background(), newState(t, "hi"))
	require.NoError(t, err)
	assert.Equal(t, "Be nice.", captured.System)
}

func TestLLMHandler_KnowledgeUsesLastTenMessages(t *testing.T) {
	var captured llm.Request
	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		captured = req
		return llm.TextResponse("ok"), nil
	})

	state, err := models.NewTurnState("", "", 5, nil)
	require.NoError(t, err)
	for i := 0; i < 14; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		state.AppendMessage(models.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}
	state.AppendMessage(models.Message{Role: models.RoleUser, Content: "what do i like?"})

	profile := Profile{Label: models.LabelKnowledge, Temperature: 0.4, History: 10, Prompt: "p"}
	_, err = NewLLMHandler(profile, gen, nil, 0).Handle(context.Background(), state)
	require.NoError(t, err)

	require.Len(t, captured.Messages, 10)
	assert.Equal(t, "m5", captured.Messages[0].Content)
	assert.Equal(t, "what do i like?", captured.Messages[9].Content)
}

func TestLLMHandler_Errors(t *testing.T) {
	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("rate limited")
	})
	h := NewLLMHandler(Profile{Label: models.LabelDecision, History: 1}, gen, nil, 0)

	_, err := h.Handle(context.Background(), newState(t, "should i"))
	assert.ErrorContains(t, err, "rate limited")

	empty, err := models.NewTurnState("", "", 1, nil)
	require.NoError(t, err)
	_, err = h.Handle(context.Background(), empty)
	assert.ErrorIs(t, err, ErrNoUserMessage)
}

func TestRegistry_Dispatch(t *testing.T) {
	general := &stubHandler{label: models.LabelGeneral, reply: Reply{Text: "general answer"}}
	pro := &stubHandler{label: models.LabelProfessional, reply: Reply{Text: "pro answer", Final: true}}
	r := NewRegistry(general, zerolog.Nop())
	r.Register(pro)

	state := newState(t, "code")
	out := r.Dispatch(context.Background(), models.LabelProfessional, state)

	assert.Equal(t, models.LabelProfessional, out.Label)
	assert.True(t, out.Final)
	assert.False(t, out.Substituted)
	assert.NoError(t, out.Err)

	msgs := state.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "pro answer", msgs[1].Content)
	assert.Equal(t, models.LabelProfessional, msgs[1].Label)
	assert.Empty(t, state.Log())
}

func TestRegistry_UnknownLabelUsesDefault(t *testing.T) {
	general := &stubHandler{label: models.LabelGeneral, reply: Reply{Text: "general answer"}}
	r := NewRegistry(general, zerolog.Nop())

	state := newState(t, "hm")
	out := r.Dispatch(context.Background(), models.LabelDecision, state)
	assert.Equal(t, models.LabelGeneral, out.Label)
	assert.False(t, out.Substituted)
	assert.Equal(t, 1, general.calls)
}

func TestRegistry_FailingHandlerIsSubstituted(t *testing.T) {
	tests := []struct {
		name   string
		failer *stubHandler
	}{
		{"error", &stubHandler{label: models.LabelDecision, err: errors.New("backend down")}},
		{"panic", &stubHandler{label: models.LabelDecision, panic: "nil map"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			general := &stubHandler{label: models.LabelGeneral, reply: Reply{Text: "general answer"}}
			r := NewRegistry(general, zerolog.Nop())
			r.Register(tt.failer)

			state := newState(t, "should i")
			out := r.Dispatch(context.Background(), models.LabelDecision, state)

			assert.True(t, out.Substituted)
			assert.Error(t, out.Err)
			assert.Equal(t, models.LabelGeneral, out.Label)

			msgs := state.Messages()
			require.Len(t, msgs, 2)
			assert.Equal(t, "general answer", msgs[1].Content)

			log := state.Log()
			require.Len(t, log, 1)
			assert.Equal(t, models.ActorDispatcher, log[0].Actor)
			assert.Equal(t, 1, log[0].Iteration)
			assert.Contains(t, log[0].Action, "substituted general handler for decision")
		})
	}
}

func TestRegistry_DefaultFailureAppendsApology(t *testing.T) {
	general := &stubHandler{label: models.LabelGeneral, err: errors.New("also down")}
	r := NewRegistry(general, zerolog.Nop())
	r.Register(&stubHandler{label: models.LabelKnowledge, panic: "boom"})

	state := newState(t, "what do i like")
	out := r.Dispatch(context.Background(), models.LabelKnowledge, state)

	assert.True(t, out.Substituted)
	assert.Equal(t, ApologyText, out.Message.Content)
	require.Len(t, state.Messages(), 2)
	require.Len(t, state.Log(), 1)
	assert.Contains(t, state.Log()[0].Action, "apology")

	// the default handler failing on its own label goes straight to the apology
	state = newState(t, "hi")
	out = r.Dispatch(context.Background(), models.LabelGeneral, state)
	assert.Equal(t, ApologyText, out.Message.Content)
	assert.Equal(t, 2, general.calls)
}

func TestNewLLMRegistry(t *testing.T) {
	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.TextResponse(fmt.Sprintf("t=%.1f", req.Temperature)), nil
	})
	r, err := NewLLMRegistry(gen, nil, 3, zerolog.Nop())
	require.NoError(t, err)

	for _, label := range models.Labels {
		h := r.Lookup(label)
		assert.Equal(t, label, h.Label())
	}

	state := newState(t, "code")
	out := r.Dispatch(context.Background(), models.LabelProfessional, state)
	assert.Equal(t, "t=0.3", out.Message.Content)
}
