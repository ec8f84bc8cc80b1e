// ABOUTME: Handler turns accumulated turn state into one assistant reply
// ABOUTME: LLMHandler is the model-backed implementation driven by a Profile
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harper/twin/internal/llm"
	"github.com/harper/twin/internal/models"
)

// ErrNoUserMessage is returned when the state holds no user message to answer
var ErrNoUserMessage = errors.New("no user message to answer")

// Reply is what a handler produces. Final marks the reply as the turn's answer.
type Reply struct {
	Text  string
	Final bool
}

// Handler answers a turn for one label. Handlers only read the state; the
// registry appends their reply.
type Handler interface {
	Label() models.Label
	Handle(ctx context.Context, state *models.TurnState) (Reply, error)
}

// ContextRetriever supplies formatted external context for a query.
// It returns an empty string when nothing relevant exists and never fails.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, query string, domain models.Domain, topK int) string
}

// LLMHandler answers with a generation backend using its profile
type LLMHandler struct {
	profile   Profile
	generator llm.Generator
	retriever ContextRetriever
	topK      int
}

// NewLLMHandler creates a handler. retriever may be nil.
func NewLLMHandler(profile Profile, generator llm.Generator, retriever ContextRetriever, topK int) *LLMHandler {
	return &LLMHandler{
		profile:   profile,
		generator: generator,
		retriever: retriever,
		topK:      topK,
	}
}

// Label returns the label this handler answers for
func (h *LLMHandler) Label() models.Label {
	return h.profile.Label
}

// Temperature returns the handler's fixed generation temperature
func (h *LLMHandler) Temperature() float64 {
	return h.profile.Temperature
}

// Handle generates a reply to the latest user message
func (h *LLMHandler) Handle(ctx context.Context, state *models.TurnState) (Reply, error) {
	latest, ok := state.LatestUserMessage()
	if !ok {
		return Reply{}, ErrNoUserMessage
	}

	resp, err := h.generator.Generate(ctx, llm.Request{
		System:      h.systemPrompt(ctx, latest.Content),
		Messages:    h.history(state, latest),
		Temperature: h.profile.Temperature,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("%s handler: %w", h.profile.Label, err)
	}
	return Reply{Text: resp.Text()}, nil
}

func (h *LLMHandler) systemPrompt(ctx context.Context, query string) string {
	prompt := strings.TrimSpace(h.profile.Prompt)
	if h.retriever == nil || h.topK <= 0 {
		return prompt
	}
	retrieved := h.retriever.RetrieveContext(ctx, query, models.Domain(h.profile.Label), h.topK)
	if retrieved == "" {
		return prompt
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", prompt, retrieved, h.profile.ContextNote)
}

func (h *LLMHandler) history(state *models.TurnState, latest models.Message) []models.Message {
	if h.profile.History <= 1 {
		return []models.Message{latest}
	}
	var msgs []models.Message
	for _, m := range state.RecentMessages(h.profile.History) {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			msgs = append(msgs, m)
		}
	}
	return msgs
}
