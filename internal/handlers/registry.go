// ABOUTME: Registry maps labels to handlers and dispatches a turn to one of them
// ABOUTME: Handler failures are replaced by the default handler's output and logged
package handlers

import (
	"context"
	"fmt"

	"github.com/harper/twin/internal/llm"
	"github.com/harper/twin/internal/models"
	"github.com/rs/zerolog"
)

// ApologyText is used when both the routed handler and the default handler fail
const ApologyText = "I'm sorry, I couldn't generate a response right now. Please try again."

// Outcome describes what a dispatch did to the state
type Outcome struct {
	// Label is the handler that produced the appended message
	Label       models.Label
	Message     models.Message
	Final       bool
	Substituted bool
	Err         error
}

// Registry holds one handler per label plus the default handler.
// Register everything before dispatching; the registry is read-only afterwards
// and safe to share between concurrent turns.
type Registry struct {
	handlers map[models.Label]Handler
	fallback Handler
	logger   zerolog.Logger
}

// NewRegistry creates a registry whose default handler answers unknown labels
// and substitutes for failed handlers
func NewRegistry(defaultHandler Handler, logger zerolog.Logger) *Registry {
	r := &Registry{
		handlers: make(map[models.Label]Handler),
		fallback: defaultHandler,
		logger:   logger,
	}
	r.Register(defaultHandler)
	return r
}

// NewLLMRegistry builds a registry of LLM handlers from the embedded profiles
func NewLLMRegistry(generator llm.Generator, retriever ContextRetriever, topK int, logger zerolog.Logger) (*Registry, error) {
	profiles, err := LoadProfiles()
	if err != nil {
		return nil, err
	}

	r := NewRegistry(NewLLMHandler(profiles[models.LabelGeneral], generator, retriever, topK), logger)
	for _, label := range models.Labels {
		if label == models.LabelGeneral {
			continue
		}
		r.Register(NewLLMHandler(profiles[label], generator, retriever, topK))
	}
	return r, nil
}

// Register adds or replaces the handler for its label
func (r *Registry) Register(h Handler) {
	r.handlers[h.Label()] = h
}

// Lookup returns the handler for label, or the default handler if none is registered
func (r *Registry) Lookup(label models.Label) Handler {
	if h, ok := r.handlers[label]; ok {
		return h
	}
	return r.fallback
}

// Dispatch runs the handler for label and appends exactly one assistant message
// to state. A failing handler (error or panic) is replaced by the default
// handler; if that fails too a fixed apology is appended. Substitutions are
// recorded in the iteration log against the iteration in progress.
func (r *Registry) Dispatch(ctx context.Context, label models.Label, state *models.TurnState) Outcome {
	handler := r.Lookup(label)
	iteration := state.Iteration() + 1

	reply, err := safeHandle(ctx, handler, state)
	if err == nil {
		return r.appendReply(state, handler.Label(), reply, false, nil)
	}

	r.logger.Warn().
		Err(err).
		Str("label", handler.Label().String()).
		Int("iteration", iteration).
		Msg("handler failed, substituting default handler")

	if handler.Label() != r.fallback.Label() {
		fallbackReply, fallbackErr := safeHandle(ctx, r.fallback, state)
		if fallbackErr == nil {
			state.AppendLog(models.IterationLogEntry{
				Iteration: iteration,
				Actor:     models.ActorDispatcher,
				Action:    fmt.Sprintf("substituted %s handler for %s", r.fallback.Label(), handler.Label()),
				Rationale: err.Error(),
			})
			return r.appendReply(state, r.fallback.Label(), fallbackReply, true, err)
		}
		err = fmt.Errorf("%w; default handler: %v", err, fallbackErr)
	}

	r.logger.Error().Err(err).Int("iteration", iteration).Msg("default handler failed, using apology")
	state.AppendLog(models.IterationLogEntry{
		Iteration: iteration,
		Actor:     models.ActorDispatcher,
		Action:    fmt.Sprintf("substituted apology for %s", handler.Label()),
		Rationale: err.Error(),
	})
	return r.appendReply(state, r.fallback.Label(), Reply{Text: ApologyText}, true, err)
}

func (r *Registry) appendReply(state *models.TurnState, label models.Label, reply Reply, substituted bool, cause error) Outcome {
	// assistant messages always construct; content may be empty
	msg, _ := models.NewMessage(models.RoleAssistant, reply.Text, label)
	state.AppendMessage(msg)
	return Outcome{
		Label:       label,
		Message:     msg,
		Final:       reply.Final,
		Substituted: substituted,
		Err:         cause,
	}
}

func safeHandle(ctx context.Context, h Handler, state *models.TurnState) (reply Reply, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Label(), p)
		}
	}()
	return h.Handle(ctx, state)
}
