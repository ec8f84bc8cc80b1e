// ABOUTME: Chat service composing the control loop with conversation persistence
// ABOUTME: Seeds turns from stored history and appends each finished exchange
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/orchestrator"
	"github.com/harper/twin/internal/storage"
)

// ErrInvalidRequest marks caller mistakes such as an empty or oversized message
var ErrInvalidRequest = errors.New("invalid request")

// Defaults applied when options leave them unset
const (
	DefaultMaxIterations    = 5
	DefaultMaxMessageLength = 4000
	DefaultHistoryLimit     = 20
	DefaultListLimit        = 50
)

// TurnRunner runs one turn of the control loop
type TurnRunner interface {
	RunTurn(ctx context.Context, in orchestrator.TurnInput) (*models.TurnState, error)
}

// Router classifies text without handling it
type Router interface {
	Route(ctx context.Context, text string) models.Classification
}

// Service is the application facade used by every outer surface
type Service struct {
	runner           TurnRunner
	router           Router
	store            storage.ConversationStore
	logger           zerolog.Logger
	maxIterations    int
	maxMessageLength int
	historyLimit     int

	// serializes find-or-create of a session's conversation
	sessionMu sync.Mutex
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMaxIterations sets the iteration cap used when a request names none
func WithMaxIterations(n int) Option {
	return func(s *Service) { s.maxIterations = n }
}

// WithMaxMessageLength caps accepted message length in characters
func WithMaxMessageLength(n int) Option {
	return func(s *Service) { s.maxMessageLength = n }
}

// WithHistoryLimit sets how many stored messages seed a turn
func WithHistoryLimit(n int) Option {
	return func(s *Service) { s.historyLimit = n }
}

// New creates a service. store may be nil, in which case nothing is persisted.
func New(runner TurnRunner, router Router, store storage.ConversationStore, opts ...Option) *Service {
	s := &Service{
		runner:           runner,
		router:           router,
		store:            store,
		logger:           log.Logger,
		maxIterations:    DefaultMaxIterations,
		maxMessageLength: DefaultMaxMessageLength,
		historyLimit:     DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat runs one message through the control loop and persists the exchange
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	started := time.Now()

	req = s.normalize(req)
	if err := req.validate(s.maxMessageLength); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	conv, err := s.resolveConversation(ctx, &req)
	if err != nil {
		return nil, err
	}

	prior, err := s.history(ctx, conv)
	if err != nil {
		return nil, err
	}

	state, err := s.runner.RunTurn(ctx, orchestrator.TurnInput{
		Text:          req.Message,
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		MaxIterations: req.MaxIterations,
		PriorMessages: prior,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	elapsed := time.Since(started)
	resp := Project(state, elapsed)

	if s.store != nil {
		if conv == nil {
			conv, err = s.createConversation(ctx, req.UserID, req.SessionID)
			if err != nil {
				return nil, err
			}
		}
		if err := s.persist(ctx, conv, state, resp, elapsed); err != nil {
			return nil, err
		}
		resp.ConversationID = conv.ConversationID
	}

	return resp, nil
}

// Route classifies text without dispatching a handler
func (s *Service) Route(ctx context.Context, text string) (*RouteResponse, error) {
	err := validation.Validate(text, validation.Required, validation.RuneLength(1, s.maxMessageLength))
	if err != nil {
		return nil, fmt.Errorf("%w: message %v", ErrInvalidRequest, err)
	}
	c := s.router.Route(ctx, text)
	return &RouteResponse{
		Label:      c.Label,
		Confidence: c.Confidence,
		Rationale:  c.Rationale,
		Source:     c.Source,
	}, nil
}

// ListConversations returns a user's conversations, most recent first
func (s *Service) ListConversations(ctx context.Context, userID string, limit, offset int) ([]ConversationSummary, error) {
	if s.store == nil {
		return []ConversationSummary{}, nil
	}
	if userID == "" {
		userID = DefaultUserID
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	convs, err := s.store.ListConversations(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		count, err := s.store.CountMessages(ctx, c.ConversationID)
		if err != nil {
			return nil, err
		}
		out = append(out, ConversationSummary{
			ID:           c.ConversationID,
			UserID:       c.UserID,
			SessionID:    c.SessionID,
			Title:        c.Title,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			MessageCount: count,
		})
	}
	return out, nil
}

// GetConversation returns a conversation with all of its messages
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if s.store == nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Messages, err = s.store.Messages(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// DeleteConversation removes a conversation and its messages
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	if s.store == nil {
		return fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
	}
	return s.store.DeleteConversation(ctx, conversationID)
}

// Store exposes the conversation store, which may be nil
func (s *Service) Store() storage.ConversationStore {
	return s.store
}

func (s *Service) normalize(req ChatRequest) ChatRequest {
	req.Message = strings.TrimSpace(req.Message)
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}
	if req.MaxIterations == 0 {
		req.MaxIterations = s.maxIterations
	}
	return req
}

// resolveConversation finds the conversation a request continues and fills in
// its session. It returns nil when a new conversation should be created.
func (s *Service) resolveConversation(ctx context.Context, req *ChatRequest) (*models.Conversation, error) {
	if s.store == nil {
		if req.SessionID == "" {
			req.SessionID = models.NewSessionID()
		}
		return nil, nil
	}

	if req.ConversationID != "" {
		conv, err := s.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv.UserID != req.UserID {
			return nil, fmt.Errorf("conversation %s: %w", req.ConversationID, storage.ErrNotFound)
		}
		req.SessionID = conv.SessionID
		return conv, nil
	}

	if req.SessionID == "" {
		req.SessionID = models.NewSessionID()
		return nil, nil
	}

	conv, err := s.store.FindBySession(ctx, req.UserID, req.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return conv, err
}

func (s *Service) createConversation(ctx context.Context, userID, sessionID string) (*models.Conversation, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	// a concurrent turn may have created it since resolveConversation ran
	conv, err := s.store.FindBySession(ctx, userID, sessionID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	title := fmt.Sprintf("Conversation %s", time.Now().UTC().Format("2006-01-02 15:04"))
	conv = models.NewConversation(userID, sessionID, title)
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Debug().Str("conversation_id", conv.ConversationID).Str("session_id", sessionID).Msg("conversation created")
	return conv, nil
}

func (s *Service) history(ctx context.Context, conv *models.Conversation) ([]models.Message, error) {
	if conv == nil {
		return nil, nil
	}
	stored, err := s.store.Messages(ctx, conv.ConversationID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	msgs := make([]models.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, m.ToMessage())
	}
	return msgs, nil
}

// persist appends the user message and the final assistant message of the turn
func (s *Service) persist(ctx context.Context, conv *models.Conversation, state *models.TurnState, resp *ChatResponse, elapsed time.Duration) error {
	var batch []models.StoredMessage

	if user, ok := state.LatestUserMessage(); ok {
		batch = append(batch, models.StoredFrom(conv.ConversationID, user))
	}
	if reply, ok := state.LatestAssistantMessage(); ok {
		stored := models.StoredFrom(conv.ConversationID, reply)
		stored.Content = resp.Response
		stored.Confidence = resp.Confidence
		stored.ProcessingTimeMS = elapsed.Milliseconds()
		batch = append(batch, stored)
	}

	if err := s.store.AppendMessages(ctx, conv.ConversationID, batch...); err != nil {
		return fmt.Errorf("persist turn: %w", err)
	}
	return nil
}

// Project builds the caller-facing response from a finished turn
func Project(state *models.TurnState, elapsed time.Duration) *ChatResponse {
	resp := &ChatResponse{
		SessionID:        state.SessionID,
		TurnID:           state.TurnID,
		RoutingHistory:   state.RoutingHistory(),
		IterationDetails: state.DedupedLog(),
		Iterations:       state.Iteration(),
		ProcessingTimeMS: float64(elapsed.Microseconds()) / 1000.0,
		Error:            state.Error(),
		AgentUsed:        models.LabelGeneral,
	}

	if text, ok := state.FinalResponse(); ok {
		resp.Response = text
	}
	if d, ok := state.LatestRoutingDecision(); ok {
		resp.AgentUsed = d.Label
		resp.Confidence = d.Confidence
	}
	// a substituted handler answers under its own label
	if m, ok := state.LatestAssistantMessage(); ok && m.Label.IsValid() {
		resp.AgentUsed = m.Label
	}
	return resp
}
