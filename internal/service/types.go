// ABOUTME: Request and response shapes of the chat service
// ABOUTME: Shared by the HTTP API, the MCP tools and the CLI
package service

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/harper/twin/internal/models"
)

// DefaultUserID is used when a request names no user
const DefaultUserID = "default_user"

// ChatRequest is one user message to run through the control loop
type ChatRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"user_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MaxIterations  int    `json:"max_iterations,omitempty"`
}

// validate checks the normalized request
func (r ChatRequest) validate(maxLength int) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required, validation.RuneLength(1, maxLength)),
		validation.Field(&r.MaxIterations, validation.Min(models.MinIterations), validation.Max(models.MaxIterations)),
	)
}

// ChatResponse is the caller-facing projection of a finished turn
type ChatResponse struct {
	Response         string                     `json:"response"`
	AgentUsed        models.Label               `json:"agent_used"`
	Confidence       float64                    `json:"confidence"`
	SessionID        string                     `json:"session_id"`
	ConversationID   string                     `json:"conversation_id,omitempty"`
	TurnID           string                     `json:"turn_id"`
	RoutingHistory   []models.RoutingDecision   `json:"routing_history"`
	IterationDetails []models.IterationLogEntry `json:"iteration_details"`
	Iterations       int                        `json:"iterations"`
	ProcessingTimeMS float64                    `json:"processing_time_ms"`
	Error            string                     `json:"error,omitempty"`
}

// RouteResponse is the result of classifying text without handling it
type RouteResponse struct {
	Label      models.Label                `json:"label"`
	Confidence float64                     `json:"confidence"`
	Rationale  string                      `json:"rationale,omitempty"`
	Source     models.ClassificationSource `json:"source"`
}

// ConversationSummary describes a stored conversation without its messages
type ConversationSummary struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}
