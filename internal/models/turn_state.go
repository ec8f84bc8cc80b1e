// ABOUTME: TurnState is the record threaded through one conversation turn
// ABOUTME: Sequences are append-only behind named operations; scalars are replaceable
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bounds on the caller-supplied iteration limit
const (
	MinIterations = 1
	MaxIterations = 20
)

// TurnState is owned by one control loop for the duration of one turn.
// It is not safe for concurrent use; concurrent turns each get their own.
type TurnState struct {
	TurnID    string
	UserID    string
	SessionID string

	// append-only
	messages []Message
	routing  []RoutingDecision
	log      []IterationLogEntry

	// replaceable
	iteration     int
	maxIterations int
	proceed       bool
	finalResponse string
	hasFinal      bool
	errMsg        string

	createdAt time.Time
	updatedAt time.Time
}

// NewTurnState creates a fresh state seeded with prior messages.
// maxIterations must lie in [MinIterations, MaxIterations].
func NewTurnState(userID, sessionID string, maxIterations int, prior []Message) (*TurnState, error) {
	if maxIterations < MinIterations || maxIterations > MaxIterations {
		return nil, fmt.Errorf("max iterations must be between %d and %d, got %d", MinIterations, MaxIterations, maxIterations)
	}
	now := time.Now().UTC()
	s := &TurnState{
		TurnID:        generateTurnID(),
		UserID:        userID,
		SessionID:     sessionID,
		maxIterations: maxIterations,
		proceed:       true,
		createdAt:     now,
		updatedAt:     now,
	}
	s.messages = append(s.messages, prior...)
	return s, nil
}

// AppendMessage adds a message to the end of the history
func (s *TurnState) AppendMessage(m Message) {
	s.messages = append(s.messages, m)
	s.touch()
}

// AppendRoutingDecision adds a routing decision to the end of the routing history
func (s *TurnState) AppendRoutingDecision(d RoutingDecision) {
	s.routing = append(s.routing, d)
	s.touch()
}

// AppendLog adds a log entry unconditionally
func (s *TurnState) AppendLog(e IterationLogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.log = append(s.log, e)
	s.touch()
}

// LogOnce adds a log entry unless one with the same key is already present.
// Returns true if the entry was written.
func (s *TurnState) LogOnce(e IterationLogEntry) bool {
	key := e.Key()
	for _, existing := range s.log {
		if existing.Key() == key {
			return false
		}
	}
	s.AppendLog(e)
	return true
}

// IncrementIteration advances the counter and returns the new value.
// The counter never moves past the maximum.
func (s *TurnState) IncrementIteration() int {
	if s.iteration < s.maxIterations {
		s.iteration++
		s.touch()
	}
	return s.iteration
}

// Stop clears the continuation flag
func (s *TurnState) Stop() {
	s.proceed = false
	s.touch()
}

// SetFinalResponse fills the final-response slot
func (s *TurnState) SetFinalResponse(text string) {
	s.finalResponse = text
	s.hasFinal = true
	s.touch()
}

// SetError records why the turn ended abnormally
func (s *TurnState) SetError(msg string) {
	s.errMsg = msg
	s.touch()
}

func (s *TurnState) touch() {
	s.updatedAt = time.Now().UTC()
}

// Messages returns a copy of the message history, oldest first
func (s *TurnState) Messages() []Message {
	return append([]Message(nil), s.messages...)
}

// RecentMessages returns up to the last n messages, oldest first
func (s *TurnState) RecentMessages(n int) []Message {
	if n <= 0 || n >= len(s.messages) {
		return s.Messages()
	}
	return append([]Message(nil), s.messages[len(s.messages)-n:]...)
}

// RoutingHistory returns a copy of the routing decisions in order
func (s *TurnState) RoutingHistory() []RoutingDecision {
	return append([]RoutingDecision(nil), s.routing...)
}

// Log returns a copy of the raw iteration log
func (s *TurnState) Log() []IterationLogEntry {
	return append([]IterationLogEntry(nil), s.log...)
}

// DedupedLog returns the iteration log collapsed on (iteration, actor, action)
func (s *TurnState) DedupedLog() []IterationLogEntry {
	return DedupLog(s.log)
}

// Iteration returns the number of completed classify-then-handle cycles
func (s *TurnState) Iteration() int { return s.iteration }

// MaxIterations returns the iteration limit for this turn
func (s *TurnState) MaxIterations() int { return s.maxIterations }

// ShouldContinue returns the continuation flag
func (s *TurnState) ShouldContinue() bool { return s.proceed }

// FinalResponse returns the final-response slot and whether it is set
func (s *TurnState) FinalResponse() (string, bool) { return s.finalResponse, s.hasFinal }

// Error returns the error slot, empty when the turn completed normally
func (s *TurnState) Error() string { return s.errMsg }

// CreatedAt returns when the state was created
func (s *TurnState) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns when the state was last mutated
func (s *TurnState) UpdatedAt() time.Time { return s.updatedAt }

// LatestUserMessage returns the most recent user message
func (s *TurnState) LatestUserMessage() (Message, bool) {
	return s.latest(RoleUser)
}

// LatestAssistantMessage returns the most recent assistant message
func (s *TurnState) LatestAssistantMessage() (Message, bool) {
	return s.latest(RoleAssistant)
}

func (s *TurnState) latest(role Role) (Message, bool) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == role {
			return s.messages[i], true
		}
	}
	return Message{}, false
}

// LatestRoutingDecision returns the most recent routing decision
func (s *TurnState) LatestRoutingDecision() (RoutingDecision, bool) {
	if len(s.routing) == 0 {
		return RoutingDecision{}, false
	}
	return s.routing[len(s.routing)-1], true
}

// TurnSnapshot is the serializable view of a TurnState
type TurnSnapshot struct {
	TurnID         string              `json:"turn_id"`
	UserID         string              `json:"user_id,omitempty"`
	SessionID      string              `json:"session_id,omitempty"`
	Messages       []Message           `json:"messages"`
	RoutingHistory []RoutingDecision   `json:"routing_history"`
	IterationLog   []IterationLogEntry `json:"iteration_log"`
	Iteration      int                 `json:"current_iteration"`
	MaxIterations  int                 `json:"max_iterations"`
	ShouldContinue bool                `json:"should_continue"`
	FinalResponse  *string             `json:"final_response"`
	Error          *string             `json:"error"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Snapshot copies the state into its serializable form. The iteration log is deduplicated.
func (s *TurnState) Snapshot() TurnSnapshot {
	snap := TurnSnapshot{
		TurnID:         s.TurnID,
		UserID:         s.UserID,
		SessionID:      s.SessionID,
		Messages:       s.Messages(),
		RoutingHistory: s.RoutingHistory(),
		IterationLog:   s.DedupedLog(),
		Iteration:      s.iteration,
		MaxIterations:  s.maxIterations,
		ShouldContinue: s.proceed,
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
	}
	if s.hasFinal {
		final := s.finalResponse
		snap.FinalResponse = &final
	}
	if s.errMsg != "" {
		msg := s.errMsg
		snap.Error = &msg
	}
	return snap
}

// MarshalJSON encodes the snapshot of the state
func (s *TurnState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// generateTurnID generates a unique turn identifier
func generateTurnID() string {
	return fmt.Sprintf("turn_%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8])
}
