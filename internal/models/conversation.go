// ABOUTME: Conversation and StoredMessage are the persisted form of chat history
// ABOUTME: Messages are append-only per conversation and read back oldest first
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation groups the persisted exchanges of one user session
type Conversation struct {
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	SessionID      string          `json:"session_id"`
	Title          string          `json:"title,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Messages       []StoredMessage `json:"messages,omitempty"`
}

// StoredMessage is a message plus the routing metadata recorded with it
type StoredMessage struct {
	MessageID        string    `json:"message_id"`
	ConversationID   string    `json:"conversation_id"`
	Role             Role      `json:"role"`
	Content          string    `json:"content"`
	Label            Label     `json:"label,omitempty"`
	Confidence       float64   `json:"confidence,omitempty"`
	ProcessingTimeMS int64     `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewConversation creates a conversation for a user and session
func NewConversation(userID, sessionID, title string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ConversationID: fmt.Sprintf("conv_%s", uuid.New().String()),
		UserID:         userID,
		SessionID:      sessionID,
		Title:          title,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ToMessage converts a stored message back into a turn message
func (m StoredMessage) ToMessage() Message {
	return Message{
		MessageID: m.MessageID,
		Role:      m.Role,
		Content:   m.Content,
		Label:     m.Label,
		CreatedAt: m.CreatedAt,
	}
}

// StoredFrom wraps a turn message for persistence in a conversation
func StoredFrom(conversationID string, m Message) StoredMessage {
	return StoredMessage{
		MessageID:      m.MessageID,
		ConversationID: conversationID,
		Role:           m.Role,
		Content:        m.Content,
		Label:          m.Label,
		CreatedAt:      m.CreatedAt,
	}
}

// NewSessionID generates a session identifier for callers that did not supply one
func NewSessionID() string {
	return fmt.Sprintf("session_%s", uuid.New().String())
}
