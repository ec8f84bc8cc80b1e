// ABOUTME: Message is one utterance inside a conversation turn
// ABOUTME: Immutable once created; ordered oldest first in an append-only sequence
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid reports whether the role is user, assistant or system
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Message represents a single conversational utterance
type Message struct {
	MessageID string    `json:"message_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Label     Label     `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a new Message with validation.
// label may be empty; it names the handler that generated an assistant message.
func NewMessage(role Role, content string, label Label) (Message, error) {
	if !role.IsValid() {
		return Message{}, fmt.Errorf("invalid role %q", role)
	}
	if role != RoleAssistant && content == "" {
		return Message{}, errors.New("message content cannot be empty")
	}
	return Message{
		MessageID: generateMessageID(),
		Role:      role,
		Content:   content,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// generateMessageID generates a unique message identifier
func generateMessageID() string {
	return fmt.Sprintf("msg_%s", uuid.New().String())
}
