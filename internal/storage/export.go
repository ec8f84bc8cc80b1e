// ABOUTME: Export of a user's conversation history
// ABOUTME: Supports YAML and Markdown output for any ConversationStore
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harper/twin/internal/models"
)

// ExportVersion identifies the export document layout
const ExportVersion = "1"

// ExportData represents the complete exportable data structure
type ExportData struct {
	Version       string               `yaml:"version" json:"version"`
	ExportedAt    string               `yaml:"exported_at" json:"exported_at"`
	Tool          string               `yaml:"tool" json:"tool"`
	UserID        string               `yaml:"user_id" json:"user_id"`
	Conversations []ExportConversation `yaml:"conversations" json:"conversations"`
}

// ExportConversation represents one conversation for export
type ExportConversation struct {
	ID        string          `yaml:"id" json:"id"`
	SessionID string          `yaml:"session_id" json:"session_id"`
	Title     string          `yaml:"title,omitempty" json:"title,omitempty"`
	UpdatedAt string          `yaml:"updated_at" json:"updated_at"`
	Messages  []ExportMessage `yaml:"messages" json:"messages"`
}

// ExportMessage represents one message for export
type ExportMessage struct {
	Role       string  `yaml:"role" json:"role"`
	Content    string  `yaml:"content" json:"content"`
	Label      string  `yaml:"label,omitempty" json:"label,omitempty"`
	Confidence float64 `yaml:"confidence,omitempty" json:"confidence,omitempty"`
}

// Export collects every conversation of a user with its messages
func Export(ctx context.Context, store ConversationStore, userID string) (*ExportData, error) {
	convs, err := store.ListConversations(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}

	data := &ExportData{
		Version:       ExportVersion,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		Tool:          "twin",
		UserID:        userID,
		Conversations: make([]ExportConversation, 0, len(convs)),
	}

	for _, conv := range convs {
		msgs, err := store.Messages(ctx, conv.ConversationID, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to read messages for %s: %w", conv.ConversationID, err)
		}
		ec := ExportConversation{
			ID:        conv.ConversationID,
			SessionID: conv.SessionID,
			Title:     conv.Title,
			UpdatedAt: conv.UpdatedAt.Format(time.RFC3339),
			Messages:  make([]ExportMessage, 0, len(msgs)),
		}
		for _, m := range msgs {
			ec.Messages = append(ec.Messages, ExportMessage{
				Role:       string(m.Role),
				Content:    m.Content,
				Label:      string(m.Label),
				Confidence: m.Confidence,
			})
		}
		data.Conversations = append(data.Conversations, ec)
	}

	return data, nil
}

// WriteYAML encodes the export as YAML
func WriteYAML(w io.Writer, data *ExportData) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// WriteMarkdown renders the export as a Markdown transcript
func WriteMarkdown(w io.Writer, data *ExportData) error {
	_, _ = fmt.Fprintf(w, "# Conversation Export - %s\n\n", data.UserID)
	_, _ = fmt.Fprintf(w, "Generated: %s\n\n", data.ExportedAt)

	for _, conv := range data.Conversations {
		title := conv.Title
		if title == "" {
			title = conv.ID
		}
		_, _ = fmt.Fprintf(w, "## %s\n\n", title)
		_, _ = fmt.Fprintf(w, "*Session: %s, updated %s*\n\n", conv.SessionID, conv.UpdatedAt)
		for _, m := range conv.Messages {
			switch {
			case m.Role == string(models.RoleUser):
				_, _ = fmt.Fprintf(w, "**User:** %s\n\n", m.Content)
			case m.Label != "":
				_, _ = fmt.Fprintf(w, "**%s (%.2f):** %s\n\n", m.Label, m.Confidence, m.Content)
			default:
				_, _ = fmt.Fprintf(w, "**%s:** %s\n\n", m.Role, m.Content)
			}
		}
		if _, err := fmt.Fprintln(w, "---"); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(w)
	}
	return nil
}
