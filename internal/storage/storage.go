// ABOUTME: Storage contracts for conversation history and retrieval documents
// ABOUTME: Implemented by the sqlite, postgres and charm KV backends
package storage

import (
	"context"
	"errors"

	"github.com/harper/twin/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ConversationStore persists conversations and their append-only message history.
// Implementations must be safe for concurrent use.
type ConversationStore interface {
	// CreateConversation stores a new conversation, registering its user if needed
	CreateConversation(ctx context.Context, conv *models.Conversation) error

	// GetConversation returns conversation metadata without messages
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)

	// FindBySession returns the conversation bound to a user's session
	FindBySession(ctx context.Context, userID, sessionID string) (*models.Conversation, error)

	// ListConversations returns a user's conversations, most recently updated first
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error)

	// AppendMessages adds messages to the end of a conversation and bumps its updated time
	AppendMessages(ctx context.Context, conversationID string, msgs ...models.StoredMessage) error

	// Messages returns the history oldest first. A positive limit keeps only the latest messages.
	Messages(ctx context.Context, conversationID string, limit int) ([]models.StoredMessage, error)

	// CountMessages reports the length of a conversation's history without reading it
	CountMessages(ctx context.Context, conversationID string) (int, error)

	// DeleteConversation removes a conversation and its messages
	DeleteConversation(ctx context.Context, conversationID string) error

	Close() error
}

// DocumentStore holds embedded chunks partitioned by domain
type DocumentStore interface {
	// SaveChunk stores a chunk and its embedding, replacing any chunk with the same ID
	SaveChunk(ctx context.Context, chunk models.Chunk, vector []float64) error

	// Search ranks the chunks of one domain by cosine similarity to query
	Search(ctx context.Context, domain models.Domain, query []float64, topK int) ([]models.SearchResult, error)

	// CountChunks reports how many chunks a domain holds
	CountChunks(ctx context.Context, domain models.Domain) (int, error)

	Close() error
}

// KV is the key-value surface the charm-backed stores need
type KV interface {
	SetJSON(key string, value any) error
	GetJSON(key string, dest any) error
	Delete(key string) error
	ListKeys(prefix string) ([]string, error)
	Close() error
}
