// ABOUTME: Conversation store on a charm KV backend
// ABOUTME: Messages are keyed by a zero-padded sequence so key order is append order
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harper/twin/internal/models"
)

// Key prefixes for conversation records
const (
	ConversationPrefix = "conversation:"
	SessionPrefix      = "session:"
	MessagePrefix      = "message:"
)

type sessionRef struct {
	ConversationID string `json:"conversation_id"`
}

// KVConversationStore implements ConversationStore on a KV backend
type KVConversationStore struct {
	kv KV
	mu sync.Mutex
}

// NewKVConversationStore creates a conversation store over kv
func NewKVConversationStore(kv KV) *KVConversationStore {
	return &KVConversationStore{kv: kv}
}

// ConversationKey generates the key for a conversation record
func ConversationKey(conversationID string) string {
	return ConversationPrefix + conversationID
}

// SessionKey generates the lookup key for a user's session
func SessionKey(userID, sessionID string) string {
	return SessionPrefix + userID + ":" + sessionID
}

// MessageKey generates the key for the seq-th message of a conversation
func MessageKey(conversationID string, seq int) string {
	return fmt.Sprintf("%s%s:%010d", MessagePrefix, conversationID, seq)
}

func messagePrefix(conversationID string) string {
	return MessagePrefix + conversationID + ":"
}

// CreateConversation stores the conversation and its session lookup
func (s *KVConversationStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := *conv
	meta.Messages = nil
	if err := s.kv.SetJSON(ConversationKey(conv.ConversationID), meta); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	if conv.SessionID != "" {
		ref := sessionRef{ConversationID: conv.ConversationID}
		if err := s.kv.SetJSON(SessionKey(conv.UserID, conv.SessionID), ref); err != nil {
			return fmt.Errorf("failed to save session lookup: %w", err)
		}
	}
	return nil
}

// GetConversation returns conversation metadata
func (s *KVConversationStore) GetConversation(_ context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.kv.GetJSON(ConversationKey(conversationID), &conv); err != nil {
		return nil, notFound(err, "conversation %s", conversationID)
	}
	return &conv, nil
}

// FindBySession resolves a session to its conversation
func (s *KVConversationStore) FindBySession(ctx context.Context, userID, sessionID string) (*models.Conversation, error) {
	var ref sessionRef
	if err := s.kv.GetJSON(SessionKey(userID, sessionID), &ref); err != nil {
		return nil, notFound(err, "session %s", sessionID)
	}
	return s.GetConversation(ctx, ref.ConversationID)
}

// ListConversations returns a user's conversations, most recently updated first
func (s *KVConversationStore) ListConversations(_ context.Context, userID string, limit, offset int) ([]models.Conversation, error) {
	keys, err := s.kv.ListKeys(ConversationPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	var convs []models.Conversation
	for _, key := range keys {
		var conv models.Conversation
		if err := s.kv.GetJSON(key, &conv); err != nil {
			continue
		}
		if conv.UserID == userID {
			convs = append(convs, conv)
		}
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return paginate(convs, limit, offset), nil
}

// AppendMessages writes messages after the existing history
func (s *KVConversationStore) AppendMessages(ctx context.Context, conversationID string, msgs ...models.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	keys, err := s.kv.ListKeys(messagePrefix(conversationID))
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}
	seq := len(keys)

	for _, m := range msgs {
		m.ConversationID = conversationID
		if err := s.kv.SetJSON(MessageKey(conversationID, seq), m); err != nil {
			return fmt.Errorf("failed to save message %s: %w", m.MessageID, err)
		}
		seq++
	}

	conv.UpdatedAt = time.Now().UTC()
	if err := s.kv.SetJSON(ConversationKey(conversationID), conv); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}

// CountMessages counts message keys without decoding them
func (s *KVConversationStore) CountMessages(_ context.Context, conversationID string) (int, error) {
	keys, err := s.kv.ListKeys(messagePrefix(conversationID))
	if err != nil {
		return 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return len(keys), nil
}

// Messages returns the stored history oldest first
func (s *KVConversationStore) Messages(_ context.Context, conversationID string, limit int) ([]models.StoredMessage, error) {
	keys, err := s.kv.ListKeys(messagePrefix(conversationID))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}

	msgs := make([]models.StoredMessage, 0, len(keys))
	for _, key := range keys {
		var m models.StoredMessage
		if err := s.kv.GetJSON(key, &m); err != nil {
			return nil, fmt.Errorf("failed to read message %s: %w", key, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// DeleteConversation removes a conversation, its session lookup and its messages
func (s *KVConversationStore) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	keys, err := s.kv.ListKeys(messagePrefix(conversationID))
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}
	for _, key := range keys {
		if err := s.kv.Delete(key); err != nil {
			return err
		}
	}
	if conv.SessionID != "" {
		if err := s.kv.Delete(SessionKey(conv.UserID, conv.SessionID)); err != nil {
			return err
		}
	}
	return s.kv.Delete(ConversationKey(conversationID))
}

// Close releases the underlying KV store
func (s *KVConversationStore) Close() error {
	return s.kv.Close()
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return fmt.Errorf("failed to read %s: %w", fmt.Sprintf(format, args...), err)
}

func paginate(convs []models.Conversation, limit, offset int) []models.Conversation {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(convs) {
		return []models.Conversation{}
	}
	convs = convs[offset:]
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs
}
