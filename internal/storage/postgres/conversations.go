// ABOUTME: PostgreSQL implementation of storage.ConversationStore
// ABOUTME: Uses pgxpool with per-append transactions to keep message order
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/storage"
)

// ConversationStore persists conversations in PostgreSQL
type ConversationStore struct {
	pool *pgxpool.Pool
}

// NewConversationStore wraps an open pool
func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

var _ storage.ConversationStore = (*ConversationStore)(nil)

const conversationColumns = `id, user_id, session_id, title, created_at, updated_at`

// CreateConversation inserts a conversation, registering the user on first sight
func (s *ConversationStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO twin_users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, conv.UserID); err != nil {
			return fmt.Errorf("register user: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO twin_conversations (id, user_id, session_id, title, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, conv.ConversationID, conv.UserID, conv.SessionID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
		if isDuplicate(err) {
			return fmt.Errorf("session %s already has a conversation", conv.SessionID)
		}
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		return nil
	})
}

// GetConversation retrieves conversation metadata by ID
func (s *ConversationStore) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM twin_conversations WHERE id = $1`, conversationID)
	return scanConversation(row, "conversation "+conversationID)
}

// FindBySession retrieves the conversation bound to a user's session
func (s *ConversationStore) FindBySession(ctx context.Context, userID, sessionID string) (*models.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM twin_conversations WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID)
	return scanConversation(row, "session "+sessionID)
}

// ListConversations returns a user's conversations, most recently updated first
func (s *ConversationStore) ListConversations(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error) {
	if offset < 0 {
		offset = 0
	}
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM twin_conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, lim, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	convs := []models.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows, "")
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// AppendMessages adds messages after the current history
func (s *ConversationStore) AppendMessages(ctx context.Context, conversationID string, msgs ...models.StoredMessage) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		// the row lock serializes concurrent appends to one conversation
		tag, err := tx.Exec(ctx,
			`UPDATE twin_conversations SET updated_at = $1 WHERE id = $2`,
			time.Now().UTC(), conversationID)
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
		}

		var next int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(seq), -1) + 1 FROM twin_messages WHERE conversation_id = $1`,
			conversationID).Scan(&next); err != nil {
			return fmt.Errorf("read message sequence: %w", err)
		}

		batch := &pgx.Batch{}
		for i, m := range msgs {
			batch.Queue(`
				INSERT INTO twin_messages (id, conversation_id, seq, role, content, label, confidence, processing_time_ms, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, m.MessageID, conversationID, next+i, string(m.Role), m.Content,
				string(m.Label), m.Confidence, m.ProcessingTimeMS, m.CreatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}
		return nil
	})
}

// CountMessages counts a conversation's messages; unknown conversations have none
func (s *ConversationStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM twin_messages WHERE conversation_id = $1`,
		conversationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Messages returns the stored history oldest first
func (s *ConversationStore) Messages(ctx context.Context, conversationID string, limit int) ([]models.StoredMessage, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, label, confidence, processing_time_ms, created_at
		FROM (
			SELECT * FROM twin_messages
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) latest
		ORDER BY seq ASC
	`, conversationID, lim)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.StoredMessage{}
	for rows.Next() {
		var (
			m     models.StoredMessage
			role  string
			label string
		)
		if err := rows.Scan(&m.MessageID, &m.ConversationID, &role, &m.Content,
			&label, &m.Confidence, &m.ProcessingTimeMS, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.Role(role)
		m.Label = models.Label(label)
		m.CreatedAt = m.CreatedAt.UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeleteConversation removes a conversation; messages cascade
func (s *ConversationStore) DeleteConversation(ctx context.Context, conversationID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM twin_conversations WHERE id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
	}
	return nil
}

// Close releases the pool
func (s *ConversationStore) Close() error {
	s.pool.Close()
	return nil
}

func scanConversation(row pgx.Row, what string) (*models.Conversation, error) {
	var conv models.Conversation
	err := row.Scan(&conv.ConversationID, &conv.UserID, &conv.SessionID, &conv.Title,
		&conv.CreatedAt, &conv.UpdatedAt)
	if isNoRows(err) {
		return nil, fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	return &conv, nil
}
