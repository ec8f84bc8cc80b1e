// ABOUTME: Conversation and message persistence for SQLite
// ABOUTME: Implements storage.ConversationStore with append-only message sequences
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/storage"
)

// ConversationStore handles conversation persistence
type ConversationStore struct {
	db *DB
}

// NewConversationStore creates a new ConversationStore
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

var _ storage.ConversationStore = (*ConversationStore)(nil)

// CreateConversation inserts a conversation, registering the user on first sight
func (s *ConversationStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO users (id) VALUES (?)`, conv.UserID); err != nil {
			return fmt.Errorf("failed to register user: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, user_id, session_id, title, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, conv.ConversationID, conv.UserID, conv.SessionID, conv.Title,
			conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		return nil
	})
}

// GetConversation retrieves conversation metadata by ID
func (s *ConversationStore) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, session_id, title, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`, conversationID)
	return scanConversation(row, "conversation "+conversationID)
}

// FindBySession retrieves the conversation bound to a user's session
func (s *ConversationStore) FindBySession(ctx context.Context, userID, sessionID string) (*models.Conversation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, session_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = ? AND session_id = ?
	`, userID, sessionID)
	return scanConversation(row, "session "+sessionID)
}

// ListConversations returns a user's conversations, most recently updated first
func (s *ConversationStore) ListConversations(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, session_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC, created_at DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// AppendMessages adds messages after the current history in one transaction
func (s *ConversationStore) AppendMessages(ctx context.Context, conversationID string, msgs ...models.StoredMessage) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE conversation_id = ?
		`, conversationID).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to read message sequence: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ? WHERE id = ?`,
			time.Now().UTC().UnixNano(), conversationID)
		if err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
		}

		for _, m := range msgs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO messages (id, conversation_id, seq, role, content, label, confidence, processing_time_ms, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, m.MessageID, conversationID, next, string(m.Role), m.Content,
				nullString(string(m.Label)), m.Confidence, m.ProcessingTimeMS, m.CreatedAt.UnixNano())
			if err != nil {
				return fmt.Errorf("failed to insert message %s: %w", m.MessageID, err)
			}
			next++
		}
		return nil
	})
}

// CountMessages counts a conversation's messages; unknown conversations have none
func (s *ConversationStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// Messages returns the stored history oldest first
func (s *ConversationStore) Messages(ctx context.Context, conversationID string, limit int) ([]models.StoredMessage, error) {
	if limit <= 0 {
		limit = -1
	}

	// newest N by seq, then flipped back to append order
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, role, content, label, confidence, processing_time_ms, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	msgs := []models.StoredMessage{}
	for rows.Next() {
		var (
			m          models.StoredMessage
			role       string
			label      sql.NullString
			confidence sql.NullFloat64
			elapsed    sql.NullInt64
			created    int64
		)
		if err := rows.Scan(&m.MessageID, &m.ConversationID, &role, &m.Content,
			&label, &confidence, &elapsed, &created); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		m.Label = models.Label(label.String)
		m.Confidence = confidence.Float64
		m.ProcessingTimeMS = elapsed.Int64
		m.CreatedAt = time.Unix(0, created).UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeleteConversation removes a conversation; messages cascade
func (s *ConversationStore) DeleteConversation(ctx context.Context, conversationID string) error {
	res, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
	}
	return nil
}

// Close closes the database
func (s *ConversationStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner, what string) (*models.Conversation, error) {
	var (
		conv             models.Conversation
		title            sql.NullString
		created, updated int64
	)
	err := row.Scan(&conv.ConversationID, &conv.UserID, &conv.SessionID, &title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	conv.Title = title.String
	conv.CreatedAt = time.Unix(0, created).UTC()
	conv.UpdatedAt = time.Unix(0, updated).UTC()
	return &conv, nil
}

// nullString converts empty string to NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
