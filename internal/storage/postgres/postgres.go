// ABOUTME: PostgreSQL connection pool, migrations and error helpers
// ABOUTME: Shared by the pgx conversation and document stores
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Schema creates the tables used by the postgres stores
const Schema = `
CREATE TABLE IF NOT EXISTS twin_users (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS twin_conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES twin_users(id) ON DELETE CASCADE,
	session_id TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, session_id)
);

CREATE TABLE IF NOT EXISTS twin_messages (
	id                 TEXT PRIMARY KEY,
	conversation_id    TEXT NOT NULL REFERENCES twin_conversations(id) ON DELETE CASCADE,
	seq                INTEGER NOT NULL,
	role               TEXT NOT NULL,
	content            TEXT NOT NULL,
	label              TEXT NOT NULL DEFAULT '',
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL,
	UNIQUE (conversation_id, seq)
);

CREATE TABLE IF NOT EXISTS twin_documents (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	chunk_type TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	position   INTEGER NOT NULL DEFAULT 0,
	vector     DOUBLE PRECISION[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_twin_conversations_user ON twin_conversations (user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_twin_documents_domain ON twin_documents (domain);
`

// Connect opens a pool, verifies it and applies the schema
func Connect(ctx context.Context, connURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Msg("postgres store initialized")
	return pool, nil
}

// withTx runs fn in a transaction, rolling back unless it commits
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Warn().Err(err).Msg("rollback failed")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isNoRows checks if error is a "no rows" error
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicate checks if error is a unique constraint violation
func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 = unique_violation
		return pgErr.Code == "23505"
	}
	return false
}
