// ABOUTME: SQLite database schema for conversation and document storage
// ABOUTME: Creates users, conversations, messages, documents and embeddings tables
package sqlite

// Schema contains all SQL statements for database initialization
const Schema = `
-- Users own conversations
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Conversations (one per user session); times are unix nanoseconds
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    title TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Messages are append-only; seq orders them within a conversation
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    label TEXT,
    confidence REAL,
    processing_time_ms INTEGER,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
    UNIQUE (conversation_id, seq)
);

-- Document chunks partitioned by retrieval domain
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    domain TEXT NOT NULL,
    chunk_type TEXT NOT NULL,
    source TEXT,
    content TEXT NOT NULL,
    position INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Embeddings table (vector storage as BLOB)
CREATE TABLE IF NOT EXISTS embeddings (
    id TEXT PRIMARY KEY,
    chunk_id TEXT NOT NULL UNIQUE,
    vector BLOB NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (chunk_id) REFERENCES documents(id) ON DELETE CASCADE
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_session ON conversations(user_id, session_id);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
CREATE INDEX IF NOT EXISTS idx_documents_domain ON documents(domain);
`
