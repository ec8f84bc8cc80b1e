// ABOUTME: PostgreSQL implementation of storage.DocumentStore
// ABOUTME: Vectors live in a float8[] column and are ranked in process
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/storage"
)

// DocumentStore persists embedded chunks in PostgreSQL
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore wraps an open pool
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// SaveChunk upserts a chunk and its embedding
func (s *DocumentStore) SaveChunk(ctx context.Context, chunk models.Chunk, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("chunk %s has an empty embedding", chunk.ChunkID)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO twin_documents (id, domain, chunk_type, source, content, position, vector)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			domain = EXCLUDED.domain,
			chunk_type = EXCLUDED.chunk_type,
			source = EXCLUDED.source,
			content = EXCLUDED.content,
			position = EXCLUDED.position,
			vector = EXCLUDED.vector
	`, chunk.ChunkID, string(chunk.Domain), string(chunk.ChunkType), chunk.Source,
		chunk.Content, chunk.Position, vector)
	if err != nil {
		return fmt.Errorf("save chunk: %w", err)
	}
	return nil
}

// Search ranks one domain's chunks by cosine similarity
func (s *DocumentStore) Search(ctx context.Context, domain models.Domain, query []float64, topK int) ([]models.SearchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, domain, chunk_type, source, content, position, vector
		FROM twin_documents
		WHERE domain = $1
		ORDER BY id
	`, string(domain))
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var (
			chunk     models.Chunk
			dom       string
			chunkType string
			vector    []float64
		)
		if err := rows.Scan(&chunk.ChunkID, &dom, &chunkType, &chunk.Source,
			&chunk.Content, &chunk.Position, &vector); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		chunk.Domain = models.Domain(dom)
		chunk.ChunkType = models.ChunkType(chunkType)
		results = append(results, models.SearchResult{
			Chunk:           chunk,
			SimilarityScore: storage.CosineSimilarity(query, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return storage.TopK(results, topK), nil
}

// CountChunks reports how many chunks a domain holds
func (s *DocumentStore) CountChunks(ctx context.Context, domain models.Domain) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM twin_documents WHERE domain = $1`, string(domain)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Close releases the pool
func (s *DocumentStore) Close() error {
	s.pool.Close()
	return nil
}
