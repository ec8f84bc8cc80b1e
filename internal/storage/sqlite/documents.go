// ABOUTME: Document chunk and embedding storage for SQLite
// ABOUTME: Stores vectors as BLOBs and ranks a domain's chunks by cosine similarity
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/storage"
)

// DocumentStore handles chunk and embedding persistence
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// SaveChunk upserts a chunk and its embedding
func (s *DocumentStore) SaveChunk(ctx context.Context, chunk models.Chunk, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("chunk %s has an empty embedding", chunk.ChunkID)
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, domain, chunk_type, source, content, position)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				domain = excluded.domain,
				chunk_type = excluded.chunk_type,
				source = excluded.source,
				content = excluded.content,
				position = excluded.position
		`, chunk.ChunkID, string(chunk.Domain), string(chunk.ChunkType),
			nullString(chunk.Source), chunk.Content, chunk.Position)
		if err != nil {
			return fmt.Errorf("failed to save chunk: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (id, chunk_id, vector, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				vector = excluded.vector
		`, fmt.Sprintf("emb_%s", chunk.ChunkID), chunk.ChunkID, vectorToBlob(vector), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to save embedding: %w", err)
		}
		return nil
	})
}

// Search performs cosine similarity search within one domain
func (s *DocumentStore) Search(ctx context.Context, domain models.Domain, query []float64, topK int) ([]models.SearchResult, error) {
	rows, err := s.db.Query(ctx, `
		SELECT d.id, d.domain, d.chunk_type, d.source, d.content, d.position, e.vector
		FROM documents d
		JOIN embeddings e ON e.chunk_id = d.id
		WHERE d.domain = ?
		ORDER BY d.id
	`, string(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []models.SearchResult
	for rows.Next() {
		var (
			chunk     models.Chunk
			dom       string
			chunkType string
			source    sql.NullString
			blob      []byte
		)
		if err := rows.Scan(&chunk.ChunkID, &dom, &chunkType, &source,
			&chunk.Content, &chunk.Position, &blob); err != nil {
			return nil, err
		}
		chunk.Domain = models.Domain(dom)
		chunk.ChunkType = models.ChunkType(chunkType)
		chunk.Source = source.String

		results = append(results, models.SearchResult{
			Chunk:           chunk,
			SimilarityScore: storage.CosineSimilarity(query, blobToVector(blob)),
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
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE domain = ?`, string(domain)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Close closes the database
func (s *DocumentStore) Close() error {
	return s.db.Close()
}

// vectorToBlob converts a float64 slice to binary blob
func vectorToBlob(vector []float64) []byte {
	blob := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to float64 slice
func blobToVector(blob []byte) []float64 {
	count := len(blob) / 8
	vector := make([]float64, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint64(blob[i*8:])
		vector[i] = math.Float64frombits(bits)
	}
	return vector
}
