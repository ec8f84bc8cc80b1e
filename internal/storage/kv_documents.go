// ABOUTME: Document store on a charm KV backend with brute-force cosine search
// ABOUTME: Chunks and their vectors are stored together under a per-domain prefix
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/harper/twin/internal/models"
)

// ChunkPrefix namespaces chunk records in the KV store
const ChunkPrefix = "chunk:"

type kvChunk struct {
	Chunk     models.Chunk `json:"chunk"`
	Vector    []float64    `json:"vector"`
	CreatedAt time.Time    `json:"created_at"`
}

// KVDocumentStore implements DocumentStore on a KV backend
type KVDocumentStore struct {
	kv KV
}

// NewKVDocumentStore creates a document store over kv
func NewKVDocumentStore(kv KV) *KVDocumentStore {
	return &KVDocumentStore{kv: kv}
}

// ChunkKey generates the key for a chunk in a domain
func ChunkKey(domain models.Domain, chunkID string) string {
	return ChunkPrefix + string(domain) + ":" + chunkID
}

// SaveChunk stores a chunk with its embedding
func (s *KVDocumentStore) SaveChunk(_ context.Context, chunk models.Chunk, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("chunk %s has an empty embedding", chunk.ChunkID)
	}
	rec := kvChunk{Chunk: chunk, Vector: vector, CreatedAt: time.Now().UTC()}
	return s.kv.SetJSON(ChunkKey(chunk.Domain, chunk.ChunkID), rec)
}

// Search performs cosine similarity search across one domain
func (s *KVDocumentStore) Search(ctx context.Context, domain models.Domain, query []float64, topK int) ([]models.SearchResult, error) {
	keys, err := s.kv.ListKeys(ChunkPrefix + string(domain) + ":")
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk keys: %w", err)
	}

	results := make([]models.SearchResult, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec kvChunk
		if err := s.kv.GetJSON(key, &rec); err != nil {
			continue
		}
		results = append(results, models.SearchResult{
			Chunk:           rec.Chunk,
			SimilarityScore: CosineSimilarity(query, rec.Vector),
		})
	}

	return TopK(results, topK), nil
}

// CountChunks reports how many chunks a domain holds
func (s *KVDocumentStore) CountChunks(_ context.Context, domain models.Domain) (int, error) {
	keys, err := s.kv.ListKeys(ChunkPrefix + string(domain) + ":")
	if err != nil {
		return 0, fmt.Errorf("failed to list chunk keys: %w", err)
	}
	return len(keys), nil
}

// Close releases the underlying KV store
func (s *KVDocumentStore) Close() error {
	return s.kv.Close()
}
