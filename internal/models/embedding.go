// ABOUTME: Embedding models for vector storage and semantic search
// ABOUTME: Defines Embedding and SearchResult structures
package models

import (
	"fmt"
	"time"
)

// Embedding represents a stored embedding vector for a chunk
type Embedding struct {
	ChunkID   string    `json:"chunk_id"`
	Vector    []float64 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateDimension checks the vector has the expected number of components
func (e Embedding) ValidateDimension(expected int) error {
	if len(e.Vector) == 0 {
		return fmt.Errorf("embedding for %s is empty", e.ChunkID)
	}
	if len(e.Vector) != expected {
		return fmt.Errorf("embedding for %s has dimension %d, want %d", e.ChunkID, len(e.Vector), expected)
	}
	return nil
}

// SearchResult is a chunk ranked by similarity to a query
type SearchResult struct {
	Chunk           Chunk   `json:"chunk"`
	SimilarityScore float64 `json:"similarity_score"`
}
