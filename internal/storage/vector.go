// ABOUTME: Vector math shared by the document stores
// ABOUTME: Cosine similarity and top-K ranking of search results
package storage

import (
	"math"
	"sort"

	"github.com/harper/twin/internal/models"
)

// CosineSimilarity calculates cosine similarity between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// TopK sorts results by similarity descending and keeps at most k.
// Equal scores keep their input order.
func TopK(results []models.SearchResult, k int) []models.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
