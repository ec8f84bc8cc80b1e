// ABOUTME: Retriever looks up domain documents for a query and formats them as context
// ABOUTME: Failures degrade to an empty context string so handlers never see them
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harper/twin/internal/llm"
	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/storage"
)

// Retriever embeds queries and searches a document store
type Retriever struct {
	embedder llm.Embedder
	store    storage.DocumentStore
	logger   zerolog.Logger
}

// RetrieverOption configures a Retriever
type RetrieverOption func(*Retriever)

// WithRetrieverLogger sets the logger used for degraded lookups
func WithRetrieverLogger(l zerolog.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever. A nil embedder disables retrieval.
func NewRetriever(embedder llm.Embedder, store storage.DocumentStore, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: embedder,
		store:    store,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the topK chunks of domain most similar to query
func (r *Retriever) Retrieve(ctx context.Context, query string, domain models.Domain, topK int) ([]models.SearchResult, error) {
	if r.embedder == nil || r.store == nil || topK <= 0 {
		return nil, nil
	}

	count, err := r.store.CountChunks(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("count %s documents: %w", domain, err)
	}
	if count == 0 {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return r.store.Search(ctx, domain, vector, topK)
}

// RetrieveContext returns formatted context for query, or "" when none is available
func (r *Retriever) RetrieveContext(ctx context.Context, query string, domain models.Domain, topK int) string {
	results, err := r.Retrieve(ctx, query, domain, topK)
	if err != nil {
		r.logger.Warn().Err(err).Str("domain", string(domain)).Msg("retrieval degraded to empty context")
		return ""
	}
	return FormatContext(results)
}

// FormatContext renders search results as a numbered context block
func FormatContext(results []models.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	parts := []string{"Retrieved Context:"}
	for i, res := range results {
		source := res.Chunk.Source
		if source == "" {
			source = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("\n[Document %d - Source: %s]", i+1, source))
		parts = append(parts, res.Chunk.Content)
	}
	return strings.Join(parts, "\n")
}
