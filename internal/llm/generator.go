// ABOUTME: Generator and Embedder are the boundary to text-generation backends
// ABOUTME: Every backend normalizes its output into the tagged Response type
package llm

import (
	"context"

	"github.com/harper/twin/internal/models"
)

// Request is one generation call: a system instruction plus prior conversation turns
type Request struct {
	System      string
	Messages    []models.Message
	Temperature float64
	// JSON asks the backend for a JSON object when it supports a JSON mode
	JSON bool
}

// Generator produces a response for a request. Implementations may fail with
// network, timeout or model errors.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Embedder turns text into an embedding vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// GeneratorFunc adapts a plain function to Generator
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

// Generate calls f
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// UserPrompt wraps a single user prompt as a one-message conversation
func UserPrompt(text string) []models.Message {
	return []models.Message{{Role: models.RoleUser, Content: text}}
}
