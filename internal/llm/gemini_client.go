// ABOUTME: Gemini backend for generation and embeddings via google.golang.org/genai
// ABOUTME: Alternative to the OpenAI client, selected with TWIN_PROVIDER=gemini
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/util"
	"google.golang.org/genai"
)

const (
	// DefaultGeminiModel is the default Gemini chat model
	DefaultGeminiModel = "gemini-2.0-flash"
	// DefaultGeminiEmbeddingModel is the default Gemini embedding model
	DefaultGeminiEmbeddingModel = "gemini-embedding-001"
)

// GeminiClient wraps the genai client with retry logic
type GeminiClient struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	maxRetries     int
	retryDelay     time.Duration
	timeout        time.Duration
}

// NewGeminiClient creates a Gemini client. ChatModel and EmbeddingModel default
// to the Gemini defaults when empty or when they name another provider's model.
func NewGeminiClient(ctx context.Context, config *ClientConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	chatModel := config.ChatModel
	if !strings.HasPrefix(chatModel, "gemini") {
		chatModel = DefaultGeminiModel
	}
	embeddingModel := config.EmbeddingModel
	if !strings.HasPrefix(embeddingModel, "gemini") && !strings.HasPrefix(embeddingModel, "text-embedding-0") {
		embeddingModel = DefaultGeminiEmbeddingModel
	}

	return &GeminiClient{
		client:         client,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		maxRetries:     config.MaxRetries,
		retryDelay:     config.RetryDelay,
		timeout:        timeoutOrDefault(config.Timeout),
	}, nil
}

// Generate runs GenerateContent over the request's conversation
func (c *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		genConfig.ResponseMIMEType = "application/json"
	}

	var text string
	err := util.Retry(ctx, c.maxRetries, c.retryDelay, func(ctx context.Context, attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.Models.GenerateContent(callCtx, c.chatModel, contents, genConfig)
		if err != nil {
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate content: %w", err)
	}

	if req.JSON {
		return ParseResponse(text), nil
	}
	return TextResponse(text), nil
}

// Embed generates an embedding for a single text
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float64, error) {
	var vector []float64
	err := util.Retry(ctx, c.maxRetries, c.retryDelay, func(ctx context.Context, attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		result, err := c.client.Models.EmbedContent(callCtx,
			c.embeddingModel,
			[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
			&genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"},
		)
		if err != nil {
			return err
		}
		if len(result.Embeddings) == 0 {
			return fmt.Errorf("no embeddings returned")
		}

		values := result.Embeddings[0].Values
		vector = make([]float64, len(values))
		for i, v := range values {
			vector[i] = float64(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	return vector, nil
}
