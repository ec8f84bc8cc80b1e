// ABOUTME: Builds the configured generation backend and embeddings client
// ABOUTME: Callers own the returned handles; nothing here is process-global
package llm

import (
	"context"
	"fmt"

	"github.com/harper/twin/internal/config"
)

// FromConfig builds the backend selected by cfg.Provider. The embedder is nil
// when no embeddings-capable key is configured; retrieval is then disabled.
func FromConfig(ctx context.Context, cfg *config.Config) (Generator, Embedder, error) {
	base := &ClientConfig{
		ChatModel:      cfg.ResolvedChatModel(),
		EmbeddingModel: cfg.EmbeddingModel,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		Timeout:        cfg.CallTimeout,
	}

	var openaiClient *OpenAIClient
	if cfg.OpenAIKey != "" {
		oc := *base
		oc.APIKey = cfg.OpenAIKey
		oc.BaseURL = cfg.OpenAIBaseURL
		client, err := NewOpenAIClientWithConfig(&oc)
		if err != nil {
			return nil, nil, err
		}
		openaiClient = client
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		gc := *base
		gc.APIKey = cfg.GeminiKey
		client, err := NewGeminiClient(ctx, &gc)
		if err != nil {
			return nil, nil, err
		}
		if openaiClient != nil {
			return client, openaiClient, nil
		}
		return client, client, nil

	case config.ProviderAnthropic:
		ac := *base
		ac.APIKey = cfg.AnthropicKey
		client, err := NewAnthropicClient(&ac)
		if err != nil {
			return nil, nil, err
		}
		if openaiClient != nil {
			return client, openaiClient, nil
		}
		return client, nil, nil

	case config.ProviderOpenAI:
		if openaiClient == nil {
			return nil, nil, fmt.Errorf("OPENAI_API_KEY is required for provider openai")
		}
		return openaiClient, openaiClient, nil
	}
	return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}
