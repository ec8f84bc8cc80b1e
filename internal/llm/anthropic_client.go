// ABOUTME: Anthropic backend for generation via anthropic-sdk-go
// ABOUTME: Selected with TWIN_PROVIDER=anthropic; has no embeddings endpoint
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/util"
)

const (
	// DefaultAnthropicModel is the default Claude model
	DefaultAnthropicModel = "claude-3-5-haiku-latest"

	defaultAnthropicMaxTokens = 1024
)

// AnthropicClient wraps the Anthropic messages API with retry logic
type AnthropicClient struct {
	client     *anthropic.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// NewAnthropicClient creates an Anthropic client
func NewAnthropicClient(config *ClientConfig) (*AnthropicClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey), option.WithMaxRetries(0)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := config.ChatModel
	if !strings.HasPrefix(model, "claude-") {
		model = DefaultAnthropicModel
	}

	return &AnthropicClient{
		client:     &client,
		model:      model,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		timeout:    timeoutOrDefault(config.Timeout),
	}, nil
}

// Generate sends the conversation to the messages API and joins the text blocks of the reply
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (Response, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		Messages:    messages,
		MaxTokens:   defaultAnthropicMaxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}

	var text string
	err := util.Retry(ctx, c.maxRetries, c.retryDelay, func(ctx context.Context, attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		message, err := c.client.Messages.New(callCtx, params)
		if err != nil {
			return err
		}

		var b strings.Builder
		for _, content := range message.Content {
			if content.Type == "text" {
				b.WriteString(content.Text)
			}
		}
		text = b.String()
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("anthropic API call failed: %w", err)
	}

	if req.JSON {
		return ParseResponse(text), nil
	}
	return TextResponse(text), nil
}
