// ABOUTME: Model-backed classifier that asks the generation backend for a routing decision
// ABOUTME: Never returns an error; failures degrade to the general label at 0.6
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/harper/twin/internal/llm"
	"github.com/harper/twin/internal/models"
)

const (
	// ClassifierTemperature keeps routing decisions consistent
	ClassifierTemperature = 0.2

	// DefaultModelRationale stands in when the model gives no reasoning
	DefaultModelRationale = "model routing decision"

	defaultConfidence = 0.6
)

const classifierSystemPrompt = "You are a routing agent that responds only with valid JSON."

const classifierPrompt = `Route the user query to exactly one agent:
- professional: technical questions, programming, code, APIs, debugging, work expertise
- communication: writing help, emails, drafts, messages, tone and style
- knowledge: questions about the user's own facts, preferences, memories and history
- decision: choices, trade-offs, recommendations, pros and cons
- general: greetings, small talk, or anything that fits none of the above

Respond with a JSON object: {"agent": "<name>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}

User Query: %q

Your routing decision (JSON):`

// Classifier returns a classification for text. Implementations may fail.
type Classifier interface {
	Classify(ctx context.Context, text string) (models.Classification, error)
}

// ClassifierFunc adapts a plain function to Classifier
type ClassifierFunc func(ctx context.Context, text string) (models.Classification, error)

// Classify calls f
func (f ClassifierFunc) Classify(ctx context.Context, text string) (models.Classification, error) {
	return f(ctx, text)
}

// LLMClassifier classifies text with a generation backend
type LLMClassifier struct {
	generator llm.Generator
}

// NewLLMClassifier creates a classifier over the given backend
func NewLLMClassifier(generator llm.Generator) *LLMClassifier {
	return &LLMClassifier{generator: generator}
}

// Classify asks the backend for a decision. Backend errors and unparseable
// output yield (general, 0.6) with SourceDefault and a diagnostic rationale;
// the error return is always nil.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (models.Classification, error) {
	resp, err := c.generator.Generate(ctx, llm.Request{
		System:      classifierSystemPrompt,
		Messages:    llm.UserPrompt(fmt.Sprintf(classifierPrompt, text)),
		Temperature: ClassifierTemperature,
		JSON:        true,
	})
	if err != nil {
		return DefaultClassification(fmt.Sprintf("classifier error: %v", err)), nil
	}
	return ParseClassification(resp), nil
}

// DefaultClassification is the safe result used when the model cannot answer
func DefaultClassification(diagnostic string) models.Classification {
	return models.Classification{
		Label:      models.LabelGeneral,
		Confidence: defaultConfidence,
		Rationale:  diagnostic,
		Source:     models.SourceDefault,
	}
}

// ParseClassification decodes a routing decision from either response shape.
// Text responses may wrap the JSON object in prose.
func ParseClassification(resp llm.Response) models.Classification {
	fields := resp.Fields()
	if resp.Kind() == llm.KindText {
		payload := extractJSON(resp.Text())
		if payload == "" {
			return DefaultClassification("could not parse classifier response")
		}
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			return DefaultClassification(fmt.Sprintf("JSON decode error: %v", err))
		}
	}
	if fields == nil {
		return DefaultClassification("could not parse classifier response")
	}

	label := models.Label(strings.ToLower(strings.TrimSpace(stringField(fields, "agent", "label"))))
	if !label.IsValid() {
		return models.Classification{
			Label:      models.LabelGeneral,
			Confidence: defaultConfidence,
			Rationale:  fmt.Sprintf("unrecognized label %q coerced to general", label),
			Source:     models.SourceModel,
		}
	}

	confidence, ok := numberField(fields, "confidence")
	if !ok {
		confidence = defaultConfidence
	}

	rationale := stringField(fields, "reasoning", "rationale")
	if rationale == "" {
		rationale = DefaultModelRationale
	}

	return models.Classification{
		Label:      label,
		Confidence: clamp(confidence),
		Rationale:  rationale,
		Source:     models.SourceModel,
	}
}

// extractJSON returns the substring between the first '{' and the last '}'
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end <= start {
		return ""
	}
	return response[start : end+1]
}

func stringField(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok {
			return s
		}
	}
	return ""
}

func numberField(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func clamp(c float64) float64 {
	if c < 0 || math.IsNaN(c) {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
