// ABOUTME: Composite router: model classifier first, keyword fallback when it fails or is unsure
// ABOUTME: Route never fails and always returns a label from the closed set
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/harper/twin/internal/models"
	"github.com/rs/zerolog"
)

// FallbackThreshold is the confidence below which the keyword fallback takes over
const FallbackThreshold = 0.5

// Router combines a primary classifier with the keyword fallback
type Router struct {
	primary  Classifier
	fallback *KeywordClassifier
	logger   zerolog.Logger
}

// Option configures a Router
type Option func(*Router)

// WithLogger sets the router's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithFallback replaces the keyword fallback
func WithFallback(fallback *KeywordClassifier) Option {
	return func(r *Router) { r.fallback = fallback }
}

// New creates a router. primary may be nil, in which case every message is
// routed by the keyword fallback.
func New(primary Classifier, opts ...Option) *Router {
	r := &Router{
		primary:  primary,
		fallback: NewKeywordClassifier(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies text. The primary result is used unless the primary fails,
// degrades to its default, or reports confidence below FallbackThreshold.
// Confidence is clamped to [0, 1] before the threshold check; NaN counts as 0.
// Rationales are tagged "LLM:" or "fallback:" accordingly.
func (r *Router) Route(ctx context.Context, text string) models.Classification {
	if r.primary == nil {
		return r.useFallback(text, "no model classifier configured")
	}

	c, err := r.classifyPrimary(ctx, text)
	if err == nil {
		c.Confidence = clamp(c.Confidence)
	}
	switch {
	case err != nil:
		return r.useFallback(text, err.Error())
	case c.Source == models.SourceDefault:
		return r.useFallback(text, c.Rationale)
	case !c.Label.IsValid():
		return r.useFallback(text, fmt.Sprintf("unknown label %q", c.Label))
	case c.Confidence < FallbackThreshold:
		return r.useFallback(text, fmt.Sprintf("low confidence %.2f", c.Confidence))
	}

	if strings.TrimSpace(c.Rationale) == "" {
		c.Rationale = DefaultModelRationale
	}
	c.Rationale = "LLM: " + c.Rationale
	c.Source = models.SourceModel
	return c
}

func (r *Router) classifyPrimary(ctx context.Context, text string) (c models.Classification, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("classifier panic: %v", p)
		}
	}()
	return r.primary.Classify(ctx, text)
}

func (r *Router) useFallback(text, reason string) models.Classification {
	c := r.fallback.Classify(text)
	r.logger.Debug().
		Str("reason", reason).
		Str("label", c.Label.String()).
		Float64("confidence", c.Confidence).
		Msg("using keyword fallback")
	c.Rationale = fmt.Sprintf("fallback: %s (%s)", c.Rationale, reason)
	return c
}
