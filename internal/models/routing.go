// ABOUTME: Routing decision types recorded once per classification step
// ABOUTME: Classification is the raw classifier triple, RoutingDecision the validated record
package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ClassificationSource records which classifier produced a result
type ClassificationSource string

const (
	// SourceModel - the model-backed classifier answered with enough confidence
	SourceModel ClassificationSource = "model"

	// SourceKeyword - the deterministic keyword fallback answered
	SourceKeyword ClassificationSource = "keyword"

	// SourceDefault - the model-backed classifier degraded to its safe default
	SourceDefault ClassificationSource = "default"
)

// IsValid reports whether the source is one of the known sources
func (s ClassificationSource) IsValid() bool {
	switch s {
	case SourceModel, SourceKeyword, SourceDefault:
		return true
	}
	return false
}

// Classification is the (label, confidence, rationale) triple a classifier returns
type Classification struct {
	Label      Label                `json:"label"`
	Confidence float64              `json:"confidence"`
	Rationale  string               `json:"rationale,omitempty"`
	Source     ClassificationSource `json:"source"`
}

// RoutingDecision is the immutable record of one classification outcome
type RoutingDecision struct {
	Label      Label                `json:"label"`
	Confidence float64              `json:"confidence"`
	Rationale  string               `json:"rationale,omitempty"`
	Source     ClassificationSource `json:"source"`
	CreatedAt  time.Time            `json:"created_at"`
}

// NewRoutingDecision builds a RoutingDecision from a classification and validates it.
// Confidence outside [0.0, 1.0] is rejected rather than clamped.
func NewRoutingDecision(c Classification) (*RoutingDecision, error) {
	d := &RoutingDecision{
		Label:      c.Label,
		Confidence: c.Confidence,
		Rationale:  c.Rationale,
		Source:     c.Source,
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid routing decision: %w", err)
	}
	return d, nil
}

// Validate checks the label and the confidence range
func (d RoutingDecision) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Label, validation.Required, validation.By(validLabel)),
		validation.Field(&d.Confidence, validation.Min(0.0), validation.Max(1.0)),
	)
}

// FromModel reports whether the decision came from the model-backed classifier
func (d RoutingDecision) FromModel() bool {
	return d.Source == SourceModel
}

func validLabel(value interface{}) error {
	l, ok := value.(Label)
	if !ok || !l.IsValid() {
		return fmt.Errorf("unknown label %v", value)
	}
	return nil
}
