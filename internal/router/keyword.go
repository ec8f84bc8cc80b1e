// ABOUTME: Deterministic keyword classifier used when the model classifier is unavailable
// ABOUTME: Pure function of the input text; ties resolve by label priority
package router

import (
	"fmt"
	"math"
	"strings"

	"github.com/harper/twin/internal/models"
)

const (
	keywordBaseConfidence = 0.6
	keywordStepConfidence = 0.1
	keywordMaxConfidence  = 0.75

	// NoKeywordsRationale is the rationale returned when nothing matched
	NoKeywordsRationale = "no keywords matched"
)

// DefaultTriggers are the lower-case trigger substrings per label
var DefaultTriggers = map[models.Label][]string{
	models.LabelProfessional:  {"code", "programming", "python", "api", "debug", "technical"},
	models.LabelCommunication: {"write", "email", "draft", "tone", "message"},
	models.LabelKnowledge:     {"what do i", "my preference", "my favorite", "tell me about my"},
	models.LabelDecision:      {"should i", "decide", "choose", "recommend", "pros and cons"},
}

// KeywordClassifier scores each label by counting trigger occurrences
type KeywordClassifier struct {
	triggers map[models.Label][]string
}

// NewKeywordClassifier creates a classifier over DefaultTriggers
func NewKeywordClassifier() *KeywordClassifier {
	return NewKeywordClassifierWithTriggers(DefaultTriggers)
}

// NewKeywordClassifierWithTriggers creates a classifier over custom triggers.
// Triggers are lower-cased; labels outside the label set are ignored.
func NewKeywordClassifierWithTriggers(triggers map[models.Label][]string) *KeywordClassifier {
	normalized := make(map[models.Label][]string, len(triggers))
	for label, words := range triggers {
		if !label.IsValid() {
			continue
		}
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				normalized[label] = append(normalized[label], w)
			}
		}
	}
	return &KeywordClassifier{triggers: normalized}
}

// Scores returns the summed non-overlapping trigger counts per label
func (k *KeywordClassifier) Scores(text string) map[models.Label]int {
	lower := strings.ToLower(text)
	scores := make(map[models.Label]int, len(k.triggers))
	for label, words := range k.triggers {
		for _, w := range words {
			scores[label] += strings.Count(lower, w)
		}
	}
	return scores
}

// Classify picks the label with the strictly highest count, breaking ties by
// models.Labels order. Zero matches yield the general label at 0.6.
func (k *KeywordClassifier) Classify(text string) models.Classification {
	scores := k.Scores(text)

	best := models.LabelGeneral
	bestCount := 0
	for _, label := range models.Labels {
		if scores[label] > bestCount {
			best = label
			bestCount = scores[label]
		}
	}

	if bestCount == 0 {
		return models.Classification{
			Label:      models.LabelGeneral,
			Confidence: keywordBaseConfidence,
			Rationale:  NoKeywordsRationale,
			Source:     models.SourceKeyword,
		}
	}

	return models.Classification{
		Label:      best,
		Confidence: KeywordConfidence(bestCount),
		Rationale:  fmt.Sprintf("matched %d keyword(s)", bestCount),
		Source:     models.SourceKeyword,
	}
}

// KeywordConfidence is min(0.75, 0.6 + 0.1*count), rounded to two decimals
func KeywordConfidence(count int) float64 {
	c := math.Min(keywordMaxConfidence, keywordBaseConfidence+keywordStepConfidence*float64(count))
	return math.Round(c*100) / 100
}
