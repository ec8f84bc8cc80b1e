// ABOUTME: Continuation rules evaluated after every handled iteration
// ABOUTME: Rules are checked in a fixed order; hard limits always win over heuristics
package orchestrator

import (
	"strings"

	"github.com/harper/twin/internal/models"
)

// Rule names the DECIDING rule that fired
type Rule string

const (
	RuleMaxIterations      Rule = "max_iterations"
	RuleStopSignaled       Rule = "stop_signaled"
	RuleFinalResponse      Rule = "final_response"
	RuleLowConfidenceRetry Rule = "low_confidence_retry"
	RuleContinuation       Rule = "continuation"
	RuleComplete           Rule = "complete"
)

const (
	// RetryConfidence is the confidence below which a model decision is retried
	RetryConfidence = 0.7
	// RetryIterationLimit bounds the low-confidence retry
	RetryIterationLimit = 2
	// ContinuationIterationLimit bounds phrase-driven continuation
	ContinuationIterationLimit = 3
)

// DefaultContinuationPhrases signal that an assistant reply expects a follow-up
var DefaultContinuationPhrases = []string{
	"let me",
	"i'll also",
	"additionally",
	"furthermore",
	"i can also",
	"would you like",
	"shall i",
}

// Verdict is the outcome of one DECIDING step
type Verdict struct {
	Rule     Rule
	Continue bool
	Reason   string
}

// Decide applies the continuation rules to state in priority order:
// iteration limit, stop flag, final response, low-confidence retry,
// continuation phrases, completion.
func Decide(state *models.TurnState, phrases []string) Verdict {
	iteration := state.Iteration()

	if iteration >= state.MaxIterations() {
		return Verdict{Rule: RuleMaxIterations, Reason: "max iterations reached"}
	}
	if !state.ShouldContinue() {
		return Verdict{Rule: RuleStopSignaled, Reason: "signaled to stop"}
	}
	if _, ok := state.FinalResponse(); ok {
		return Verdict{Rule: RuleFinalResponse, Reason: "final response available"}
	}

	// only a model decision can change on a retry; the keyword fallback is deterministic
	if d, ok := state.LatestRoutingDecision(); ok && d.FromModel() &&
		d.Confidence < RetryConfidence && iteration < RetryIterationLimit {
		return Verdict{Rule: RuleLowConfidenceRetry, Continue: true, Reason: "low confidence, retrying classification"}
	}

	if iteration < ContinuationIterationLimit {
		if m, ok := state.LatestAssistantMessage(); ok && containsAny(m.Content, phrases) {
			return Verdict{Rule: RuleContinuation, Continue: true, Reason: "continuation requested"}
		}
	}

	return Verdict{Rule: RuleComplete, Reason: "workflow complete"}
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
