// ABOUTME: Tests for the control loop against deterministic stub collaborators
// ABOUTME: Covers termination rules, handler substitution, iteration caps and concurrency
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/harper/twin/internal/handlers"
	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/router"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type scriptedHandler struct {
	label models.Label
	reply func(state *models.TurnState) (handlers.Reply, error)
}

func (h *scriptedHandler) Label() models.Label { return h.label }

func (h *scriptedHandler) Handle(ctx context.Context, state *models.TurnState) (handlers.Reply, error) {
	return h.reply(state)
}

func replyWith(text string) func(*models.TurnState) (handlers.Reply, error) {
	return func(*models.TurnState) (handlers.Reply, error) { return handlers.Reply{Text: text}, nil }
}

type countingDispatcher struct {
	inner Dispatcher
	calls atomic.Int32
}

func (c *countingDispatcher) Dispatch(ctx context.Context, label models.Label, state *models.TurnState) handlers.Outcome {
	c.calls.Add(1)
	return c.inner.Dispatch(ctx, label, state)
}

func failingClassifier() router.Classifier {
	return router.ClassifierFunc(func(ctx context.Context, text string) (models.Classification, error) {
		return models.Classification{}, errors.New("model unavailable")
	})
}

func modelClassifier(label models.Label, confidence float64) router.Classifier {
	return router.ClassifierFunc(func(ctx context.Context, text string) (models.Classification, error) {
		return models.Classification{Label: label, Confidence: confidence, Rationale: "stub", Source: models.SourceModel}, nil
	})
}

func newRegistry(general func(*models.TurnState) (handlers.Reply, error), others ...*scriptedHandler) *handlers.Registry {
	r := handlers.NewRegistry(&scriptedHandler{label: models.LabelGeneral, reply: general}, zerolog.Nop())
	for _, h := range others {
		r.Register(h)
	}
	return r
}

func lastWorkflowEntry(t *testing.T, state *models.TurnState) models.IterationLogEntry {
	t.Helper()
	log := state.Log()
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Actor == models.ActorWorkflow {
			return log[i]
		}
	}
	t.Fatal("no workflow entry in log")
	return models.IterationLogEntry{}
}

func TestRunTurn_GreetingCompletesAfterOneIteration(t *testing.T) {
	dispatcher := &countingDispatcher{inner: newRegistry(replyWith("Hi! I'm doing well, thanks."))}
	o := New(router.New(failingClassifier()), dispatcher)

	state, err := o.RunTurn(context.Background(), TurnInput{Text: "Hello! How are you?", MaxIterations: 5})
	require.NoError(t, err)

	assert.Equal(t, 1, state.Iteration())
	assert.Equal(t, int32(1), dispatcher.calls.Load())
	assert.Empty(t, state.Error())

	routing := state.RoutingHistory()
	require.Len(t, routing, 1)
	assert.Equal(t, models.LabelGeneral, routing[0].Label)
	assert.InDelta(t, 0.6, routing[0].Confidence, 1e-9)

	final, ok := state.FinalResponse()
	require.True(t, ok)
	assert.Equal(t, "Hi! I'm doing well, thanks.", final)

	entry := lastWorkflowEntry(t, state)
	assert.Equal(t, "workflow complete", entry.Action)
	assert.Equal(t, string(RuleComplete), entry.Rationale)

	log := state.Log()
	require.Len(t, log, 3)
	assert.Equal(t, models.ActorRouter, log[0].Actor)
	assert.Equal(t, "general", log[1].Actor)
	assert.Equal(t, ActionGeneratedResponse, log[1].Action)
	assert.Equal(t, models.ActorWorkflow, log[2].Actor)
	for _, e := range log {
		assert.Equal(t, 1, e.Iteration)
	}
}

func TestRunTurn_ContinuationStopsAtMaxIterations(t *testing.T) {
	dispatcher := &countingDispatcher{inner: newRegistry(replyWith("Sure. Let me also add more. Would you like details?"))}
	o := New(router.New(failingClassifier()), dispatcher)

	state, err := o.RunTurn(context.Background(), TurnInput{Text: "Hello", MaxIterations: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, state.Iteration())
	assert.Equal(t, int32(2), dispatcher.calls.Load())
	assert.Contains(t, state.Error(), "max iterations")
	assert.False(t, state.ShouldContinue())
	assert.Equal(t, "max iterations reached", lastWorkflowEntry(t, state).Action)

	_, ok := state.FinalResponse()
	assert.True(t, ok, "a capped turn still returns the last reply")
}

func TestRunTurn_ContinuationPhrasesLoopUntilThirdIteration(t *testing.T) {
	dispatcher := &countingDispatcher{inner: newRegistry(replyWith("Additionally, there is more."))}
	o := New(router.New(failingClassifier()), dispatcher)

	state, err := o.RunTurn(context.Background(), TurnInput{Text: "Hello", MaxIterations: 10})
	require.NoError(t, err)

	assert.Equal(t, 3, state.Iteration())
	assert.Equal(t, int32(3), dispatcher.calls.Load())
	assert.Empty(t, state.Error())
	assert.Equal(t, "workflow complete", lastWorkflowEntry(t, state).Action)
}

func TestRunTurn_FailingHandlerIsSubstituted(t *testing.T) {
	broken := &scriptedHandler{label: models.LabelProfessional, reply: func(*models.TurnState) (handlers.Reply, error) {
		return handlers.Reply{}, errors.New("generation timeout")
	}}
	o := New(router.New(failingClassifier()), newRegistry(replyWith("Here is a general answer."), broken))

	var state *models.TurnState
	require.NotPanics(t, func() {
		var err error
		state, err = o.RunTurn(context.Background(), TurnInput{Text: "Help me debug this Python code", MaxIterations: 5})
		require.NoError(t, err)
	})

	final, _ := state.FinalResponse()
	assert.Equal(t, "Here is a general answer.", final)
	assert.Empty(t, state.Error())
	assert.Equal(t, "workflow complete", lastWorkflowEntry(t, state).Action)

	var substitution *models.IterationLogEntry
	for _, e := range state.Log() {
		if e.Actor == models.ActorDispatcher {
			e := e
			substitution = &e
		}
	}
	require.NotNil(t, substitution, "log must document the substitution")
	assert.Contains(t, substitution.Action, "substituted general handler for professional")
	assert.Contains(t, substitution.Rationale, "generation timeout")
}

func TestRunTurn_PanickingHandlerDoesNotEscape(t *testing.T) {
	broken := &scriptedHandler{label: models.LabelDecision, reply: func(*models.TurnState) (handlers.Reply, error) {
		panic("nil pointer")
	}}
	o := New(router.New(modelClassifier(models.LabelDecision, 0.95)), newRegistry(replyWith("fallback"), broken))

	state, err := o.RunTurn(context.Background(), TurnInput{Text: "Should I?", MaxIterations: 3})
	require.NoError(t, err)
	final, _ := state.FinalResponse()
	assert.Equal(t, "fallback", final)
}

func TestRunTurn_LowConfidenceModelDecisionRetriesOnce(t *testing.T) {
	var classified atomic.Int32
	classifier := router.ClassifierFunc(func(ctx context.Context, text string) (models.Classification, error) {
		classified.Add(1)
		return models.Classification{Label: models.LabelDecision, Confidence: 0.55, Rationale: "unsure", Source: models.SourceModel}, nil
	})
	decision := &scriptedHandler{label: models.LabelDecision, reply: replyWith("Go with option A.")}
	dispatcher := &countingDispatcher{inner: newRegistry(replyWith("general"), decision)}
	o := New(router.New(classifier), dispatcher)

	state, err := o.RunTurn(context.Background(), TurnInput{Text: "Which option?", MaxIterations: 5})
	require.NoError(t, err)

	assert.Equal(t, 2, state.Iteration())
	assert.Equal(t, int32(2), classified.Load())
	assert.Len(t, state.RoutingHistory(), 2)

	var rules []string
	for _, e := range state.Log() {
		if e.Actor == models.ActorWorkflow {
			rules = append(rules, e.Rationale)
		}
	}
	assert.Equal(t, []string{string(RuleLowConfidenceRetry), string(RuleComplete)}, rules)
}

func TestRunTurn_FinalReplyStopsImmediately(t *testing.T) {
	final := &scriptedHandler{label: models.LabelKnowledge, reply: func(*models.TurnState) (handlers.Reply, error) {
		return handlers.Reply{Text: "Your favorite color is blue. Would you like more?", Final: true}, nil
	}}
	dispatcher := &countingDispatcher{inner: newRegistry(replyWith("general"), final)}
	o := New(router.New(modelClassifier(models.LabelKnowledge, 0.6)), dispatcher)

	state, err := o.RunTurn(context.Background(), TurnInput{Text: "what is my favorite color", MaxIterations: 5})
	require.NoError(t, err)

	assert.Equal(t, int32(1), dispatcher.calls.Load())
	assert.Equal(t, "final response available", lastWorkflowEntry(t, state).Action)
	got, _ := state.FinalResponse()
	assert.Equal(t, "Your favorite color is blue. Would you like more?", got)
}

func TestRunTurn_NeverExceedsMaxIterations(t *testing.T) {
	adversarial := func(*models.TurnState) (handlers.Reply, error) {
		return handlers.Reply{Text: "Let me continue. Shall I go on? Furthermore..."}, nil
	}
	classifier := modelClassifier(models.LabelGeneral, 0.51)

	for max := models.MinIterations; max <= models.MaxIterations; max++ {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			dispatcher := &countingDispatcher{inner: newRegistry(adversarial)}
			o := New(router.New(classifier), dispatcher)

			state, err := o.RunTurn(context.Background(), TurnInput{Text: "go", MaxIterations: max})
			require.NoError(t, err)

			assert.LessOrEqual(t, int(dispatcher.calls.Load()), max)
			assert.LessOrEqual(t, state.Iteration(), max)
			assert.Equal(t, int(dispatcher.calls.Load()), state.Iteration())
		})
	}
}

func TestRunTurn_DedupedLogHasUniqueKeys(t *testing.T) {
	o := New(router.New(failingClassifier()), newRegistry(replyWith("I can also help with that.")))
	state, err := o.RunTurn(context.Background(), TurnInput{Text: "hi", MaxIterations: 5})
	require.NoError(t, err)

	seen := map[models.LogKey]bool{}
	for _, e := range state.DedupedLog() {
		require.False(t, seen[e.Key()], "duplicate key %+v", e.Key())
		seen[e.Key()] = true
	}
	assert.GreaterOrEqual(t, len(state.Log()), len(state.RoutingHistory()))
}

func TestRunTurn_IsIdempotentWithDeterministicCollaborators(t *testing.T) {
	reply := func(state *models.TurnState) (handlers.Reply, error) {
		return handlers.Reply{Text: fmt.Sprintf("reply after %d messages", len(state.Messages()))}, nil
	}
	o := New(router.New(failingClassifier()), newRegistry(reply))

	in := TurnInput{Text: "Help me write an email", MaxIterations: 4}
	first, err := o.RunTurn(context.Background(), in)
	require.NoError(t, err)
	second, err := o.RunTurn(context.Background(), in)
	require.NoError(t, err)

	f1, _ := first.FinalResponse()
	f2, _ := second.FinalResponse()
	assert.Equal(t, f1, f2)
	assert.Equal(t, first.Iteration(), second.Iteration())
	assert.NotEqual(t, first.TurnID, second.TurnID)
}

func TestRunTurn_SeedsPriorMessages(t *testing.T) {
	var seen int
	reply := func(state *models.TurnState) (handlers.Reply, error) {
		seen = len(state.Messages())
		return handlers.Reply{Text: "ok"}, nil
	}
	o := New(router.New(nil), newRegistry(reply))

	prior := []models.Message{
		{MessageID: "p1", Role: models.RoleUser, Content: "earlier question"},
		{MessageID: "p2", Role: models.RoleAssistant, Content: "earlier answer", Label: models.LabelGeneral},
	}
	state, err := o.RunTurn(context.Background(), TurnInput{Text: "follow up", MaxIterations: 1, PriorMessages: prior, UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)

	msgs := state.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "p1", msgs[0].MessageID)
	assert.Equal(t, "follow up", msgs[2].Content)
	assert.Equal(t, models.RoleAssistant, msgs[3].Role)
	assert.Equal(t, 3, seen)
	assert.Equal(t, "u1", state.UserID)
	assert.Equal(t, "s1", state.SessionID)
}

func TestRunTurn_RejectsInvalidInput(t *testing.T) {
	o := New(router.New(nil), newRegistry(replyWith("x")))

	tests := []struct {
		name string
		in   TurnInput
	}{
		{"empty text", TurnInput{Text: "", MaxIterations: 3}},
		{"zero iterations", TurnInput{Text: "hi", MaxIterations: 0}},
		{"too many iterations", TurnInput{Text: "hi", MaxIterations: 21}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := o.RunTurn(context.Background(), tt.in)
			assert.Error(t, err)
			assert.Nil(t, state)
		})
	}
}

type invalidRouter struct{}

func (invalidRouter) Route(ctx context.Context, text string) models.Classification {
	return models.Classification{Label: "weather", Confidence: 3}
}

func TestRunTurn_InvalidRouterOutputIsCoerced(t *testing.T) {
	o := New(invalidRouter{}, newRegistry(replyWith("ok")))
	state, err := o.RunTurn(context.Background(), TurnInput{Text: "hi", MaxIterations: 2})
	require.NoError(t, err)

	d, ok := state.LatestRoutingDecision()
	require.True(t, ok)
	assert.Equal(t, models.LabelGeneral, d.Label)
	assert.True(t, strings.HasPrefix(d.Rationale, "invalid routing decision"))
}

func TestRunTurn_ConcurrentTurnsShareNothing(t *testing.T) {
	// dependencies start background workers at init
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reply := func(state *models.TurnState) (handlers.Reply, error) {
		latest, _ := state.LatestUserMessage()
		return handlers.Reply{Text: "echo: " + latest.Content}, nil
	}
	o := New(router.New(failingClassifier()), newRegistry(reply))

	const turns = 32
	var wg sync.WaitGroup
	results := make([]string, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state, err := o.RunTurn(context.Background(), TurnInput{Text: fmt.Sprintf("message %d", i), MaxIterations: 3})
			if err != nil {
				return
			}
			results[i], _ = state.FinalResponse()
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, fmt.Sprintf("echo: message %d", i), got)
	}
}
