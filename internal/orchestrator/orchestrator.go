// ABOUTME: Control loop that routes, handles and decides until a turn terminates
// ABOUTME: Explicit ROUTING/HANDLING/DECIDING/TERMINATED state machine over one TurnState
package orchestrator

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/harper/twin/internal/handlers"
	"github.com/harper/twin/internal/models"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ActionGeneratedResponse is the log action recorded for every handled iteration
const ActionGeneratedResponse = "generated response"

// Router picks a label for text and never fails
type Router interface {
	Route(ctx context.Context, text string) models.Classification
}

// Dispatcher runs the handler for a label and appends its reply to state
type Dispatcher interface {
	Dispatch(ctx context.Context, label models.Label, state *models.TurnState) handlers.Outcome
}

type phase int

const (
	phaseRouting phase = iota
	phaseHandling
	phaseDeciding
	phaseTerminated
)

func (p phase) String() string {
	switch p {
	case phaseRouting:
		return "ROUTING"
	case phaseHandling:
		return "HANDLING"
	case phaseDeciding:
		return "DECIDING"
	default:
		return "TERMINATED"
	}
}

// TurnInput is everything the caller supplies for one turn
type TurnInput struct {
	Text          string
	UserID        string
	SessionID     string
	MaxIterations int
	PriorMessages []models.Message
}

// Validate checks the caller's preconditions
func (in TurnInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Text, validation.Required),
		validation.Field(&in.MaxIterations, validation.Required, validation.Min(models.MinIterations), validation.Max(models.MaxIterations)),
	)
}

// Orchestrator runs turns. It holds no per-turn state and is safe for
// concurrent use as long as its router and dispatcher are.
type Orchestrator struct {
	router      Router
	dispatcher  Dispatcher
	logger      zerolog.Logger
	tracer      trace.Tracer
	callTimeout time.Duration
	phrases     []string
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTracer sets the tracer used for turn and step spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

// WithCallTimeout bounds each routing and handling call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

// WithContinuationPhrases replaces DefaultContinuationPhrases
func WithContinuationPhrases(phrases []string) Option {
	return func(o *Orchestrator) { o.phrases = phrases }
}

// New creates an orchestrator over explicitly supplied collaborators
func New(router Router, dispatcher Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		router:     router,
		dispatcher: dispatcher,
		logger:     zerolog.Nop(),
		tracer:     otel.Tracer("github.com/harper/twin/internal/orchestrator"),
		phrases:    DefaultContinuationPhrases,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunTurn processes one user message to completion and returns the final state.
// The error is non-nil only when in fails validation; routing and handling
// failures degrade inside the loop and show up in the iteration log.
func (o *Orchestrator) RunTurn(ctx context.Context, in TurnInput) (*models.TurnState, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid turn input: %w", err)
	}

	state, err := models.NewTurnState(in.UserID, in.SessionID, in.MaxIterations, in.PriorMessages)
	if err != nil {
		return nil, fmt.Errorf("invalid turn input: %w", err)
	}
	userMsg, err := models.NewMessage(models.RoleUser, in.Text, "")
	if err != nil {
		return nil, fmt.Errorf("invalid turn input: %w", err)
	}
	state.AppendMessage(userMsg)

	ctx, span := o.tracer.Start(ctx, "twin.turn",
		trace.WithAttributes(
			attribute.String("twin.turn_id", state.TurnID),
			attribute.String("twin.session_id", state.SessionID),
			attribute.Int("twin.max_iterations", in.MaxIterations),
		),
	)
	defer span.End()

	logger := o.logger.With().Str("turn_id", state.TurnID).Logger()
	started := time.Now()

	var (
		current  models.RoutingDecision
		verdict  Verdict
		outcome  handlers.Outcome
		nextStep = phaseRouting
	)

	for nextStep != phaseTerminated {
		switch nextStep {
		case phaseRouting:
			current = o.route(ctx, state, logger)
			nextStep = phaseHandling

		case phaseHandling:
			outcome = o.handle(ctx, state, current, logger)
			nextStep = phaseDeciding

		case phaseDeciding:
			verdict = o.decide(ctx, state, current)
			logger.Debug().
				Int("iteration", state.Iteration()).
				Str("rule", string(verdict.Rule)).
				Bool("continue", verdict.Continue).
				Msg(verdict.Reason)
			if verdict.Continue {
				nextStep = phaseRouting
			} else {
				nextStep = phaseTerminated
			}
		}
	}

	if _, ok := state.FinalResponse(); !ok {
		if m, ok := state.LatestAssistantMessage(); ok {
			state.SetFinalResponse(m.Content)
		}
	}

	span.SetAttributes(
		attribute.Int("twin.iterations", state.Iteration()),
		attribute.String("twin.termination_rule", string(verdict.Rule)),
		attribute.String("twin.label", outcome.Label.String()),
	)
	if state.Error() != "" {
		span.SetAttributes(attribute.String("twin.error", state.Error()))
	}

	logger.Info().
		Int("iterations", state.Iteration()).
		Str("label", outcome.Label.String()).
		Float64("confidence", current.Confidence).
		Str("rule", string(verdict.Rule)).
		Dur("elapsed", time.Since(started)).
		Msg("turn complete")

	return state, nil
}

func (o *Orchestrator) route(ctx context.Context, state *models.TurnState, logger zerolog.Logger) models.RoutingDecision {
	iteration := state.Iteration() + 1
	ctx, span := o.tracer.Start(ctx, "twin.route", trace.WithAttributes(attribute.Int("twin.iteration", iteration)))
	defer span.End()

	latest, _ := state.LatestUserMessage()

	stepCtx, cancel := o.stepContext(ctx)
	c := o.router.Route(stepCtx, latest.Content)
	cancel()

	decision, err := models.NewRoutingDecision(c)
	if err != nil {
		logger.Warn().Err(err).Int("iteration", iteration).Msg("router returned an invalid decision, using general")
		decision, _ = models.NewRoutingDecision(models.Classification{
			Label:      models.LabelGeneral,
			Confidence: 0.6,
			Rationale:  fmt.Sprintf("invalid routing decision: %v", err),
			Source:     models.SourceDefault,
		})
	}
	state.AppendRoutingDecision(*decision)
	state.LogOnce(models.IterationLogEntry{
		Iteration:  iteration,
		Actor:      models.ActorRouter,
		Action:     fmt.Sprintf("routed to %s", decision.Label),
		Confidence: decision.Confidence,
		Rationale:  decision.Rationale,
	})

	span.SetAttributes(
		attribute.String("twin.label", decision.Label.String()),
		attribute.Float64("twin.confidence", decision.Confidence),
		attribute.String("twin.source", string(decision.Source)),
	)
	logger.Debug().
		Int("iteration", iteration).
		Str("label", decision.Label.String()).
		Float64("confidence", decision.Confidence).
		Str("source", string(decision.Source)).
		Msg("routed")
	return *decision
}

func (o *Orchestrator) handle(ctx context.Context, state *models.TurnState, decision models.RoutingDecision, logger zerolog.Logger) handlers.Outcome {
	iteration := state.Iteration() + 1
	ctx, span := o.tracer.Start(ctx, "twin.handle", trace.WithAttributes(
		attribute.Int("twin.iteration", iteration),
		attribute.String("twin.label", decision.Label.String()),
	))
	defer span.End()

	stepCtx, cancel := o.stepContext(ctx)
	outcome := o.dispatcher.Dispatch(stepCtx, decision.Label, state)
	cancel()

	if outcome.Final {
		state.SetFinalResponse(outcome.Message.Content)
	}
	state.AppendLog(models.IterationLogEntry{
		Iteration:  iteration,
		Actor:      outcome.Label.String(),
		Action:     ActionGeneratedResponse,
		Confidence: decision.Confidence,
	})

	if n := state.IncrementIteration(); n >= state.MaxIterations() {
		state.Stop()
		state.SetError(fmt.Sprintf("max iterations (%d) reached", state.MaxIterations()))
	}

	if outcome.Substituted {
		span.RecordError(outcome.Err)
		logger.Warn().Err(outcome.Err).Int("iteration", iteration).Str("label", decision.Label.String()).Msg("handler substituted")
	}
	span.SetAttributes(
		attribute.String("twin.handler", outcome.Label.String()),
		attribute.Bool("twin.substituted", outcome.Substituted),
	)
	return outcome
}

func (o *Orchestrator) decide(ctx context.Context, state *models.TurnState, decision models.RoutingDecision) Verdict {
	_, span := o.tracer.Start(ctx, "twin.decide", trace.WithAttributes(attribute.Int("twin.iteration", state.Iteration())))
	defer span.End()

	verdict := Decide(state, o.phrases)
	state.AppendLog(models.IterationLogEntry{
		Iteration:  state.Iteration(),
		Actor:      models.ActorWorkflow,
		Action:     verdict.Reason,
		Confidence: decision.Confidence,
		Rationale:  string(verdict.Rule),
	})

	span.SetAttributes(
		attribute.String("twin.rule", string(verdict.Rule)),
		attribute.Bool("twin.continue", verdict.Continue),
	)
	return verdict
}

func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.callTimeout)
}
