// ABOUTME: Example turn state used to document the state layout
// ABOUTME: Served by the HTTP API so clients can see every field populated
package service

import (
	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/orchestrator"
)

// ExampleNote accompanies the example state
const ExampleNote = "Example of the per-turn state: messages and routing history are append-only, the iteration log is deduplicated."

// ExampleState builds a small finished turn routed to the professional handler
func ExampleState() *models.TurnState {
	state, err := models.NewTurnState("example_user", "example_session", 10, nil)
	if err != nil {
		panic(err)
	}

	user, _ := models.NewMessage(models.RoleUser, "Example query", "")
	state.AppendMessage(user)

	state.IncrementIteration()
	decision, _ := models.NewRoutingDecision(models.Classification{
		Label:      models.LabelProfessional,
		Confidence: 0.9,
		Rationale:  "Example routing",
		Source:     models.SourceModel,
	})
	state.AppendRoutingDecision(*decision)
	state.AppendLog(models.IterationLogEntry{
		Iteration:  1,
		Actor:      models.ActorRouter,
		Action:     "routed to professional",
		Confidence: 0.9,
		Rationale:  "Example routing",
	})

	reply, _ := models.NewMessage(models.RoleAssistant, "Example response", models.LabelProfessional)
	state.AppendMessage(reply)
	state.AppendLog(models.IterationLogEntry{
		Iteration:  1,
		Actor:      string(models.LabelProfessional),
		Action:     orchestrator.ActionGeneratedResponse,
		Confidence: 0.9,
	})

	state.SetFinalResponse(reply.Content)
	state.Stop()
	return state
}
