// ABOUTME: Label identifies which specialized handler should answer a message
// ABOUTME: Closed set of five labels with a fixed priority order for tie-breaks
package models

// Label is a fixed domain tag naming the handler that should answer a message
type Label string

const (
	// LabelProfessional - technical questions, programming, debugging
	LabelProfessional Label = "professional"

	// LabelCommunication - writing help, emails, drafts, tone
	LabelCommunication Label = "communication"

	// LabelKnowledge - personal facts, preferences, memories
	LabelKnowledge Label = "knowledge"

	// LabelDecision - choices, trade-offs, recommendations
	LabelDecision Label = "decision"

	// LabelGeneral - greetings, unclear intent, anything else. Also the default handler.
	LabelGeneral Label = "general"
)

// Labels lists every label in priority order. When two labels score the same
// the one appearing first wins.
var Labels = []Label{
	LabelProfessional,
	LabelCommunication,
	LabelKnowledge,
	LabelDecision,
	LabelGeneral,
}

// IsValid reports whether the label belongs to the closed label set
func (l Label) IsValid() bool {
	switch l {
	case LabelProfessional, LabelCommunication, LabelKnowledge, LabelDecision, LabelGeneral:
		return true
	}
	return false
}

// String returns the label as a plain string
func (l Label) String() string {
	return string(l)
}

// Priority returns the tie-break rank of the label (lower wins), or len(Labels) if unknown
func (l Label) Priority() int {
	for i, candidate := range Labels {
		if candidate == l {
			return i
		}
	}
	return len(Labels)
}
