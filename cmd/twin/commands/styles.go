// ABOUTME: Terminal styles for chat and history output
// ABOUTME: One accent color per specialist label
package commands

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/harper/twin/internal/models"
)

var (
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a8f98"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	replyStyle  = lipgloss.NewStyle().PaddingLeft(2)

	labelColors = map[models.Label]lipgloss.Color{
		models.LabelProfessional:  lipgloss.Color("#2196F3"),
		models.LabelCommunication: lipgloss.Color("#4db6ac"),
		models.LabelKnowledge:     lipgloss.Color("#ffd54f"),
		models.LabelDecision:      lipgloss.Color("#ff8a65"),
		models.LabelGeneral:       lipgloss.Color("#8BC34A"),
	}
)

// labelBadge renders a label with its accent color
func labelBadge(l models.Label) string {
	color, ok := labelColors[l]
	if !ok {
		color = labelColors[models.LabelGeneral]
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render("[" + string(l) + "]")
}
