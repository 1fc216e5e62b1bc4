package tui

import (
	"github.com/charmbracelet/lipgloss"

	"queuehive/internal/models"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("24")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	faintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

func statusStyle(status models.Status) lipgloss.Style {
	switch status {
	case models.StatusPending:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	case models.StatusCalling:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	case models.StatusServed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	case models.StatusSkipped:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	case models.StatusCancelled:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	default:
		return lipgloss.NewStyle()
	}
}
