package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ffff"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888899")).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ccff")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688")).Italic(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444")).Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ff00ff"))

	// matches the desktop shell: blue while charging, red when switched off
	activeBar   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4466ff"))
	inactiveBar = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
)

// chargeBar renders percent (tenths, 0..1000) as a bar of the given width.
func chargeBar(percent uint32, width int, active bool) string {
	filled := int(uint64(percent) * uint64(width) / 1000)
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if active {
		return activeBar.Render(bar)
	}
	return inactiveBar.Render(bar)
}
