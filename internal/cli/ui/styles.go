package ui

import "github.com/charmbracelet/lipgloss"

// Styles lipgloss styles shared by the CLI
var Styles = struct {
	Bold lipgloss.Style
}{
	Bold: lipgloss.NewStyle().Bold(true),
}
