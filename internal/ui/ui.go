// Package ui holds the terminal styling helpers shared by spool commands.
// Styles degrade to plain text when stdout is not a terminal or when color
// is disabled.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	colorDisabled bool
)

// DisableColor forces plain output regardless of terminal detection.
func DisableColor() {
	colorDisabled = true
	lipgloss.SetColorProfile(termenv.Ascii)
}

func styled() bool {
	if colorDisabled {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func render(s lipgloss.Style, text string) string {
	if !styled() {
		return text
	}
	return s.Render(text)
}

// RenderPass styles success markers.
func RenderPass(text string) string { return render(passStyle, text) }

// RenderWarn styles warnings.
func RenderWarn(text string) string { return render(warnStyle, text) }

// RenderFail styles failures.
func RenderFail(text string) string { return render(failStyle, text) }

// RenderAccent styles informational highlights.
func RenderAccent(text string) string { return render(accentStyle, text) }

// RenderMuted styles secondary text.
func RenderMuted(text string) string { return render(mutedStyle, text) }
