package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// Theme holds the color scheme for command output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

var theme = defaultTheme

// plain disables styling when stdout is not a terminal.
var plain = !term.IsTerminal(int(os.Stdout.Fd()))

// base returns s, or an unstyled style when output is not a terminal.
func base(s lipgloss.Style) lipgloss.Style {
	if plain {
		return lipgloss.NewStyle()
	}
	return s
}

func (t Theme) statusStyle() lipgloss.Style {
	return base(lipgloss.NewStyle().Foreground(t.Status))
}

func (t Theme) completedStyle() lipgloss.Style {
	return base(lipgloss.NewStyle().Foreground(t.Success).Bold(true))
}

func (t Theme) errorStyle() lipgloss.Style {
	return base(lipgloss.NewStyle().Foreground(t.Error).Bold(true))
}

func (t Theme) hintStyle() lipgloss.Style {
	return base(lipgloss.NewStyle().Foreground(t.Hint).Italic(true))
}

// categoryStyle colors a label by how actionable it is.
func (t Theme) categoryStyle(c models.Category) lipgloss.Style {
	switch c {
	case models.CategoryInterested, models.CategoryMeetingBooked:
		return t.completedStyle()
	case models.CategorySpam:
		return t.errorStyle()
	default:
		return t.hintStyle()
	}
}

// termWidth returns the terminal width, or 80 when unknown.
func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}
