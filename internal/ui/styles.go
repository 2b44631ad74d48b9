package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/stratos/foresight/internal/types"
)

// Theme defines the visual style for foresight.
type Theme struct {
	// Brand colors
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color

	// Semantic colors
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color

	// Text colors
	Text     lipgloss.Color
	TextDim  lipgloss.Color
	TextBold lipgloss.Color
}

// DefaultTheme returns the default color theme.
func DefaultTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#1E3A8A"), // Lapis
		Secondary: lipgloss.Color("#06B6D4"), // Cyan
		Accent:    lipgloss.Color("#F59E0B"), // Amber

		Success: lipgloss.Color("#10B981"), // Emerald
		Warning: lipgloss.Color("#F59E0B"), // Amber
		Error:   lipgloss.Color("#EF4444"), // Red
		Muted:   lipgloss.Color("#6B7280"), // Gray

		Text:     lipgloss.Color("#F9FAFB"), // Near white
		TextDim:  lipgloss.Color("#9CA3AF"), // Gray
		TextBold: lipgloss.Color("#FFFFFF"), // White
	}
}

// Styles contains all the styled components for the UI.
type Styles struct {
	// App container
	App lipgloss.Style

	// Header/Banner
	BannerTitle lipgloss.Style

	// Form
	Label        lipgloss.Style
	LabelFocused lipgloss.Style
	Hint         lipgloss.Style
	Prompt       lipgloss.Style

	// Agent cards
	Card       lipgloss.Style
	CardTitle  lipgloss.Style
	CardBody   lipgloss.Style
	CardError  lipgloss.Style
	CardMeta   lipgloss.Style
	badges     map[types.AgentStatus]lipgloss.Style
	cardBorder map[types.AgentStatus]lipgloss.Color

	// Status banner
	Info    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style

	// Rating
	Star      lipgloss.Style
	StarEmpty lipgloss.Style
	Checked   lipgloss.Style
	Unchecked lipgloss.Style

	// Status
	Spinner    lipgloss.Style
	StatusText lipgloss.Style
	Progress   lipgloss.Style

	// Help
	HelpKey   lipgloss.Style
	HelpValue lipgloss.Style
	HelpBar   lipgloss.Style
}

// NewStyles creates styled components from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		BannerTitle: lipgloss.NewStyle().
			Foreground(t.Secondary).
			Bold(true),

		Label: lipgloss.NewStyle().
			Foreground(t.TextDim).
			Width(14),

		LabelFocused: lipgloss.NewStyle().
			Foreground(t.Secondary).
			Bold(true).
			Width(14),

		Hint: lipgloss.NewStyle().
			Foreground(t.Muted).
			Italic(true).
			PaddingLeft(14),

		Prompt: lipgloss.NewStyle().
			Foreground(t.Secondary).
			Bold(true),

		Card: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			Padding(0, 1).
			MarginBottom(1),

		CardTitle: lipgloss.NewStyle().
			Foreground(t.TextBold).
			Bold(true),

		CardBody: lipgloss.NewStyle().
			Foreground(t.Text),

		CardError: lipgloss.NewStyle().
			Foreground(t.Error),

		CardMeta: lipgloss.NewStyle().
			Foreground(t.TextDim),

		badges: map[types.AgentStatus]lipgloss.Style{
			types.StatusWaiting: lipgloss.NewStyle().Foreground(t.Muted),
			types.StatusRunning: lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
			types.StatusSuccess: lipgloss.NewStyle().Foreground(t.Success).Bold(true),
			types.StatusError:   lipgloss.NewStyle().Foreground(t.Error).Bold(true),
		},

		cardBorder: map[types.AgentStatus]lipgloss.Color{
			types.StatusWaiting: t.Muted,
			types.StatusRunning: t.Accent,
			types.StatusSuccess: t.Success,
			types.StatusError:   t.Error,
		},

		Info: lipgloss.NewStyle().
			Foreground(t.Secondary),

		Success: lipgloss.NewStyle().
			Foreground(t.Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(t.Error).
			Bold(true),

		Star: lipgloss.NewStyle().
			Foreground(t.Accent),

		StarEmpty: lipgloss.NewStyle().
			Foreground(t.Muted),

		Checked: lipgloss.NewStyle().
			Foreground(t.Success),

		Unchecked: lipgloss.NewStyle().
			Foreground(t.TextDim),

		Spinner: lipgloss.NewStyle().
			Foreground(t.Accent),

		StatusText: lipgloss.NewStyle().
			Foreground(t.TextDim),

		Progress: lipgloss.NewStyle().
			Foreground(t.Secondary).
			Bold(true),

		HelpKey: lipgloss.NewStyle().
			Foreground(t.Muted),

		HelpValue: lipgloss.NewStyle().
			Foreground(t.TextDim),

		HelpBar: lipgloss.NewStyle().
			Foreground(t.Muted).
			MarginTop(1),
	}
}

// DefaultStyles returns styles with the default theme.
func DefaultStyles() Styles {
	return NewStyles(DefaultTheme())
}

// Badge styles a status label.
func (s Styles) Badge(status types.AgentStatus) lipgloss.Style {
	return s.badges[status]
}

// CardFor returns the card frame for an agent in the given status.
func (s Styles) CardFor(status types.AgentStatus) lipgloss.Style {
	return s.Card.BorderForeground(s.cardBorder[status])
}

// Banner returns the ASCII art banner.
func Banner() string {
	banner := `
 ╔══════════════════════════════════════════════════════════════╗
 ║   ___ ___  ___ ___ ___ ___ ___ _  _ _____                    ║
 ║  | __/ _ \| _ \ __/ __|_ _/ __| || |_   _|                   ║
 ║  | _| (_) |   / _|\__ \| | (_ | __ | | |                     ║
 ║  |_| \___/|_|_\___|___/___\___|_||_| |_|                     ║
 ║                                                              ║
 ║          Multi-Agent Strategic Analysis from the Terminal    ║
 ╚══════════════════════════════════════════════════════════════╝`
	return banner
}
