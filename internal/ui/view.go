package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/stratos/foresight/internal/types"
)

// renderForm renders the question form.
func (m Model) renderForm() string {
	var b strings.Builder

	for i := range m.fields {
		label := m.styles.Label
		if i == m.focus {
			label = m.styles.LabelFocused
		}
		b.WriteString(label.Render(fieldLabels[i]))
		b.WriteString(m.fields[i].View())
		b.WriteString("\n")

		var hint string
		switch i {
		case fieldTimeFrame:
			hint = types.Hint(types.TimeFrames, m.fields[i].Value())
		case fieldRegion:
			hint = types.Hint(types.Regions, m.fields[i].Value())
		case fieldQuestion:
			if n := len([]rune(m.fields[i].Value())); n > 0 {
				hint = fmt.Sprintf("%d / 500 characters", n)
			}
		}
		if hint != "" && i == m.focus {
			b.WriteString(m.styles.Hint.Render(hint))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderProgress renders the completion counter above the cards.
func (m Model) renderProgress() string {
	done := 0
	for _, a := range m.agents {
		if a.Status.Terminal() {
			done++
		}
	}

	line := m.styles.Progress.Render(fmt.Sprintf("Progress: %d/%d agents", done, len(m.agents)))
	if m.sessionID != 0 {
		line += m.styles.StatusText.Render(fmt.Sprintf("  session %d", m.sessionID))
	}
	if m.run != nil {
		line += m.styles.StatusText.Render("  " + Truncate(m.run.Request.StrategicQuestion, 60))
	}
	return line
}

// renderCards renders one card per agent in roster order.
func (m Model) renderCards() string {
	width := m.viewport.Width - 2
	if width < 20 {
		width = 20
	}

	var b strings.Builder
	for i, a := range m.agents {
		b.WriteString(m.renderCard(i, a, width))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderCard(i int, a types.AgentRunState, width int) string {
	var b strings.Builder

	b.WriteString(m.styles.CardTitle.Render(fmt.Sprintf("%d. %s", i+1, a.Name)))
	b.WriteString("  ")
	if a.Status == types.StatusRunning {
		b.WriteString(m.spinner.View())
	}
	b.WriteString(m.styles.Badge(a.Status).Render(a.Status.String()))
	if d := a.Duration(); d > 0 {
		b.WriteString(m.styles.CardMeta.Render(fmt.Sprintf("  %s", d.Round(100*time.Millisecond))))
	}
	b.WriteString("\n")

	switch a.Status {
	case types.StatusSuccess:
		body := a.Rendered
		if body == "" {
			body = a.Content
		}
		if strings.TrimSpace(body) == "" {
			body = m.styles.CardMeta.Render("(no content)")
		}
		b.WriteString(m.styles.CardBody.Render(body))
	case types.StatusError:
		b.WriteString(m.styles.CardError.Render("Error: " + a.Error))
	case types.StatusRunning:
		b.WriteString(m.styles.CardMeta.Render("Processing..."))
	default:
		b.WriteString(m.styles.CardMeta.Render("Waiting..."))
	}

	return m.styles.CardFor(a.Status).Width(width).Render(b.String())
}

// renderBanner renders the one-line status message.
func (m Model) renderBanner() string {
	if m.banner == "" {
		return ""
	}
	switch m.bannerKind {
	case bannerError:
		return m.styles.Error.Render(m.banner)
	case bannerSuccess:
		return m.styles.Success.Render(m.banner)
	}
	return m.styles.Info.Render(m.banner)
}

// renderHelpBar renders the bottom help bar for the current phase.
func (m Model) renderHelpBar() string {
	var keys [][2]string
	switch m.phase {
	case phaseForm:
		keys = [][2]string{{"enter", "analyze"}, {"tab", "next field"}, {"up/down", "cycle options"}, {"esc", "quit"}}
	case phaseRunning:
		keys = [][2]string{{"esc", "stop"}, {"pgup/pgdn", "scroll"}, {"ctrl+c", "quit"}}
	case phaseDone:
		keys = [][2]string{{"e", "export pdf"}, {"r", "rate"}, {"n", "new analysis"}, {"q", "quit"}}
	case phaseRating:
		keys = [][2]string{{"1-8", "toggle agent"}, {"a", "all"}, {"left/right", "stars"}, {"tab", "next"}, {"enter", "submit"}, {"esc", "back"}}
	}

	help := make([]string, 0, len(keys))
	for _, k := range keys {
		help = append(help, m.styles.HelpKey.Render(k[0])+m.styles.HelpValue.Render(" "+k[1]))
	}
	return m.styles.HelpBar.Render(strings.Join(help, "  |  "))
}

// Truncate shortens s to maxLen runes, ending in "..." when cut.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
