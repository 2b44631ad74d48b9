package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/types"
)

// rateForm collects one review for several agents.
type rateForm struct {
	selected []bool
	stars    int
	inputs   [2]textinput.Model
	// focus 0 is the agent/star selector, then the two text inputs
	focus int
}

func newRateForm(agents int) rateForm {
	review := textinput.New()
	review.Prompt = ""
	review.Placeholder = "Share your thoughts about the selected agents..."
	review.CharLimit = 2000
	review.Width = 80

	suggestions := textinput.New()
	suggestions.Prompt = ""
	suggestions.Placeholder = "How could the analysis be improved?"
	suggestions.CharLimit = 2000
	suggestions.Width = 80

	return rateForm{
		selected: make([]bool, agents),
		inputs:   [2]textinput.Model{review, suggestions},
	}
}

func (f *rateForm) setWidth(w int) {
	if w < 20 {
		w = 20
	}
	for i := range f.inputs {
		f.inputs[i].Width = w
	}
}

func (f *rateForm) focusSelector() {
	f.setFocus(0)
}

func (f *rateForm) setFocus(i int) {
	f.focus = i
	for j := range f.inputs {
		if j == i-1 {
			f.inputs[j].Focus()
		} else {
			f.inputs[j].Blur()
		}
	}
}

func (f *rateForm) toggle(i int) {
	if i >= 0 && i < len(f.selected) {
		f.selected[i] = !f.selected[i]
	}
}

func (f *rateForm) toggleAll() {
	all := true
	for _, s := range f.selected {
		all = all && s
	}
	for i := range f.selected {
		f.selected[i] = !all
	}
}

func (f *rateForm) adjustStars(delta int) {
	f.stars += delta
	if f.stars < 1 {
		f.stars = 1
	}
	if f.stars > 5 {
		f.stars = 5
	}
}

// review builds the API review for the selected agents.
func (f rateForm) review(roster types.Roster, sessionID int64) api.Review {
	var agents []types.AgentName
	for i, s := range f.selected {
		if s {
			agents = append(agents, roster[i])
		}
	}
	return api.Review{
		SessionID:   sessionID,
		Agents:      agents,
		Rating:      f.stars,
		Text:        strings.TrimSpace(f.inputs[0].Value()),
		Suggestions: strings.TrimSpace(f.inputs[1].Value()),
	}
}

func (m Model) updateRating(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.rating

	switch msg.String() {
	case "esc":
		m.phase = phaseDone
		m.setBanner(bannerInfo, "")
		return m, nil

	case "tab":
		f.setFocus((f.focus + 1) % 3)
		return m, nil

	case "shift+tab":
		f.setFocus((f.focus + 2) % 3)
		return m, nil

	case "enter":
		return m.submitRating()
	}

	if f.focus > 0 {
		var cmd tea.Cmd
		f.inputs[f.focus-1], cmd = f.inputs[f.focus-1].Update(msg)
		return m, cmd
	}

	switch key := msg.String(); key {
	case "left", "-":
		f.adjustStars(-1)
	case "right", "+", "=":
		f.adjustStars(1)
	case "a":
		f.toggleAll()
	default:
		if n, err := strconv.Atoi(key); err == nil {
			f.toggle(n - 1)
		}
	}
	return m, nil
}

func (m Model) submitRating() (tea.Model, tea.Cmd) {
	review := m.rating.review(m.roster, m.sessionID)
	if review.Rating == 0 {
		m.setBanner(bannerError, "Please select a rating")
		return m, nil
	}
	if len(review.Agents) == 0 {
		m.setBanner(bannerError, "Please select at least one agent to review.")
		return m, nil
	}

	m.setBanner(bannerInfo, "Submitting review...")
	rate, run := m.handlers.Rate, m.run
	return m, func() tea.Msg {
		n, err := rate(run, review)
		return rateDoneMsg{count: n, err: err}
	}
}

func (m Model) renderRating() string {
	f := m.rating
	var b strings.Builder

	b.WriteString(m.styles.Prompt.Render("Rate this analysis"))
	if m.sessionID != 0 {
		b.WriteString(m.styles.StatusText.Render(fmt.Sprintf("  (session %d)", m.sessionID)))
	}
	b.WriteString("\n\n")

	label := m.styles.Label
	if f.focus == 0 {
		label = m.styles.LabelFocused
	}
	b.WriteString(label.Render("Agents"))
	b.WriteString("\n")
	for i, name := range m.roster {
		box := m.styles.Unchecked.Render("[ ]")
		if f.selected[i] {
			box = m.styles.Checked.Render("[x]")
		}
		b.WriteString(fmt.Sprintf("  %d %s %s\n", i+1, box, name))
	}
	b.WriteString("\n")

	b.WriteString(label.Render("Rating"))
	b.WriteString(m.styles.Star.Render(strings.Repeat("★", f.stars)))
	b.WriteString(m.styles.StarEmpty.Render(strings.Repeat("☆", 5-f.stars)))
	if f.stars > 0 {
		b.WriteString(m.styles.StatusText.Render(fmt.Sprintf("  %d/5 - %s", f.stars, types.RatingLabel(f.stars))))
	} else {
		b.WriteString(m.styles.StatusText.Render("  Select a rating"))
	}
	b.WriteString("\n\n")

	for i, title := range []string{"Review", "Suggestions"} {
		l := m.styles.Label
		if f.focus == i+1 {
			l = m.styles.LabelFocused
		}
		b.WriteString(l.Render(title))
		b.WriteString(f.inputs[i].View())
		b.WriteString("\n")
	}
	return b.String()
}
