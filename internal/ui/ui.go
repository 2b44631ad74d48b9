// Package ui provides the terminal user interface using Bubble Tea.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/session"
	"github.com/stratos/foresight/internal/types"
)

type phase int

const (
	phaseForm phase = iota
	phaseRunning
	phaseDone
	phaseRating
)

const (
	fieldQuestion = iota
	fieldTimeFrame
	fieldRegion
	fieldPrompt
	fieldCount
)

var fieldLabels = [fieldCount]string{"Question", "Time frame", "Region", "Instructions"}

// Handlers connect the UI to the rest of the application. Submit is
// required; a nil Export or Rate disables that key.
type Handlers struct {
	// Submit validates req and starts a run that reports to sink.
	Submit func(req types.AnalysisRequest, sink session.Sink) (*session.Run, error)
	// Export saves a PDF of run and returns its path.
	Export func(run *session.Run) (string, error)
	// Rate submits review for run and returns how many ratings were sent.
	Rate func(run *session.Run, review api.Review) (int, error)
}

// Options configure a new model.
type Options struct {
	Roster   types.Roster
	Defaults types.AnalysisRequest
}

type bannerKind int

const (
	bannerInfo bannerKind = iota
	bannerSuccess
	bannerError
)

// Model is the Bubble Tea model for foresight.
type Model struct {
	// UI Components
	fields   [fieldCount]textinput.Model
	focus    int
	spinner  spinner.Model
	viewport viewport.Model
	styles   Styles

	// Run state
	phase     phase
	roster    types.Roster
	agents    []types.AgentRunState
	run       *session.Run
	bridge    *Bridge
	sessionID int64

	// Rating state
	rating rateForm

	banner     string
	bannerKind bannerKind
	width      int
	height     int
	ready      bool
	quitting   bool

	handlers Handlers
}

// NewModel creates a new UI model.
func NewModel(h Handlers, opts Options) Model {
	if len(opts.Roster) == 0 {
		opts.Roster = types.DefaultRoster()
	}

	var fields [fieldCount]textinput.Model
	for i := range fields {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Width = 80
		fields[i] = ti
	}
	fields[fieldQuestion].Placeholder = "What strategic question should the agents analyze?"
	fields[fieldQuestion].CharLimit = 500
	fields[fieldTimeFrame].Placeholder = "short_term, medium_term, long_term"
	fields[fieldTimeFrame].CharLimit = 100
	fields[fieldTimeFrame].SetValue(opts.Defaults.TimeFrame)
	fields[fieldRegion].Placeholder = "global, europe, asia..."
	fields[fieldRegion].CharLimit = 100
	fields[fieldRegion].SetValue(opts.Defaults.Region)
	fields[fieldPrompt].Placeholder = "Optional additional instructions"
	fields[fieldPrompt].CharLimit = 500
	fields[fieldQuestion].SetValue(opts.Defaults.StrategicQuestion)
	fields[fieldPrompt].SetValue(opts.Defaults.Prompt)
	fields[fieldQuestion].Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = DefaultStyles().Spinner

	vp := viewport.New(0, 0)
	vp.KeyMap = viewport.DefaultKeyMap()

	return Model{
		fields:   fields,
		spinner:  s,
		viewport: vp,
		styles:   DefaultStyles(),
		phase:    phaseForm,
		roster:   opts.Roster,
		agents:   waitingAgents(opts.Roster),
		rating:   newRateForm(len(opts.Roster)),
		handlers: h,
	}
}

func waitingAgents(roster types.Roster) []types.AgentRunState {
	agents := make([]types.AgentRunState, len(roster))
	for i, name := range roster {
		agents[i] = types.AgentRunState{Name: name, Status: types.StatusWaiting}
	}
	return agents
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
	)
}

// headerHeight returns the number of terminal lines occupied by the banner
// and the progress line.
func (m Model) headerHeight() int {
	banner := m.styles.BannerTitle.Render(Banner())
	return lipgloss.Height(banner) + 3
}

// footerHeight returns the number of terminal lines occupied by the status
// line and help bar.
func (m Model) footerHeight() int {
	return 4
}

// updateViewport rebuilds the agent cards.
func (m *Model) updateViewport() {
	m.viewport.SetContent(m.renderCards())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m.quit()
		}
		switch m.phase {
		case phaseForm:
			return m.updateForm(msg)
		case phaseRating:
			return m.updateRating(msg)
		case phaseRunning:
			if msg.Type == tea.KeyEsc || msg.Type == tea.KeyCtrlX {
				m.run.Stop()
				m.setBanner(bannerInfo, "Stopping analysis...")
				return m, nil
			}
		case phaseDone:
			if cmd, handled := m.updateDone(msg); handled {
				return m, cmd
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for i := range m.fields {
			m.fields[i].Width = msg.Width - 24
		}
		m.rating.setWidth(msg.Width - 24)

		vpWidth := msg.Width - 4
		vpHeight := msg.Height - m.headerHeight() - m.footerHeight()
		if vpHeight < 1 {
			vpHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(vpWidth, vpHeight)
			m.viewport.KeyMap = viewport.DefaultKeyMap()
		} else {
			m.viewport.Width = vpWidth
			m.viewport.Height = vpHeight
		}

		m.ready = true
		m.updateViewport()

	case runEventMsg:
		if msg.bridge != m.bridge {
			return m, nil
		}
		m.applyEvent(msg.event)
		m.updateViewport()
		if msg.event.Done {
			return m, nil
		}
		return m, m.bridge.Next()

	case exportDoneMsg:
		if msg.err != nil {
			m.setBanner(bannerError, "Export failed: "+msg.err.Error())
		} else {
			m.setBanner(bannerSuccess, "PDF saved to "+msg.path)
		}
		return m, nil

	case rateDoneMsg:
		if msg.err != nil {
			m.setBanner(bannerError, "Rating failed: "+msg.err.Error())
			return m, nil
		}
		m.phase = phaseDone
		m.setBanner(bannerSuccess, fmt.Sprintf("Thank you! Submitted %d rating(s).", msg.count))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.phase == phaseRunning {
			m.updateViewport()
		}
	}

	if m.phase == phaseRunning || m.phase == phaseDone {
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.run != nil {
		m.run.Stop()
	}
	if m.bridge != nil {
		m.bridge.Close()
	}
	m.quitting = true
	return m, tea.Quit
}

func (m *Model) setBanner(kind bannerKind, text string) {
	m.bannerKind = kind
	m.banner = text
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.quit()

	case "enter":
		return m.submit()

	case "tab":
		m.focusField((m.focus + 1) % fieldCount)
		return m, nil

	case "shift+tab":
		m.focusField((m.focus + fieldCount - 1) % fieldCount)
		return m, nil

	case "up", "down":
		step := 1
		if msg.String() == "up" {
			step = -1
		}
		switch m.focus {
		case fieldTimeFrame:
			m.fields[m.focus].SetValue(types.NextOption(types.TimeFrames, m.fields[m.focus].Value(), step))
			m.fields[m.focus].CursorEnd()
			return m, nil
		case fieldRegion:
			m.fields[m.focus].SetValue(types.NextOption(types.Regions, m.fields[m.focus].Value(), step))
			m.fields[m.focus].CursorEnd()
			return m, nil
		}
		m.focusField((m.focus + fieldCount + step) % fieldCount)
		return m, nil
	}

	var cmd tea.Cmd
	m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) focusField(i int) {
	m.fields[m.focus].Blur()
	m.focus = i
	m.fields[m.focus].Focus()
}

// Request returns the analysis request described by the form.
func (m Model) Request() types.AnalysisRequest {
	return types.AnalysisRequest{
		StrategicQuestion: strings.TrimSpace(m.fields[fieldQuestion].Value()),
		TimeFrame:         strings.TrimSpace(m.fields[fieldTimeFrame].Value()),
		Region:            strings.TrimSpace(m.fields[fieldRegion].Value()),
		Prompt:            strings.TrimSpace(m.fields[fieldPrompt].Value()),
	}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.handlers.Submit == nil {
		m.setBanner(bannerError, "No backend configured")
		return m, nil
	}

	bridge := NewBridge()
	run, err := m.handlers.Submit(m.Request(), bridge.Sink)
	if err != nil {
		bridge.Close()
		m.setBanner(bannerError, err.Error())
		return m, nil
	}

	if m.bridge != nil {
		m.bridge.Close()
	}
	m.bridge = bridge
	m.run = run
	m.phase = phaseRunning
	m.sessionID = 0
	m.agents = waitingAgents(m.roster)
	m.rating = newRateForm(len(m.roster))
	m.rating.setWidth(m.width - 24)
	m.setBanner(bannerInfo, "Analyzing... press esc to stop")
	m.viewport.GotoTop()
	m.updateViewport()

	return m, bridge.Next()
}

func (m *Model) applyEvent(ev types.RunEvent) {
	if ev.Agent != nil {
		if i := m.roster.Index(ev.Agent.Name); i >= 0 {
			m.agents[i] = *ev.Agent
		}
	}
	if ev.SessionID != 0 {
		m.sessionID = ev.SessionID
	}
	if ev.Complete && !ev.Done {
		m.setBanner(bannerSuccess, "All agents completed")
	}
	if !ev.Done {
		return
	}

	m.phase = phaseDone
	summary := "Analysis finished"
	if m.run != nil {
		summary = m.run.Summary()
	}
	switch {
	case ev.Error != nil:
		m.setBanner(bannerError, summary)
	case ev.Complete:
		m.setBanner(bannerSuccess, summary)
	default:
		m.setBanner(bannerInfo, summary)
	}
}

func (m *Model) updateDone(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "q", "esc":
		_, cmd := m.quit()
		m.quitting = true
		return cmd, true

	case "n":
		m.phase = phaseForm
		m.focusField(fieldQuestion)
		m.setBanner(bannerInfo, "")
		return textinput.Blink, true

	case "e":
		if m.handlers.Export == nil || m.run == nil {
			return nil, true
		}
		m.setBanner(bannerInfo, "Generating PDF...")
		export, run := m.handlers.Export, m.run
		return func() tea.Msg {
			path, err := export(run)
			return exportDoneMsg{path: path, err: err}
		}, true

	case "r":
		if m.handlers.Rate == nil || m.run == nil {
			return nil, true
		}
		m.phase = phaseRating
		m.rating.focusSelector()
		m.setBanner(bannerInfo, "")
		return nil, true
	}
	return nil, false
}

type exportDoneMsg struct {
	path string
	err  error
}

type rateDoneMsg struct {
	count int
	err   error
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return m.styles.StatusText.Render("Goodbye!\n")
	}

	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder

	// Fixed header: banner
	b.WriteString(m.styles.BannerTitle.Render(Banner()))
	b.WriteString("\n\n")

	switch m.phase {
	case phaseForm:
		b.WriteString(m.renderForm())
	case phaseRating:
		b.WriteString(m.renderRating())
	default:
		b.WriteString(m.renderProgress())
		b.WriteString("\n")
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	// Fixed footer: status + help bar
	b.WriteString(m.renderBanner())
	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())

	return m.styles.App.Render(b.String())
}
