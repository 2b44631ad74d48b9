// Package render turns agent markdown into terminal output.
package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// DefaultWidth is the word-wrap column used when none is configured.
const DefaultWidth = 100

// Markdown formats content with a glamour terminal renderer.
type Markdown struct {
	mu       sync.Mutex
	renderer *glamour.TermRenderer
	style    string
	width    int
}

// NewMarkdown creates a formatter. style is a glamour standard style name
// ("auto", "dark", "light", "notty", ...); width <= 0 uses DefaultWidth.
func NewMarkdown(style string, width int) (*Markdown, error) {
	if style == "" {
		style = "auto"
	}
	if width <= 0 {
		width = DefaultWidth
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}

	return &Markdown{renderer: r, style: style, width: width}, nil
}

// Format renders markdown. The underlying renderer is not safe for
// concurrent use, so calls are serialized.
func (m *Markdown) Format(content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := m.renderer.Render(content)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimRight(out, "\n"), nil
}

// Style returns the configured style name.
func (m *Markdown) Style() string { return m.style }

// Width returns the wrap width.
func (m *Markdown) Width() int { return m.width }

// Plain passes content through with surrounding whitespace trimmed. It is
// used for --raw output and when the markdown renderer cannot be built.
type Plain struct{}

// Format returns content trimmed.
func (Plain) Format(content string) (string, error) {
	return strings.TrimSpace(content), nil
}
