package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stratos/foresight/internal/types"
)

// Bridge carries run events from a run goroutine to the Bubble Tea loop.
// The model only changes inside Update, one event at a time.
type Bridge struct {
	events chan types.RunEvent
	quit   chan struct{}
	once   sync.Once
}

// NewBridge creates a bridge for one run.
func NewBridge() *Bridge {
	return &Bridge{
		events: make(chan types.RunEvent, 64),
		quit:   make(chan struct{}),
	}
}

// Sink is passed to the runner. It blocks while the buffer is full and
// gives up once the bridge is closed.
func (b *Bridge) Sink(ev types.RunEvent) {
	select {
	case b.events <- ev:
	case <-b.quit:
		return
	}
	if ev.Done {
		close(b.events)
	}
}

// Close releases a sink blocked on a UI that is no longer reading.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.quit) })
}

// Next returns a command that waits for the next event.
func (b *Bridge) Next() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev, ok := <-b.events:
			if !ok {
				return nil
			}
			return runEventMsg{bridge: b, event: ev}
		case <-b.quit:
			return nil
		}
	}
}

// runEventMsg is one run event delivered to Update.
type runEventMsg struct {
	bridge *Bridge
	event  types.RunEvent
}
