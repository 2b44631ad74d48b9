package session

import (
	"sync"
)

// Manager keeps a bounded list of recent runs, newest last. Adding a run
// stops the previous one if it is still streaming.
type Manager struct {
	runs    []*Run
	maxRuns int
	mu      sync.RWMutex
}

func NewManager(maxRuns int) *Manager {
	return &Manager{
		runs:    make([]*Run, 0, maxRuns),
		maxRuns: maxRuns,
	}
}

func (m *Manager) Add(run *Run) {
	m.mu.Lock()
	var previous *Run
	if n := len(m.runs); n > 0 {
		previous = m.runs[n-1]
	}

	m.runs = append(m.runs, run)
	if len(m.runs) > m.maxRuns {
		m.runs = m.runs[len(m.runs)-m.maxRuns:]
	}
	m.mu.Unlock()

	if previous != nil && !previous.Status().Finished() {
		previous.Stop()
	}
}

func (m *Manager) Get(id string) (*Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.runs {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Latest returns the most recent run, or nil.
func (m *Manager) Latest() *Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.runs) == 0 {
		return nil
	}
	return m.runs[len(m.runs)-1]
}

func (m *Manager) List() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Run, len(m.runs))
	copy(result, m.runs)
	return result
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = make([]*Run, 0, m.maxRuns)
}
