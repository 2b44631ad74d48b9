package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/stratos/foresight/internal/types"
	"go.uber.org/zap"
)

const readChunkSize = 32 << 10

// Formatter converts resolved content into its display form.
type Formatter interface {
	Format(content string) (string, error)
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(content string) (string, error)

// Format calls f.
func (f FormatterFunc) Format(content string) (string, error) { return f(content) }

// identity leaves content untouched.
var identity = FormatterFunc(func(content string) (string, error) { return content, nil })

// Hooks receive reconciler side effects. All hooks are optional and are
// called without the reconciler lock held.
type Hooks struct {
	OnAgent    func(state types.AgentRunState)
	OnSession  func(info SessionInfo)
	OnComplete func(states []types.AgentRunState)
}

// Stats counts what happened to each line.
type Stats struct {
	Lines      int
	Applied    int
	Malformed  int
	Unroutable int
	Duplicates int
	Oversized  int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithFormatter sets the content formatter.
func WithFormatter(f Formatter) Option {
	return func(r *Reconciler) {
		if f != nil {
			r.formatter = f
		}
	}
}

// WithHooks sets the side-effect hooks.
func WithHooks(h Hooks) Option {
	return func(r *Reconciler) { r.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// Reconciler maps stream records onto per-agent state for one run. It is
// fed by a single reader; Snapshot and the other accessors are safe to call
// from other goroutines.
type Reconciler struct {
	mu       sync.RWMutex
	roster   types.Roster
	states   map[types.AgentName]*types.AgentRunState
	payloads map[types.AgentName]json.RawMessage
	session  SessionInfo
	stats    Stats
	complete bool

	splitter  LineSplitter
	formatter Formatter
	hooks     Hooks
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a reconciler with every roster agent waiting.
func New(roster types.Roster, opts ...Option) *Reconciler {
	r := &Reconciler{
		roster:    roster,
		states:    make(map[types.AgentName]*types.AgentRunState, len(roster)),
		payloads:  make(map[types.AgentName]json.RawMessage, len(roster)),
		formatter: identity,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, name := range roster {
		r.states[name] = &types.AgentRunState{Name: name, Status: types.StatusWaiting}
	}
	return r
}

// Begin moves every waiting agent to running. It is called once the
// backend has accepted the request.
func (r *Reconciler) Begin() {
	r.mu.Lock()
	now := r.now()
	var changed []types.AgentRunState
	for _, name := range r.roster {
		s := r.states[name]
		if s.Status == types.StatusWaiting {
			s.Status = types.StatusRunning
			s.StartedAt = now
			changed = append(changed, *s)
		}
	}
	r.mu.Unlock()

	if r.hooks.OnAgent != nil {
		for _, s := range changed {
			r.hooks.OnAgent(s)
		}
	}
}

// Run reads the stream until EOF, a read error or ctx cancellation. Only
// transport failures are returned; bad records are logged and skipped.
func (r *Reconciler) Run(ctx context.Context, rd io.Reader) error {
	r.Begin()

	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := rd.Read(buf)
		if n > 0 {
			r.Feed(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			r.Flush()
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

// Feed processes one chunk of the body. Complete lines are applied in
// order; a trailing fragment waits for the next chunk.
func (r *Reconciler) Feed(chunk []byte) {
	dropped := r.splitter.Dropped()
	for _, line := range r.splitter.Split(chunk) {
		r.processLine(line)
	}
	r.countOversized(dropped)
}

// Flush processes any fragment left at end of stream.
func (r *Reconciler) Flush() {
	dropped := r.splitter.Dropped()
	if n := r.splitter.Pending(); n > 0 {
		r.logger.Debug("Stream ended without a newline", zap.Int("pending_bytes", n))
	}
	if line := r.splitter.Flush(); line != nil {
		r.processLine(line)
	}
	r.countOversized(dropped)
}

func (r *Reconciler) countOversized(before int) {
	if n := r.splitter.Dropped() - before; n > 0 {
		r.mu.Lock()
		r.stats.Oversized += n
		r.mu.Unlock()
		r.logger.Warn("Dropped oversized stream line", zap.Int("count", n))
	}
}

func (r *Reconciler) processLine(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}

	r.mu.Lock()
	r.stats.Lines++
	r.mu.Unlock()

	rec, err := DecodeRecord(line)
	if err != nil {
		r.mu.Lock()
		if errors.Is(err, ErrNoTarget) {
			r.stats.Unroutable++
		} else {
			r.stats.Malformed++
		}
		r.mu.Unlock()
		r.logger.Warn("Skipping stream line",
			zap.Error(err),
			zap.String("line_preview", truncate(string(line), 80)))
		return
	}

	switch rec.Kind {
	case KindSessionInfo:
		r.applySession(rec)
	case KindAgentUpdate:
		r.applyAgent(rec)
	}
}

func (r *Reconciler) applySession(rec Record) {
	info := ParseSessionInfo(rec.Payload)

	r.mu.Lock()
	r.session = info
	r.mu.Unlock()

	r.logger.Debug("Received session info", zap.Int64("session_id", info.ID))
	if r.hooks.OnSession != nil {
		r.hooks.OnSession(info)
	}
}

func (r *Reconciler) applyAgent(rec Record) {
	if !r.roster.Contains(rec.Agent) {
		r.mu.Lock()
		r.stats.Unroutable++
		r.mu.Unlock()
		r.logger.Warn("Skipping record for unknown agent",
			zap.String("agent", string(rec.Agent)))
		return
	}

	res := Classify(rec.Payload)
	rendered, renderErr := r.format(res)

	r.mu.Lock()
	s := r.states[rec.Agent]
	if s.Status.Terminal() {
		r.stats.Duplicates++
	}
	now := r.now()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.CompletedAt = now
	s.Status = res.Status
	s.Content = res.Content
	s.HasContent = res.Content != ""
	s.RawContent = res.Raw
	s.Rendered = rendered
	s.Error = res.Error
	if renderErr != nil {
		s.Status = types.StatusError
		s.Error = fmt.Sprintf("Error displaying output: %v", renderErr)
		s.Rendered = ""
	}
	r.payloads[rec.Agent] = append(json.RawMessage(nil), rec.Payload...)
	r.stats.Applied++

	snapshot := *s
	fireComplete := false
	if !r.complete && r.terminalCountLocked() == len(r.roster) {
		r.complete = true
		fireComplete = true
	}
	var all []types.AgentRunState
	if fireComplete {
		all = r.snapshotLocked()
	}
	r.mu.Unlock()

	if renderErr != nil {
		r.logger.Error("Failed to format agent output",
			zap.String("agent", string(rec.Agent)),
			zap.Error(renderErr))
	} else {
		r.logger.Debug("Applied agent record",
			zap.String("agent", string(rec.Agent)),
			zap.String("variant", res.Variant.String()),
			zap.String("status", res.Status.String()))
	}

	if r.hooks.OnAgent != nil {
		r.hooks.OnAgent(snapshot)
	}
	if fireComplete {
		r.logger.Info("All agents reported", zap.Int("agents", len(all)))
		if r.hooks.OnComplete != nil {
			r.hooks.OnComplete(all)
		}
	}
}

// format renders success content. A panicking formatter is treated like
// one that returned an error.
func (r *Reconciler) format(res Resolution) (out string, err error) {
	if res.Status != types.StatusSuccess {
		return "", nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("formatter panic: %v", p)
		}
	}()
	return r.formatter.Format(res.Content)
}

func (r *Reconciler) terminalCountLocked() int {
	n := 0
	for _, name := range r.roster {
		if r.states[name].Status.Terminal() {
			n++
		}
	}
	return n
}

func (r *Reconciler) snapshotLocked() []types.AgentRunState {
	out := make([]types.AgentRunState, 0, len(r.roster))
	for _, name := range r.roster {
		out = append(out, *r.states[name])
	}
	return out
}

// Snapshot returns every agent's state in roster order.
func (r *Reconciler) Snapshot() []types.AgentRunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// State returns one agent's state.
func (r *Reconciler) State(name types.AgentName) (types.AgentRunState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[name]
	if !ok {
		return types.AgentRunState{}, false
	}
	return *s, true
}

// Terminal returns the number of agents in a terminal state. It is derived
// from the state map, so duplicate records cannot inflate it.
func (r *Reconciler) Terminal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.terminalCountLocked()
}

// Complete reports whether every roster agent has reported.
func (r *Reconciler) Complete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.complete
}

// Roster returns the roster this reconciler tracks.
func (r *Reconciler) Roster() types.Roster {
	return r.roster
}

// Payloads returns a copy of the last raw payload received per agent.
func (r *Reconciler) Payloads() map[types.AgentName]json.RawMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[types.AgentName]json.RawMessage, len(r.payloads))
	for k, v := range r.payloads {
		out[k] = v
	}
	return out
}

// Session returns the most recent session_info received.
func (r *Reconciler) Session() SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}

// Stats returns line counters.
func (r *Reconciler) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
