// Package session drives analysis runs: one Run per submission, owning its
// reconciler, cancellation and results.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stratos/foresight/internal/stream"
	"github.com/stratos/foresight/internal/types"
)

// Status is the lifecycle state of a whole run.
type Status int

const (
	StatusPending Status = iota
	StatusStreaming
	StatusCompleted
	// StatusPartial means the stream ended before every agent reported.
	StatusPartial
	StatusStopped
	StatusFailed
)

// String returns the label stored in the archive.
func (s Status) String() string {
	names := [...]string{
		"pending",
		"streaming",
		"completed",
		"partial",
		"stopped",
		"failed",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Finished reports whether the run has ended.
func (s Status) Finished() bool {
	return s >= StatusCompleted
}

// Run is a single submission. It replaces the page-level globals of a
// browser client: everything about one analysis lives here.
type Run struct {
	ID        string
	Request   types.AnalysisRequest
	StartedAt time.Time

	reconciler *stream.Reconciler
	cancel     context.CancelFunc
	done       chan struct{}

	mu         sync.Mutex
	status     Status
	err        error
	finishedAt time.Time
}

func newRun(id string, req types.AnalysisRequest, r *stream.Reconciler, cancel context.CancelFunc) *Run {
	return &Run{
		ID:         id,
		Request:    req,
		StartedAt:  time.Now(),
		reconciler: r,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Stop cancels the run. The in-flight body read is aborted and agents that
// have not reported keep their current state.
func (r *Run) Stop() {
	r.cancel()
}

// Done is closed once the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes and returns its error, if any.
func (r *Run) Wait() error {
	<-r.done
	return r.Err()
}

// Status returns the current run status.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the run-level error, if the run failed.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// FinishedAt returns when the run ended, or zero.
func (r *Run) FinishedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishedAt
}

// Snapshot returns every agent's state in roster order.
func (r *Run) Snapshot() []types.AgentRunState {
	return r.reconciler.Snapshot()
}

// SessionID returns the backend session id, or zero if none was sent.
func (r *Run) SessionID() int64 {
	return r.reconciler.Session().ID
}

// Complete reports whether every agent reached a terminal state.
func (r *Run) Complete() bool {
	return r.reconciler.Complete()
}

// Stats returns stream line counters.
func (r *Run) Stats() stream.Stats {
	return r.reconciler.Stats()
}

// Record returns the archive form of the run.
func (r *Run) Record() types.RunRecord {
	r.mu.Lock()
	status, finished := r.status, r.finishedAt
	var errText string
	if r.err != nil {
		errText = r.err.Error()
	}
	r.mu.Unlock()

	return types.RunRecord{
		ID:         r.ID,
		Request:    r.Request,
		SessionID:  r.SessionID(),
		Status:     status.String(),
		Error:      errText,
		StartedAt:  r.StartedAt,
		FinishedAt: finished,
		Agents:     r.Snapshot(),
		Payloads:   r.reconciler.Payloads(),
	}
}

func (r *Run) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// finish records the outcome. Waiters are released separately so the
// runner can archive first.
func (r *Run) finish(err error, ctxErr error) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case ctxErr != nil && errors.Is(err, context.Canceled):
		r.status = StatusStopped
	case err != nil:
		r.status = StatusFailed
		r.err = err
	case r.reconciler.Complete():
		r.status = StatusCompleted
	default:
		r.status = StatusPartial
	}
	r.finishedAt = time.Now()
	return r.status
}

func (r *Run) release() {
	close(r.done)
}

// Summary is a one-line description of the outcome.
func (r *Run) Summary() string {
	snap := r.Snapshot()
	ok, failed := 0, 0
	for _, s := range snap {
		switch s.Status {
		case types.StatusSuccess:
			ok++
		case types.StatusError:
			failed++
		}
	}

	switch r.Status() {
	case StatusCompleted:
		return fmt.Sprintf("Analysis complete: %d succeeded, %d failed", ok, failed)
	case StatusPartial:
		return fmt.Sprintf("Stream ended with %d of %d agents reporting", ok+failed, len(snap))
	case StatusStopped:
		return fmt.Sprintf("Analysis stopped: %d of %d agents reported", ok+failed, len(snap))
	case StatusFailed:
		return fmt.Sprintf("Analysis failed: %v", r.Err())
	}
	return fmt.Sprintf("%d of %d agents reported", ok+failed, len(snap))
}
