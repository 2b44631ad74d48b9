package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/stream"
	"github.com/stratos/foresight/internal/types"
	"go.uber.org/zap"
)

// ErrNoResults is returned when exporting a run that produced nothing.
var ErrNoResults = errors.New("run has no agent results")

// Analyzer opens an analysis stream.
type Analyzer interface {
	Analyze(ctx context.Context, req types.AnalysisRequest) (io.ReadCloser, error)
}

// Tracker records submitted questions. Failures are logged, never fatal.
type Tracker interface {
	TrackQueryPattern(ctx context.Context, p types.QueryPattern) error
}

// Archiver persists finished runs.
type Archiver interface {
	SaveRun(ctx context.Context, rec types.RunRecord) error
}

// Exporter builds PDF reports.
type Exporter interface {
	GeneratePDF(ctx context.Context, req types.ExportRequest) ([]byte, error)
}

// Sink receives run events. It is called on the run's goroutine and must
// not block for long.
type Sink func(types.RunEvent)

// Config holds runner configuration.
type Config struct {
	Client    Analyzer
	Tracker   Tracker
	Archive   Archiver
	Formatter stream.Formatter
	Roster    types.Roster
	UserID    string
	MaxRecent int
	Logger    *zap.Logger
}

// Runner starts runs and keeps the recent ones.
type Runner struct {
	client    Analyzer
	tracker   Tracker
	archive   Archiver
	formatter stream.Formatter
	roster    types.Roster
	userID    string
	recent    *Manager
	logger    *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Client == nil {
		return nil, errors.New("session: client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if len(cfg.Roster) == 0 {
		cfg.Roster = types.DefaultRoster()
	}
	if cfg.MaxRecent <= 0 {
		cfg.MaxRecent = 10
	}

	return &Runner{
		client:    cfg.Client,
		tracker:   cfg.Tracker,
		archive:   cfg.Archive,
		formatter: cfg.Formatter,
		roster:    cfg.Roster,
		userID:    cfg.UserID,
		recent:    NewManager(cfg.MaxRecent),
		logger:    cfg.Logger,
	}, nil
}

// Recent returns the in-memory list of recent runs.
func (r *Runner) Recent() *Manager {
	return r.recent
}

// Roster returns the agents every run tracks.
func (r *Runner) Roster() types.Roster {
	return r.roster
}

// Start submits req and streams it on a new goroutine. The returned run
// can be stopped or waited on.
func (r *Runner) Start(ctx context.Context, req types.AnalysisRequest, sink Sink) *Run {
	run, runCtx := r.prepare(ctx, req, sink)
	r.trackAsync(req)
	go r.execute(runCtx, run, r.client.Analyze, sink)
	return run
}

// Execute submits req and blocks until the stream ends. The error is the
// run-level failure, if any; a stopped run returns nil.
func (r *Runner) Execute(ctx context.Context, req types.AnalysisRequest, sink Sink) (*Run, error) {
	run, runCtx := r.prepare(ctx, req, sink)
	r.trackAsync(req)
	r.execute(runCtx, run, r.client.Analyze, sink)
	return run, run.Err()
}

// Replay feeds a recorded stream through the same reconciliation path as a
// live run.
func (r *Runner) Replay(ctx context.Context, src io.Reader, req types.AnalysisRequest, sink Sink) (*Run, error) {
	open := func(context.Context, types.AnalysisRequest) (io.ReadCloser, error) {
		return io.NopCloser(src), nil
	}
	run, runCtx := r.prepare(ctx, req, sink)
	r.execute(runCtx, run, open, sink)
	return run, run.Err()
}

func (r *Runner) prepare(ctx context.Context, req types.AnalysisRequest, sink Sink) (*Run, context.Context) {
	id := uuid.New().String()
	emit := func(ev types.RunEvent) {
		if sink != nil {
			ev.RunID = id
			sink(ev)
		}
	}

	rec := stream.New(r.roster,
		stream.WithFormatter(r.formatter),
		stream.WithLogger(r.logger.With(zap.String("run_id", id))),
		stream.WithHooks(stream.Hooks{
			OnAgent: func(s types.AgentRunState) {
				emit(types.RunEvent{Agent: &s})
			},
			OnSession: func(info stream.SessionInfo) {
				emit(types.RunEvent{SessionID: info.ID})
			},
			OnComplete: func([]types.AgentRunState) {
				emit(types.RunEvent{Complete: true})
			},
		}),
	)

	runCtx, cancel := context.WithCancel(ctx)
	run := newRun(id, req, rec, cancel)
	r.recent.Add(run)
	return run, runCtx
}

type openFunc func(ctx context.Context, req types.AnalysisRequest) (io.ReadCloser, error)

func (r *Runner) execute(ctx context.Context, run *Run, open openFunc, sink Sink) {
	logger := r.logger.With(zap.String("run_id", run.ID))
	logger.Info("Starting analysis",
		zap.String("region", run.Request.Region),
		zap.String("time_frame", run.Request.TimeFrame))

	run.setStatus(StatusStreaming)

	body, err := open(ctx, run.Request)
	if err == nil {
		err = run.reconciler.Run(ctx, body)
		body.Close()
	}

	status := run.finish(err, ctx.Err())
	run.cancel()

	stats := run.Stats()
	fields := []zap.Field{
		zap.String("status", status.String()),
		zap.Int("lines", stats.Lines),
		zap.Int("malformed", stats.Malformed),
		zap.Int("unroutable", stats.Unroutable),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int64("session_id", run.SessionID()),
	}
	if status == StatusFailed {
		logger.Error("Analysis failed", append(fields, zap.Error(run.Err()))...)
	} else {
		logger.Info("Analysis finished", fields...)
	}

	r.save(run, logger)

	if sink != nil {
		sink(types.RunEvent{
			RunID:    run.ID,
			Done:     true,
			Stopped:  status == StatusStopped,
			Complete: status == StatusCompleted,
			Error:    run.Err(),
		})
	}
	run.release()
}

func (r *Runner) save(run *Run, logger *zap.Logger) {
	if r.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.archive.SaveRun(ctx, run.Record()); err != nil {
		logger.Warn("Failed to archive run", zap.Error(err))
	}
}

func (r *Runner) trackAsync(req types.AnalysisRequest) {
	if r.tracker == nil {
		return
	}
	p := types.QueryPattern{
		StrategicQuestion:      req.StrategicQuestion,
		TimeFrame:              req.TimeFrame,
		Region:                 req.Region,
		AdditionalInstructions: req.Prompt,
		UserID:                 r.userID,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.tracker.TrackQueryPattern(ctx, p); err != nil {
			r.logger.Warn("Query pattern tracking failed", zap.Error(err))
		}
	}()
}

// Export asks the backend for a PDF of rec and saves it under dir.
func Export(ctx context.Context, exp Exporter, rec types.RunRecord, dir string, now time.Time) (string, error) {
	if len(rec.Payloads) == 0 {
		return "", ErrNoResults
	}

	pdf, err := exp.GeneratePDF(ctx, types.ExportRequest{
		AnalysisData:      rec.Payloads,
		StrategicQuestion: rec.Request.StrategicQuestion,
		TimeFrame:         rec.Request.TimeFrame,
		Region:            rec.Request.Region,
	})
	if err != nil {
		return "", err
	}

	path, err := api.SavePDF(dir, pdf, now)
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}
