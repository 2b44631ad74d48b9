package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/session"
	"github.com/stratos/foresight/internal/types"
	"github.com/stratos/foresight/internal/ui"
	"github.com/stratos/foresight/internal/validator"
	"go.uber.org/zap"
)

func runInteractive(cmd *cobra.Command) error {
	a, err := newApp(appOptions{tui: true, raw: rawOutput, noArchive: noArchive})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ping(cmd.OutOrStdout()); err != nil {
		return err
	}

	defaults := a.defaults()
	if timeFrame != "" {
		defaults.TimeFrame = timeFrame
	}
	if region != "" {
		defaults.Region = region
	}
	defaults.Prompt = prompt

	model := ui.NewModel(tuiHandlers(a), ui.Options{
		Roster:   a.runner.Roster(),
		Defaults: defaults,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()
	if run := a.runner.Recent().Latest(); run != nil {
		// quitting mid-run must not leave the stream open
		run.Stop()
		<-run.Done()
	}
	if err != nil {
		return fmt.Errorf("run interface: %w", err)
	}
	return nil
}

// tuiHandlers connects the interface to the backend, the runner and the
// validators.
func tuiHandlers(a *app) ui.Handlers {
	reviews := validator.NewReviewValidator(a.runner.Roster())

	return ui.Handlers{
		Submit: func(req types.AnalysisRequest, sink session.Sink) (*session.Run, error) {
			req, err := a.prepare(req)
			if err != nil {
				return nil, err
			}
			return a.runner.Start(context.Background(), req, sink), nil
		},
		Export: func(run *session.Run) (string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			return session.Export(ctx, a.client, run.Record(), a.cfg.Export.Dir, time.Now())
		},
		Rate: func(run *session.Run, review api.Review) (int, error) {
			review.UserID = a.cfg.User.ID
			if err := reviews.Validate(review); err != nil {
				return 0, err
			}
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout())
			defer cancel()

			results, err := a.client.SubmitReview(ctx, review)
			if err != nil {
				a.logger.Warn("Review submission failed",
					zap.Int64("session_id", review.SessionID),
					zap.Int("submitted", len(results)),
					zap.Error(err))
			}
			return len(results), err
		},
	}
}
