package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/archive"
	"github.com/stratos/foresight/internal/session"
	"github.com/stratos/foresight/internal/types"
	"github.com/stratos/foresight/internal/ui"
)

func newHistoryCmd() *cobra.Command {
	var (
		local  bool
		limit  int
		offset int
		page   int
		search string
		status string
		region string
		remove string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past analyses",
		Long: `List past analysis sessions from the backend, newest first. With --local,
list runs saved in the local archive instead. --delete removes one run from
the local archive.

Examples:
  foresight history --search storage --status completed
  foresight history --page 2
  foresight history --local
  foresight history --delete latest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{raw: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = api.HistoryPageSize
			}
			if page > 1 {
				offset = (page - 1) * limit
			}

			out := cmd.OutOrStdout()
			if remove != "" {
				return deleteRun(cmd.Context(), out, a, remove)
			}
			if local {
				return localHistory(cmd.Context(), out, a, archive.ListOptions{
					Limit:  limit,
					Offset: offset,
					Search: search,
					Status: status,
				})
			}
			if err := a.ping(out); err != nil {
				return err
			}
			return remoteHistory(cmd.Context(), out, a, types.HistoryFilter{
				Limit:  limit,
				Offset: offset,
				Search: search,
				Status: status,
				Region: region,
			})
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "List the local archive instead of the backend")
	cmd.Flags().IntVar(&limit, "limit", api.HistoryPageSize, "Sessions per page")
	cmd.Flags().IntVar(&offset, "offset", 0, "Sessions to skip")
	cmd.Flags().IntVar(&page, "page", 0, "Page number, overrides --offset")
	cmd.Flags().StringVar(&search, "search", "", "Only questions containing this text")
	cmd.Flags().StringVar(&status, "status", "", "Only sessions with this status")
	cmd.Flags().StringVar(&region, "region", "", "Only sessions for this region (backend only)")
	cmd.Flags().StringVar(&remove, "delete", "", "Delete a run (id, prefix or latest) from the local archive")
	return cmd
}

func remoteHistory(ctx context.Context, w io.Writer, a *app, f types.HistoryFilter) error {
	page, err := a.client.History(ctx, f)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, titleStyle.Render("Analysis History"))
	if len(page.Sessions) == 0 {
		fmt.Fprintln(w, labelStyle.Render("No sessions found."))
		return nil
	}

	for _, s := range page.Sessions {
		fmt.Fprintf(w, "%s  %s  %s\n",
			valueStyle.Render(fmt.Sprintf("#%d", s.ID)),
			statusLabel(s.Status),
			labelStyle.Render(fmt.Sprintf("%s · %s · %d agents · %.0f%%", s.TimeFrame, s.Region, s.AgentResultsCount, s.CompletionRate)))
		fmt.Fprintf(w, "     %s\n", ui.Truncate(s.StrategicQuestion, 90))
		if s.CreatedAt != "" {
			fmt.Fprintf(w, "     %s\n", labelStyle.Render(s.CreatedAt))
		}
	}

	fmt.Fprintln(w)
	shown := f.Offset + len(page.Sessions)
	fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("Showing %d-%d of %d", f.Offset+1, shown, page.Total)))
	if page.HasMore {
		fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("More: foresight history --offset %d", shown)))
	}
	return nil
}

func localHistory(ctx context.Context, w io.Writer, a *app, opts archive.ListOptions) error {
	db, err := a.openArchive()
	if err != nil {
		return err
	}
	runs, err := db.ListRuns(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, titleStyle.Render("Local Archive"))
	if len(runs) == 0 {
		fmt.Fprintln(w, labelStyle.Render("No archived runs."))
		return nil
	}

	total := len(a.runner.Roster())
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %s\n",
			valueStyle.Render(shortID(r.ID)),
			statusLabel(r.Status),
			labelStyle.Render(fmt.Sprintf("%s · %s · %d/%d agents · %s",
				r.TimeFrame, r.Region, r.Completed, total, r.StartedAt.Local().Format("2006-01-02 15:04"))))
		fmt.Fprintf(w, "          %s\n", ui.Truncate(r.StrategicQuestion, 90))
	}
	return nil
}

func deleteRun(ctx context.Context, w io.Writer, a *app, ref string) error {
	rec, err := findRun(ctx, a, ref)
	if err != nil {
		return err
	}
	if err := a.archive.DeleteRun(ctx, rec.ID); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s\n", successStyle.Render("Deleted run"), valueStyle.Render(rec.ID))
	return nil
}

func statusLabel(status string) string {
	switch strings.ToLower(status) {
	case "completed":
		return successStyle.Render(status)
	case "partial", "stopped", "processing", "cancelled":
		return warnStyle.Render(status)
	case "failed", "error":
		return errorStyle.Render(status)
	}
	return labelStyle.Render(status)
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived run",
		Long: `Print every agent result of a run from the local archive. The id may be
shortened to any unique prefix, or "latest".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := findRun(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			printRecord(cmd.OutOrStdout(), a, rec)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Save a PDF report for an archived run",
		Long: `Ask the backend to build a PDF report from an archived run and save it as
strategic_analysis_<timestamp>.pdf. The id may be a unique prefix or "latest".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{raw: true})
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := findRun(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := a.ping(out); err != nil {
				return err
			}

			if dir == "" {
				dir = a.cfg.Export.Dir
			}
			path, err := session.Export(cmd.Context(), a.client, *rec, dir, time.Now())
			if errors.Is(err, session.ErrNoResults) {
				return fmt.Errorf("run %s has no agent results to export", shortID(rec.ID))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, successStyle.Render("PDF saved to "+path))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Output directory (default export.dir)")
	return cmd
}

// findRun resolves an archive id, prefix or "latest".
func findRun(ctx context.Context, a *app, ref string) (*types.RunRecord, error) {
	db, err := a.openArchive()
	if err != nil {
		return nil, err
	}
	if ref == "latest" {
		runs, err := db.ListRuns(ctx, archive.ListOptions{Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, archive.ErrNotFound
		}
		ref = runs[0].ID
	}
	return db.GetRun(ctx, ref)
}

func printRecord(w io.Writer, a *app, rec *types.RunRecord) {
	printRequest(w, rec.Request)
	fmt.Fprintf(w, "%s %s   %s %s   %s %s\n\n",
		labelStyle.Render("Run:"), valueStyle.Render(rec.ID),
		labelStyle.Render("Status:"), statusLabel(rec.Status),
		labelStyle.Render("Session:"), valueStyle.Render(fmt.Sprint(rec.SessionID)))

	styles := ui.DefaultStyles()
	for i, s := range rec.Agents {
		if s.Status == types.StatusSuccess && s.Rendered == "" {
			if out, err := a.formatter.Format(s.Content); err == nil {
				s.Rendered = out
			}
		}
		printAgent(w, styles, fmt.Sprintf("[%d/%d] %s", i+1, len(rec.Agents), s.Name), s)
	}
	if rec.Error != "" {
		fmt.Fprintln(w, errorStyle.Render("Run error: "+rec.Error))
	}
}
