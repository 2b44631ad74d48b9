package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratos/foresight/internal/session"
	"github.com/stratos/foresight/internal/types"
	"github.com/stratos/foresight/internal/ui"
)

var (
	timeFrame    string
	region       string
	prompt       string
	rawOutput    bool
	noArchive    bool
	exportReport bool
)

// errIncomplete is returned when the stream ends before every agent
// reports.
var errIncomplete = errors.New("analysis incomplete")

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&timeFrame, "time-frame", "t", "", "Time frame (short_term, medium_term, long_term)")
	cmd.Flags().StringVarP(&region, "region", "r", "", "Region (global, north_america, europe, asia, africa, latin_america)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Additional instructions for the agents")
	cmd.Flags().BoolVar(&rawOutput, "raw", false, "Print agent output without markdown rendering")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "Do not save the run to the local archive")
	cmd.Flags().BoolVar(&exportReport, "export", false, "Save a PDF report when the analysis completes")
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <question>",
		Short: "Run a strategic analysis and stream agent results",
		Long: `Submit a strategic question to the eight analysis agents and print each
agent's findings as they arrive. Press Ctrl+C to stop the run.

Examples:
  foresight analyze "Should we expand our EV charging network into Europe?"
  foresight analyze -t long_term -r asia "How will battery recycling reshape supply?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args)
		},
	}
	addRequestFlags(cmd)
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{raw: rawOutput, noArchive: noArchive})
	if err != nil {
		return err
	}
	defer a.Close()

	req := a.defaults()
	req.StrategicQuestion = strings.Join(args, " ")
	if timeFrame != "" {
		req.TimeFrame = timeFrame
	}
	if region != "" {
		req.Region = region
	}
	req.Prompt = prompt

	return analyze(cmd, a, req)
}

// analyze validates req, streams it and prints the outcome.
func analyze(cmd *cobra.Command, a *app, req types.AnalysisRequest) error {
	out := cmd.OutOrStdout()

	req, err := a.prepare(req)
	if err != nil {
		return err
	}
	if err := a.ping(out); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	printRequest(out, req)
	p := newRunPrinter(out, a.runner.Roster())
	run, err := a.runner.Execute(ctx, req, p.sink)
	if err != nil {
		return err
	}
	if err := finish(out, run); err != nil {
		return err
	}

	if exportReport {
		path, err := session.Export(context.Background(), a.client, run.Record(), a.cfg.Export.Dir, time.Now())
		if err != nil {
			return fmt.Errorf("export report: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render("PDF saved to "+path))
	}
	return nil
}

// finish prints the run summary and maps the outcome to an error.
func finish(w io.Writer, run *session.Run) error {
	fmt.Fprintln(w)
	switch run.Status() {
	case session.StatusCompleted:
		fmt.Fprintln(w, successStyle.Render(run.Summary()))
	case session.StatusStopped:
		fmt.Fprintln(w, warnStyle.Render(run.Summary()))
	case session.StatusPartial:
		fmt.Fprintln(w, warnStyle.Render(run.Summary()))
		return fmt.Errorf("%w: %d of %d agents reported", errIncomplete, run.Record().Completed(), len(run.Snapshot()))
	default:
		if err := run.Err(); err != nil {
			return err
		}
		fmt.Fprintln(w, run.Summary())
	}

	line := fmt.Sprintf("%s %s", labelStyle.Render("Run:"), valueStyle.Render(shortID(run.ID)))
	if id := run.SessionID(); id != 0 {
		line += fmt.Sprintf("   %s %s", labelStyle.Render("Session:"), valueStyle.Render(fmt.Sprint(id)))
	}
	if end := run.FinishedAt(); !end.IsZero() {
		line += fmt.Sprintf("   %s %s", labelStyle.Render("Elapsed:"), valueStyle.Render(end.Sub(run.StartedAt).Round(10*time.Millisecond).String()))
	}
	fmt.Fprintln(w, line)
	return nil
}

func printRequest(w io.Writer, req types.AnalysisRequest) {
	fmt.Fprintln(w, titleStyle.Render("Strategic Analysis"))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Question:"), req.StrategicQuestion)
	fmt.Fprintf(w, "%s %s   %s %s\n",
		labelStyle.Render("Time frame:"), valueStyle.Render(req.TimeFrame),
		labelStyle.Render("Region:"), valueStyle.Render(req.Region))
	if req.Prompt != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Instructions:"), req.Prompt)
	}
	fmt.Fprintln(w)
}

// runPrinter prints each agent once, when it reaches a terminal state.
type runPrinter struct {
	w       io.Writer
	total   int
	done    int
	printed map[types.AgentName]bool
	styles  ui.Styles
}

func newRunPrinter(w io.Writer, roster types.Roster) *runPrinter {
	return &runPrinter{
		w:       w,
		total:   len(roster),
		printed: make(map[types.AgentName]bool),
		styles:  ui.DefaultStyles(),
	}
}

func (p *runPrinter) sink(ev types.RunEvent) {
	if ev.SessionID != 0 {
		fmt.Fprintf(p.w, "%s %s\n\n", labelStyle.Render("Session:"), valueStyle.Render(fmt.Sprint(ev.SessionID)))
	}
	if ev.Agent == nil || !ev.Agent.Status.Terminal() || p.printed[ev.Agent.Name] {
		return
	}
	p.printed[ev.Agent.Name] = true
	p.done++
	p.agent(*ev.Agent)
}

func (p *runPrinter) agent(s types.AgentRunState) {
	header := fmt.Sprintf("[%d/%d] %s", p.done, p.total, s.Name)
	if d := s.Duration(); d > 0 {
		header += labelStyle.Render(fmt.Sprintf("  %s", d.Round(100*time.Millisecond)))
	}
	printAgent(p.w, p.styles, header, s)
}

// printAgent prints one agent block.
func printAgent(w io.Writer, styles ui.Styles, header string, s types.AgentRunState) {
	fmt.Fprintf(w, "%s %s\n", styles.Badge(s.Status).Render(s.Status.String()), titleStyle.Render(header))
	switch s.Status {
	case types.StatusError:
		fmt.Fprintln(w, errorStyle.Render("Error: "+s.Error))
	case types.StatusSuccess:
		body := s.Rendered
		if body == "" {
			body = s.Content
		}
		fmt.Fprintln(w, body)
	default:
		fmt.Fprintln(w, labelStyle.Render("(no result)"))
	}
	fmt.Fprintln(w)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
