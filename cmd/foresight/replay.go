package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/stratos/foresight/internal/types"
)

func newReplayCmd() *cobra.Command {
	var (
		question string
		archive  bool
	)

	cmd := &cobra.Command{
		Use:   "replay <file.ndjson>",
		Short: "Replay a recorded analysis stream",
		Long: `Feed a recorded NDJSON analysis stream through the same reconciliation and
rendering as a live run. No backend is contacted.

Examples:
  foresight replay testdata/run.ndjson
  foresight replay --raw capture.ndjson`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open recording: %w", err)
			}
			defer f.Close()

			a, err := newApp(appOptions{raw: rawOutput, noArchive: !archive})
			if err != nil {
				return err
			}
			defer a.Close()

			req := a.defaults()
			req.StrategicQuestion = question
			if req.StrategicQuestion == "" {
				req.StrategicQuestion = "Replay of " + args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			printRequest(out, req)
			p := newRunPrinter(out, a.runner.Roster())
			run, err := a.runner.Replay(ctx, f, req, p.sink)
			if err != nil {
				return err
			}
			return finish(out, run)
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to show and archive with the replay")
	cmd.Flags().BoolVar(&archive, "archive", false, "Save the replayed run to the local archive")
	cmd.Flags().BoolVar(&rawOutput, "raw", false, "Print agent output without markdown rendering")
	return cmd
}

// agents lists the roster; it needs no backend.
func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the analysis agents",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Analysis Agents"))
			fmt.Fprintln(out)
			for i, name := range types.DefaultRoster() {
				fmt.Fprintf(out, "  %s %s\n", valueStyle.Render(fmt.Sprintf("%d.", i+1)), name)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, labelStyle.Render("Use the numbers with: foresight rate <session-id> --agent <n>"))
		},
	}
}
