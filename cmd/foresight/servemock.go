package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratos/foresight/internal/config"
	"github.com/stratos/foresight/internal/devserver"
	"go.uber.org/zap"
)

func newServeMockCmd() *cobra.Command {
	var (
		addr    string
		fixture string
		delay   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "Run a mock analysis backend",
		Long: `Serve the analysis API locally for development and demos. Each analysis
streams one result per agent with a delay between lines, either generated
from the question or replayed from a recorded NDJSON fixture. Ratings,
history and query patterns are kept in memory.

Examples:
  foresight serve-mock
  foresight serve-mock --addr 127.0.0.1:9000 --delay 50ms --fixture run.ndjson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, _ := zap.NewProduction()
			if verbose {
				logger, _ = zap.NewDevelopment()
			}
			defer logger.Sync()

			if !cmd.Flags().Changed("addr") {
				addr = cfg.DevServer.Addr
			}
			if !cmd.Flags().Changed("fixture") {
				fixture = cfg.DevServer.Fixture
			}
			if !cmd.Flags().Changed("delay") {
				delay = time.Duration(cfg.DevServer.DelayMS) * time.Millisecond
			}

			srv, err := devserver.New(devserver.Config{
				Addr:    addr,
				Fixture: config.ExpandPath(fixture),
				Delay:   delay,
				Logger:  logger,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Mock backend"))
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Listening on:"), valueStyle.Render("http://"+addr))
			fmt.Fprintln(out, labelStyle.Render("Press Ctrl+C to stop."))

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("Shutting down mock backend")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default devserver.addr)")
	cmd.Flags().StringVar(&fixture, "fixture", "", "NDJSON recording to replay (default devserver.fixture)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Pause before each streamed line (default devserver.delay_ms)")
	return cmd
}
