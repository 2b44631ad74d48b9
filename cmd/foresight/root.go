package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/archive"
	"github.com/stratos/foresight/internal/config"
	"github.com/stratos/foresight/internal/render"
	"github.com/stratos/foresight/internal/session"
	"github.com/stratos/foresight/internal/stream"
	"github.com/stratos/foresight/internal/types"
	"github.com/stratos/foresight/internal/validator"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath  string
	verbose     bool
	interactive bool
)

// errBackendDown is returned after the connection help has been printed.
var errBackendDown = errors.New("backend not reachable")

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foresight [question]",
		Short: "Multi-agent strategic analysis from the terminal",
		Long: `
 ███████╗ ██████╗ ██████╗ ███████╗███████╗██╗ ██████╗ ██╗  ██╗████████╗
 ██╔════╝██╔═══██╗██╔══██╗██╔════╝██╔════╝██║██╔════╝ ██║  ██║╚══██╔══╝
 █████╗  ██║   ██║██████╔╝█████╗  ███████╗██║██║  ███╗███████║   ██║
 ██╔══╝  ██║   ██║██╔══██╗██╔══╝  ╚════██║██║██║   ██║██╔══██║   ██║
 ██║     ╚██████╔╝██║  ██║███████╗███████║██║╚██████╔╝██║  ██║   ██║
 ╚═╝      ╚═════╝ ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝ ╚═════╝ ╚═╝  ╚═╝   ╚═╝

  Eight strategy agents analyze one question and stream their findings.

Usage:
  foresight "How should a mid-size utility enter grid-scale storage?"
  foresight --it`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return runInteractive(cmd)
			}
			if len(args) > 0 {
				return runAnalyze(cmd, args)
			}
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolVar(&interactive, "it", false, "Start interactive mode")
	addRequestFlags(cmd)
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newAgentsCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newRateCmd())
	cmd.AddCommand(newTemplatesCmd())
	cmd.AddCommand(newReplayCmd())
	cmd.AddCommand(newServeMockCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// app is everything a command needs to talk to the backend.
type app struct {
	cfg       *config.Loaded
	logger    *zap.Logger
	client    *api.Client
	runner    *session.Runner
	archive   *archive.DB
	formatter stream.Formatter
	input     *validator.InputValidator
}

type appOptions struct {
	// tui sends logs to the configured file instead of stderr.
	tui bool
	// raw skips markdown rendering.
	raw bool
	// noArchive leaves runs out of the local archive.
	noArchive bool
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := createLogger(cfg.Config, opts.tui)

	client := api.NewClient(api.Config{
		BaseURL:       cfg.Server.URL,
		Timeout:       cfg.Timeout(),
		StreamTimeout: cfg.StreamTimeout(),
		Logger:        logger.Named("api"),
	})

	a := &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		input:  validator.NewInputValidator(),
	}

	a.formatter = render.Plain{}
	if !opts.raw {
		md, err := render.NewMarkdown(cfg.Render.Style, cfg.Render.Width)
		if err != nil {
			logger.Warn("Markdown rendering disabled", zap.Error(err))
		} else {
			a.formatter = md
			logger.Debug("Markdown rendering enabled",
				zap.String("style", md.Style()),
				zap.Int("width", md.Width()))
		}
	}

	runnerCfg := session.Config{
		Client:    client,
		Tracker:   client,
		Formatter: a.formatter,
		UserID:    cfg.User.ID,
		Logger:    logger,
	}
	if cfg.Archive.Enabled && !opts.noArchive {
		db, err := archive.Open(config.ExpandPath(cfg.Archive.Path), logger)
		if err != nil {
			logger.Warn("Archive unavailable", zap.Error(err))
		} else {
			a.archive = db
			runnerCfg.Archive = db
		}
	}

	a.runner, err = session.NewRunner(runnerCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the archive and flushes the logger.
func (a *app) Close() {
	if a.archive != nil {
		a.archive.Close()
	}
	a.logger.Sync()
}

// openArchive returns the archive or an error explaining why there is none.
func (a *app) openArchive() (*archive.DB, error) {
	if a.archive == nil {
		return nil, errors.New("local archive is disabled or could not be opened (see archive.path)")
	}
	return a.archive, nil
}

// defaults returns the configured request defaults.
func (a *app) defaults() types.AnalysisRequest {
	return types.AnalysisRequest{
		TimeFrame: a.cfg.Analysis.DefaultTimeFrame,
		Region:    a.cfg.Analysis.DefaultRegion,
		Scope:     a.cfg.Analysis.Scope,
	}
}

// prepare sanitizes and validates a request.
func (a *app) prepare(req types.AnalysisRequest) (types.AnalysisRequest, error) {
	req = a.input.SanitizeRequest(req)
	if err := a.input.Validate(req); err != nil {
		return req, err
	}
	return req, nil
}

// ping checks the backend and prints connection help when it is down.
func (a *app) ping(w io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fmt.Fprint(w, warnStyle.Render("Connecting to backend at "+a.client.BaseURL()+"... "))
	if err := a.client.Ping(ctx); err != nil {
		fmt.Fprintln(w, errorStyle.Render("✗"))
		fmt.Fprintln(w)
		a.logger.Debug("Ping failed", zap.Error(err))
		printConnectionHelp(w, a.client.BaseURL())
		return errBackendDown
	}
	fmt.Fprintln(w, successStyle.Render("✓"))
	return nil
}

func loadConfig() (*config.Loaded, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadFromPaths(config.SearchPaths()...)
}

func createLogger(cfg *config.Config, tui bool) *zap.Logger {
	if tui {
		return fileLogger(config.ExpandPath(cfg.Log.File))
	}
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, err := zap.NewProduction(zap.IncreaseLevel(zapcore.WarnLevel))
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// fileLogger writes JSON logs to path so they do not corrupt the TUI.
func fileLogger(path string) *zap.Logger {
	if path == "" {
		return zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zap.NewNop()
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{path}
	zcfg.ErrorOutputPaths = []string{path}
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
)

func printError(w io.Writer, err error) {
	if errors.Is(err, errBackendDown) {
		return
	}
	fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("Error: %v", err)))
}

func printConnectionHelp(w io.Writer, baseURL string) {
	fmt.Fprintln(w, errorStyle.Render("Could not connect to the analysis backend at "+baseURL))
	fmt.Fprintln(w)
	fmt.Fprintln(w, labelStyle.Render("Make sure the backend is running, or start the mock backend:"))
	fmt.Fprintln(w, valueStyle.Render("  foresight serve-mock"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, labelStyle.Render("Or point foresight at a different backend:"))
	fmt.Fprintln(w, valueStyle.Render("  export "+config.EnvPrefix+"_SERVER_URL=http://host:8000"))
	fmt.Fprintln(w, valueStyle.Render("  or set server.url in "+strings.Join(config.SearchPaths()[:2], " / ")))
}
