package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratos/foresight/internal/config"
	"github.com/stratos/foresight/internal/templates"
	"github.com/stratos/foresight/internal/types"
	"github.com/stratos/foresight/internal/ui"
	"go.uber.org/zap"
)

func newTemplatesCmd() *cobra.Command {
	var (
		offline   bool
		recommend string
		use       string
		vars      map[string]string
		dryRun    bool
		save      bool
	)

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List, recommend and run question templates",
		Long: `Templates are reusable strategic questions with default time frame, region
and instructions. Built-in templates are merged with templates.path and, when
the backend is reachable, with the backend's library.

Placeholders such as {market} or {{REGION}} are filled with --var.

Examples:
  foresight templates
  foresight templates --recommend "Should we enter the battery storage market?"
  foresight templates --use "Market Entry Strategy" --var market="grid storage" --var region=europe
  foresight templates --use 2 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{raw: rawOutput, noArchive: noArchive})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			path := config.ExpandPath(a.cfg.Templates.Path)
			lib, err := templates.Load(path, a.logger)
			if err != nil {
				return err
			}
			if !offline {
				mergeRemote(cmd.Context(), a, lib)
			}

			if save {
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return fmt.Errorf("create templates dir: %w", err)
				}
				if err := lib.Save(path); err != nil {
					return err
				}
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Saved %d templates to %s", lib.Len(), path)))
			}

			switch {
			case recommend != "":
				if err := a.ping(out); err != nil {
					return err
				}
				recs, err := a.client.Recommendations(cmd.Context(), recommend, a.cfg.User.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, titleStyle.Render("Recommended Templates"))
				if len(recs) == 0 {
					fmt.Fprintln(out, labelStyle.Render("No matching templates."))
					return nil
				}
				printTemplates(out, recs)
				return nil

			case use != "":
				t, ok := lib.Get(use)
				if !ok {
					return fmt.Errorf("template %q not found (see foresight templates)", use)
				}
				if timeFrame != "" {
					vars = withVar(vars, "time_frame", timeFrame)
				}
				if region != "" {
					vars = withVar(vars, "region", region)
				}
				req, err := templates.ToRequest(t, vars)
				if err != nil {
					return fmt.Errorf("template %q: %w (set them with --var name=value)", t.Name, err)
				}
				if prompt != "" {
					req.Prompt = prompt
				}
				req.Scope = a.cfg.Analysis.Scope
				if dryRun {
					req, err := a.prepare(req)
					printRequest(out, req)
					return err
				}
				return analyze(cmd, a, req)
			}

			fmt.Fprintln(out, titleStyle.Render("Templates"))
			printTemplates(out, lib.List())
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Do not fetch templates from the backend")
	cmd.Flags().StringVar(&recommend, "recommend", "", "Recommend templates for a question")
	cmd.Flags().StringVar(&use, "use", "", "Run the template with this name or number")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "Placeholder value, name=value (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "With --use, print the request instead of running it")
	cmd.Flags().BoolVar(&save, "save", false, "Write the merged library to templates.path")
	addRequestFlags(cmd)
	return cmd
}

// mergeRemote adds the backend's templates. The backend is optional here.
func mergeRemote(ctx context.Context, a *app, lib *templates.Library) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	remote, err := a.client.Templates(ctx, 0)
	if err != nil {
		a.logger.Debug("Backend templates unavailable", zap.Error(err))
		return
	}
	if n := lib.Merge(remote); n > 0 {
		a.logger.Debug("Merged backend templates", zap.Int("added", n))
	}
}

func printTemplates(w io.Writer, ts []types.Template) {
	for i, t := range ts {
		fmt.Fprintf(w, "%s %s", valueStyle.Render(fmt.Sprintf("%2d.", i+1)), titleStyle.Render(t.Name))
		if t.Category != "" {
			fmt.Fprint(w, labelStyle.Render("  ["+t.Category+"]"))
		}
		if t.UsageCount > 0 {
			fmt.Fprint(w, labelStyle.Render(fmt.Sprintf("  used %d times", t.UsageCount)))
		}
		fmt.Fprintln(w)
		if t.Description != "" {
			fmt.Fprintf(w, "    %s\n", t.Description)
		}
		fmt.Fprintf(w, "    %s\n", labelStyle.Render(ui.Truncate(t.QuestionTemplate, 100)))
		if ph := templates.Placeholders(t.QuestionTemplate); len(ph) > 0 {
			fmt.Fprintf(w, "    %s %s\n", labelStyle.Render("vars:"), valueStyle.Render(strings.Join(ph, ", ")))
		}
	}
}

func withVar(vars map[string]string, k, v string) map[string]string {
	if vars == nil {
		vars = make(map[string]string)
	}
	vars[k] = v
	return vars
}
