package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stratos/foresight/internal/config"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	var (
		configInit bool
		configShow bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or create configuration",
		Long: `View the effective configuration or create a default config file.

Every key can be overridden with an environment variable, for example
FORESIGHT_SERVER_URL or FORESIGHT_USER_ID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configInit {
				return initConfig(cmd)
			}
			if configShow {
				return showConfig(cmd)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&configInit, "init", false, "Create default config file")
	cmd.Flags().BoolVar(&configShow, "show", true, "Show current configuration")
	return cmd
}

func initConfig(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	path := configPath
	if path == "" {
		path = "foresight.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintln(out, warnStyle.Render(path+" already exists. Use --show to view it."))
		return nil
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("create config: %w", err)
	}

	fmt.Fprintln(out, successStyle.Render("Created "+path+" with default settings."))
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - Backend URL and timeouts")
	fmt.Fprintln(out, "  - Default time frame, region and scope")
	fmt.Fprintln(out, "  - Export directory and local archive")
	fmt.Fprintln(out, "  - Markdown style and width")
	return nil
}

func showConfig(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Source == "" {
		fmt.Fprintln(out, warnStyle.Render("No config file found. Showing defaults:\n"))
	} else {
		fmt.Fprintln(out, valueStyle.Bold(true).Render("Current Configuration ("+cfg.Source+"):\n"))
	}

	data, err := yaml.Marshal(cfg.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprintln(out, string(data))

	fmt.Fprintln(out, labelStyle.Render("Config file locations (in order of precedence):"))
	for i, p := range config.SearchPaths() {
		fmt.Fprintf(out, "  %d. %s\n", i+1, p)
	}
	return nil
}
