// Package config loads foresight configuration: built-in defaults, then a
// YAML file, then FORESIGHT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// FORESIGHT_SERVER_URL.
const EnvPrefix = "FORESIGHT"

// Config holds all foresight configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	User      UserConfig      `yaml:"user" mapstructure:"user"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
	Templates TemplatesConfig `yaml:"templates" mapstructure:"templates"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	DevServer DevServerConfig `yaml:"devserver" mapstructure:"devserver"`
}

type ServerConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
	// TimeoutSeconds bounds non-streaming requests.
	TimeoutSeconds int `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	// StreamTimeoutSeconds bounds a whole analysis stream; 0 means no limit.
	StreamTimeoutSeconds int `yaml:"stream_timeout_seconds" mapstructure:"stream_timeout_seconds"`
}

type UserConfig struct {
	ID string `yaml:"id" mapstructure:"id"`
}

type AnalysisConfig struct {
	DefaultTimeFrame string   `yaml:"default_time_frame" mapstructure:"default_time_frame"`
	DefaultRegion    string   `yaml:"default_region" mapstructure:"default_region"`
	Scope            []string `yaml:"scope" mapstructure:"scope"`
}

type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

type TemplatesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type RenderConfig struct {
	Style string `yaml:"style" mapstructure:"style"`
	Width int    `yaml:"width" mapstructure:"width"`
}

type LogConfig struct {
	// File receives logs while the TUI owns the terminal.
	File string `yaml:"file" mapstructure:"file"`
}

type DevServerConfig struct {
	Addr    string `yaml:"addr" mapstructure:"addr"`
	Fixture string `yaml:"fixture" mapstructure:"fixture"`
	DelayMS int    `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:                  "http://127.0.0.1:8000",
			TimeoutSeconds:       30,
			StreamTimeoutSeconds: 0,
		},
		User: UserConfig{ID: "anonymous"},
		Analysis: AnalysisConfig{
			DefaultTimeFrame: "medium_term",
			DefaultRegion:    "global",
		},
		Export:    ExportConfig{Dir: "."},
		Archive:   ArchiveConfig{Enabled: true, Path: "~/.foresight/archive.db"},
		Templates: TemplatesConfig{Path: "~/.foresight/templates.yaml"},
		Render:    RenderConfig{Style: "auto", Width: 100},
		Log:       LogConfig{File: "~/.foresight/foresight.log"},
		DevServer: DevServerConfig{Addr: "127.0.0.1:8000", DelayMS: 400},
	}
}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".foresight"), nil
}

// SearchPaths lists the config files tried when none is given, in order of
// precedence.
func SearchPaths() []string {
	paths := []string{"foresight.local.yaml", "foresight.yaml"}
	if dir, err := ConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "config.yaml"))
	}
	return paths
}

// Loaded is a configuration plus the file it came from, if any.
type Loaded struct {
	*Config
	Source string
}

// Load reads path, which must exist.
func Load(path string) (*Loaded, error) {
	return load(path)
}

// LoadFromPaths reads the first existing file in paths. With no file it
// returns defaults plus environment overrides.
func LoadFromPaths(paths ...string) (*Loaded, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return load(p)
		}
	}
	return load("")
}

func load(path string) (*Loaded, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Analysis.Scope) == 0 {
		cfg.Analysis.Scope = nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loaded{Config: cfg, Source: path}, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.timeout_seconds", d.Server.TimeoutSeconds)
	v.SetDefault("server.stream_timeout_seconds", d.Server.StreamTimeoutSeconds)
	v.SetDefault("user.id", d.User.ID)
	v.SetDefault("analysis.default_time_frame", d.Analysis.DefaultTimeFrame)
	v.SetDefault("analysis.default_region", d.Analysis.DefaultRegion)
	v.SetDefault("analysis.scope", d.Analysis.Scope)
	v.SetDefault("export.dir", d.Export.Dir)
	v.SetDefault("archive.enabled", d.Archive.Enabled)
	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("templates.path", d.Templates.Path)
	v.SetDefault("render.style", d.Render.Style)
	v.SetDefault("render.width", d.Render.Width)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("devserver.addr", d.DevServer.Addr)
	v.SetDefault("devserver.fixture", d.DevServer.Fixture)
	v.SetDefault("devserver.delay_ms", d.DevServer.DelayMS)
}

// Validate checks values that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.url must be an http(s) URL, got %q", c.Server.URL)
	}
	if c.Server.TimeoutSeconds <= 0 {
		return errors.New("server.timeout_seconds must be positive")
	}
	if c.Server.StreamTimeoutSeconds < 0 {
		return errors.New("server.stream_timeout_seconds must not be negative")
	}
	if c.Render.Width < 20 {
		return fmt.Errorf("render.width must be at least 20, got %d", c.Render.Width)
	}
	if c.DevServer.DelayMS < 0 {
		return errors.New("devserver.delay_ms must not be negative")
	}
	return nil
}

// Timeout returns the request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// StreamTimeout returns the stream timeout, or zero for none.
func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.Server.StreamTimeoutSeconds) * time.Second
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ExpandPath resolves a leading ~ to the home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
