// Package config loads nixeval settings from YAML, the environment and
// command-line overrides, and builds the logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"

	"github.com/thomasrohde/nixeval/pkg/capabilities"
)

const (
	AppName = "nixeval"

	configRelPath = AppName + "/config.yaml"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Restrict configures restricted evaluation.
type Restrict struct {
	Enabled      bool     `yaml:"enabled"`
	AllowedPaths []string `yaml:"allowedPaths"`
	DeniedPaths  []string `yaml:"deniedPaths"`
	AllowedEnv   []string `yaml:"allowedEnv"`
}

// Config holds all settings.
type Config struct {
	NixPath   []string `yaml:"nixPath"`
	LogLevel  string   `yaml:"logLevel"`
	Backtrace bool     `yaml:"backtrace"`
	Pretty    bool     `yaml:"pretty"`
	Color     string   `yaml:"color"`
	LogTrace  bool     `yaml:"logTrace"`
	MaxDepth  int      `yaml:"maxDepth"`
	Restrict  Restrict `yaml:"restrict"`

	// Path is the file the settings were read from, if any.
	Path string `yaml:"-"`
}

// Default returns the settings used when no file is found.
func Default() *Config {
	return &Config{
		LogLevel: "warn",
		Pretty:   true,
		Color:    ColorAuto,
	}
}

// Load reads the config file at path, or the one found in the XDG config
// directories when path is empty, then applies environment overrides. A
// missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		if found, err := xdg.SearchConfigFile(configRelPath); err == nil {
			path = found
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
			cfg.Path = path
		case explicit || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies NIX_PATH, NIX_BACKTRACE, NIXEVAL_LOG and NO_COLOR.
// NIX_PATH entries come before the configured ones.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("NIX_PATH"); ok && v != "" {
		var entries []string
		for _, e := range strings.Split(v, ":") {
			if e != "" {
				entries = append(entries, e)
			}
		}
		c.NixPath = append(entries, c.NixPath...)
	}
	if v, ok := lookup("NIX_BACKTRACE"); ok {
		c.Backtrace = v != "" && v != "0"
	}
	if v, ok := lookup("NIXEVAL_LOG"); ok && v != "" {
		c.LogLevel = v
	}
	if _, ok := lookup("NO_COLOR"); ok {
		c.Color = ColorNever
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("config: invalid color mode %q (want auto, always or never)", c.Color)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: invalid log level %q", c.LogLevel)
	}
	return nil
}

// Policy returns the restricted-evaluation policy, or nil when evaluation
// is unrestricted.
func (c *Config) Policy() (*capabilities.Policy, error) {
	if !c.Restrict.Enabled {
		return nil, nil
	}
	return capabilities.New(capabilities.PolicyFile{
		AllowPaths: c.Restrict.AllowedPaths,
		DenyPaths:  c.Restrict.DeniedPaths,
		AllowEnv:   c.Restrict.AllowedEnv,
	})
}

// UseColor resolves the color mode for an output that is or is not a
// terminal.
func (c *Config) UseColor(isTerminal bool) bool {
	switch c.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	return isTerminal
}

// NewLogger builds the logger writing to w. Terminals get the console
// format, anything else gets JSON lines.
func (c *Config) NewLogger(w io.Writer, isTerminal bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	if isTerminal {
		out := w
		w = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = out
			cw.NoColor = !c.UseColor(true)
			cw.TimeFormat = time.TimeOnly
		})
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
