// Package commands implements the timesviz subcommands.
package commands

import (
	"log/slog"

	"github.com/speedlocal-labs/timesviz/internal/cli/config"
	"github.com/speedlocal-labs/timesviz/internal/loader"
	"github.com/speedlocal-labs/timesviz/internal/session"
)

var (
	cfg    *config.Config
	logger = slog.New(slog.DiscardHandler)
)

// SetConfig stores the loaded configuration for commands to use.
func SetConfig(c *config.Config) { cfg = c }

// SetLogger stores the CLI logger.
func SetLogger(l *slog.Logger) { logger = l }

func getConfig() *config.Config {
	if cfg == nil {
		return &config.Config{}
	}
	return cfg
}

// newManager wires a session manager from the loaded configuration.
func newManager(c *config.Config) (*session.Manager, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return session.NewManager(session.Config{
		Source: loader.Source{
			Path:     c.Source.Path,
			URL:      c.Source.URL,
			CacheDir: c.Source.CacheDir,
		},
		MappingPath:  c.Mapping,
		UnitsPath:    c.Units,
		DefaultsPath: c.DefaultUnits,
		Logger:       logger,
	}), nil
}
