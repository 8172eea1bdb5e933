// Package config loads the timesviz configuration: data source,
// mapping and conversion-rule paths, and server settings. Sources are
// merged in priority order: built-in defaults, timesviz.yaml, TIMESVIZ_
// environment variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names looked up in the working directory.
const (
	ConfigFileName    = "timesviz.yaml"
	ConfigFileNameAlt = "timesviz.yml"
)

const envPrefix = "TIMESVIZ_"

// SourceConfig locates the reporting database.
type SourceConfig struct {
	// Path is a local DuckDB file; ignored when URL is set.
	Path string `koanf:"path"`
	// URL is a remote DuckDB file, downloaded and cached.
	URL string `koanf:"url"`
	// CacheDir overrides where downloads are cached.
	CacheDir string `koanf:"cache_dir"`
}

// UIConfig holds dashboard server settings.
type UIConfig struct {
	Port          int    `koanf:"port"`
	Watch         bool   `koanf:"watch"`
	SessionSecret string `koanf:"session_secret"`
}

// Config holds all timesviz configuration.
type Config struct {
	Source       SourceConfig `koanf:"source"`
	Mapping      string       `koanf:"mapping"`
	Units        string       `koanf:"units"`
	DefaultUnits string       `koanf:"default_units"`
	Verbose      bool         `koanf:"verbose"`
	Output       string       `koanf:"output"`
	UI           UIConfig     `koanf:"ui"`
}

func defaults() map[string]any {
	return map[string]any{
		"mapping":       "inputs/mapping_db_views.csv",
		"units":         "inputs/unit_conversions.csv",
		"default_units": "config/default_units.yaml",
		"output":        "table",
		"ui.port":       8765,
		"ui.watch":      true,
	}
}

var configFileUsed string

// GetConfigFileUsed returns the path of the config file that was
// loaded, "" when none was found.
func GetConfigFileUsed() string { return configFileUsed }

// Load merges configuration from defaults, the config file, the
// environment, and the given flag set (which may be nil).
func Load(explicitFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	configFileUsed = ""
	if path := findConfigFile(explicitFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		configFileUsed = path
	} else if explicitFile != "" {
		return nil, fmt.Errorf("config file not found: %s", explicitFile)
	}

	// Double underscore nests: TIMESVIZ_SOURCE__URL -> source.url,
	// TIMESVIZ_DEFAULT_UNITS -> default_units.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration can drive a load.
func (c *Config) Validate() error {
	if c.Source.Path == "" && c.Source.URL == "" {
		return fmt.Errorf("no data source: set source.path or source.url")
	}
	if c.Mapping == "" {
		return fmt.Errorf("mapping config path is required")
	}
	if c.Units == "" {
		return fmt.Errorf("unit conversion rules path is required")
	}
	return nil
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}
