// Package config loads layered tabula settings: built-in defaults, an
// optional YAML file, TABULA_* environment variables and command flags,
// later layers winning.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix (TABULA_LOG_LEVEL -> log.level).
const EnvPrefix = "TABULA"

// Config is the resolved configuration.
type Config struct {
	Database string       `mapstructure:"database"`
	Schema   string       `mapstructure:"schema"`
	Log      LogConfig    `mapstructure:"log"`
	Engine   EngineConfig `mapstructure:"engine"`
	Output   OutputConfig `mapstructure:"output"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // text | json
}

type EngineConfig struct {
	MaxIncludeDepth int `mapstructure:"max_include_depth"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"` // text | json
}

var (
	logLevels   = []string{"debug", "info", "warn", "error"}
	formats     = []string{"text", "json"}
	defaultKeys = map[string]any{
		"database":                 "default",
		"schema":                   "",
		"log.level":                "warn",
		"log.format":               "text",
		"engine.max_include_depth": 8,
		"output.format":            "text",
	}
)

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"database":          "database",
	"schema":            "schema",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"max-include-depth": "engine.max_include_depth",
	"format":            "output.format",
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Load("", nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load resolves the configuration. path may be empty; flags may be nil.
// Only flags the user actually set override lower layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaultKeys {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings and limits.
func (c *Config) Validate() error {
	var problems []error
	if c.Database == "" {
		problems = append(problems, errors.New("database must not be empty"))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		problems = append(problems, fmt.Errorf("log.level %q: must be one of %v", c.Log.Level, logLevels))
	}
	if !slices.Contains(formats, c.Log.Format) {
		problems = append(problems, fmt.Errorf("log.format %q: must be one of %v", c.Log.Format, formats))
	}
	if !slices.Contains(formats, c.Output.Format) {
		problems = append(problems, fmt.Errorf("output.format %q: must be one of %v", c.Output.Format, formats))
	}
	if c.Engine.MaxIncludeDepth < 1 {
		problems = append(problems, fmt.Errorf("engine.max_include_depth must be positive, got %d", c.Engine.MaxIncludeDepth))
	}
	return errors.Join(problems...)
}

// Level returns the slog level for Log.Level.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelWarn
	}
	return l
}

// Logger builds a logger writing to w in the configured format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
