package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tabula/internal/config"
	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/store"
)

// RootOptions holds global flags and the configuration resolved from them.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config and Logger are set by the root command before any subcommand
	// runs. Subcommands executed on their own fall back to defaults.
	Config *config.Config
	Logger *slog.Logger

	// Databases holds the databases opened by this invocation, by name.
	Databases *store.Registry
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tabula CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Databases: store.NewRegistry()}

	cmd := &cobra.Command{
		Use:   "tabula",
		Short: "tabula - queries over an in-memory table store",
		Long: `Run declarative query plans against an in-memory transactional table store.

Schemas are CUE files declaring entities; plans and seed rows live in YAML
plan files. Scenario files drive the store and engine step by step and
compare the resulting trace with golden files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	f.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	f.StringVar(&opts.ConfigPath, "config", "", "config file (YAML)")
	f.String("database", "default", "logical database name")
	f.String("schema", "", "CUE schema file or directory (overrides the plan file's schema)")
	f.String("log-level", "warn", "log level (debug|info|warn|error)")
	f.String("log-format", "text", "log format (text|json)")
	f.Int("max-include-depth", engine.DefaultMaxIncludeDepth, "maximum include path depth")

	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load resolves the configuration from the config file, environment and
// the flags the user set, then builds the logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath, cmd.Flags())
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	o.Config = cfg
	o.Format = cfg.Output.Format
	o.Logger = cfg.Logger(cmd.ErrOrStderr()).With("db", cfg.Database)
	return nil
}

func (o *RootOptions) settings() *config.Config {
	if o.Config == nil {
		o.Config = config.Default()
	}
	return o.Config
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		o.Logger = o.settings().Logger(os.Stderr)
	}
	return o.Logger
}

func (o *RootOptions) engineOptions() []engine.EngineOption {
	return []engine.EngineOption{
		engine.WithLogger(o.logger()),
		engine.WithMaxIncludeDepth(o.settings().Engine.MaxIncludeDepth),
	}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
