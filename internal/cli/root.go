// Package cli implements the pharmaapp command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/app"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	DBPath     string // overrides PHARMA_DB_PATH
	ConfigFile string // optional YAML/TOML/JSON file read before the environment

	// now overrides the wall clock; tests set it.
	now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pharmaapp",
		Short: "Medication schedules, stock and reminders",
		Long: `pharmaapp tracks medicines, their therapies and a stock ledger, and
computes what needs attention now: doses due, stock running out,
prescriptions to request, monitoring and deadlines.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path (default $PHARMA_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file")

	cmd.AddCommand(NewTodayCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewUndoCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewNotifyCommand(opts))
	cmd.AddCommand(NewLiveCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// loadConfig reads the config file (if any), the environment and the flag
// overrides, in increasing precedence.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	v := config.New()
	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read config file", err)
		}
	}
	if o.DBPath != "" {
		v.Set("DB_PATH", o.DBPath)
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// openApp loads the configuration, installs the default logger and opens
// the application. Callers close the returned App.
func (o *RootOptions) openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	configureLogging(cfg, o.Verbose, cmd.ErrOrStderr())

	var opts []app.Option
	if o.now != nil {
		opts = append(opts, app.WithClock(o.now))
	}
	a, err := app.Open(cfg, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return a, nil
}

// configureLogging sets the process-wide slog handler from LOG_LEVEL and
// LOG_FORMAT. --verbose forces debug.
func configureLogging(cfg *config.Config, verbose bool, w io.Writer) {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(w, hopts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(w, hopts)
	}
	slog.SetDefault(slog.New(h))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
