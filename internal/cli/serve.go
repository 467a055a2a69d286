package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/config"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/engine"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/httpapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
	Tick time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the refresh loop",
		Long: `Serve the intent and widget actions over HTTP and keep reminders and
the live surface fresh: the refresh engine runs on startup, after every
recorded action and on each tick.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default $PHARMA_HTTP_ADDR)")
	cmd.Flags().DurationVar(&opts.Tick, "tick", time.Minute, "refresh interval")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	if opts.Tick <= 0 {
		return NewExitError(ExitCommandError, "--tick must be positive")
	}
	a, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := opts.Addr
	if addr == "" {
		addr = a.Config.HTTPAddr
	}
	logger := newZerolog(a.Config, opts.Verbose, cmd.ErrOrStderr())
	srv := httpapi.New(a, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Engine.Enqueue(engine.TriggerStartup)
	runErr := make(chan error, 1)
	go func() { runErr <- a.Engine.Run(ctx) }()
	go tick(ctx, a.Engine, opts.Tick)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(addr) }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return WrapExitError(ExitCommandError, "server error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	a.Engine.Stop()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "refresh loop failed", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func tick(ctx context.Context, e *engine.Engine, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !e.Enqueue(engine.TriggerTick) {
				return
			}
		}
	}
}

// newZerolog builds the request logger: JSON lines, or a console writer
// when LOG_FORMAT is text.
func newZerolog(cfg *config.Config, verbose bool, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var logger zerolog.Logger
	if cfg.LogFormat == "json" {
		logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	return logger.Level(level)
}
