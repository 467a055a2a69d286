package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/engine"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/live"
)

// LiveOptions holds flags for the live subcommands.
type LiveOptions struct {
	*RootOptions
	Minutes int
}

// NewLiveCommand creates the live command. Without a subcommand it shows
// the current plan.
func NewLiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "live",
		Short:         "Show the most urgent dose",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLiveShow(opts, cmd)
		},
	}

	taken := &cobra.Command{
		Use:           "taken",
		Short:         "Mark the current dose taken",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLiveTaken(opts, cmd)
		},
	}

	snooze := &cobra.Command{
		Use:           "snooze",
		Short:         "Hide the current dose and remind later",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLiveSnooze(opts, cmd)
		},
	}
	snooze.Flags().IntVar(&opts.Minutes, "minutes", 0, "delay (default $PHARMA_SNOOZE_MINUTES)")

	cmd.AddCommand(taken, snooze)
	return cmd
}

func runLiveShow(opts *LiveOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	res, err := a.Engine.Refresh(cmd.Context(), engine.TriggerForeground)
	if err != nil {
		return f.Fail(err)
	}
	plan := res.Live
	return f.Result(plan, func(w io.Writer) {
		printLive(w, plan, a.Location)
	})
}

func printLive(w io.Writer, plan live.Plan, loc *time.Location) {
	if plan.Empty() {
		fmt.Fprintln(w, "no dose due")
		if plan.NextRefreshAt != nil {
			fmt.Fprintf(w, "next check at %s\n", plan.NextRefreshAt.In(loc).Format("2006-01-02 15:04"))
		}
		return
	}
	p := plan.Primary
	fmt.Fprintf(w, "%s  %s (%s)\n", p.ScheduledAt.In(loc).Format("15:04"), plan.Subtitle, p.TherapyID)
	if plan.ExpiryAt != nil {
		fmt.Fprintf(w, "visible until %s\n", plan.ExpiryAt.In(loc).Format("15:04"))
	}
}

func runLiveTaken(opts *LiveOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	ctx := cmd.Context()
	primary, err := a.Live.Primary(ctx)
	if err != nil {
		return f.Fail(err)
	}
	res, err := a.Live.MarkTaken(ctx, primary)
	if err != nil {
		return f.Fail(err)
	}
	return emitEvent(f, a, cmd, res)
}

func runLiveSnooze(opts *LiveOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Minutes < 0 {
		return f.Fail(NewExitError(ExitCommandError, "--minutes must not be negative"))
	}
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	minutes := opts.Minutes
	if minutes == 0 {
		minutes = a.Config.SnoozeMinutes
	}

	ctx := cmd.Context()
	primary, err := a.Live.Primary(ctx)
	if err != nil {
		return f.Fail(err)
	}
	req, err := a.Live.RemindLater(ctx, primary, time.Duration(minutes)*time.Minute)
	if err != nil {
		return f.Fail(err)
	}
	return f.Result(req, func(w io.Writer) {
		fmt.Fprintf(w, "snoozed %s until %s\n", primary.MedicineName, req.FireAt.In(a.Location).Format("15:04"))
	})
}
