package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/engine"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/notify"
)

// NewNotifyCommand creates the notify command.
func NewNotifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Inspect planned reminders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "plan",
		Short: "Print the reminders a refresh would schedule",
		Long: `Recompute dose and stock reminders from scratch and print the capped,
rendered requests. Alarm level (PHARMA_NOTIFICATION_LEVEL=alarm) expands
each dose into a series.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotifyPlan(rootOpts, cmd)
		},
	})
	return cmd
}

func runNotifyPlan(opts *RootOptions, cmd *cobra.Command) error {
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
	plan := res.Notifications
	return f.Result(plan, func(w io.Writer) {
		printPlan(w, plan, a.Location)
	})
}

func printPlan(w io.Writer, plan notify.Plan, loc *time.Location) {
	if len(plan.Requests) == 0 {
		fmt.Fprintln(w, "no reminders")
		return
	}
	for _, r := range plan.Requests {
		fmt.Fprintf(w, "%s  %-9s %s: %s", r.FireAt.In(loc).Format("2006-01-02 15:04:05"), r.Origin, r.Title, r.Body)
		if r.SeriesID != "" {
			fmt.Fprintf(w, "  (series %s)", r.SeriesID[:8])
		}
		fmt.Fprintln(w)
	}
	if plan.Dropped > 0 {
		fmt.Fprintf(w, "%d reminder(s) dropped by the pending cap\n", plan.Dropped)
	}
}
