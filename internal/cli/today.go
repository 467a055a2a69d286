package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/app"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/engine"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/today"
)

// CompletionResult reports a done/reopen toggle.
type CompletionResult struct {
	ItemID    string `json:"itemId"`
	Key       string `json:"key"`
	Day       string `json:"day"`
	Completed bool   `json:"completed"`
}

// NewTodayCommand creates the today command and its done/reopen children.
func NewTodayCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Show what needs attention now",
		Long: `Compute the Today list from the catalog and the ledger: doses due,
stock to buy, prescriptions to request, monitoring, missed doses and
deadlines. Running it also refreshes the snapshot mirror, the pending
reminders and the live surface.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToday(opts, cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "done <item-id>",
		Short:         "Mark a Today item completed for the day",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTodayToggle(opts, cmd, args[0], true)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "reopen <item-id>",
		Short:         "Reopen a completed Today item",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTodayToggle(opts, cmd, args[0], false)
		},
	})
	return cmd
}

func runToday(opts *RootOptions, cmd *cobra.Command) error {
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
	f.VerboseLog("generation %d, snapshot +%d ~%d -%d", res.Generation,
		res.Snapshot.Inserted, res.Snapshot.Updated, res.Snapshot.Deleted)

	return f.Result(res.Today, func(w io.Writer) {
		printToday(w, res.Today, today.DayKey(res.At, a.Location))
	})
}

func printToday(w io.Writer, state today.State, day string) {
	fmt.Fprintf(w, "Today %s\n", day)
	if len(state.Items) == 0 {
		fmt.Fprintln(w, "  nothing to do")
	}
	for _, it := range state.Items {
		printItem(w, "  ", it)
	}
	if len(state.Completed) > 0 {
		fmt.Fprintln(w, "Completed")
		for _, it := range state.Completed {
			printItem(w, "  ✓ ", it)
		}
	}

	for _, b := range []today.Bucket{today.BucketAttention, today.BucketDue, today.BucketUpcoming} {
		meds := state.InBucket(b)
		if len(meds) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s:", b)
		for _, m := range meds {
			fmt.Fprintf(w, " %s", m.Name)
		}
		fmt.Fprintln(w)
	}
}

func printItem(w io.Writer, prefix string, it domain.TodoItem) {
	fmt.Fprintf(w, "%s%-12s %-20s %s  [%s]\n", prefix, it.Category, it.Title, it.Detail, it.ID)
}

func runTodayToggle(opts *RootOptions, cmd *cobra.Command, itemID string, done bool) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	result, err := toggleItem(cmd, a, itemID, done)
	if err != nil {
		return f.Fail(err)
	}
	return f.Result(result, func(w io.Writer) {
		verb := "reopened"
		if result.Completed {
			verb = "completed"
		}
		fmt.Fprintf(w, "%s %s for %s\n", verb, result.ItemID, result.Day)
	})
}

// toggleItem resolves itemID against the current list and writes its
// completion key for the day.
func toggleItem(cmd *cobra.Command, a *app.App, itemID string, done bool) (CompletionResult, error) {
	ctx := cmd.Context()
	res, err := a.Engine.Refresh(ctx, engine.TriggerForeground)
	if err != nil {
		return CompletionResult{}, err
	}
	day := today.DayKey(res.At, a.Location)

	list := res.Today.Items
	if !done {
		list = res.Today.Completed
	}
	for _, it := range list {
		if it.ID != itemID {
			continue
		}
		key := today.CompletionKey(it)
		if done {
			err = a.Store.CompleteTodo(ctx, key, day, res.At)
		} else {
			err = a.Store.ReopenTodo(ctx, key, day)
		}
		if err != nil {
			return CompletionResult{}, err
		}
		return CompletionResult{ItemID: itemID, Key: key, Day: day, Completed: done}, nil
	}
	return CompletionResult{}, fmt.Errorf("today item %s: %w", itemID, store.ErrNotFound)
}
