package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
)

// LedgerOptions holds flags for the ledger subcommands.
type LedgerOptions struct {
	*RootOptions
	Medicine string
	Repair   bool
	Limit    int
	Mark     bool
}

// VerifyResult is the outcome of a ledger replay.
type VerifyResult struct {
	Events     int                `json:"events"`
	StockRows  int                `json:"stockRows"`
	Consistent bool               `json:"consistent"`
	Repaired   bool               `json:"repaired"`
	Drift      []store.StockDrift `json:"drift,omitempty"`
}

// NewLedgerCommand creates the ledger command: list, verify and export.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the stock ledger",
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List ledger events",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerList(opts, cmd)
		},
	}
	list.Flags().StringVarP(&opts.Medicine, "medicine", "m", "", "only this medicine")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Replay the ledger and compare with stored stock",
		Long: `Replay every ledger event and compare the derived stock with the stock
table. With --repair the stock table is rewritten from the replay.

Exit codes:
  0 - Stock matches the ledger (or was repaired)
  1 - Drift found
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerVerify(opts, cmd)
		},
	}
	verify.Flags().BoolVar(&opts.Repair, "repair", false, "rewrite stock from the replay")

	export := &cobra.Command{
		Use:           "export",
		Short:         "Print events not yet exported",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerExport(opts, cmd)
		},
	}
	export.Flags().IntVar(&opts.Limit, "limit", 0, "maximum events (0 = all)")
	export.Flags().BoolVar(&opts.Mark, "mark", false, "mark the printed events as exported")

	cmd.AddCommand(list, verify, export)
	return cmd
}

func runLedgerList(opts *LedgerOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	var events []domain.Event
	if opts.Medicine != "" {
		events, err = a.Store.EventsForMedicine(cmd.Context(), opts.Medicine)
	} else {
		events, err = a.Store.AllEvents(cmd.Context())
	}
	if err != nil {
		return f.Fail(err)
	}
	return f.Result(events, func(w io.Writer) {
		printEvents(w, events)
	})
}

func printEvents(w io.Writer, events []domain.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	for _, e := range events {
		fmt.Fprintf(w, "%s  %-28s %-16s %6g  %s", e.Timestamp.Format(time.RFC3339), e.Kind, e.MedicineID, e.Quantity, e.OperationID)
		if e.ReversalOf != "" {
			fmt.Fprintf(w, "  reverses %s", e.ReversalOf)
		}
		fmt.Fprintln(w)
	}
}

func runLedgerVerify(opts *LedgerOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	report, err := a.Store.ReplayStock(cmd.Context(), opts.Repair)
	if err != nil {
		return f.Fail(err)
	}
	result := VerifyResult{
		Events:     report.Events,
		StockRows:  report.Rows,
		Consistent: report.Consistent(),
		Repaired:   opts.Repair && !report.Consistent(),
		Drift:      report.Drift,
	}

	if !result.Consistent && !result.Repaired {
		_ = f.Error(ErrCodeStockDrift, fmt.Sprintf("%d stock row(s) disagree with the ledger", len(result.Drift)), result.Drift)
		if f.Format != "json" {
			printDrift(f.Writer, result.Drift)
		}
		return NewExitError(ExitFailure, "stock drift")
	}
	return f.Result(result, func(w io.Writer) {
		fmt.Fprintf(w, "replayed %d event(s) over %d stock row(s)\n", result.Events, result.StockRows)
		if result.Repaired {
			printDrift(w, result.Drift)
			fmt.Fprintln(w, "✓ stock repaired")
			return
		}
		fmt.Fprintln(w, "✓ stock matches the ledger")
	})
}

func printDrift(w io.Writer, drift []store.StockDrift) {
	for _, d := range drift {
		fmt.Fprintf(w, "  %s/%s: stored %g, ledger %g\n", d.MedicineID, d.PackageID, d.Stored, d.Replayed)
	}
}

func runLedgerExport(opts *LedgerOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	ctx := cmd.Context()
	events, err := a.Store.FetchUnsynced(ctx, opts.Limit)
	if err != nil {
		return f.Fail(err)
	}
	if opts.Mark {
		ids := make([]string, len(events))
		for i, e := range events {
			ids[i] = e.OperationID
		}
		if err := a.Store.MarkSynced(ctx, ids); err != nil {
			return f.Fail(err)
		}
		f.VerboseLog("marked %d event(s) exported", len(ids))
	}
	return f.Result(events, func(w io.Writer) {
		printEvents(w, events)
	})
}
