package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/app"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/ledger"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/opkey"
)

// SourceCLI is the default operation-key source of CLI actions.
const SourceCLI = "cli"

// RecordOptions holds flags shared by the record subcommands.
type RecordOptions struct {
	*RootOptions
	Medicine    string
	Package     string
	Therapy     string
	Quantity    float64
	OperationID string
	Source      string
}

// EventResult reports a recorded or replayed ledger event with the
// medicine's stock afterwards.
type EventResult struct {
	Event     domain.Event `json:"event"`
	Duplicate bool         `json:"duplicate"`
	Stock     float64      `json:"stock"`
}

type recordKind struct {
	use, short, action string
	run                func(*ledger.Service, context.Context, ledger.Request) (ledger.Result, error)
}

var recordKinds = []recordKind{
	{"intake", "Record units taken", opkey.ActionIntake, (*ledger.Service).RecordIntake},
	{"purchase", "Record packs bought", opkey.ActionPurchase, (*ledger.Service).RecordPurchase},
	{"prescription-request", "Record a prescription request to the doctor",
		opkey.ActionPrescriptionRequest, (*ledger.Service).RecordPrescriptionRequest},
	{"prescription-received", "Record a prescription received",
		opkey.ActionPrescriptionReceived, (*ledger.Service).RecordPrescriptionReceived},
	{"adjust", "Correct stock: positive quantities remove units, negative add them",
		opkey.ActionStockAdjustment, (*ledger.Service).RecordStockAdjustment},
}

// NewRecordCommand creates the record command with one subcommand per
// ledger action.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Append an action to the stock ledger",
		Long: `Append an action to the stock ledger.

Without --operation-id the id comes from the operation-key registry, so
the same action on the same medicine, package and source within the key
TTL collapses onto one event. With PHARMA_REDIS_URL set the registry is
shared across processes.

Examples:
  pharmaapp record intake --medicine aspirina --package aspirina/box
  pharmaapp record purchase --medicine aspirina --package aspirina/box --quantity 2
  pharmaapp record adjust --medicine aspirina --package aspirina/box --quantity 3`,
	}

	for _, k := range recordKinds {
		cmd.AddCommand(newRecordKindCommand(rootOpts, k))
	}
	return cmd
}

func newRecordKindCommand(rootOpts *RootOptions, k recordKind) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           k.use,
		Short:         k.short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, k, cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.Medicine, "medicine", "m", "", "medicine id (required)")
	cmd.Flags().StringVarP(&opts.Package, "package", "p", "", "package id")
	cmd.Flags().StringVarP(&opts.Therapy, "therapy", "t", "", "therapy id")
	cmd.Flags().Float64VarP(&opts.Quantity, "quantity", "q", 0, "units, or packs for purchases")
	cmd.Flags().StringVar(&opts.OperationID, "operation-id", "", "explicit operation id")
	cmd.Flags().StringVar(&opts.Source, "source", SourceCLI, "operation-key source surface")
	_ = cmd.MarkFlagRequired("medicine")
	return cmd
}

func runRecord(opts *RecordOptions, k recordKind, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	ctx := cmd.Context()
	opID := opts.OperationID
	if opID == "" {
		opID, err = a.OpKeys.ID(ctx, opkey.Key{
			ActionType: k.action,
			MedicineID: opts.Medicine,
			PackageID:  opts.Package,
			Source:     opts.Source,
		})
		if err != nil {
			return f.Fail(err)
		}
	}
	f.VerboseLog("operation id %s", opID)

	res, err := k.run(a.Ledger, ctx, ledger.Request{
		OperationID: opID,
		MedicineID:  opts.Medicine,
		PackageID:   opts.Package,
		TherapyID:   opts.Therapy,
		Quantity:    opts.Quantity,
	})
	if err != nil {
		return f.Fail(err)
	}
	return emitEvent(f, a, cmd, res)
}

func emitEvent(f *OutputFormatter, a *app.App, cmd *cobra.Command, res ledger.Result) error {
	stock, err := a.Store.MedicineStock(cmd.Context(), res.Event.MedicineID)
	if err != nil {
		return f.Fail(err)
	}
	out := EventResult{Event: res.Event, Duplicate: res.Duplicate, Stock: stock}
	return f.Result(out, func(w io.Writer) {
		verb := "recorded"
		if res.Duplicate {
			verb = "already recorded"
		}
		fmt.Fprintf(w, "%s %s %s (%s)\n", verb, res.Event.Kind, res.Event.OperationID, res.Event.MedicineID)
		fmt.Fprintf(w, "stock: %g\n", stock)
	})
}
