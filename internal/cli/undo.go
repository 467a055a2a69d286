package cli

import (
	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/opkey"
)

// UndoOptions holds flags for the undo command.
type UndoOptions struct {
	*RootOptions
	OperationID string
	Source      string
}

// NewUndoCommand creates the undo command.
func NewUndoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UndoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "undo <operation-id>",
		Short: "Reverse an intake, purchase or received prescription",
		Long: `Append a reversal of an earlier ledger event. The original event is
kept; its effect on stock is voided.

Only intake, purchase and prescription-received events can be undone.
Undoing the same event again from the same source replays the first
reversal instead of failing.

Exit codes:
  0 - Reversal recorded (or replayed)
  1 - Unknown, already reversed or not undoable
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUndo(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.OperationID, "operation-id", "", "explicit operation id of the reversal")
	cmd.Flags().StringVar(&opts.Source, "source", SourceCLI, "operation-key source surface")
	return cmd
}

func runUndo(opts *UndoOptions, target string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	opID := opts.OperationID
	if opID == "" {
		opID = opkey.UndoID(target, opts.Source)
	}
	res, err := a.Ledger.Undo(cmd.Context(), target, opID)
	if err != nil {
		return f.Fail(err)
	}
	return emitEvent(f, a, cmd, res)
}
