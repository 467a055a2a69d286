package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/cabinet"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/engine"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <cabinet-dir>",
		Short: "Load cabinet definitions into the database",
		Long: `Load the CUE cabinet in a directory and upsert its medicines, packages
and therapies. The ledger is never touched, so importing again after
editing a definition keeps every recorded intake and purchase.

The cabinet is validated first; nothing is written if any definition is
invalid.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}
}

func runImport(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	cab, errs := cabinet.LoadDir(dir, cabinet.Options{Mode: cabinet.LoadModeFailFast, Location: a.Location})
	if len(errs) > 0 {
		return f.Fail(errs[0])
	}
	f.VerboseLog("loaded %d file(s) from %s", cab.FileCount, dir)

	report, err := cabinet.Import(cmd.Context(), a.Store, cab)
	if err != nil {
		return f.Fail(err)
	}
	if _, err := a.Engine.Refresh(cmd.Context(), engine.TriggerStartup); err != nil {
		return f.Fail(err)
	}
	return f.Result(report, func(w io.Writer) {
		fmt.Fprintf(w, "✓ imported %d medicine(s), %d package(s), %d therapy(ies)\n",
			report.Medicines, report.Packages, report.Therapies)
	})
}
