package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/cabinet"
)

// ValidationIssue is one problem found in a cabinet.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Files     int               `json:"files"`
	Medicines int               `json:"medicines"`
	Packages  int               `json:"packages"`
	Therapies int               `json:"therapies"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <cabinet-dir>",
		Short: "Validate cabinet definitions without importing",
		Long: `Validate the CUE cabinet definitions in a directory: schema, dose
times, dates, package references and clinical rules. Every bad medicine
is reported; nothing is written.

Exit codes:
  0 - Cabinet valid
  1 - One or more definitions invalid
  2 - Command error (directory missing, no CUE files)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	loc := time.UTC
	if cfg, err := opts.loadConfig(); err == nil {
		if l, err := cfg.Location(); err == nil {
			loc = l
		}
	}

	cab, errs := cabinet.LoadDir(dir, cabinet.Options{Mode: cabinet.LoadModeCollectAll, Location: loc})
	if cab == nil && len(errs) > 0 && isDirectoryError(errs[0]) {
		var le *cabinet.LoadError
		errors.As(errs[0], &le)
		_ = f.Error(le.Code, le.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", le.Code, le.Message))
	}

	result := ValidationResult{Valid: len(errs) == 0, Errors: issues(errs)}
	if cab != nil {
		result.Files = cab.FileCount
		result.Medicines, result.Packages, result.Therapies = cab.Counts()
	}
	f.VerboseLog("checked %d file(s) in %s", result.Files, dir)

	if !result.Valid {
		return outputValidationErrors(f, result)
	}
	return f.Result(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Cabinet valid: %d medicine(s), %d package(s), %d therapy(ies)\n",
			result.Medicines, result.Packages, result.Therapies)
	})
}

// isDirectoryError reports whether err is about the directory itself
// rather than its contents.
func isDirectoryError(err error) bool {
	var le *cabinet.LoadError
	if !errors.As(err, &le) {
		return false
	}
	switch le.Code {
	case cabinet.ErrCodeNotFound, cabinet.ErrCodeScanError, cabinet.ErrCodeNoFiles:
		return true
	}
	return false
}

func issues(errs []error) []ValidationIssue {
	out := make([]ValidationIssue, 0, len(errs))
	for _, err := range errs {
		var le *cabinet.LoadError
		if !errors.As(err, &le) {
			out = append(out, ValidationIssue{Code: cabinet.ErrCodeGeneric, Message: err.Error()})
			continue
		}
		issue := ValidationIssue{Code: le.Code, Field: le.Field, Message: le.Message}
		if le.Pos.IsValid() {
			issue.File = le.Pos.Filename()
			issue.Line = le.Pos.Line()
		}
		out = append(out, issue)
	}
	return out
}

func outputValidationErrors(f *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if f.Format == "json" {
		if err := writeEnvelope(f.Writer, CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: ErrCodeInvalidData, Message: failure.Message},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, is := range result.Errors {
		if is.Line > 0 {
			fmt.Fprintf(f.Writer, "%s:%d\n", is.File, is.Line)
		}
		if is.Field != "" {
			fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", is.Code, is.Field, is.Message)
		} else {
			fmt.Fprintf(f.Writer, "  %s: %s\n\n", is.Code, is.Message)
		}
	}
	return failure
}
