package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/cabinet"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/ledger"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/live"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected action, failed scenario, invalid cabinet, stock drift
	ExitCommandError = 2 // Command error (bad config, database not found, etc.)
)

// ExitError is an error carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; keeps JSON on Writer clean
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs data in the configured format. Text mode prints data with
// fmt.Println.
func (f *OutputFormatter) Success(data any) error {
	return f.Result(data, func(w io.Writer) {
		fmt.Fprintln(w, data)
	})
}

// Result writes data inside the JSON envelope, or calls text to render it
// for a terminal.
func (f *OutputFormatter) Result(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return writeEnvelope(f.Writer, CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return writeEnvelope(f.Writer, CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

func writeEnvelope(w io.Writer, resp CLIResponse) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Fail reports err and returns it as an ExitError. Rejected actions exit 1;
// anything unexpected exits 2.
func (f *OutputFormatter) Fail(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		_ = f.Error(ErrCodeCommand, err.Error(), nil)
		return err
	}
	code, exit := classify(err)
	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(exit, code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// CLI-level error codes. Ledger and cabinet errors keep their own codes.
const (
	ErrCodeCommand     = "E_COMMAND"
	ErrCodeInternal    = "E_INTERNAL"
	ErrCodeNothingDue  = "NOTHING_DUE"
	ErrCodeTestFailed  = "E_TEST_FAILED"
	ErrCodeStockDrift  = "E_STOCK_DRIFT"
	ErrCodeInvalidData = "E_INVALID_CABINET"
)

func classify(err error) (string, int) {
	var le *ledger.Error
	if errors.As(err, &le) {
		return string(le.Code), ExitFailure
	}
	var ce *cabinet.LoadError
	if errors.As(err, &ce) {
		return ce.Code, ExitFailure
	}
	switch {
	case errors.Is(err, live.ErrNothingDue):
		return ErrCodeNothingDue, ExitFailure
	case errors.Is(err, store.ErrNotFound):
		return string(ledger.ErrCodeNotFound), ExitFailure
	}
	return ErrCodeInternal, ExitCommandError
}
