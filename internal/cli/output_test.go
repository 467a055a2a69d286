package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/cabinet"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/ledger"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/live"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("NOT_FOUND", "operation not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "operation not found", resp.Error.Message)
}

func TestOutputFormatter_TextResult(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Result(42, func(w io.Writer) {
		fmt.Fprintln(w, "stock: 42")
	})
	require.NoError(t, err)
	assert.Equal(t, "stock: 42\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E_COMMAND", "database not found", map[string]string{"path": "x.db"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_COMMAND]: database not found")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("E_COMMAND", "database not found", map[string]string{"path": "x.db"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("generation %d", 3)

			assert.Empty(t, out.String(), "diagnostics never reach the JSON stream")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "generation 3")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestFailClassifiesErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{"ledger", &ledger.Error{Code: ledger.ErrCodeAlreadyReversed, Message: "x"}, "ALREADY_REVERSED", ExitFailure},
		{"wrapped ledger", fmt.Errorf("undo: %w", &ledger.Error{Code: ledger.ErrCodeConflict}), "OPERATION_CONFLICT", ExitFailure},
		{"cabinet", &cabinet.LoadError{Code: cabinet.ErrCodeBadDose, Message: "bad time"}, cabinet.ErrCodeBadDose, ExitFailure},
		{"nothing due", fmt.Errorf("live: %w", live.ErrNothingDue), ErrCodeNothingDue, ExitFailure},
		{"store not found", fmt.Errorf("item: %w", store.ErrNotFound), "NOT_FOUND", ExitFailure},
		{"unexpected", errors.New("disk on fire"), ErrCodeInternal, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.Fail(tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestFailKeepsExitErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	orig := NewExitError(ExitCommandError, "--tick must be positive")
	err := formatter.Fail(orig)
	assert.Same(t, orig, err)
	assert.Contains(t, buf.String(), "Error [E_COMMAND]: --tick must be positive")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "y"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestExitError(t *testing.T) {
	inner := errors.New("no such file")
	err := WrapExitError(ExitCommandError, "failed to open database", inner)
	assert.Equal(t, "failed to open database: no such file", err.Error())
	assert.ErrorIs(t, err, inner)
}
