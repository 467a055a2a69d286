package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // glob over scenario file names, extension stripped
	GoldenDir string // defaults to <scenarios-dir>/golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run YAML scenarios against a fresh in-memory database each.

Every scenario loads its cabinet, replays its flow against a fixed clock
and checks its assertions. When <golden-dir>/<scenario name>.golden
exists, the trace, Today list and stock must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  pharmaapp test ./scenarios
  pharmaapp test ./scenarios --filter "intake*"
  pharmaapp test ./scenarios --update
  pharmaapp test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(dir, "golden")
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := runScenario(file, goldenDir, opts.Update)
		f.VerboseLog("%s: %s", file, passText(sr.Pass))
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if result.Failed == 0 {
		return f.Result(result, func(w io.Writer) {
			printTestResult(w, result)
		})
	}

	failure := NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	if f.Format == "json" {
		if err := writeEnvelope(f.Writer, CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: ErrCodeTestFailed, Message: failure.Message},
		}); err != nil {
			return err
		}
		return failure
	}
	printTestResult(f.Writer, result)
	return failure
}

func passText(pass bool) string {
	if pass {
		return "pass"
	}
	return "FAIL"
}

// findScenarioFiles lists .yaml/.yml files under dir, skipping any golden
// directory. filter matches the base name without extension.
func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario executes one scenario file, then checks or rewrites its
// golden snapshot.
func runScenario(file, goldenDir string, update bool) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed(filepath.Base(file), "failed to load scenario: %v", err)
	}
	result, err := harness.Run(scenario)
	if err != nil {
		return failed(scenario.Name, "execution failed: %v", err)
	}
	snapshot, err := harness.MarshalSnapshot(scenario.Name, result)
	if err != nil {
		return failed(scenario.Name, "failed to marshal snapshot: %v", err)
	}

	errs := append([]string(nil), result.Errors...)
	path := filepath.Join(goldenDir, scenario.Name+".golden")
	if update {
		if err := writeGolden(path, snapshot); err != nil {
			errs = append(errs, err.Error())
		}
	} else if msg := compareGolden(path, snapshot); msg != "" {
		errs = append(errs, msg)
	}
	return ScenarioResult{Name: scenario.Name, Pass: result.Pass && len(errs) == 0, Errors: errs}
}

func failed(name, format string, args ...any) ScenarioResult {
	return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
}

// compareGolden returns a failure message, or "" when the snapshot matches
// or no golden file exists.
func compareGolden(path string, snapshot []byte) string {
	golden, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ""
	case err != nil:
		return fmt.Sprintf("failed to read golden file: %v", err)
	case !bytes.Equal(golden, snapshot):
		return "snapshot does not match golden file (run with --update to regenerate)"
	}
	return ""
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func printTestResult(w io.Writer, result TestResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, sr := range result.Scenarios {
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}
