package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now is the RFC 3339 instant the clock starts at.
	Now string `yaml:"now"`

	// Timezone is the IANA zone for day arithmetic. Default UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// Cabinet is inline CUE source with the medicine definitions.
	Cabinet string `yaml:"cabinet,omitempty"`

	// CabinetDir is a CUE package directory, relative to the scenario file.
	CabinetDir string `yaml:"cabinet_dir,omitempty"`

	// ThresholdDays overrides the global low-stock threshold.
	ThresholdDays int `yaml:"threshold_days,omitempty"`

	// Setup steps must succeed; a failing setup step aborts the run.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is a single action with optional expectations.
type Step struct {
	Action string         `yaml:"action"`
	Args   map[string]any `yaml:"args"`
	Expect *ExpectClause  `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Outcome is recorded, duplicate, ok or error.
	Outcome string `yaml:"outcome"`

	// Code is the expected error code when Outcome is error.
	Code string `yaml:"code,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	Type string `yaml:"type"`

	// trace_contains, trace_count
	Action string         `yaml:"action,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`
	Count  int            `yaml:"count,omitempty"`

	// trace_order
	Actions []string `yaml:"actions,omitempty"`

	// stock
	Medicine string   `yaml:"medicine,omitempty"`
	Units    *float64 `yaml:"units,omitempty"`

	// today_contains, today_absent
	Item      string `yaml:"item,omitempty"`
	Detail    string `yaml:"detail,omitempty"`
	Completed *bool  `yaml:"completed,omitempty"`

	// today_order
	Items []string `yaml:"items,omitempty"`
}

// Action names.
const (
	ActionIntake               = "intake"
	ActionPurchase             = "purchase"
	ActionPrescriptionRequest  = "prescription_request"
	ActionPrescriptionReceived = "prescription_received"
	ActionAdjust               = "adjust"
	ActionUndo                 = "undo"
	ActionAdvance              = "advance"
	ActionComplete             = "complete"
	ActionReopen               = "reopen"
	ActionDeleteTherapy        = "delete_therapy"
)

var knownActions = map[string]bool{
	ActionIntake: true, ActionPurchase: true, ActionPrescriptionRequest: true,
	ActionPrescriptionReceived: true, ActionAdjust: true, ActionUndo: true,
	ActionAdvance: true, ActionComplete: true, ActionReopen: true, ActionDeleteTherapy: true,
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertStock         = "stock"
	AssertTodayContains = "today_contains"
	AssertTodayAbsent   = "today_absent"
	AssertTodayOrder    = "today_order"
)

// LoadScenario reads and parses a scenario YAML file. cabinet_dir is
// resolved relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.CabinetDir != "" && !filepath.IsAbs(scenario.CabinetDir) {
		scenario.CabinetDir = filepath.Join(filepath.Dir(path), scenario.CabinetDir)
	}
	if scenario.CabinetDir != "" {
		if _, err := os.Stat(scenario.CabinetDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: cabinet directory not found: %s", scenario.CabinetDir)
		}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Location resolves Timezone.
func (s *Scenario) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Start parses Now.
func (s *Scenario) Start() (time.Time, error) {
	return time.Parse(time.RFC3339, s.Now)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.Start(); err != nil {
		return fmt.Errorf("now must be an RFC 3339 instant: %w", err)
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if (s.Cabinet == "") == (s.CabinetDir == "") {
		return fmt.Errorf("exactly one of cabinet or cabinet_dir is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	if step.Action == "" {
		return fmt.Errorf("%s: action is required", where)
	}
	if !knownActions[step.Action] {
		return fmt.Errorf("%s: unknown action %q", where, step.Action)
	}
	if step.Args == nil {
		return fmt.Errorf("%s: args is required (use empty map if no args)", where)
	}
	if step.Expect != nil {
		switch step.Expect.Outcome {
		case OutcomeRecorded, OutcomeDuplicate, OutcomeOK, OutcomeError:
		case "":
			return fmt.Errorf("%s.expect: outcome is required", where)
		default:
			return fmt.Errorf("%s.expect: unknown outcome %q", where, step.Expect.Outcome)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertStock:
		if a.Medicine == "" || a.Units == nil {
			return fmt.Errorf("assertions[%d]: medicine and units are required for stock", index)
		}
	case AssertTodayContains, AssertTodayAbsent:
		if a.Item == "" {
			return fmt.Errorf("assertions[%d]: item is required for %s", index, a.Type)
		}
	case AssertTodayOrder:
		if len(a.Items) < 2 {
			return fmt.Errorf("assertions[%d]: at least two items are required for today_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
