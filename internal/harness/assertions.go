package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", i+1, event.Action, event.Args, event.Outcome)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertStock:
		return assertStock(result, a)
	case AssertTodayContains:
		return assertTodayContains(result, a)
	case AssertTodayAbsent:
		return assertTodayAbsent(result, a)
	case AssertTodayOrder:
		return assertTodayOrder(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertTraceContains checks if the trace contains a step matching
// the specified action and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Action == assertion.Action && matchArgs(event.Args, assertion.Args) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		for _, expected := range assertion.Actions {
			if event.Action == expected && positions[expected] == 0 {
				positions[expected] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev, curr := assertion.Actions[i-1], assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action == assertion.Action {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertStock(result *Result, a Assertion) error {
	units, ok := result.Stock[a.Medicine]
	if !ok {
		return &AssertionError{
			Type:     AssertStock,
			Expected: fmt.Sprintf("stock for %s", a.Medicine),
			Actual:   "medicine not found",
		}
	}
	if units != *a.Units {
		return &AssertionError{
			Type:     AssertStock,
			Expected: fmt.Sprintf("%s has %g units", a.Medicine, *a.Units),
			Actual:   fmt.Sprintf("%g units", units),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertTodayContains(result *Result, a Assertion) error {
	line, ok := result.Line(a.Item)
	if !ok {
		return &AssertionError{
			Type:     AssertTodayContains,
			Expected: fmt.Sprintf("item %s", a.Item),
			Actual:   fmt.Sprintf("items %v", lineIDs(result.Today)),
		}
	}
	if a.Detail != "" && line.Detail != a.Detail {
		return &AssertionError{
			Type:     AssertTodayContains,
			Expected: fmt.Sprintf("item %s with detail %q", a.Item, a.Detail),
			Actual:   fmt.Sprintf("detail %q", line.Detail),
		}
	}
	if a.Completed != nil && line.Completed != *a.Completed {
		return &AssertionError{
			Type:     AssertTodayContains,
			Expected: fmt.Sprintf("item %s completed=%t", a.Item, *a.Completed),
			Actual:   fmt.Sprintf("completed=%t", line.Completed),
		}
	}
	return nil
}

func assertTodayAbsent(result *Result, a Assertion) error {
	if _, ok := result.Line(a.Item); ok {
		return &AssertionError{
			Type:     AssertTodayAbsent,
			Expected: fmt.Sprintf("no item %s", a.Item),
			Actual:   fmt.Sprintf("items %v", lineIDs(result.Today)),
		}
	}
	return nil
}

// assertTodayOrder checks relative order among open items.
func assertTodayOrder(result *Result, a Assertion) error {
	last := -1
	for _, id := range a.Items {
		pos := -1
		for i, l := range result.Today {
			if l.ID == id && !l.Completed {
				pos = i
				break
			}
		}
		if pos < 0 {
			return &AssertionError{
				Type:     AssertTodayOrder,
				Expected: fmt.Sprintf("open items in order: %v", a.Items),
				Actual:   fmt.Sprintf("missing item %s in %v", id, lineIDs(result.Today)),
			}
		}
		if pos < last {
			return &AssertionError{
				Type:     AssertTodayOrder,
				Expected: fmt.Sprintf("open items in order: %v", a.Items),
				Actual:   fmt.Sprintf("got %v", lineIDs(result.Today)),
			}
		}
		last = pos
	}
	return nil
}

// matchArgs reports whether every expected arg equals the actual one.
// Values compare by their printed form so YAML ints match floats.
func matchArgs(actual, expected map[string]any) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func lineIDs(lines []TodayLine) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ID
	}
	return ids
}
