package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRunScenarios(t *testing.T) {
	for _, name := range []string{"intake_undo", "prescription_completion", "missed_dose"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRunReportsUnexpectedOutcome(t *testing.T) {
	s := loadTestScenario(t, "intake_undo")
	s.Flow[1].Expect = &ExpectClause{Outcome: OutcomeRecorded}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "flow[1] intake: expected outcome recorded, got duplicate")
}

func TestRunReportsFailedAssertion(t *testing.T) {
	s := loadTestScenario(t, "intake_undo")
	units := 99.0
	s.Assertions = []Assertion{{Type: AssertStock, Medicine: "vitamina", Units: &units}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "vitamina has 99 units")
	assert.Contains(t, result.Errors[0], "4 units")
}

func TestRunAbortsOnFailingSetup(t *testing.T) {
	s := loadTestScenario(t, "intake_undo")
	s.Setup = []Step{{Action: ActionPurchase, Args: map[string]any{"operation_id": "x", "medicine": "vitamina"}}}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0 (purchase)")
}

func TestRunRejectsBrokenCabinet(t *testing.T) {
	s := loadTestScenario(t, "intake_undo")
	s.Cabinet = `medicines: a: {name: ""}`

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load cabinet")
}

func TestRunIsDeterministic(t *testing.T) {
	s := loadTestScenario(t, "intake_undo")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalSnapshot(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
