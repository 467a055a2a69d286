package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitoringRuleLegacyMigration(t *testing.T) {
	var rule MonitoringRule
	err := json.Unmarshal([]byte(`{"kind":"glucose","requiredBeforeDose":true,"leadMinutes":30}`), &rule)
	require.NoError(t, err)
	assert.Equal(t, BeforeDose, rule.DoseRelation)
	assert.Equal(t, 30, rule.OffsetMinutes)
}

func TestMonitoringRuleNewFieldsWin(t *testing.T) {
	var rule MonitoringRule
	err := json.Unmarshal([]byte(`{"kind":"bp","doseRelation":"afterDose","offsetMinutes":60,"requiredBeforeDose":true,"leadMinutes":15}`), &rule)
	require.NoError(t, err)
	assert.Equal(t, AfterDose, rule.DoseRelation)
	assert.Equal(t, 60, rule.OffsetMinutes)
}

func TestMonitoringRuleRejectsUnknownRelation(t *testing.T) {
	var rule MonitoringRule
	err := json.Unmarshal([]byte(`{"kind":"bp","doseRelation":"during"}`), &rule)
	assert.Error(t, err)
}

func TestMissedDosePolicyEncoding(t *testing.T) {
	data, err := json.Marshal(MissedDosePolicy{Kind: MissedDoseNotify, GraceMinutes: 30, WindowMinutes: 99})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"notify","graceMinutes":30}`, string(data))

	data, err = json.Marshal(MissedDosePolicy{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"none"}`, string(data))

	var p MissedDosePolicy
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"skip","windowMinutes":120}`), &p))
	assert.Equal(t, MissedDosePolicy{Kind: MissedDoseSkip, WindowMinutes: 120}, p)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"notify"}`), &p), "notify needs graceMinutes")
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"explode"}`), &p))
}

func TestDecodeClinicalRules(t *testing.T) {
	rules, err := DecodeClinicalRules(nil)
	require.NoError(t, err)
	assert.Nil(t, rules)

	rules, err = DecodeClinicalRules([]byte(`{
		"course": {"days": 10},
		"monitoring": [{"kind":"glucose","requiredBeforeDose":true,"leadMinutes":20}],
		"missedDose": {"kind":"notify","graceMinutes":45}
	}`))
	require.NoError(t, err)
	require.NotNil(t, rules.Course)
	assert.Equal(t, 10, rules.Course.Days)
	require.Len(t, rules.Monitoring, 1)
	assert.Equal(t, BeforeDose, rules.Monitoring[0].DoseRelation)
	assert.Equal(t, 20, rules.Monitoring[0].OffsetMinutes)
	assert.Equal(t, MissedDoseNotify, rules.MissedDose.Kind)

	encoded, err := EncodeClinicalRules(rules)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "leadMinutes")
}

func TestTaperFactorAt(t *testing.T) {
	taper := TaperRule{Steps: []TaperStep{{Days: 3, Factor: 1}, {Days: 2, Factor: 0.5}}}
	assert.Equal(t, 5, taper.TotalDays())

	f, ok := taper.FactorAt(0)
	assert.True(t, ok)
	assert.Equal(t, 1.0, f)

	f, ok = taper.FactorAt(4)
	assert.True(t, ok)
	assert.Equal(t, 0.5, f)

	_, ok = taper.FactorAt(5)
	assert.False(t, ok)
	_, ok = taper.FactorAt(-1)
	assert.False(t, ok)
}
