package domain

import (
	"encoding/json"
	"fmt"
)

// ClinicalRules are the optional per-therapy rules read by the clinical
// collaborator and the occurrence helpers.
type ClinicalRules struct {
	Course     *CourseRule      `json:"course,omitempty"`
	Taper      *TaperRule       `json:"taper,omitempty"`
	Monitoring []MonitoringRule `json:"monitoring,omitempty"`
	MissedDose MissedDosePolicy `json:"missedDose"`
}

// CourseRule ends a therapy Days days after its start date.
type CourseRule struct {
	Days int `json:"days"`
}

// TaperRule scales dose amounts step by step. Steps run back to back from
// the start date; once the last step has elapsed the therapy is over.
type TaperRule struct {
	Steps []TaperStep `json:"steps"`
}

// TaperStep applies Factor to every dose amount for Days days.
type TaperStep struct {
	Days   int     `json:"days"`
	Factor float64 `json:"factor"`
}

// TotalDays is the sum of all step lengths.
func (t TaperRule) TotalDays() int {
	total := 0
	for _, s := range t.Steps {
		total += s.Days
	}
	return total
}

// FactorAt returns the amount factor dayOffset days after the start date,
// and false when the taper has already finished.
func (t TaperRule) FactorAt(dayOffset int) (float64, bool) {
	if dayOffset < 0 {
		return 0, false
	}
	for _, s := range t.Steps {
		if dayOffset < s.Days {
			return s.Factor, true
		}
		dayOffset -= s.Days
	}
	return 0, false
}

// DoseRelation says whether a monitoring reading belongs before or after a dose.
type DoseRelation string

const (
	BeforeDose DoseRelation = "beforeDose"
	AfterDose  DoseRelation = "afterDose"
)

// MonitoringRule asks for a reading of Kind at OffsetMinutes from a dose.
type MonitoringRule struct {
	Kind          string       `json:"kind"`
	DoseRelation  DoseRelation `json:"doseRelation"`
	OffsetMinutes int          `json:"offsetMinutes"`
}

type monitoringRuleJSON struct {
	Kind          string       `json:"kind"`
	DoseRelation  DoseRelation `json:"doseRelation,omitempty"`
	OffsetMinutes *int         `json:"offsetMinutes,omitempty"`

	// Legacy shape.
	RequiredBeforeDose bool `json:"requiredBeforeDose,omitempty"`
	LeadMinutes        *int `json:"leadMinutes,omitempty"`
}

// UnmarshalJSON decodes the current shape and migrates the legacy one:
// requiredBeforeDose with leadMinutes becomes beforeDose/offsetMinutes when
// the newer fields are absent.
func (m *MonitoringRule) UnmarshalJSON(data []byte) error {
	var raw monitoringRuleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := MonitoringRule{Kind: raw.Kind, DoseRelation: raw.DoseRelation}
	if raw.OffsetMinutes != nil {
		out.OffsetMinutes = *raw.OffsetMinutes
	}
	if raw.DoseRelation == "" && raw.OffsetMinutes == nil && raw.RequiredBeforeDose && raw.LeadMinutes != nil {
		out.DoseRelation = BeforeDose
		out.OffsetMinutes = *raw.LeadMinutes
	}
	if out.DoseRelation == "" {
		out.DoseRelation = BeforeDose
	}
	switch out.DoseRelation {
	case BeforeDose, AfterDose:
	default:
		return fmt.Errorf("monitoring rule: unknown dose relation %q", out.DoseRelation)
	}
	if out.OffsetMinutes < 0 {
		return fmt.Errorf("monitoring rule: negative offset %d", out.OffsetMinutes)
	}
	*m = out
	return nil
}

// MissedDoseKind discriminates MissedDosePolicy.
type MissedDoseKind string

const (
	MissedDoseNone   MissedDoseKind = "none"
	MissedDoseNotify MissedDoseKind = "notify"
	MissedDoseSkip   MissedDoseKind = "skip"
)

// MissedDosePolicy is a tagged union: none, notify{graceMinutes} or
// skip{windowMinutes}. Only the payload of the active kind is meaningful.
type MissedDosePolicy struct {
	Kind          MissedDoseKind
	GraceMinutes  int // notify: minutes after the dose before it counts as missed
	WindowMinutes int // skip: minutes after the dose during which it may still be taken
}

type missedDoseJSON struct {
	Kind          MissedDoseKind `json:"kind"`
	GraceMinutes  *int           `json:"graceMinutes,omitempty"`
	WindowMinutes *int           `json:"windowMinutes,omitempty"`
}

// MarshalJSON writes the discriminator and the active kind's payload only.
func (p MissedDosePolicy) MarshalJSON() ([]byte, error) {
	out := missedDoseJSON{Kind: p.Kind}
	switch p.Kind {
	case "", MissedDoseNone:
		out.Kind = MissedDoseNone
	case MissedDoseNotify:
		g := p.GraceMinutes
		out.GraceMinutes = &g
	case MissedDoseSkip:
		w := p.WindowMinutes
		out.WindowMinutes = &w
	default:
		return nil, fmt.Errorf("missed dose policy: unknown kind %q", p.Kind)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged union. A missing kind decodes as none.
func (p *MissedDosePolicy) UnmarshalJSON(data []byte) error {
	var raw missedDoseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := MissedDosePolicy{Kind: raw.Kind}
	switch raw.Kind {
	case "", MissedDoseNone:
		out.Kind = MissedDoseNone
	case MissedDoseNotify:
		if raw.GraceMinutes == nil || *raw.GraceMinutes < 0 {
			return fmt.Errorf("missed dose policy notify: graceMinutes required")
		}
		out.GraceMinutes = *raw.GraceMinutes
	case MissedDoseSkip:
		if raw.WindowMinutes == nil || *raw.WindowMinutes < 0 {
			return fmt.Errorf("missed dose policy skip: windowMinutes required")
		}
		out.WindowMinutes = *raw.WindowMinutes
	default:
		return fmt.Errorf("missed dose policy: unknown kind %q", raw.Kind)
	}
	*p = out
	return nil
}

// DecodeClinicalRules parses the persisted JSON form. Empty input yields nil.
func DecodeClinicalRules(data []byte) (*ClinicalRules, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var rules ClinicalRules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("decode clinical rules: %w", err)
	}
	return &rules, nil
}

// EncodeClinicalRules produces the persisted JSON form. Nil yields nil.
func EncodeClinicalRules(rules *ClinicalRules) ([]byte, error) {
	if rules == nil {
		return nil, nil
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("encode clinical rules: %w", err)
	}
	return data, nil
}
