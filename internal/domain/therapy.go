package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DoseTime is a wall-clock time-of-day at which an amount is taken.
type DoseTime struct {
	Hour   int
	Minute int
	Amount float64
}

// ParseDoseTime parses "HH:MM" into a DoseTime with the given amount.
func ParseDoseTime(clock string, amount float64) (DoseTime, error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 2 {
		return DoseTime{}, fmt.Errorf("dose time %q: want HH:MM", clock)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return DoseTime{}, fmt.Errorf("dose time %q: invalid hour", clock)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return DoseTime{}, fmt.Errorf("dose time %q: invalid minute", clock)
	}
	return DoseTime{Hour: h, Minute: m, Amount: amount}, nil
}

// Clock renders the time-of-day as HH:MM.
func (d DoseTime) Clock() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// MinuteOfDay returns minutes since midnight.
func (d DoseTime) MinuteOfDay() int {
	return d.Hour*60 + d.Minute
}

// On returns the instant of this dose on the calendar day containing day, in loc.
func (d DoseTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, dd := day.In(loc).Date()
	return time.Date(y, m, dd, d.Hour, d.Minute, 0, 0, loc)
}

type doseTimeJSON struct {
	Time   string  `json:"time"`
	Amount float64 `json:"amount"`
}

// MarshalJSON encodes the dose as {"time":"HH:MM","amount":n}.
func (d DoseTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(doseTimeJSON{Time: d.Clock(), Amount: d.Amount})
}

// UnmarshalJSON decodes {"time":"HH:MM","amount":n}.
func (d *DoseTime) UnmarshalJSON(data []byte) error {
	var raw doseTimeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDoseTime(raw.Time, raw.Amount)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SortDoses returns a copy of doses ordered by time-of-day.
func SortDoses(doses []DoseTime) []DoseTime {
	out := make([]DoseTime, len(doses))
	copy(out, doses)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinuteOfDay() < out[j].MinuteOfDay()
	})
	return out
}

// Therapy binds a medicine, a package, a person and a schedule.
type Therapy struct {
	ID                 string         `json:"id"`
	MedicineID         string         `json:"medicineId"`
	PackageID          string         `json:"packageId,omitempty"`
	PersonID           string         `json:"personId,omitempty"`
	ExternalKey        string         `json:"externalKey,omitempty"`
	StartDate          time.Time      `json:"startDate"`
	Rule               string         `json:"rule"` // serialized recurrence text
	Doses              []DoseTime     `json:"doses"`
	ManualRegistration bool           `json:"manualRegistration,omitempty"`
	Clinical           *ClinicalRules `json:"clinical,omitempty"`
	Deleted            bool           `json:"deleted,omitempty"`
}

// Key returns the external key used in monitoring ids, falling back to ID.
func (t Therapy) Key() string {
	if t.ExternalKey != "" {
		return t.ExternalKey
	}
	return t.ID
}

// AmountPerDay is the sum of all dose amounts scheduled on an active day.
func (t Therapy) AmountPerDay() float64 {
	var total float64
	for _, d := range t.Doses {
		total += d.Amount
	}
	return total
}
