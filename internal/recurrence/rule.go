package recurrence

import (
	"slices"
	"time"
)

// Frequency is the FREQ part of a rule.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

func (f Frequency) valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// SearchHorizon bounds how far past max(start, after) the occurrence search
// looks before declaring a rule exhausted.
const SearchHorizon = 5 * 366 // days

// Rule is an immutable recurrence description.
type Rule struct {
	Freq       Frequency
	Interval   int // >= 1
	Until      *time.Time
	Count      int // 0 = unbounded; counts qualifying days
	ByDay      []time.Weekday
	ByMonth    []int
	ByMonthDay []int // negative values count from the end of the month
	WeekStart  time.Weekday
	ExDates    []time.Time
	RDates     []time.Time
	CycleOn    int // active days per cycle; 0 = no duty cycle
	CycleOff   int // inactive days per cycle
}

// Default is the rule every unparseable text falls back to.
func Default() Rule {
	return Rule{Freq: Daily, Interval: 1, WeekStart: time.Monday}
}

// HasCycle reports whether the duty-cycle extension is in effect.
func (r Rule) HasCycle() bool {
	return r.CycleOn > 0 && r.CycleOff >= 0
}

// DutyCycleFactor is on/(on+off) under a cycle, else 1.
func (r Rule) DutyCycleFactor() float64 {
	if !r.HasCycle() {
		return 1
	}
	return float64(r.CycleOn) / float64(r.CycleOn+r.CycleOff)
}

// EventsPerDay is the average number of qualifying days per calendar day
// implied by FREQ, INTERVAL and the BY* lists, ignoring the duty cycle.
func (r Rule) EventsPerDay() float64 {
	interval := float64(r.interval())
	switch r.Freq {
	case Weekly:
		n := len(r.ByDay)
		if n == 0 {
			n = 7
		}
		return float64(n) / (7 * interval)
	case Monthly:
		n := len(r.ByMonthDay)
		if n == 0 {
			n = 1
		}
		return float64(n) / (30 * interval)
	case Yearly:
		return 1 / (365 * interval)
	}
	return 1 / interval
}

func (r Rule) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

// Equal compares two rules field by field. Times compare as instants.
func (r Rule) Equal(o Rule) bool {
	if r.Freq != o.Freq || r.interval() != o.interval() || r.Count != o.Count ||
		r.WeekStart != o.WeekStart || r.CycleOn != o.CycleOn || r.CycleOff != o.CycleOff {
		return false
	}
	if (r.Until == nil) != (o.Until == nil) || (r.Until != nil && !r.Until.Equal(*o.Until)) {
		return false
	}
	return slices.Equal(r.ByDay, o.ByDay) &&
		slices.Equal(r.ByMonth, o.ByMonth) &&
		slices.Equal(r.ByMonthDay, o.ByMonthDay) &&
		slices.EqualFunc(r.ExDates, o.ExDates, time.Time.Equal) &&
		slices.EqualFunc(r.RDates, o.RDates, time.Time.Equal)
}
