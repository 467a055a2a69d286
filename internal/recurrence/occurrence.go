package recurrence

import (
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

// calc caches per-call derived values for one rule, start and location.
type calc struct {
	rule      Rule
	loc       *time.Location
	start     civil
	untilDay  civil
	hasUntil  bool
	countDay  civil // last day admitted by COUNT
	hasCount  bool
	exDays    map[civil]bool
	rDays     map[civil]bool
	lastRDate civil
}

func newCalc(r Rule, start time.Time, loc *time.Location) *calc {
	if loc == nil {
		loc = time.Local
	}
	c := &calc{
		rule:   r,
		loc:    loc,
		start:  civilOf(start, loc),
		exDays: make(map[civil]bool, len(r.ExDates)),
		rDays:  make(map[civil]bool, len(r.RDates)),
	}
	if r.Until != nil {
		c.untilDay = civilOf(*r.Until, loc)
		c.hasUntil = true
	}
	for _, d := range r.ExDates {
		c.exDays[civilOf(d, loc)] = true
	}
	for _, d := range r.RDates {
		day := civilOf(d, loc)
		c.rDays[day] = true
		if day > c.lastRDate {
			c.lastRDate = day
		}
	}
	if r.Count > 0 {
		c.countDay, c.hasCount = c.nthBaseDay(r.Count)
	}
	return c
}

// nthBaseDay scans forward from start for the n-th day admitted by FREQ,
// the BY* filters and the duty cycle.
func (c *calc) nthBaseDay(n int) (civil, bool) {
	seen := 0
	for d := c.start; d <= c.start+SearchHorizon*2; d++ {
		if c.hasUntil && d > c.untilDay {
			break
		}
		if c.baseDay(d) {
			seen++
			if seen == n {
				return d, true
			}
		}
	}
	// Fewer than n instances before UNTIL or the horizon: COUNT never binds.
	return 0, false
}

// baseDay reports whether d matches FREQ/INTERVAL, the BY* filters and the
// duty cycle, ignoring bounds and explicit dates.
func (c *calc) baseDay(d civil) bool {
	offset := int64(d - c.start)
	if offset < 0 {
		return false
	}
	r := c.rule
	interval := int64(r.interval())
	y, m, dom := d.date().Date()
	sy, sm, sdom := c.start.date().Date()

	if len(r.ByMonth) > 0 && !containsInt(r.ByMonth, int(m)) {
		return false
	}

	switch r.Freq {
	case Weekly:
		weeks := int64(d.weekStart(r.WeekStart)-c.start.weekStart(r.WeekStart)) / 7
		if weeks%interval != 0 {
			return false
		}
		if len(r.ByDay) > 0 && !containsWeekday(r.ByDay, d.weekday()) {
			return false
		}
		if len(r.ByMonthDay) > 0 && !matchesMonthDay(r.ByMonthDay, d) {
			return false
		}
	case Monthly:
		months := int64((y*12 + int(m)) - (sy*12 + int(sm)))
		if months%interval != 0 {
			return false
		}
		switch {
		case len(r.ByMonthDay) > 0:
			if !matchesMonthDay(r.ByMonthDay, d) {
				return false
			}
		case len(r.ByDay) > 0:
			if !containsWeekday(r.ByDay, d.weekday()) {
				return false
			}
		default:
			if dom != sdom {
				return false
			}
		}
	case Yearly:
		if int64(y-sy)%interval != 0 {
			return false
		}
		if len(r.ByMonth) == 0 && m != sm {
			return false
		}
		switch {
		case len(r.ByMonthDay) > 0:
			if !matchesMonthDay(r.ByMonthDay, d) {
				return false
			}
		case len(r.ByDay) > 0:
			if !containsWeekday(r.ByDay, d.weekday()) {
				return false
			}
		default:
			if dom != sdom {
				return false
			}
		}
	default: // Daily
		if offset%interval != 0 {
			return false
		}
		if len(r.ByDay) > 0 && !containsWeekday(r.ByDay, d.weekday()) {
			return false
		}
		if len(r.ByMonthDay) > 0 && !matchesMonthDay(r.ByMonthDay, d) {
			return false
		}
	}

	if r.HasCycle() {
		period := int64(r.CycleOn + r.CycleOff)
		if offset%period >= int64(r.CycleOn) {
			return false
		}
	}
	return true
}

// allowed returns how many of dosesPerDay may occur on d.
func (c *calc) allowed(d civil, dosesPerDay int) int {
	if dosesPerDay <= 0 {
		return 0
	}
	regular := d >= c.start &&
		!(c.hasUntil && d > c.untilDay) &&
		!(c.hasCount && d > c.countDay) &&
		!c.exDays[d] &&
		c.baseDay(d)
	if regular {
		return dosesPerDay
	}
	if c.rDays[d] && !c.exDays[d] {
		return 1
	}
	return 0
}

// exhaustedAfter reports whether no day after d can ever qualify.
func (c *calc) exhaustedAfter(d civil) bool {
	if d < c.lastRDate {
		return false
	}
	return (c.hasUntil && d >= c.untilDay) || (c.hasCount && d >= c.countDay)
}

// AllowedEventsOnDay returns how many dose events are permitted on the
// calendar day containing day: 0 outside [start, until], past COUNT, on an
// EXDATE or outside the duty cycle's on-window, dosesPerDay otherwise. An
// RDATE admits one event on a day that would not otherwise qualify.
func AllowedEventsOnDay(day time.Time, r Rule, start time.Time, dosesPerDay int, loc *time.Location) int {
	c := newCalc(r, start, loc)
	return c.allowed(civilOf(day, c.loc), dosesPerDay)
}

// NextOccurrence returns the earliest instant strictly after `after`, not
// before start, that falls on a qualifying day at one of the doses'
// times-of-day. It returns nil when doses is empty or the rule is exhausted
// within SearchHorizon.
func NextOccurrence(r Rule, start, after time.Time, doses []domain.DoseTime, loc *time.Location) *time.Time {
	if len(doses) == 0 {
		return nil
	}
	c := newCalc(r, start, loc)
	sorted := domain.SortDoses(doses)

	from := civilOf(after, c.loc)
	if c.start > from {
		from = c.start
	}
	for d := from; d <= from+SearchHorizon; d++ {
		n := c.allowed(d, len(sorted))
		midnight := d.in(c.loc)
		for _, dose := range sorted[:n] {
			at := dose.On(midnight, c.loc)
			if at.Before(start) || !at.After(after) {
				continue
			}
			if r.Until != nil && at.After(*r.Until) && !c.rDays[d] {
				continue
			}
			return &at
		}
		if c.exhaustedAfter(d) {
			return nil
		}
	}
	return nil
}

// Occurrence is one concrete dose instant.
type Occurrence struct {
	At   time.Time
	Dose domain.DoseTime
}

// OccurrencesBetween lists every dose instant in [from, to), ascending.
func OccurrencesBetween(r Rule, start, from, to time.Time, doses []domain.DoseTime, loc *time.Location) []Occurrence {
	out := []Occurrence{}
	if len(doses) == 0 || !to.After(from) {
		return out
	}
	c := newCalc(r, start, loc)
	sorted := domain.SortDoses(doses)

	first := civilOf(from, c.loc)
	if c.start > first {
		first = c.start
	}
	last := civilOf(to, c.loc)
	for d := first; d <= last; d++ {
		n := c.allowed(d, len(sorted))
		midnight := d.in(c.loc)
		for _, dose := range sorted[:n] {
			at := dose.On(midnight, c.loc)
			if at.Before(from) || !at.Before(to) || at.Before(start) {
				continue
			}
			if r.Until != nil && at.After(*r.Until) && !c.rDays[d] {
				continue
			}
			out = append(out, Occurrence{At: at, Dose: dose})
		}
	}
	return out
}
