package recurrence

import (
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

// Schedule is a therapy's rule bound to its start date, dose times and
// clinical course limits. The zero Schedule never occurs.
type Schedule struct {
	TherapyID string
	Rule      Rule
	Start     time.Time
	Doses     []domain.DoseTime
	taper     *domain.TaperRule
	loc       *time.Location
	deleted   bool
}

// ForTherapy parses the therapy's stored rule and folds course and taper
// lengths into UNTIL. A deleted therapy yields a schedule that never occurs.
func ForTherapy(t domain.Therapy, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.Local
	}
	s := Schedule{
		TherapyID: t.ID,
		Rule:      Parse(t.Rule),
		Start:     t.StartDate,
		Doses:     domain.SortDoses(t.Doses),
		loc:       loc,
		deleted:   t.Deleted,
	}
	if t.Clinical == nil {
		return s
	}
	if t.Clinical.Course != nil && t.Clinical.Course.Days > 0 {
		s.capUntil(t.Clinical.Course.Days)
	}
	if t.Clinical.Taper != nil && len(t.Clinical.Taper.Steps) > 0 {
		taper := *t.Clinical.Taper
		s.taper = &taper
		s.capUntil(taper.TotalDays())
	}
	return s
}

// capUntil ends the schedule on the last instant of day start+days-1.
func (s *Schedule) capUntil(days int) {
	end := (civilOf(s.Start, s.loc) + civil(days)).in(s.loc).Add(-time.Second)
	if s.Rule.Until == nil || end.Before(*s.Rule.Until) {
		s.Rule.Until = &end
	}
}

// Active reports whether the schedule can ever produce an occurrence.
func (s Schedule) Active() bool {
	return !s.deleted && len(s.Doses) > 0
}

// Location is the zone all day arithmetic uses.
func (s Schedule) Location() *time.Location {
	return s.loc
}

// Next returns the next dose instant strictly after `after`.
func (s Schedule) Next(after time.Time) *time.Time {
	if !s.Active() {
		return nil
	}
	return NextOccurrence(s.Rule, s.Start, after, s.Doses, s.loc)
}

// AllowedOn returns the number of doses permitted on day.
func (s Schedule) AllowedOn(day time.Time) int {
	if !s.Active() {
		return 0
	}
	return AllowedEventsOnDay(day, s.Rule, s.Start, len(s.Doses), s.loc)
}

// Between lists dose instants in [from, to) with taper-scaled amounts.
func (s Schedule) Between(from, to time.Time) []Occurrence {
	if !s.Active() {
		return []Occurrence{}
	}
	occ := OccurrencesBetween(s.Rule, s.Start, from, to, s.Doses, s.loc)
	for i := range occ {
		occ[i].Dose.Amount *= s.FactorOn(occ[i].At)
	}
	return occ
}

// OnDay lists the dose instants on the calendar day containing day.
func (s Schedule) OnDay(day time.Time) []Occurrence {
	midnight := civilOf(day, s.loc).in(s.loc)
	return s.Between(midnight, midnight.AddDate(0, 0, 1))
}

// FactorOn is the taper factor on the day containing at, 1 without a taper
// and 0 once the taper is over.
func (s Schedule) FactorOn(at time.Time) float64 {
	if s.taper == nil {
		return 1
	}
	f, ok := s.taper.FactorAt(int(civilOf(at, s.loc) - civilOf(s.Start, s.loc)))
	if !ok {
		return 0
	}
	return f
}

// DailyUsage is Σ(dose amount) × EventsPerDay × duty-cycle factor × taper
// factor at `at`. It is 0 for schedules that can never occur.
func (s Schedule) DailyUsage(at time.Time) float64 {
	if !s.Active() {
		return 0
	}
	if s.Rule.Until != nil && at.After(*s.Rule.Until) {
		return 0
	}
	var amount float64
	for _, d := range s.Doses {
		amount += d.Amount
	}
	return amount * s.Rule.EventsPerDay() * s.Rule.DutyCycleFactor() * s.FactorOn(at)
}
