// Package dosing pairs scheduled dose instants with intake logs.
//
// Pairing is best-effort and day-scoped: on a given calendar day a
// therapy's effective intake logs mark its doses as taken in chronological
// order. Logs without a therapy reference count only when the medicine has
// exactly one active therapy.
package dosing

import (
	"sort"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/recurrence"
)

// Dose is one scheduled dose instant and whether it has been taken.
type Dose struct {
	TherapyID  string
	MedicineID string
	At         time.Time
	Amount     float64
	Logged     bool
}

// Day lists every dose of snap's active therapies on the calendar day
// containing day, ordered by time then therapy id.
func Day(snap domain.MedicineSnapshot, day time.Time, loc *time.Location) []Dose {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := day.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	active := snap.ActiveTherapies()
	intakes := domain.Effective(snap.Events, domain.KindIntake)

	out := []Dose{}
	for _, t := range active {
		occ := recurrence.ForTherapy(t, loc).Between(start, end)
		logs := 0
		for _, e := range intakes {
			if e.Timestamp.Before(start) || !e.Timestamp.Before(end) {
				continue
			}
			if e.TherapyID == t.ID || (e.TherapyID == "" && len(active) == 1) {
				logs++
			}
		}
		for i, o := range occ {
			out = append(out, Dose{
				TherapyID:  t.ID,
				MedicineID: snap.Medicine.ID,
				At:         o.At,
				Amount:     o.Dose.Amount,
				Logged:     i < logs,
			})
		}
	}
	sortDoses(out)
	return out
}

// Window lists doses with instants in [from, to], pairing logs per day.
func Window(snap domain.MedicineSnapshot, from, to time.Time, loc *time.Location) []Dose {
	if loc == nil {
		loc = time.Local
	}
	out := []Dose{}
	if to.Before(from) {
		return out
	}
	y, m, d := from.In(loc).Date()
	for day := time.Date(y, m, d, 12, 0, 0, 0, loc); ; day = day.AddDate(0, 0, 1) {
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
		if dayStart.After(to) {
			break
		}
		for _, dose := range Day(snap, day, loc) {
			if !dose.At.Before(from) && !dose.At.After(to) {
				out = append(out, dose)
			}
		}
	}
	sortDoses(out)
	return out
}

// Pending filters doses not yet logged.
func Pending(doses []Dose) []Dose {
	out := []Dose{}
	for _, d := range doses {
		if !d.Logged {
			out = append(out, d)
		}
	}
	return out
}

// ForTherapy filters doses belonging to one therapy.
func ForTherapy(doses []Dose, therapyID string) []Dose {
	out := []Dose{}
	for _, d := range doses {
		if d.TherapyID == therapyID {
			out = append(out, d)
		}
	}
	return out
}

func sortDoses(doses []Dose) {
	sort.SliceStable(doses, func(i, j int) bool {
		if !doses[i].At.Equal(doses[j].At) {
			return doses[i].At.Before(doses[j].At)
		}
		return doses[i].TherapyID < doses[j].TherapyID
	})
}
