// Package live selects the single most urgent dose for the live surface and
// handles its taken and remind-later actions.
package live

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/cases"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/dosing"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/recurrence"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
)

const (
	DefaultLead  = 10 * time.Minute
	DefaultGrace = 60 * time.Minute
)

// Options configures the eligibility window.
type Options struct {
	Lead     time.Duration
	Grace    time.Duration
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Lead <= 0 {
		o.Lead = DefaultLead
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Candidate is one dose eligible for the live surface.
type Candidate struct {
	TherapyID    string    `json:"therapyId"`
	MedicineID   string    `json:"medicineId"`
	PackageID    string    `json:"packageId,omitempty"`
	MedicineName string    `json:"medicineName"`
	Amount       float64   `json:"amount"`
	DoseText     string    `json:"doseText"`
	ScheduledAt  time.Time `json:"scheduledAt"`
}

// SnoozeKey is the snooze lookup key of the candidate's dose.
func (c Candidate) SnoozeKey() store.SnoozeKey {
	return store.SnoozeKey{TherapyID: c.TherapyID, MinuteBucket: store.MinuteBucket(c.ScheduledAt)}
}

// Plan is what the live surface should show. An empty plan has no Primary
// and carries NextRefreshAt for the caller's single wake-up.
type Plan struct {
	Primary         *Candidate `json:"primary,omitempty"`
	AdditionalCount int        `json:"additionalCount"`
	Subtitle        string     `json:"subtitle,omitempty"`
	ExpiryAt        *time.Time `json:"expiryAt,omitempty"`
	NextRefreshAt   *time.Time `json:"nextRefreshAt,omitempty"`
}

// Empty reports whether no dose is eligible.
func (p Plan) Empty() bool {
	return p.Primary == nil
}

// Select picks the nearest eligible dose at now. A dose is eligible from
// Lead before its time until Grace after it, unless it was logged or is
// snoozed. Manual-registration therapies never appear.
func Select(snaps []domain.MedicineSnapshot, now time.Time, snoozed map[store.SnoozeKey]time.Time, opts Options) Plan {
	opts = opts.withDefaults()
	from, to := now.Add(-opts.Grace), now.Add(opts.Lead)

	var eligible []Candidate
	var wake *time.Time
	earliest := func(t time.Time) {
		if wake == nil || t.Before(*wake) {
			wake = &t
		}
	}

	for _, snap := range snaps {
		manual := make(map[string]bool)
		for _, t := range snap.Therapies {
			if t.ManualRegistration {
				manual[t.ID] = true
			}
		}

		for _, d := range dosing.Window(snap, from, to, opts.Location) {
			if manual[d.TherapyID] || d.Logged {
				continue
			}
			c := candidate(snap, d)
			if until, ok := snoozed[c.SnoozeKey()]; ok && until.After(now) {
				if until.Before(d.At.Add(opts.Grace)) {
					earliest(until)
				}
				continue
			}
			eligible = append(eligible, c)
		}

		for _, t := range snap.ActiveTherapies() {
			if t.ManualRegistration {
				continue
			}
			if next := recurrence.ForTherapy(t, opts.Location).Next(to); next != nil {
				earliest(next.Add(-opts.Lead))
			}
		}
	}

	if len(eligible) == 0 {
		return Plan{NextRefreshAt: wake}
	}

	fold := cases.Fold()
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		if na, nb := fold.String(a.MedicineName), fold.String(b.MedicineName); na != nb {
			return na < nb
		}
		return a.TherapyID < b.TherapyID
	})

	primary := eligible[0]
	expiry := primary.ScheduledAt.Add(opts.Grace)
	earliest(expiry)
	plan := Plan{
		Primary:         &primary,
		AdditionalCount: len(eligible) - 1,
		ExpiryAt:        &expiry,
		NextRefreshAt:   wake,
	}
	plan.Subtitle = fmt.Sprintf("%s · %s", primary.MedicineName, primary.DoseText)
	if plan.AdditionalCount > 0 {
		plan.Subtitle += fmt.Sprintf(" +%d", plan.AdditionalCount)
	}
	return plan
}

func candidate(snap domain.MedicineSnapshot, d dosing.Dose) Candidate {
	c := Candidate{
		TherapyID:    d.TherapyID,
		MedicineID:   snap.Medicine.ID,
		MedicineName: snap.Medicine.Name,
		Amount:       d.Amount,
		ScheduledAt:  d.At,
	}
	label := "unit"
	if t, ok := snap.Therapy(d.TherapyID); ok {
		if pkg, ok := snap.PackageFor(t); ok {
			c.PackageID = pkg.ID
			label = pkg.Label()
		}
	}
	if d.Amount == float64(int64(d.Amount)) {
		c.DoseText = fmt.Sprintf("%d %s", int64(d.Amount), label)
	} else {
		c.DoseText = fmt.Sprintf("%.1f %s", d.Amount, label)
	}
	return c
}
