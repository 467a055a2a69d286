// Package forecast turns ledger state and recurrence data into leftover
// units, autonomy days and a three-level stock status.
//
// All functions are pure and never fail: missing packages, deleted
// therapies and zero usage degrade to "no data" rather than errors.
package forecast

import (
	"math"
	"strconv"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/recurrence"
)

// DefaultThresholdDays is the global low-stock threshold.
const DefaultThresholdDays = 7

// Status is the stock status of a medicine.
type Status string

const (
	StatusCritical Status = "critical"
	StatusLow      Status = "low"
	StatusOK       Status = "ok"
)

// Options carries the global preferences the forecaster reads.
type Options struct {
	ThresholdDays int
	Location      *time.Location
}

func (o Options) threshold() int {
	if o.ThresholdDays > 0 {
		return o.ThresholdDays
	}
	return DefaultThresholdDays
}

func (o Options) location() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return time.Local
}

// TherapyUsage is one therapy's contribution to the medicine forecast.
type TherapyUsage struct {
	TherapyID  string
	DailyUsage float64
	Leftover   float64 // restricted to the therapy's package, clamped at 0
}

// Forecast is the stock picture of one medicine at one instant.
type Forecast struct {
	MedicineID string
	Threshold  int

	// Leftover is the display value, clamped at 0. RawLeftover may be negative.
	Leftover    float64
	RawLeftover float64
	DailyUsage  float64
	Therapies   []TherapyUsage

	// AutonomyDays is floor(leftover / daily usage). Nil when usage is 0
	// ("not estimable") or the medicine has no active therapy.
	AutonomyDays *int

	Status   Status
	Depleted bool

	PendingPrescription bool // a request is outstanding
	HasPrescription     bool // a prescription arrived after the last purchase
	NeedsPrescription   bool // must ask for a prescription before buying

	// Projected instants, set only when autonomy is estimable and the
	// crossing lies in the future.
	LowAt *time.Time
	OutAt *time.Time
}

// Estimable reports whether autonomy could be computed.
func (f Forecast) Estimable() bool {
	return f.AutonomyDays != nil
}

// NeedsAttention reports whether the medicine is low or critical.
func (f Forecast) NeedsAttention() bool {
	return f.Status != StatusOK
}

// AutonomyText renders autonomy for display.
func (f Forecast) AutonomyText() string {
	if f.AutonomyDays == nil {
		return "not estimable"
	}
	if *f.AutonomyDays == 1 {
		return "1 day"
	}
	return strconv.Itoa(*f.AutonomyDays) + " days"
}

// Medicine forecasts one medicine at now.
func Medicine(snap domain.MedicineSnapshot, now time.Time, opts Options) Forecast {
	loc := opts.location()
	f := Forecast{
		MedicineID: snap.Medicine.ID,
		Threshold:  snap.Medicine.Threshold(opts.threshold()),
		Therapies:  []TherapyUsage{},
	}

	f.RawLeftover = MedicineLeftover(snap)
	f.Leftover = math.Max(0, f.RawLeftover)

	for _, t := range snap.ActiveTherapies() {
		usage := recurrence.ForTherapy(t, loc).DailyUsage(now)
		f.DailyUsage += usage
		f.Therapies = append(f.Therapies, TherapyUsage{
			TherapyID:  t.ID,
			DailyUsage: usage,
			Leftover:   math.Max(0, TherapyLeftover(snap, t)),
		})
	}

	if f.DailyUsage > 0 {
		days := int(math.Floor(f.Leftover / f.DailyUsage))
		f.AutonomyDays = &days
	}

	switch {
	case f.RawLeftover <= 0:
		f.Depleted = true
		f.Status = StatusCritical
	case f.AutonomyDays != nil && *f.AutonomyDays <= 0:
		f.Depleted = true
		f.Status = StatusCritical
	case f.AutonomyDays != nil && *f.AutonomyDays < f.Threshold:
		f.Status = StatusLow
	case f.AutonomyDays == nil && f.Leftover < float64(f.Threshold):
		// No usage to project: fall back to a plain remaining-units count.
		f.Status = StatusLow
	default:
		f.Status = StatusOK
	}

	if f.DailyUsage > 0 && f.Leftover > 0 {
		daysLeft := f.Leftover / f.DailyUsage
		out := now.Add(time.Duration(daysLeft * float64(24*time.Hour)))
		f.OutAt = &out
		if lowIn := daysLeft - float64(f.Threshold); lowIn > 0 {
			low := now.Add(time.Duration(lowIn * float64(24*time.Hour)))
			f.LowAt = &low
		}
	}

	f.PendingPrescription = PendingPrescriptionRequest(snap.Events)
	f.HasPrescription = prescriptionInHand(snap.Events)
	f.NeedsPrescription = snap.Medicine.RequiresPrescription &&
		!f.PendingPrescription &&
		!f.HasPrescription &&
		(f.Depleted || f.Status == StatusLow)

	return f
}

// All forecasts every snapshot, keyed by medicine id.
func All(snaps []domain.MedicineSnapshot, now time.Time, opts Options) map[string]Forecast {
	out := make(map[string]Forecast, len(snaps))
	for _, snap := range snaps {
		out[snap.Medicine.ID] = Medicine(snap, now, opts)
	}
	return out
}

// MedicineLeftover is Σ(pack size × effective purchases) over distinct
// packages minus Σ(effective intakes) minus Σ(stock adjustments). It may be
// negative.
func MedicineLeftover(snap domain.MedicineSnapshot) float64 {
	var total float64
	for _, e := range domain.Effective(snap.Events, domain.KindPurchase) {
		if p, ok := snap.Package(e.PackageID); ok {
			total += e.Quantity * float64(p.Units)
		}
	}
	for _, e := range domain.Effective(snap.Events, domain.KindIntake) {
		total -= e.Quantity
	}
	for _, e := range domain.Effective(snap.Events, domain.KindStockAdjustment) {
		total -= e.Quantity
	}
	return total
}

// TherapyLeftover restricts the leftover computation to the therapy's
// package. Events without a package count when the medicine has exactly one
// package. A therapy whose package cannot be resolved has no data (0).
func TherapyLeftover(snap domain.MedicineSnapshot, t domain.Therapy) float64 {
	pkg, ok := snap.PackageFor(t)
	if !ok {
		return 0
	}
	single := len(snap.Packages) == 1
	matches := func(e domain.Event) bool {
		return e.PackageID == pkg.ID || (e.PackageID == "" && single)
	}

	var total float64
	for _, e := range domain.Effective(snap.Events, domain.KindPurchase) {
		if e.PackageID == pkg.ID {
			total += e.Quantity * float64(pkg.Units)
		}
	}
	for _, kind := range []domain.EventKind{domain.KindIntake, domain.KindStockAdjustment} {
		for _, e := range domain.Effective(snap.Events, kind) {
			if matches(e) {
				total -= e.Quantity
			}
		}
	}
	return total
}

// PendingPrescriptionRequest reports whether the latest effective request is
// newer than the latest received prescription and the latest purchase.
func PendingPrescriptionRequest(events []domain.Event) bool {
	req, ok := domain.Latest(events, domain.KindPrescriptionRequest)
	if !ok {
		return false
	}
	if rx, ok := domain.Latest(events, domain.KindPrescriptionReceived); ok && !rx.Timestamp.Before(req.Timestamp) {
		return false
	}
	if buy, ok := domain.Latest(events, domain.KindPurchase); ok && !buy.Timestamp.Before(req.Timestamp) {
		return false
	}
	return true
}

func prescriptionInHand(events []domain.Event) bool {
	rx, ok := domain.Latest(events, domain.KindPrescriptionReceived)
	if !ok {
		return false
	}
	buy, ok := domain.Latest(events, domain.KindPurchase)
	return !ok || buy.Timestamp.Before(rx.Timestamp)
}
