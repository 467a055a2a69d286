// Package notify plans locally scheduled reminders: dose reminders within a
// horizon, low/out stock projections, immediate stock alerts with a
// cooldown, and alarm-mode series expansion.
package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/forecast"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/keystore"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/recurrence"
)

const (
	DefaultHorizon         = 24 * time.Hour
	DefaultIntakeTolerance = time.Hour
	DefaultCooldown        = 48 * time.Hour
	DefaultMaxPending      = 60
	DefaultSnoozeMinutes   = 10
)

// Origin says why a reminder exists.
type Origin string

const (
	OriginDose      Origin = "dose"
	OriginScheduled Origin = "scheduled" // projected stock threshold crossing
	OriginImmediate Origin = "immediate" // stock already below threshold
)

// Kind distinguishes stock reminders.
type Kind string

const (
	KindDose     Kind = "dose"
	KindStockLow Kind = "stockLow"
	KindStockOut Kind = "stockOut"
)

// Candidate is one reminder before rendering.
type Candidate struct {
	ID         string    `json:"id"`
	Origin     Origin    `json:"origin"`
	Kind       Kind      `json:"kind"`
	MedicineID string    `json:"medicineId"`
	TherapyID  string    `json:"therapyId,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	FireAt     time.Time `json:"fireAt"`
}

// Options configures planning and rendering.
type Options struct {
	Level           Level
	Horizon         time.Duration
	IntakeTolerance time.Duration
	Cooldown        time.Duration
	MaxPending      int
	SnoozeMinutes   int
	ThresholdDays   int
	Location        *time.Location
}

func (o Options) withDefaults() Options {
	if o.Level == "" {
		o.Level = LevelNormal
	}
	if o.Horizon <= 0 {
		o.Horizon = DefaultHorizon
	}
	if o.IntakeTolerance <= 0 {
		o.IntakeTolerance = DefaultIntakeTolerance
	}
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.MaxPending <= 0 {
		o.MaxPending = DefaultMaxPending
	}
	if o.SnoozeMinutes <= 0 {
		o.SnoozeMinutes = DefaultSnoozeMinutes
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Plan is the rendered, capped set of requests for one planning pass.
type Plan struct {
	Candidates []Candidate `json:"candidates"`
	Requests   []Request   `json:"requests"`
	Dropped    int         `json:"dropped"` // requests cut by the pending cap
}

// Planner computes reminder plans. The cooldown store remembers immediate
// stock alerts per medicine.
type Planner struct {
	cooldown keystore.Store
	opts     Options
}

// NewPlanner creates a planner.
func NewPlanner(cooldown keystore.Store, opts Options) *Planner {
	return &Planner{cooldown: cooldown, opts: opts.withDefaults()}
}

// Options returns the effective options.
func (p *Planner) Options() Options {
	return p.opts
}

// Plan recomputes every reminder from scratch at now.
func (p *Planner) Plan(ctx context.Context, snaps []domain.MedicineSnapshot, now time.Time) (Plan, error) {
	candidates := []Candidate{}
	for _, snap := range snaps {
		candidates = append(candidates, DoseCandidates(snap, now, p.opts)...)

		stock, err := p.stockCandidates(ctx, snap, now)
		if err != nil {
			return Plan{}, err
		}
		candidates = append(candidates, stock...)
	}

	requests := []Request{}
	for _, c := range candidates {
		requests = append(requests, Render(c, p.opts.Level)...)
	}
	kept, dropped := Cap(requests, p.opts.MaxPending)
	return Plan{Candidates: candidates, Requests: kept, Dropped: dropped}, nil
}

// DoseCandidates lists one reminder per due dose in (now, now+horizon],
// skipping doses with an intake logged within the tolerance and deleted
// therapies.
func DoseCandidates(snap domain.MedicineSnapshot, now time.Time, opts Options) []Candidate {
	opts = opts.withDefaults()
	out := []Candidate{}
	active := snap.ActiveTherapies()
	intakes := domain.Effective(snap.Events, domain.KindIntake)

	for _, t := range active {
		sched := recurrence.ForTherapy(t, opts.Location)
		for _, occ := range sched.Between(now.Add(time.Nanosecond), now.Add(opts.Horizon+time.Nanosecond)) {
			if loggedNear(intakes, t.ID, len(active) == 1, occ.At, opts.IntakeTolerance) {
				continue
			}
			out = append(out, Candidate{
				ID:         fmt.Sprintf("dose|%s|%d", t.ID, occ.At.Unix()),
				Origin:     OriginDose,
				Kind:       KindDose,
				MedicineID: snap.Medicine.ID,
				TherapyID:  t.ID,
				Title:      snap.Medicine.Name,
				Body:       fmt.Sprintf("Take %s at %s", amountText(snap, t, occ.Dose.Amount), occ.At.In(opts.Location).Format("15:04")),
				FireAt:     occ.At,
			})
		}
	}
	return out
}

func loggedNear(intakes []domain.Event, therapyID string, single bool, at time.Time, tolerance time.Duration) bool {
	for _, e := range intakes {
		if e.TherapyID != therapyID && !(e.TherapyID == "" && single) {
			continue
		}
		d := e.Timestamp.Sub(at)
		if d < 0 {
			d = -d
		}
		if d <= tolerance {
			return true
		}
	}
	return false
}

func amountText(snap domain.MedicineSnapshot, t domain.Therapy, amount float64) string {
	label := "unit"
	if pkg, ok := snap.PackageFor(t); ok {
		label = pkg.Label()
	}
	if amount == float64(int64(amount)) {
		return fmt.Sprintf("%d %s", int64(amount), label)
	}
	return fmt.Sprintf("%.1f %s", amount, label)
}

// stockCandidates emits the scheduled out reminder and, for a medicine not
// yet short, the scheduled low reminder. A short medicine gets an immediate
// alert instead of the low reminder, unless one was committed within the
// cooldown. Planning only reads the cooldown; Commit writes it.
func (p *Planner) stockCandidates(ctx context.Context, snap domain.MedicineSnapshot, now time.Time) ([]Candidate, error) {
	m := snap.Medicine
	f := forecast.Medicine(snap, now, forecast.Options{ThresholdDays: p.opts.ThresholdDays, Location: p.opts.Location})
	out := []Candidate{}

	if f.NeedsAttention() {
		_, cooling, err := p.cooldown.Get(ctx, CooldownKey(m.ID))
		if err != nil {
			return nil, fmt.Errorf("stock cooldown %s: %w", m.ID, err)
		}
		if !cooling {
			body := fmt.Sprintf("%s left", f.AutonomyText())
			if f.Depleted {
				body = "Out of stock"
			}
			out = append(out, Candidate{
				ID:         "stock|immediate|" + m.ID,
				Origin:     OriginImmediate,
				Kind:       KindStockLow,
				MedicineID: m.ID,
				Title:      fmt.Sprintf("%s is running low", m.Name),
				Body:       body,
				FireAt:     now,
			})
		}
	} else if f.LowAt != nil && f.LowAt.After(now) {
		out = append(out, Candidate{
			ID:         fmt.Sprintf("stock|low|%s", m.ID),
			Origin:     OriginScheduled,
			Kind:       KindStockLow,
			MedicineID: m.ID,
			Title:      fmt.Sprintf("%s is running low", m.Name),
			Body:       fmt.Sprintf("%d days of stock left", f.Threshold),
			FireAt:     *f.LowAt,
		})
	}

	if f.OutAt != nil && f.OutAt.After(now) {
		out = append(out, Candidate{
			ID:         fmt.Sprintf("stock|out|%s", m.ID),
			Origin:     OriginScheduled,
			Kind:       KindStockOut,
			MedicineID: m.ID,
			Title:      fmt.Sprintf("%s has run out", m.Name),
			Body:       "Buy a new package",
			FireAt:     *f.OutAt,
		})
	}
	return out, nil
}

// Commit starts the cooldown for every immediate alert in an applied plan.
// Call it only after the plan has been materialized.
func (p *Planner) Commit(ctx context.Context, plan Plan, now time.Time) error {
	for _, r := range plan.Requests {
		if r.Origin != OriginImmediate {
			continue
		}
		medicineID := r.UserInfo[InfoMedicine]
		if err := p.cooldown.Set(ctx, CooldownKey(medicineID), now.UTC().Format(time.RFC3339), p.opts.Cooldown); err != nil {
			return fmt.Errorf("stock cooldown %s: %w", medicineID, err)
		}
	}
	return nil
}

// CooldownKey is the key-store key guarding immediate stock alerts.
func CooldownKey(medicineID string) string {
	return "stock-alert|" + medicineID
}

// Cap keeps at most max requests: immediate stock alerts first, then by
// ascending fire time.
func Cap(requests []Request, max int) ([]Request, int) {
	sorted := make([]Request, len(requests))
	copy(sorted, requests)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		ai, bi := a.Origin == OriginImmediate, b.Origin == OriginImmediate
		if ai != bi {
			return ai
		}
		if !a.FireAt.Equal(b.FireAt) {
			return a.FireAt.Before(b.FireAt)
		}
		return a.ID < b.ID
	})
	if max <= 0 || len(sorted) <= max {
		return sorted, 0
	}
	return sorted[:max], len(sorted) - max
}
