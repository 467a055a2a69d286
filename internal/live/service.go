package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/ledger"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/notify"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/opkey"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
)

// ErrNothingDue is returned when no dose is eligible for the live surface.
var ErrNothingDue = errors.New("no dose is due")

// Service wires the live surface to the ledger, the snooze table and the
// notification center.
type Service struct {
	store  *store.Store
	ledger *ledger.Service
	center notify.Center
	opts   Options
	now    func() time.Time
}

// NewService creates a live service. now defaults to time.Now.
func NewService(st *store.Store, led *ledger.Service, center notify.Center, opts Options, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, ledger: led, center: center, opts: opts.withDefaults(), now: now}
}

// Plan loads the active snoozes and selects over snaps.
func (s *Service) Plan(ctx context.Context, snaps []domain.MedicineSnapshot) (Plan, error) {
	now := s.now()
	snoozed, err := s.store.ActiveSnoozes(ctx, now)
	if err != nil {
		return Plan{}, fmt.Errorf("live plan: %w", err)
	}
	return Select(snaps, now, snoozed, s.opts), nil
}

// Primary loads the catalog and returns the dose currently on the surface,
// or ErrNothingDue.
func (s *Service) Primary(ctx context.Context) (Candidate, error) {
	snaps, err := s.store.LoadSnapshots(ctx)
	if err != nil {
		return Candidate{}, fmt.Errorf("live primary: %w", err)
	}
	plan, err := s.Plan(ctx, snaps)
	if err != nil {
		return Candidate{}, err
	}
	if plan.Empty() {
		return Candidate{}, ErrNothingDue
	}
	return *plan.Primary, nil
}

// TakenOperationID is the ledger operation id of marking a dose taken, so
// repeated taps from any surface collapse to one intake.
func TakenOperationID(therapyID string, scheduledAt time.Time) string {
	return opkey.Derive("live-taken", therapyID, strconv.FormatInt(scheduledAt.Unix(), 10))
}

// MarkTaken records the candidate's intake. Idempotent per dose.
func (s *Service) MarkTaken(ctx context.Context, c Candidate) (ledger.Result, error) {
	res, err := s.ledger.RecordIntake(ctx, ledger.Request{
		OperationID: TakenOperationID(c.TherapyID, c.ScheduledAt),
		MedicineID:  c.MedicineID,
		PackageID:   c.PackageID,
		TherapyID:   c.TherapyID,
		Quantity:    c.Amount,
		At:          s.now(),
	})
	if err != nil {
		return ledger.Result{}, fmt.Errorf("mark taken %s@%s: %w", c.TherapyID, c.ScheduledAt.Format(time.RFC3339), err)
	}
	slog.InfoContext(ctx, "live dose taken",
		"therapy", c.TherapyID, "scheduled_at", c.ScheduledAt, "duplicate", res.Duplicate)
	return res, nil
}

// FollowUpID is the notification id of the remind-later reminder.
func FollowUpID(therapyID string, scheduledAt time.Time) string {
	return fmt.Sprintf("live|followup|%s|%d", therapyID, store.MinuteBucket(scheduledAt))
}

// RemindLater snoozes the candidate's dose until now+after and schedules
// exactly one follow-up reminder at that instant. Repeating it replaces the
// snooze expiry and the reminder.
func (s *Service) RemindLater(ctx context.Context, c Candidate, after time.Duration) (notify.Request, error) {
	until := s.now().Add(after)
	if err := s.store.PutSnooze(ctx, c.SnoozeKey(), until); err != nil {
		return notify.Request{}, fmt.Errorf("remind later: %w", err)
	}

	req := notify.Request{
		ID:          FollowUpID(c.TherapyID, c.ScheduledAt),
		CandidateID: fmt.Sprintf("dose|%s|%d", c.TherapyID, c.ScheduledAt.Unix()),
		Origin:      notify.OriginDose,
		FireAt:      until,
		Title:       c.MedicineName,
		Body:        fmt.Sprintf("Reminder: take %s", c.DoseText),
		UserInfo: map[string]string{
			notify.InfoOrigin:   "live",
			notify.InfoMedicine: c.MedicineID,
			notify.InfoTherapy:  c.TherapyID,
		},
	}
	if err := s.center.Remove(ctx, req.ID); err != nil {
		return notify.Request{}, fmt.Errorf("remind later: %w", err)
	}
	if err := s.center.Add(ctx, req); err != nil {
		return notify.Request{}, fmt.Errorf("remind later: %w", err)
	}
	slog.InfoContext(ctx, "live dose snoozed", "therapy", c.TherapyID, "until", until)
	return req, nil
}
