package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
)

// Store is the persistence the ledger needs. *store.Store satisfies it.
type Store interface {
	FetchEvent(ctx context.Context, operationID string) (domain.Event, error)
	FetchReversal(ctx context.Context, operationID string) (domain.Event, error)
	AppendEvent(ctx context.Context, ev domain.Event, stockDelta float64) (bool, error)
	GetPackage(ctx context.Context, id string) (domain.Package, error)
}

// Request describes one recordable action.
type Request struct {
	OperationID string
	MedicineID  string
	PackageID   string
	TherapyID   string
	// Quantity is packs for purchases and units otherwise. Zero means 1 for
	// intakes and purchases.
	Quantity float64
	// At defaults to the service clock.
	At time.Time
}

// Result is the outcome of a recording or undo use case.
type Result struct {
	Event     domain.Event
	Duplicate bool // the operation id was already recorded; nothing was written
}

// Service runs the ledger use cases against a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service.
func New(st Store, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordIntake records units taken.
func (s *Service) RecordIntake(ctx context.Context, req Request) (Result, error) {
	return s.record(ctx, domain.KindIntake, req)
}

// RecordPurchase records packs bought.
func (s *Service) RecordPurchase(ctx context.Context, req Request) (Result, error) {
	return s.record(ctx, domain.KindPurchase, req)
}

// RecordPrescriptionRequest records that a prescription was asked for.
func (s *Service) RecordPrescriptionRequest(ctx context.Context, req Request) (Result, error) {
	return s.record(ctx, domain.KindPrescriptionRequest, req)
}

// RecordPrescriptionReceived records that a prescription arrived.
func (s *Service) RecordPrescriptionReceived(ctx context.Context, req Request) (Result, error) {
	return s.record(ctx, domain.KindPrescriptionReceived, req)
}

// RecordStockAdjustment removes Quantity units (negative adds them back).
func (s *Service) RecordStockAdjustment(ctx context.Context, req Request) (Result, error) {
	return s.record(ctx, domain.KindStockAdjustment, req)
}

func (s *Service) record(ctx context.Context, kind domain.EventKind, req Request) (Result, error) {
	if req.OperationID == "" {
		return Result{}, newError(ErrCodeInvalid, "", "operation id is required")
	}
	if req.MedicineID == "" {
		return Result{}, newError(ErrCodeInvalid, req.OperationID, "medicine id is required")
	}

	if prior, ok, err := s.prior(ctx, req.OperationID, kind); err != nil || ok {
		return prior, err
	}

	ev := domain.Event{
		OperationID: req.OperationID,
		Kind:        kind,
		Timestamp:   req.At,
		MedicineID:  req.MedicineID,
		PackageID:   req.PackageID,
		TherapyID:   req.TherapyID,
		Quantity:    req.Quantity,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	switch kind {
	case domain.KindIntake, domain.KindPurchase:
		if ev.Quantity == 0 {
			ev.Quantity = 1
		}
		if ev.Quantity < 0 {
			return Result{}, newError(ErrCodeInvalid, req.OperationID, "%s quantity must be positive", kind)
		}
	case domain.KindStockAdjustment:
		if ev.Quantity == 0 {
			return Result{}, newError(ErrCodeInvalid, req.OperationID, "stock adjustment needs a non-zero quantity")
		}
	default:
		ev.Quantity = 0
	}

	units, err := s.packUnits(ctx, ev)
	if err != nil {
		return Result{}, err
	}

	return s.append(ctx, ev, ev.StockDelta(units))
}

// Undo appends a reversal of targetID under undoOperationID. Replaying the
// same undoOperationID returns the prior reversal as a duplicate.
func (s *Service) Undo(ctx context.Context, targetID, undoOperationID string) (Result, error) {
	if targetID == "" || undoOperationID == "" {
		return Result{}, newError(ErrCodeInvalid, undoOperationID, "target and undo operation ids are required")
	}

	if prior, err := s.store.FetchEvent(ctx, undoOperationID); err == nil {
		if prior.ReversalOf != targetID {
			return Result{}, newError(ErrCodeConflict, undoOperationID, "already used for %s", prior.Kind)
		}
		return Result{Event: prior, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("undo %s: %w", targetID, err)
	}

	target, err := s.store.FetchEvent(ctx, targetID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, newError(ErrCodeNotFound, targetID, "nothing to undo")
	}
	if err != nil {
		return Result{}, fmt.Errorf("undo %s: %w", targetID, err)
	}

	undoKind, ok := domain.UndoKind(target.Kind)
	if !ok {
		return Result{}, newError(ErrCodeNotUndoable, targetID, "%s events cannot be undone", target.Kind)
	}

	if _, err := s.store.FetchReversal(ctx, targetID); err == nil {
		return Result{}, newError(ErrCodeAlreadyReversed, targetID, "already reversed")
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("undo %s: %w", targetID, err)
	}

	rev := domain.Event{
		OperationID: undoOperationID,
		Kind:        undoKind,
		Timestamp:   s.now(),
		MedicineID:  target.MedicineID,
		PackageID:   target.PackageID,
		TherapyID:   target.TherapyID,
		ReversalOf:  targetID,
		Quantity:    target.Quantity,
	}
	units, err := s.packUnits(ctx, rev)
	if err != nil {
		return Result{}, err
	}

	res, err := s.append(ctx, rev, rev.StockDelta(units))
	if err != nil {
		return Result{}, err
	}
	if res.Duplicate && res.Event.OperationID != undoOperationID {
		// A concurrent undo under another id won the reversal slot.
		return Result{}, newError(ErrCodeAlreadyReversed, targetID, "already reversed")
	}
	return res, nil
}

// prior returns the stored event for operationID when it exists.
func (s *Service) prior(ctx context.Context, operationID string, kind domain.EventKind) (Result, bool, error) {
	ev, err := s.store.FetchEvent(ctx, operationID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("record %s %s: %w", kind, operationID, err)
	}
	if ev.Kind != kind {
		return Result{}, false, newError(ErrCodeConflict, operationID, "already recorded as %s", ev.Kind)
	}
	slog.DebugContext(ctx, "operation already recorded (idempotent)",
		"operation_id", operationID,
		"kind", kind,
	)
	return Result{Event: ev, Duplicate: true}, true, nil
}

// packUnits resolves units per pack for purchase events. Other kinds do not
// need it and tolerate a missing package.
func (s *Service) packUnits(ctx context.Context, ev domain.Event) (int, error) {
	if ev.Kind != domain.KindPurchase && ev.Kind != domain.KindPurchaseUndo {
		return 0, nil
	}
	if ev.PackageID == "" {
		return 0, newError(ErrCodeInvalid, ev.OperationID, "purchase needs a package")
	}
	pkg, err := s.store.GetPackage(ctx, ev.PackageID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, newError(ErrCodeInvalid, ev.OperationID, "unknown package %s", ev.PackageID)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve package %s: %w", ev.PackageID, err)
	}
	return pkg.Units, nil
}

// append writes ev. When the store reports a conflict (a concurrent caller
// won), the stored winner is returned as a duplicate.
func (s *Service) append(ctx context.Context, ev domain.Event, delta float64) (Result, error) {
	inserted, err := s.store.AppendEvent(ctx, ev, delta)
	if err != nil {
		slog.ErrorContext(ctx, "ledger append failed",
			"operation_id", ev.OperationID,
			"kind", ev.Kind,
			"error", err,
		)
		return Result{}, fmt.Errorf("record %s %s: %w", ev.Kind, ev.OperationID, err)
	}
	if inserted {
		slog.InfoContext(ctx, "ledger event recorded",
			"operation_id", ev.OperationID,
			"kind", ev.Kind,
			"medicine_id", ev.MedicineID,
			"stock_delta", delta,
		)
		return Result{Event: ev}, nil
	}

	winner, err := s.store.FetchEvent(ctx, ev.OperationID)
	if err == nil {
		if winner.Kind != ev.Kind {
			return Result{}, newError(ErrCodeConflict, ev.OperationID, "already recorded as %s", winner.Kind)
		}
		return Result{Event: winner, Duplicate: true}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("record %s %s: %w", ev.Kind, ev.OperationID, err)
	}
	if ev.ReversalOf != "" {
		other, err := s.store.FetchReversal(ctx, ev.ReversalOf)
		if err != nil {
			return Result{}, fmt.Errorf("record %s %s: %w", ev.Kind, ev.OperationID, err)
		}
		return Result{Event: other, Duplicate: true}, nil
	}
	return Result{}, fmt.Errorf("record %s %s: insert ignored without a stored winner", ev.Kind, ev.OperationID)
}
