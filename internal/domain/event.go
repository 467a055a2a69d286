package domain

import "time"

// EventKind discriminates stock ledger events.
type EventKind string

const (
	KindPurchase                 EventKind = "purchase"
	KindIntake                   EventKind = "intake"
	KindIntakeUndo               EventKind = "intake_undo"
	KindPurchaseUndo             EventKind = "purchase_undo"
	KindStockAdjustment          EventKind = "stock_adjustment"
	KindPrescriptionRequest      EventKind = "prescription_request"
	KindPrescriptionReceived     EventKind = "prescription_received"
	KindPrescriptionReceivedUndo EventKind = "prescription_received_undo"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case KindPurchase, KindIntake, KindIntakeUndo, KindPurchaseUndo, KindStockAdjustment,
		KindPrescriptionRequest, KindPrescriptionReceived, KindPrescriptionReceivedUndo:
		return true
	}
	return false
}

// IsReversal reports whether k voids an earlier event.
func (k EventKind) IsReversal() bool {
	return k == KindIntakeUndo || k == KindPurchaseUndo || k == KindPrescriptionReceivedUndo
}

// UndoKind returns the reversal kind for k. Only intake, purchase and
// prescription_received can be undone.
func UndoKind(k EventKind) (EventKind, bool) {
	switch k {
	case KindIntake:
		return KindIntakeUndo, true
	case KindPurchase:
		return KindPurchaseUndo, true
	case KindPrescriptionReceived:
		return KindPrescriptionReceivedUndo, true
	}
	return "", false
}

// Event is one atomic, append-only stock ledger entry.
//
// Quantity is the number of packs for purchases and the number of units for
// intakes and stock adjustments. Reversal events copy the quantity of the
// event they void.
type Event struct {
	OperationID string    `json:"operationId"`
	Kind        EventKind `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	MedicineID  string    `json:"medicineId"`
	PackageID   string    `json:"packageId,omitempty"`
	TherapyID   string    `json:"therapyId,omitempty"`
	ReversalOf  string    `json:"reversalOf,omitempty"`
	Quantity    float64   `json:"quantity"`
	Synced      bool      `json:"synced,omitempty"`
}

// StockDelta returns the signed change in units this event applies to the
// package stock, given the units per pack.
func (e Event) StockDelta(packUnits int) float64 {
	switch e.Kind {
	case KindPurchase:
		return e.Quantity * float64(packUnits)
	case KindPurchaseUndo:
		return -e.Quantity * float64(packUnits)
	case KindIntake, KindStockAdjustment:
		return -e.Quantity
	case KindIntakeUndo:
		return e.Quantity
	}
	return 0
}

// ReversedIDs returns the set of operation ids voided by a reversal event.
func ReversedIDs(events []Event) map[string]bool {
	out := make(map[string]bool)
	for _, e := range events {
		if e.ReversalOf != "" {
			out[e.ReversalOf] = true
		}
	}
	return out
}

// Effective returns the events of kind k that have not been reversed, in
// input order.
func Effective(events []Event, k EventKind) []Event {
	reversed := ReversedIDs(events)
	out := []Event{}
	for _, e := range events {
		if e.Kind == k && !reversed[e.OperationID] {
			out = append(out, e)
		}
	}
	return out
}

// Latest returns the most recent effective event of kind k.
func Latest(events []Event, k EventKind) (Event, bool) {
	var (
		best  Event
		found bool
	)
	for _, e := range Effective(events, k) {
		if !found || e.Timestamp.After(best.Timestamp) {
			best, found = e, true
		}
	}
	return best, found
}
