package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

const eventColumns = `operation_id, kind, ts, medicine_id, package_id, therapy_id, reversal_of, quantity, synced`

// EventExists reports whether an event with the operation id is stored.
func (s *Store) EventExists(ctx context.Context, operationID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE operation_id = ?`, operationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("event exists %s: %w", operationID, err)
	}
	return true, nil
}

// FetchEvent returns the event with the operation id, or ErrNotFound.
func (s *Store) FetchEvent(ctx context.Context, operationID string) (domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE operation_id = ?`, operationID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, fmt.Errorf("fetch event %s: %w", operationID, ErrNotFound)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("fetch event %s: %w", operationID, err)
	}
	return ev, nil
}

// FetchReversal returns the event reversing operationID, or ErrNotFound.
func (s *Store) FetchReversal(ctx context.Context, operationID string) (domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE reversal_of = ?`, operationID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, fmt.Errorf("fetch reversal of %s: %w", operationID, ErrNotFound)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("fetch reversal of %s: %w", operationID, err)
	}
	return ev, nil
}

// HasReversal reports whether a reversal event references operationID.
func (s *Store) HasReversal(ctx context.Context, operationID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE reversal_of = ?`, operationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has reversal %s: %w", operationID, err)
	}
	return true, nil
}

// EventsForMedicine returns the medicine's ledger ordered by time, then
// insertion order. Returns an empty slice (not nil) when there are none.
func (s *Store) EventsForMedicine(ctx context.Context, medicineID string) ([]domain.Event, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE medicine_id = ?
		ORDER BY ts ASC, seq ASC
	`, medicineID)
}

// AllEvents returns the full ledger ordered by insertion.
func (s *Store) AllEvents(ctx context.Context) ([]domain.Event, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events ORDER BY seq ASC`)
}

// FetchUnsynced returns up to limit events not yet marked synced, oldest
// first. A non-positive limit returns all of them.
func (s *Store) FetchUnsynced(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE synced = 0
		ORDER BY seq ASC
		LIMIT ?
	`, limit)
}

// CountEvents returns the number of ledger rows, reversals included.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Stock returns the derived units for one (medicine, package) pair.
// Missing rows read as 0.
func (s *Store) Stock(ctx context.Context, medicineID, packageID string) (float64, error) {
	var units float64
	err := s.db.QueryRowContext(ctx, `
		SELECT units FROM stock WHERE medicine_id = ? AND package_id = ?
	`, medicineID, packageID).Scan(&units)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stock %s/%s: %w", medicineID, packageID, err)
	}
	return units, nil
}

// MedicineStock sums the derived units across all of a medicine's packages.
func (s *Store) MedicineStock(ctx context.Context, medicineID string) (float64, error) {
	var units sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(units) FROM stock WHERE medicine_id = ?`, medicineID).Scan(&units)
	if err != nil {
		return 0, fmt.Errorf("medicine stock %s: %w", medicineID, err)
	}
	return units.Float64, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (domain.Event, error) {
	var (
		ev         domain.Event
		kind       string
		ts         int64
		reversalOf sql.NullString
		synced     int
	)
	if err := r.Scan(
		&ev.OperationID,
		&kind,
		&ts,
		&ev.MedicineID,
		&ev.PackageID,
		&ev.TherapyID,
		&reversalOf,
		&ev.Quantity,
		&synced,
	); err != nil {
		return domain.Event{}, err
	}
	ev.Kind = domain.EventKind(kind)
	ev.Timestamp = fromUnixNano(ts)
	ev.ReversalOf = reversalOf.String
	ev.Synced = synced != 0
	return ev, nil
}
