package store

import (
	"context"
	"fmt"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

// AppendEvent inserts a ledger event and applies stockDelta to the
// (medicine, package) stock row in one transaction.
//
// Returns inserted=false, with no stock change, when an event with the same
// operation id already exists or, for reversals, when the target operation
// has already been reversed. Any failure rolls back both writes.
func (s *Store) AppendEvent(ctx context.Context, ev domain.Event, stockDelta float64) (inserted bool, err error) {
	if ev.OperationID == "" {
		return false, fmt.Errorf("append event: empty operation id")
	}
	if !ev.Kind.Valid() {
		return false, fmt.Errorf("append event %s: unknown kind %q", ev.OperationID, ev.Kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("append event: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// Claims the operation id (and reversal target) atomically via the
	// unique constraints.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(operation_id, kind, ts, medicine_id, package_id, therapy_id, reversal_of, quantity, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT DO NOTHING
	`,
		ev.OperationID,
		string(ev.Kind),
		toUnixNano(ev.Timestamp),
		ev.MedicineID,
		ev.PackageID,
		ev.TherapyID,
		nullString(ev.ReversalOf),
		ev.Quantity,
	)
	if err != nil {
		return false, fmt.Errorf("append event %s: insert: %w", ev.OperationID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append event %s: rows affected: %w", ev.OperationID, err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if stockDelta != 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock (medicine_id, package_id, units) VALUES (?, ?, ?)
			ON CONFLICT(medicine_id, package_id) DO UPDATE SET units = units + excluded.units
		`, ev.MedicineID, ev.PackageID, stockDelta)
		if err != nil {
			return false, fmt.Errorf("append event %s: update stock: %w", ev.OperationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("append event %s: commit: %w", ev.OperationID, err)
	}
	return true, nil
}

// MarkSynced flags events as exported. Unknown ids are ignored.
func (s *Store) MarkSynced(ctx context.Context, operationIDs []string) error {
	if len(operationIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark synced: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE events SET synced = 1 WHERE operation_id = ?`)
	if err != nil {
		return fmt.Errorf("mark synced: prepare: %w", err)
	}
	defer stmt.Close()

	for _, id := range operationIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("mark synced %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark synced: commit: %w", err)
	}
	return nil
}
