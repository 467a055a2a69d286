package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

const metaTodoSyncToken = "todo_sync_token"

// TodoRow is one mirrored Today item keyed by its snapshot source id.
type TodoRow struct {
	SourceID string
	Item     domain.TodoItem
}

// SnapshotDiff reports what SaveTodoSnapshot changed.
type SnapshotDiff struct {
	Skipped  bool // token unchanged, nothing written
	Inserted int
	Updated  int
	Deleted  int
}

// SaveTodoSnapshot mirrors rows into todo_snapshot keyed by SourceID:
// existing ids are updated, unseen ids inserted, and ids not present in
// rows deleted. When token equals the stored token nothing is written. Only
// a digest of the token is kept.
func (s *Store) SaveTodoSnapshot(ctx context.Context, token string, rows []TodoRow) (SnapshotDiff, error) {
	digest := domain.Fingerprint(domain.HashDomainSnapshot, token)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SnapshotDiff{}, fmt.Errorf("save todo snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	stored, ok, err := s.getMeta(ctx, tx, metaTodoSyncToken)
	if err != nil {
		return SnapshotDiff{}, err
	}
	if ok && stored == digest {
		return SnapshotDiff{Skipped: true}, nil
	}

	existing, err := todoSourceIDs(ctx, tx)
	if err != nil {
		return SnapshotDiff{}, err
	}

	var diff SnapshotDiff
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if seen[row.SourceID] {
			continue
		}
		seen[row.SourceID] = true

		var due sql.NullInt64
		if row.Item.DueAt != nil {
			due = sql.NullInt64{Int64: toUnixNano(*row.Item.DueAt), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO todo_snapshot (source_id, item_id, category, title, detail, medicine_id, due_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_id) DO UPDATE SET
				item_id = excluded.item_id,
				category = excluded.category,
				title = excluded.title,
				detail = excluded.detail,
				medicine_id = excluded.medicine_id,
				due_at = excluded.due_at
		`, row.SourceID, row.Item.ID, string(row.Item.Category), row.Item.Title, row.Item.Detail,
			row.Item.MedicineID, due)
		if err != nil {
			return SnapshotDiff{}, fmt.Errorf("save todo snapshot %s: %w", row.SourceID, err)
		}
		if existing[row.SourceID] {
			diff.Updated++
		} else {
			diff.Inserted++
		}
	}

	for id := range existing {
		if seen[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM todo_snapshot WHERE source_id = ?`, id); err != nil {
			return SnapshotDiff{}, fmt.Errorf("save todo snapshot: delete %s: %w", id, err)
		}
		diff.Deleted++
	}

	if err := s.setMeta(ctx, tx, metaTodoSyncToken, digest); err != nil {
		return SnapshotDiff{}, err
	}
	if err := tx.Commit(); err != nil {
		return SnapshotDiff{}, fmt.Errorf("save todo snapshot: commit: %w", err)
	}
	return diff, nil
}

// ReadTodoSnapshot returns the mirrored rows ordered by source id.
func (s *Store) ReadTodoSnapshot(ctx context.Context) ([]TodoRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, item_id, category, title, detail, medicine_id, due_at
		FROM todo_snapshot ORDER BY source_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query todo snapshot: %w", err)
	}
	defer rows.Close()

	out := []TodoRow{}
	for rows.Next() {
		var (
			row      TodoRow
			category string
			due      sql.NullInt64
		)
		if err := rows.Scan(&row.SourceID, &row.Item.ID, &category, &row.Item.Title,
			&row.Item.Detail, &row.Item.MedicineID, &due); err != nil {
			return nil, fmt.Errorf("scan todo snapshot: %w", err)
		}
		row.Item.Category = domain.Category(category)
		if due.Valid {
			t := fromUnixNano(due.Int64)
			row.Item.DueAt = &t
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todo snapshot: %w", err)
	}
	return out, nil
}

func todoSourceIDs(ctx context.Context, q queryer) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT source_id FROM todo_snapshot`)
	if err != nil {
		return nil, fmt.Errorf("query todo source ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan todo source id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
