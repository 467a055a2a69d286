package store

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// StockDrift is one (medicine, package) whose stored stock disagrees with
// the ledger replay.
type StockDrift struct {
	MedicineID string
	PackageID  string
	Stored     float64
	Replayed   float64
}

// ReplayReport summarizes a ledger replay.
type ReplayReport struct {
	Events int
	Rows   int
	Drift  []StockDrift
}

// Consistent reports whether stored stock matched the replay.
func (r ReplayReport) Consistent() bool {
	return len(r.Drift) == 0
}

type stockKey struct{ medicine, pkg string }

// ReplayStock recomputes derived stock from the full ledger and compares it
// with the stock table. When repair is true the stock table is rewritten
// from the replay in the same transaction.
func (s *Store) ReplayStock(ctx context.Context, repair bool) (ReplayReport, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay stock: begin tx: %w", err)
	}
	defer tx.Rollback()

	units := make(map[string]int)
	pkgRows, err := tx.QueryContext(ctx, `SELECT id, units FROM packages`)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay stock: query packages: %w", err)
	}
	for pkgRows.Next() {
		var id string
		var n int
		if err := pkgRows.Scan(&id, &n); err != nil {
			pkgRows.Close()
			return ReplayReport{}, fmt.Errorf("replay stock: scan package: %w", err)
		}
		units[id] = n
	}
	pkgRows.Close()

	evRows, err := tx.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY seq ASC`)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay stock: query events: %w", err)
	}
	replayed := make(map[stockKey]float64)
	var report ReplayReport
	for evRows.Next() {
		ev, err := scanEvent(evRows)
		if err != nil {
			evRows.Close()
			return ReplayReport{}, fmt.Errorf("replay stock: scan event: %w", err)
		}
		report.Events++
		if d := ev.StockDelta(units[ev.PackageID]); d != 0 {
			replayed[stockKey{ev.MedicineID, ev.PackageID}] += d
		}
	}
	evRows.Close()

	stored := make(map[stockKey]float64)
	stRows, err := tx.QueryContext(ctx, `SELECT medicine_id, package_id, units FROM stock`)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay stock: query stock: %w", err)
	}
	for stRows.Next() {
		var k stockKey
		var v float64
		if err := stRows.Scan(&k.medicine, &k.pkg, &v); err != nil {
			stRows.Close()
			return ReplayReport{}, fmt.Errorf("replay stock: scan stock: %w", err)
		}
		stored[k] = v
	}
	stRows.Close()

	keys := make(map[stockKey]bool)
	for k := range replayed {
		keys[k] = true
	}
	for k := range stored {
		keys[k] = true
	}
	for k := range keys {
		if math.Abs(stored[k]-replayed[k]) > 1e-9 {
			report.Drift = append(report.Drift, StockDrift{
				MedicineID: k.medicine,
				PackageID:  k.pkg,
				Stored:     stored[k],
				Replayed:   replayed[k],
			})
		}
	}
	sort.Slice(report.Drift, func(i, j int) bool {
		if report.Drift[i].MedicineID != report.Drift[j].MedicineID {
			return report.Drift[i].MedicineID < report.Drift[j].MedicineID
		}
		return report.Drift[i].PackageID < report.Drift[j].PackageID
	})
	report.Rows = len(replayed)

	if !repair || report.Consistent() {
		return report, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stock`); err != nil {
		return ReplayReport{}, fmt.Errorf("replay stock: clear: %w", err)
	}
	for k, v := range replayed {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock (medicine_id, package_id, units) VALUES (?, ?, ?)
		`, k.medicine, k.pkg, v); err != nil {
			return ReplayReport{}, fmt.Errorf("replay stock: write %s/%s: %w", k.medicine, k.pkg, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ReplayReport{}, fmt.Errorf("replay stock: commit: %w", err)
	}
	return report, nil
}
