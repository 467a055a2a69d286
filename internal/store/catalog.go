package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

// UpsertMedicine inserts or replaces a medicine row. Packages and therapies
// are written separately.
func (s *Store) UpsertMedicine(ctx context.Context, m domain.Medicine) error {
	return upsertMedicine(ctx, s.db, m)
}

func upsertMedicine(ctx context.Context, q queryer, m domain.Medicine) error {
	var month, year sql.NullInt64
	if m.Deadline != nil {
		month = sql.NullInt64{Int64: int64(m.Deadline.Month), Valid: true}
		year = sql.NullInt64{Int64: int64(m.Deadline.Year), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO medicines (id, name, requires_prescription, stock_threshold, deadline_month, deadline_year)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			requires_prescription = excluded.requires_prescription,
			stock_threshold = excluded.stock_threshold,
			deadline_month = excluded.deadline_month,
			deadline_year = excluded.deadline_year
	`, m.ID, m.Name, boolToInt(m.RequiresPrescription), m.StockThreshold, month, year)
	if err != nil {
		return fmt.Errorf("upsert medicine %s: %w", m.ID, err)
	}
	return nil
}

// UpsertPackage inserts or replaces a package row.
func (s *Store) UpsertPackage(ctx context.Context, p domain.Package) error {
	return upsertPackage(ctx, s.db, p)
}

func upsertPackage(ctx context.Context, q queryer, p domain.Package) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO packages (id, medicine_id, units, unit_label)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			medicine_id = excluded.medicine_id,
			units = excluded.units,
			unit_label = excluded.unit_label
	`, p.ID, p.MedicineID, p.Units, p.UnitLabel)
	if err != nil {
		return fmt.Errorf("upsert package %s: %w", p.ID, err)
	}
	return nil
}

// UpsertTherapy inserts or replaces a therapy row, last writer wins.
func (s *Store) UpsertTherapy(ctx context.Context, t domain.Therapy) error {
	return upsertTherapy(ctx, s.db, t)
}

func upsertTherapy(ctx context.Context, q queryer, t domain.Therapy) error {
	doses, err := marshalDoses(t.Doses)
	if err != nil {
		return fmt.Errorf("upsert therapy %s: %w", t.ID, err)
	}
	clinical, err := marshalClinical(t.Clinical)
	if err != nil {
		return fmt.Errorf("upsert therapy %s: %w", t.ID, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO therapies
		(id, medicine_id, package_id, person_id, external_key, start_date, rule, doses, manual_registration, clinical, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			medicine_id = excluded.medicine_id,
			package_id = excluded.package_id,
			person_id = excluded.person_id,
			external_key = excluded.external_key,
			start_date = excluded.start_date,
			rule = excluded.rule,
			doses = excluded.doses,
			manual_registration = excluded.manual_registration,
			clinical = excluded.clinical,
			deleted = excluded.deleted
	`,
		t.ID, t.MedicineID, t.PackageID, t.PersonID, t.ExternalKey,
		toUnixNano(t.StartDate), t.Rule, doses, boolToInt(t.ManualRegistration),
		clinical, boolToInt(t.Deleted),
	)
	if err != nil {
		return fmt.Errorf("upsert therapy %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTherapy soft-deletes a therapy. Its events stay in the ledger.
func (s *Store) DeleteTherapy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE therapies SET deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete therapy %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete therapy %s: %w", id, ErrNotFound)
	}
	return nil
}

// ImportSnapshot writes a medicine with its packages and therapies in one
// transaction. Ledger events in the snapshot are ignored.
func (s *Store) ImportSnapshot(ctx context.Context, snap domain.MedicineSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import %s: begin tx: %w", snap.Medicine.ID, err)
	}
	defer tx.Rollback()

	if err := upsertMedicine(ctx, tx, snap.Medicine); err != nil {
		return err
	}
	for _, p := range snap.Packages {
		if err := upsertPackage(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, t := range snap.Therapies {
		if err := upsertTherapy(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import %s: commit: %w", snap.Medicine.ID, err)
	}
	return nil
}

// GetMedicine returns one medicine row, or ErrNotFound.
func (s *Store) GetMedicine(ctx context.Context, id string) (domain.Medicine, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, requires_prescription, stock_threshold, deadline_month, deadline_year
		FROM medicines WHERE id = ?
	`, id)
	m, err := scanMedicine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Medicine{}, fmt.Errorf("get medicine %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Medicine{}, fmt.Errorf("get medicine %s: %w", id, err)
	}
	return m, nil
}

// GetPackage returns one package row, or ErrNotFound.
func (s *Store) GetPackage(ctx context.Context, id string) (domain.Package, error) {
	var p domain.Package
	err := s.db.QueryRowContext(ctx, `
		SELECT id, medicine_id, units, unit_label FROM packages WHERE id = ?
	`, id).Scan(&p.ID, &p.MedicineID, &p.Units, &p.UnitLabel)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Package{}, fmt.Errorf("get package %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Package{}, fmt.Errorf("get package %s: %w", id, err)
	}
	return p, nil
}

// LoadSnapshots reads every medicine with its packages, therapies (deleted
// ones included) and ledger events, ordered by medicine id.
func (s *Store) LoadSnapshots(ctx context.Context) ([]domain.MedicineSnapshot, error) {
	medicines, err := s.listMedicines(ctx)
	if err != nil {
		return nil, err
	}
	snaps := make([]domain.MedicineSnapshot, 0, len(medicines))
	index := make(map[string]int, len(medicines))
	for i, m := range medicines {
		snaps = append(snaps, domain.MedicineSnapshot{
			Medicine:  m,
			Packages:  []domain.Package{},
			Therapies: []domain.Therapy{},
			Events:    []domain.Event{},
		})
		index[m.ID] = i
	}

	packages, err := s.listPackages(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range packages {
		if i, ok := index[p.MedicineID]; ok {
			snaps[i].Packages = append(snaps[i].Packages, p)
		}
	}

	therapies, err := s.listTherapies(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range therapies {
		if i, ok := index[t.MedicineID]; ok {
			snaps[i].Therapies = append(snaps[i].Therapies, t)
		}
	}

	events, err := s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events ORDER BY ts ASC, seq ASC`)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if i, ok := index[ev.MedicineID]; ok {
			snaps[i].Events = append(snaps[i].Events, ev)
		}
	}
	return snaps, nil
}

// LoadSnapshot reads one medicine's snapshot, or ErrNotFound.
func (s *Store) LoadSnapshot(ctx context.Context, medicineID string) (domain.MedicineSnapshot, error) {
	snaps, err := s.LoadSnapshots(ctx)
	if err != nil {
		return domain.MedicineSnapshot{}, err
	}
	for _, snap := range snaps {
		if snap.Medicine.ID == medicineID {
			return snap, nil
		}
	}
	return domain.MedicineSnapshot{}, fmt.Errorf("load snapshot %s: %w", medicineID, ErrNotFound)
}

func (s *Store) listMedicines(ctx context.Context) ([]domain.Medicine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, requires_prescription, stock_threshold, deadline_month, deadline_year
		FROM medicines ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}
	defer rows.Close()

	out := []domain.Medicine{}
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medicine: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medicines: %w", err)
	}
	return out, nil
}

func (s *Store) listPackages(ctx context.Context) ([]domain.Package, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, medicine_id, units, unit_label FROM packages ORDER BY medicine_id ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer rows.Close()

	out := []domain.Package{}
	for rows.Next() {
		var p domain.Package
		if err := rows.Scan(&p.ID, &p.MedicineID, &p.Units, &p.UnitLabel); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate packages: %w", err)
	}
	return out, nil
}

func (s *Store) listTherapies(ctx context.Context) ([]domain.Therapy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, medicine_id, package_id, person_id, external_key, start_date, rule, doses,
		       manual_registration, clinical, deleted
		FROM therapies ORDER BY medicine_id ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query therapies: %w", err)
	}
	defer rows.Close()

	out := []domain.Therapy{}
	for rows.Next() {
		var (
			t               domain.Therapy
			start           int64
			doses           string
			manual, deleted int
			clinical        sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.MedicineID, &t.PackageID, &t.PersonID, &t.ExternalKey,
			&start, &t.Rule, &doses, &manual, &clinical, &deleted); err != nil {
			return nil, fmt.Errorf("scan therapy: %w", err)
		}
		t.StartDate = fromUnixNano(start)
		t.ManualRegistration = manual != 0
		t.Deleted = deleted != 0
		// A corrupt column degrades to "no data" for this therapy only.
		if t.Doses, err = unmarshalDoses(doses); err != nil {
			slog.WarnContext(ctx, "therapy doses unreadable", "therapy_id", t.ID, "error", err)
			t.Doses = []domain.DoseTime{}
		}
		if t.Clinical, err = unmarshalClinical(clinical); err != nil {
			slog.WarnContext(ctx, "therapy clinical rules unreadable", "therapy_id", t.ID, "error", err)
			t.Clinical = nil
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate therapies: %w", err)
	}
	return out, nil
}

func scanMedicine(r rowScanner) (domain.Medicine, error) {
	var (
		m           domain.Medicine
		requires    int
		month, year sql.NullInt64
	)
	if err := r.Scan(&m.ID, &m.Name, &requires, &m.StockThreshold, &month, &year); err != nil {
		return domain.Medicine{}, err
	}
	m.RequiresPrescription = requires != 0
	if month.Valid && year.Valid {
		m.Deadline = &domain.MonthYear{Month: int(month.Int64), Year: int(year.Int64)}
	}
	return m, nil
}
