package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func createTestEvent(id string, kind domain.EventKind) domain.Event {
	return domain.Event{
		OperationID: id,
		Kind:        kind,
		Timestamp:   testTime,
		MedicineID:  "med-1",
		PackageID:   "pkg-1",
		Quantity:    1,
	}
}

func seedCatalog(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	err := s.ImportSnapshot(ctx, domain.MedicineSnapshot{
		Medicine: domain.Medicine{ID: "med-1", Name: "Tachipirina", RequiresPrescription: true, StockThreshold: 5,
			Deadline: &domain.MonthYear{Month: 4, Year: 2025}},
		Packages: []domain.Package{{ID: "pkg-1", MedicineID: "med-1", Units: 20, UnitLabel: "compressa"}},
		Therapies: []domain.Therapy{{
			ID: "th-1", MedicineID: "med-1", PackageID: "pkg-1", ExternalKey: "ext-1",
			StartDate: testTime.Truncate(24 * time.Hour), Rule: "RRULE:FREQ=DAILY",
			Doses: []domain.DoseTime{{Hour: 8, Amount: 1}, {Hour: 20, Amount: 1}},
			Clinical: &domain.ClinicalRules{
				Monitoring: []domain.MonitoringRule{{Kind: "glucose", DoseRelation: domain.BeforeDose, OffsetMinutes: 30}},
				MissedDose: domain.MissedDosePolicy{Kind: domain.MissedDoseNotify, GraceMinutes: 45},
			},
		}},
	})
	if err != nil {
		t.Fatalf("ImportSnapshot() failed: %v", err)
	}
}
