package cabinet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
)

// ImportReport counts what Import wrote.
type ImportReport struct {
	Medicines int `json:"medicines"`
	Packages  int `json:"packages"`
	Therapies int `json:"therapies"`
}

// Import upserts every medicine of the cabinet, each in its own
// transaction. Ledger events are never touched.
func Import(ctx context.Context, st *store.Store, cab *Cabinet) (ImportReport, error) {
	var report ImportReport
	for _, snap := range cab.Snapshots {
		if err := st.ImportSnapshot(ctx, snap); err != nil {
			return report, fmt.Errorf("import medicine %s: %w", snap.Medicine.ID, err)
		}
		report.Medicines++
		report.Packages += len(snap.Packages)
		report.Therapies += len(snap.Therapies)
		slog.DebugContext(ctx, "medicine imported",
			"medicine", snap.Medicine.ID, "packages", len(snap.Packages), "therapies", len(snap.Therapies))
	}
	return report, nil
}
