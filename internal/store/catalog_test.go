package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

func TestLoadSnapshots_AssemblesAggregate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedCatalog(t, s)

	_, err := s.AppendEvent(ctx, createTestEvent("p1", domain.KindPurchase), 20)
	require.NoError(t, err)

	snaps, err := s.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	snap := snaps[0]
	assert.Equal(t, "Tachipirina", snap.Medicine.Name)
	assert.True(t, snap.Medicine.RequiresPrescription)
	require.NotNil(t, snap.Medicine.Deadline)
	assert.Equal(t, "04/2025", snap.Medicine.Deadline.String())
	require.Len(t, snap.Packages, 1)
	assert.Equal(t, "compressa", snap.Packages[0].UnitLabel)
	require.Len(t, snap.Therapies, 1)
	th := snap.Therapies[0]
	assert.Len(t, th.Doses, 2)
	require.NotNil(t, th.Clinical)
	assert.Equal(t, domain.MissedDoseNotify, th.Clinical.MissedDose.Kind)
	assert.Equal(t, 45, th.Clinical.MissedDose.GraceMinutes)
	require.Len(t, snap.Events, 1)
}

func TestDeleteTherapy_SoftDeletes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedCatalog(t, s)

	require.NoError(t, s.DeleteTherapy(ctx, "th-1"))
	snap, err := s.LoadSnapshot(ctx, "med-1")
	require.NoError(t, err)
	require.Len(t, snap.Therapies, 1)
	assert.True(t, snap.Therapies[0].Deleted)
	assert.Empty(t, snap.ActiveTherapies())

	err = s.DeleteTherapy(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpsertTherapy_LastWriterWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedCatalog(t, s)

	snap, err := s.LoadSnapshot(ctx, "med-1")
	require.NoError(t, err)
	th := snap.Therapies[0]
	th.Rule = "RRULE:FREQ=WEEKLY;BYDAY=MO"
	th.Clinical = nil
	require.NoError(t, s.UpsertTherapy(ctx, th))

	snap, err = s.LoadSnapshot(ctx, "med-1")
	require.NoError(t, err)
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=MO", snap.Therapies[0].Rule)
	assert.Nil(t, snap.Therapies[0].Clinical)
}

func TestLoadSnapshots_CorruptDosesDegrade(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedCatalog(t, s)

	_, err := s.db.Exec(`UPDATE therapies SET doses = 'not json' WHERE id = 'th-1'`)
	require.NoError(t, err)

	snaps, err := s.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Empty(t, snaps[0].Therapies[0].Doses)
}

func TestGetMedicineAndPackage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedCatalog(t, s)

	m, err := s.GetMedicine(ctx, "med-1")
	require.NoError(t, err)
	assert.Equal(t, 5, m.StockThreshold)

	p, err := s.GetPackage(ctx, "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, 20, p.Units)

	_, err = s.GetPackage(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}
