package dosing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

var day = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func twoDoseSnapshot(events ...domain.Event) domain.MedicineSnapshot {
	return domain.MedicineSnapshot{
		Medicine: domain.Medicine{ID: "med", Name: "Coumadin"},
		Therapies: []domain.Therapy{{
			ID: "th", MedicineID: "med", StartDate: day.AddDate(0, 0, -3), Rule: "RRULE:FREQ=DAILY",
			Doses: []domain.DoseTime{{Hour: 8, Amount: 1}, {Hour: 20, Amount: 1}},
		}},
		Events: events,
	}
}

func intake(id, therapy string, at time.Time) domain.Event {
	return domain.Event{OperationID: id, Kind: domain.KindIntake, MedicineID: "med", TherapyID: therapy, Quantity: 1, Timestamp: at}
}

func TestDayPairsLogsInOrder(t *testing.T) {
	doses := Day(twoDoseSnapshot(intake("a", "th", day.Add(-3*time.Hour))), day, time.UTC)
	require.Len(t, doses, 2)
	assert.True(t, doses[0].Logged)
	assert.False(t, doses[1].Logged)
	assert.Len(t, Pending(doses), 1)
}

func TestDayIgnoresOtherDaysAndReversals(t *testing.T) {
	snap := twoDoseSnapshot(
		intake("yesterday", "th", day.AddDate(0, 0, -1)),
		intake("undone", "th", day),
		domain.Event{OperationID: "u", Kind: domain.KindIntakeUndo, ReversalOf: "undone", MedicineID: "med", Timestamp: day},
	)
	assert.Len(t, Pending(Day(snap, day, time.UTC)), 2)
}

func TestUnassignedLogsNeedSingleTherapy(t *testing.T) {
	snap := twoDoseSnapshot(intake("a", "", day))
	assert.Len(t, Pending(Day(snap, day, time.UTC)), 1)

	snap.Therapies = append(snap.Therapies, domain.Therapy{
		ID: "th2", MedicineID: "med", StartDate: day.AddDate(0, 0, -3), Rule: "RRULE:FREQ=DAILY",
		Doses: []domain.DoseTime{{Hour: 9, Amount: 1}},
	})
	assert.Len(t, Pending(Day(snap, day, time.UTC)), 3, "ambiguous unassigned log is not paired")
}

func TestWindowCrossesMidnight(t *testing.T) {
	snap := twoDoseSnapshot()
	from := time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	doses := Window(snap, from, to, time.UTC)
	require.Len(t, doses, 2)
	assert.Equal(t, 20, doses[0].At.Hour())
	assert.Equal(t, 11, doses[1].At.Day())

	assert.Empty(t, Window(snap, to, from, time.UTC))
}

func TestDeletedTherapyHasNoDoses(t *testing.T) {
	snap := twoDoseSnapshot()
	snap.Therapies[0].Deleted = true
	assert.Empty(t, Day(snap, day, time.UTC))
}
