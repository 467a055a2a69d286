package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/keystore"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/testutil"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func stocked(units int, events ...domain.Event) domain.MedicineSnapshot {
	base := []domain.Event{{OperationID: "buy", Kind: domain.KindPurchase, MedicineID: "med", PackageID: "pkg",
		Quantity: 1, Timestamp: now.AddDate(0, 0, -1)}}
	return domain.MedicineSnapshot{
		Medicine: domain.Medicine{ID: "med", Name: "Aspirina"},
		Packages: []domain.Package{{ID: "pkg", MedicineID: "med", Units: units, UnitLabel: "compressa"}},
		Therapies: []domain.Therapy{{
			ID: "th", MedicineID: "med", PackageID: "pkg", StartDate: now.AddDate(0, 0, -3),
			Rule:  "RRULE:FREQ=DAILY",
			Doses: []domain.DoseTime{{Hour: 8, Amount: 1}, {Hour: 20, Amount: 1}},
		}},
		Events: append(base, events...),
	}
}

func newPlanner(clock *testutil.FixedClock, opts Options) *Planner {
	opts.Location = time.UTC
	return NewPlanner(keystore.NewMemoryWithClock(clock.Now), opts)
}

func TestDoseCandidatesWithinHorizon(t *testing.T) {
	got := DoseCandidates(stocked(60), now, Options{Location: time.UTC})
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC), got[0].FireAt)
	assert.Equal(t, time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC), got[1].FireAt)
	assert.Equal(t, "Take 1 compressa at 20:00", got[0].Body)
	assert.Equal(t, "dose|th|1741636800", got[0].ID)
}

func TestDoseCandidatesSkipLoggedAndDeleted(t *testing.T) {
	early := domain.Event{OperationID: "i", Kind: domain.KindIntake, MedicineID: "med", TherapyID: "th",
		Quantity: 1, Timestamp: time.Date(2025, 3, 10, 19, 20, 0, 0, time.UTC)}
	got := DoseCandidates(stocked(60, early), now, Options{Location: time.UTC})
	require.Len(t, got, 1)
	assert.Equal(t, 8, got[0].FireAt.Hour())

	deleted := stocked(60)
	deleted.Therapies[0].Deleted = true
	assert.Empty(t, DoseCandidates(deleted, now, Options{Location: time.UTC}))
}

func TestRenderNormalAndAlarm(t *testing.T) {
	c := Candidate{ID: "dose|th|1", Origin: OriginDose, Kind: KindDose, MedicineID: "med", TherapyID: "th",
		Title: "Aspirina", FireAt: now}

	normal := Render(c, LevelNormal)
	require.Len(t, normal, 1)
	assert.Empty(t, normal[0].SeriesID)
	assert.Empty(t, normal[0].UserInfo[InfoSeriesID])

	alarm := Render(c, LevelAlarm)
	require.Len(t, alarm, SeriesLength)
	seriesID := alarm[0].SeriesID
	require.NotEmpty(t, seriesID)
	for i, r := range alarm {
		assert.Equal(t, seriesID, r.SeriesID)
		assert.Equal(t, seriesID, r.UserInfo[InfoSeriesID])
		assert.Equal(t, now.Add(time.Duration(i)*time.Minute), r.FireAt)
		assert.Equal(t, []string{ActionStop, ActionSnooze}, r.Actions)
	}
	assert.Equal(t, seriesID, Render(c, LevelAlarm)[0].SeriesID, "series id is stable across passes")

	stock := Candidate{ID: "stock|low|med", Origin: OriginScheduled, Kind: KindStockLow, FireAt: now}
	assert.Len(t, Render(stock, LevelAlarm), 1)
}

func TestScheduledStockReminders(t *testing.T) {
	clock := testutil.NewFixedClock(now)
	p := newPlanner(clock, Options{ThresholdDays: 7})
	plan, err := p.Plan(context.Background(), []domain.MedicineSnapshot{stocked(60)}, now)
	require.NoError(t, err)

	var low, out *Candidate
	for i := range plan.Candidates {
		switch plan.Candidates[i].Kind {
		case KindStockLow:
			low = &plan.Candidates[i]
		case KindStockOut:
			out = &plan.Candidates[i]
		}
	}
	require.NotNil(t, low)
	require.NotNil(t, out)
	assert.Equal(t, OriginScheduled, low.Origin)
	assert.True(t, low.FireAt.Before(out.FireAt))
	assert.Equal(t, now.Add(23*24*time.Hour), low.FireAt)
	assert.Equal(t, now.Add(30*24*time.Hour), out.FireAt)
}

func immediateCount(plan Plan) int {
	n := 0
	for _, r := range plan.Requests {
		if r.Origin == OriginImmediate {
			n++
		}
	}
	return n
}

func TestImmediateStockAlertCooldown(t *testing.T) {
	clock := testutil.NewFixedClock(now)
	p := newPlanner(clock, Options{ThresholdDays: 7})
	ctx := context.Background()
	short := []domain.MedicineSnapshot{stocked(4)}

	plan, err := p.Plan(ctx, short, now)
	require.NoError(t, err)
	assert.Equal(t, 1, immediateCount(plan))
	assert.Equal(t, OriginImmediate, plan.Requests[0].Origin)

	plan, err = p.Plan(ctx, short, now)
	require.NoError(t, err)
	assert.Equal(t, 1, immediateCount(plan), "planning alone does not start the cooldown")

	require.NoError(t, p.Commit(ctx, plan, now))

	clock.Advance(47 * time.Hour)
	plan, err = p.Plan(ctx, short, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, immediateCount(plan), "suppressed within cooldown")

	clock.Advance(2 * time.Hour)
	plan, err = p.Plan(ctx, short, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, immediateCount(plan))
}

func TestLowStockKeepsOutReminder(t *testing.T) {
	clock := testutil.NewFixedClock(now)
	p := newPlanner(clock, Options{ThresholdDays: 7})
	ctx := context.Background()
	low := []domain.MedicineSnapshot{stocked(10)}

	kinds := func(plan Plan) map[string]Origin {
		got := map[string]Origin{}
		for _, c := range plan.Candidates {
			if c.Kind != KindDose {
				got[c.ID] = c.Origin
			}
		}
		return got
	}

	plan, err := p.Plan(ctx, low, now)
	require.NoError(t, err)
	assert.Equal(t, map[string]Origin{
		"stock|immediate|med": OriginImmediate,
		"stock|out|med":       OriginScheduled,
	}, kinds(plan))
	for _, c := range plan.Candidates {
		if c.ID == "stock|out|med" {
			assert.Equal(t, now.Add(5*24*time.Hour), c.FireAt)
		}
	}

	require.NoError(t, p.Commit(ctx, plan, now))
	plan, err = p.Plan(ctx, low, now)
	require.NoError(t, err)
	assert.Equal(t, map[string]Origin{"stock|out|med": OriginScheduled}, kinds(plan))
}

func TestApplyKeepsCommittedImmediateAlert(t *testing.T) {
	ctx := context.Background()
	center := NewMemoryCenter()
	clock := testutil.NewFixedClock(now)
	p := newPlanner(clock, Options{ThresholdDays: 7})
	short := []domain.MedicineSnapshot{stocked(4)}

	plan, err := p.Plan(ctx, short, now)
	require.NoError(t, err)
	_, err = Apply(ctx, center, plan)
	require.NoError(t, err)
	require.NoError(t, p.Commit(ctx, plan, now))

	clock.Advance(time.Minute)
	plan, err = p.Plan(ctx, short, clock.Now())
	require.NoError(t, err)
	require.Zero(t, immediateCount(plan))
	diff, err := Apply(ctx, center, plan)
	require.NoError(t, err)
	assert.Zero(t, diff.Removed)

	pending, err := center.Pending(ctx)
	require.NoError(t, err)
	n := 0
	for _, r := range pending {
		if r.ID == "stock|immediate|med" {
			n++
			assert.Empty(t, r.UserInfo[InfoPlanned])
		}
	}
	assert.Equal(t, 1, n)
}

func TestCapKeepsImmediateFirst(t *testing.T) {
	reqs := []Request{
		{ID: "b", Origin: OriginDose, FireAt: now.Add(2 * time.Hour)},
		{ID: "imm", Origin: OriginImmediate, FireAt: now.Add(5 * time.Hour)},
		{ID: "a", Origin: OriginDose, FireAt: now.Add(time.Hour)},
	}
	kept, dropped := Cap(reqs, 2)
	assert.Equal(t, 1, dropped)
	ids := []string{kept[0].ID, kept[1].ID}
	if diff := cmp.Diff([]string{"imm", "a"}, ids); diff != "" {
		t.Errorf("kept mismatch (-want +got):\n%s", diff)
	}

	kept, dropped = Cap(reqs, 0)
	assert.Len(t, kept, 3)
	assert.Zero(t, dropped)
}

func TestPlanRespectsMaxPending(t *testing.T) {
	clock := testutil.NewFixedClock(now)
	p := newPlanner(clock, Options{Level: LevelAlarm, MaxPending: 10, ThresholdDays: 7})
	plan, err := p.Plan(context.Background(), []domain.MedicineSnapshot{stocked(60)}, now)
	require.NoError(t, err)
	assert.Len(t, plan.Requests, 10)
	assert.Equal(t, 2*SeriesLength+2-10, plan.Dropped)
}

func TestApplyDiffsPending(t *testing.T) {
	ctx := context.Background()
	center := NewMemoryCenter()
	clock := testutil.NewFixedClock(now)
	p := newPlanner(clock, Options{ThresholdDays: 7})

	plan, err := p.Plan(ctx, []domain.MedicineSnapshot{stocked(60)}, now)
	require.NoError(t, err)
	diff, err := Apply(ctx, center, plan)
	require.NoError(t, err)
	assert.Equal(t, Diff{Added: 4}, diff)

	diff, err = Apply(ctx, center, plan)
	require.NoError(t, err)
	assert.Equal(t, Diff{Kept: 4}, diff)

	require.NoError(t, center.Add(ctx, Request{ID: "foreign", FireAt: now, UserInfo: map[string]string{}}))
	diff, err = Apply(ctx, center, Plan{})
	require.NoError(t, err)
	assert.Equal(t, 4, diff.Removed)

	pending, err := center.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "foreign", pending[0].ID)
}

func TestSnoozeSeriesReplacesWholeSeries(t *testing.T) {
	ctx := context.Background()
	center := NewMemoryCenter()
	c := Candidate{ID: "dose|th|1", Origin: OriginDose, Kind: KindDose, MedicineID: "med", TherapyID: "th",
		Title: "Aspirina", FireAt: now}
	original := Render(c, LevelAlarm)
	require.NoError(t, center.Add(ctx, original...))
	center.Deliver(now.Add(2 * time.Minute))

	snoozeAt := now.Add(3 * time.Minute)
	fresh, err := SnoozeSeries(ctx, center, original[0].SeriesID, snoozeAt, 10, testutil.NewFixedIDs("series", "series-new"))
	require.NoError(t, err)
	require.Len(t, fresh, SeriesLength)
	assert.Equal(t, "series-new", fresh[0].SeriesID)
	assert.Equal(t, snoozeAt.Add(10*time.Minute), fresh[0].FireAt)
	assert.Equal(t, snoozeAt.Add(16*time.Minute), fresh[6].FireAt)

	pending, err := center.Pending(ctx)
	require.NoError(t, err)
	delivered, err := center.Delivered(ctx)
	require.NoError(t, err)
	assert.Empty(t, delivered, "delivered members of the old series are removed")
	require.Len(t, pending, SeriesLength)
	for _, r := range pending {
		assert.Equal(t, "series-new", r.UserInfo[InfoSeriesID])
	}

	// Re-applying a plan that still contains the original candidate keeps
	// the snoozed series and does not resurrect the old one.
	diff, err := Apply(ctx, center, Plan{Requests: original})
	require.NoError(t, err)
	assert.Zero(t, diff.Added)
	pending, err = center.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, SeriesLength)

	_, err = SnoozeSeries(ctx, center, "missing", snoozeAt, 10, testutil.NewFixedIDs("x"))
	assert.Error(t, err)
}

func TestLevelValid(t *testing.T) {
	assert.True(t, LevelNormal.Valid())
	assert.True(t, LevelAlarm.Valid())
	assert.False(t, Level("loud").Valid())
}
