package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/keystore"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/ledger"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/live"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/notify"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/testutil"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/today"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine  *Engine
	store   *store.Store
	center  *notify.MemoryCenter
	surface *live.MemorySurface
	clock   *testutil.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.ImportSnapshot(ctx, domain.MedicineSnapshot{
		Medicine: domain.Medicine{ID: "med", Name: "Aspirina"},
		Packages: []domain.Package{{ID: "pkg", MedicineID: "med", Units: 30, UnitLabel: "compressa"}},
		Therapies: []domain.Therapy{{
			ID: "th", MedicineID: "med", PackageID: "pkg", StartDate: now.AddDate(0, 0, -2),
			Rule: "RRULE:FREQ=DAILY", Doses: []domain.DoseTime{{Hour: 12, Minute: 5, Amount: 1}},
		}},
	}))

	clock := testutil.NewFixedClock(now)
	center := notify.NewMemoryCenter()
	surface := live.NewMemorySurface()
	led := ledger.New(st, ledger.WithClock(clock.Now))
	planner := notify.NewPlanner(keystore.NewMemoryWithClock(clock.Now), notify.Options{Location: time.UTC, ThresholdDays: 7})
	liveSvc := live.NewService(st, led, center, live.Options{Location: time.UTC}, clock.Now)
	e := New(st, planner, center, liveSvc, today.Options{Location: time.UTC, ThresholdDays: 7},
		WithClock(clock.Now), WithSurface(surface))
	return &fixture{engine: e, store: st, center: center, surface: surface, clock: clock}
}

func TestRefreshAppliesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Refresh(ctx, TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Generation)
	assert.NotEmpty(t, res.Today.Items)
	assert.Greater(t, res.Snapshot.Inserted, 0)
	assert.Equal(t, live.ChangeStarted, res.LiveChange)

	pending, err := f.center.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, len(res.Notifications.Requests))

	mirrored, err := f.store.ReadTodoSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, mirrored, len(res.Today.Items)+len(res.Today.Completed))

	again, err := f.engine.Refresh(ctx, TriggerTick)
	require.NoError(t, err)
	assert.True(t, again.Snapshot.Skipped, "unchanged sync token skips the mirror")
	assert.Equal(t, live.ChangeUpdated, again.LiveChange)

	last, ok := f.engine.Last()
	require.True(t, ok)
	assert.Equal(t, int64(2), last.Generation)
}

func TestRefreshSupersededIsNotApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.beforeApply = func() { f.engine.Generations().Next() }

	_, err := f.engine.Refresh(ctx, TriggerAction)
	require.Error(t, err)
	assert.True(t, IsSuperseded(err))

	pending, err := f.center.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, ok := f.engine.Last()
	assert.False(t, ok)
	_, running, err := f.surface.Current(ctx)
	require.NoError(t, err)
	assert.False(t, running)
}

func pendingImmediate(t *testing.T, f *fixture) int {
	t.Helper()
	pending, err := f.center.Pending(context.Background())
	require.NoError(t, err)
	n := 0
	for _, r := range pending {
		if r.Origin == notify.OriginImmediate {
			n++
		}
	}
	return n
}

func TestSupersededPassLeavesStockAlertCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.beforeApply = func() {
		f.engine.beforeApply = nil
		f.engine.Generations().Next()
	}

	_, err := f.engine.Refresh(ctx, TriggerAction)
	require.True(t, IsSuperseded(err))

	res, err := f.engine.Refresh(ctx, TriggerAction)
	require.NoError(t, err)
	assert.Equal(t, "stock|immediate|med", res.Notifications.Requests[0].ID)
	assert.Equal(t, 1, pendingImmediate(t, f))
}

func TestStockAlertSurvivesNextPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Refresh(ctx, TriggerStartup)
	require.NoError(t, err)
	require.Equal(t, 1, pendingImmediate(t, f))

	f.clock.Advance(time.Minute)
	res, err := f.engine.Refresh(ctx, TriggerTick)
	require.NoError(t, err)
	for _, c := range res.Notifications.Candidates {
		assert.NotEqual(t, notify.OriginImmediate, c.Origin, "cooldown holds after an applied pass")
	}
	assert.Zero(t, res.NotifyDiff.Removed)
	assert.Equal(t, 1, pendingImmediate(t, f))
}

func TestRefreshAsync(t *testing.T) {
	f := newFixture(t)
	out := <-f.engine.RefreshAsync(context.Background(), TriggerForeground)
	require.NoError(t, out.Err)
	assert.Equal(t, TriggerForeground, out.Result.Trigger)
}

func TestRunCoalescesQueuedTriggers(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.True(t, f.engine.Enqueue(TriggerStartup))
	require.True(t, f.engine.Enqueue(TriggerTick))
	require.True(t, f.engine.Enqueue(TriggerAction))

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := f.engine.Last()
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	last, _ := f.engine.Last()
	assert.Equal(t, int64(1), last.Generation)
	assert.Equal(t, TriggerAction, last.Trigger)

	f.engine.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.False(t, f.engine.Enqueue(TriggerTick))
}

func TestRefreshErrorFormatting(t *testing.T) {
	err := newStageError(ErrCodeLoadFailed, 3, "load", assert.AnError)
	assert.Contains(t, err.Error(), "LOAD_FAILED")
	assert.Contains(t, err.Error(), "stage=load")
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, IsSuperseded(err))
	assert.True(t, IsSuperseded(newSupersededError(1, 2)))
}
