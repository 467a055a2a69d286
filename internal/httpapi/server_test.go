package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/app"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/config"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/ledger"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/notify"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/testutil"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/today"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *app.App) {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.DBPath = filepath.Join(t.TempDir(), "http.db")
	cfg.Timezone = "UTC"

	clock := testutil.NewFixedClock(now)
	a, err := app.Open(cfg, app.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NoError(t, a.Store.ImportSnapshot(context.Background(), domain.MedicineSnapshot{
		Medicine: domain.Medicine{ID: "med", Name: "Aspirina"},
		Packages: []domain.Package{{ID: "pkg", MedicineID: "med", Units: 30, UnitLabel: "compressa"}},
		Therapies: []domain.Therapy{{
			ID: "th", MedicineID: "med", PackageID: "pkg", StartDate: now.AddDate(0, 0, -2),
			Rule: "RRULE:FREQ=DAILY", Doses: []domain.DoseTime{{Hour: 12, Minute: 5, Amount: 1}},
		}},
	}))
	// One pack on hand: 30 units.
	_, err = a.Ledger.RecordPurchase(context.Background(), ledger.Request{OperationID: "seed", MedicineID: "med", PackageID: "pkg"})
	require.NoError(t, err)
	return New(a, zerolog.Nop()), a
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestRecordIntakeCollapsesRepeatedGestures(t *testing.T) {
	s, a := newTestServer(t)
	body := RecordRequest{MedicineID: "med", PackageID: "pkg", TherapyID: "th"}

	first := do(t, s, http.MethodPost, "/api/v1/intakes", body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	created := decode[EventResponse](t, first)
	assert.False(t, created.Duplicate)
	assert.Equal(t, domain.KindIntake, created.Event.Kind)

	second := do(t, s, http.MethodPost, "/api/v1/intakes", body)
	require.Equal(t, http.StatusOK, second.Code)
	replayed := decode[EventResponse](t, second)
	assert.True(t, replayed.Duplicate)
	assert.Equal(t, created.Event.OperationID, replayed.Event.OperationID)

	stock, err := a.Store.MedicineStock(context.Background(), "med")
	require.NoError(t, err)
	assert.Equal(t, 29.0, stock)
}

func TestRecordWithExplicitOperationID(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/purchases",
		RecordRequest{OperationID: "buy-1", MedicineID: "med", PackageID: "pkg", Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "buy-1", decode[EventResponse](t, rec).Event.OperationID)

	conflict := do(t, s, http.MethodPost, "/api/v1/intakes",
		RecordRequest{OperationID: "buy-1", MedicineID: "med"})
	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.Equal(t, string(ledger.ErrCodeConflict), decode[ErrorBody](t, conflict).Error.Code)
}

func TestRecordValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/intakes", RecordRequest{PackageID: "pkg"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(ledger.ErrCodeInvalid), decode[ErrorBody](t, rec).Error.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/purchases", RecordRequest{MedicineID: "med"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorBody](t, rec).Error.Message, "package")
}

func TestRecordStockAdjustment(t *testing.T) {
	s, a := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/adjustments", RecordRequest{MedicineID: "med", PackageID: "pkg", Quantity: 5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.KindStockAdjustment, decode[EventResponse](t, rec).Event.Kind)

	back := do(t, s, http.MethodPost, "/api/v1/adjustments", RecordRequest{OperationID: "found-2", MedicineID: "med", PackageID: "pkg", Quantity: -2})
	require.Equal(t, http.StatusCreated, back.Code, back.Body.String())

	stock, err := a.Store.MedicineStock(context.Background(), "med")
	require.NoError(t, err)
	assert.Equal(t, 27.0, stock)

	zero := do(t, s, http.MethodPost, "/api/v1/adjustments", RecordRequest{OperationID: "zero", MedicineID: "med", PackageID: "pkg"})
	assert.Equal(t, http.StatusBadRequest, zero.Code)
}

func TestUndo(t *testing.T) {
	s, a := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/intakes", RecordRequest{OperationID: "take-1", MedicineID: "med", PackageID: "pkg"})
	require.Equal(t, http.StatusCreated, rec.Code)

	undo := do(t, s, http.MethodPost, "/api/v1/undo", UndoRequest{TargetID: "take-1"})
	require.Equal(t, http.StatusCreated, undo.Code, undo.Body.String())
	assert.Equal(t, domain.KindIntakeUndo, decode[EventResponse](t, undo).Event.Kind)

	again := do(t, s, http.MethodPost, "/api/v1/undo", UndoRequest{TargetID: "take-1"})
	require.Equal(t, http.StatusOK, again.Code)
	assert.True(t, decode[EventResponse](t, again).Duplicate)

	other := do(t, s, http.MethodPost, "/api/v1/undo", UndoRequest{TargetID: "take-1", OperationID: "undo-2"})
	assert.Equal(t, http.StatusConflict, other.Code)
	assert.Equal(t, string(ledger.ErrCodeAlreadyReversed), decode[ErrorBody](t, other).Error.Code)

	stock, err := a.Store.MedicineStock(context.Background(), "med")
	require.NoError(t, err)
	assert.Equal(t, 30.0, stock)
}

func TestUndoErrors(t *testing.T) {
	s, _ := newTestServer(t)

	missing := do(t, s, http.MethodPost, "/api/v1/undo", UndoRequest{TargetID: "nope"})
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, string(ledger.ErrCodeNotFound), decode[ErrorBody](t, missing).Error.Code)

	rec := do(t, s, http.MethodPost, "/api/v1/prescriptions/requests", RecordRequest{OperationID: "rx-1", MedicineID: "med"})
	require.Equal(t, http.StatusCreated, rec.Code)
	notUndoable := do(t, s, http.MethodPost, "/api/v1/undo", UndoRequest{TargetID: "rx-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, notUndoable.Code)
	assert.Equal(t, string(ledger.ErrCodeNotUndoable), decode[ErrorBody](t, notUndoable).Error.Code)

	empty := do(t, s, http.MethodPost, "/api/v1/undo", UndoRequest{})
	assert.Equal(t, http.StatusBadRequest, empty.Code)
}

func TestGetToday(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/v1/today", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	state := decode[today.State](t, rec)
	require.NotEmpty(t, state.Items)
	assert.NotEmpty(t, state.SyncToken)
	var found bool
	for _, it := range state.Items {
		if it.MedicineID == "med" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestGetNotificationPlan(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/v1/notifications/plan", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	plan := decode[notify.Plan](t, rec)
	require.NotEmpty(t, plan.Requests)
	assert.Equal(t, "Aspirina", plan.Requests[0].Title)
}

func TestLiveTakenAndSnooze(t *testing.T) {
	s, a := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"therapyId":"th"`)

	snooze := do(t, s, http.MethodPost, "/api/v1/live/snooze", SnoozeRequest{})
	require.Equal(t, http.StatusOK, snooze.Code, snooze.Body.String())
	req := decode[notify.Request](t, snooze)
	assert.True(t, now.Add(10*time.Minute).Equal(req.FireAt))

	// Snoozed doses leave the surface until the snooze expires.
	gone := do(t, s, http.MethodPost, "/api/v1/live/taken", nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)

	pending, err := a.Center.Pending(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
}

func TestLiveTakenRecordsIntake(t *testing.T) {
	s, a := newTestServer(t)

	wrong := do(t, s, http.MethodPost, "/api/v1/live/taken", TakenRequest{TherapyID: "other"})
	assert.Equal(t, http.StatusConflict, wrong.Code)

	rec := do(t, s, http.MethodPost, "/api/v1/live/taken", TakenRequest{TherapyID: "th"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "th", decode[EventResponse](t, rec).Event.TherapyID)

	stock, err := a.Store.MedicineStock(context.Background(), "med")
	require.NoError(t, err)
	assert.Equal(t, 29.0, stock)

	again := do(t, s, http.MethodPost, "/api/v1/live/taken", nil)
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(ledger.ErrCodeInvalid))
	assert.Equal(t, http.StatusNotFound, StatusFor(ledger.ErrCodeNotFound))
	assert.Equal(t, http.StatusConflict, StatusFor(ledger.ErrCodeAlreadyReversed))
	assert.Equal(t, http.StatusConflict, StatusFor(ledger.ErrCodeConflict))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(ledger.ErrCodeNotUndoable))
	assert.Equal(t, http.StatusInternalServerError, StatusFor("OTHER"))
}
