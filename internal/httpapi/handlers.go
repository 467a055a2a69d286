package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/engine"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/ledger"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/opkey"
)

// SourceHTTP is the operation-key source of requests that carry no
// explicit source.
const SourceHTTP = "http"

// RecordRequest is the body of every record endpoint.
type RecordRequest struct {
	OperationID string  `json:"operationId,omitempty"`
	MedicineID  string  `json:"medicineId"`
	PackageID   string  `json:"packageId,omitempty"`
	TherapyID   string  `json:"therapyId,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	Source      string  `json:"source,omitempty"`
}

// UndoRequest is the body of POST /undo.
type UndoRequest struct {
	TargetID    string `json:"targetId"`
	OperationID string `json:"operationId,omitempty"`
	Source      string `json:"source,omitempty"`
}

// TakenRequest optionally pins the dose to mark taken. Empty means the
// current primary dose.
type TakenRequest struct {
	TherapyID   string     `json:"therapyId,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// SnoozeRequest is the body of POST /live/snooze.
type SnoozeRequest struct {
	Minutes int `json:"minutes,omitempty"`
}

// EventResponse reports a recorded or replayed ledger event.
type EventResponse struct {
	Event     domain.Event `json:"event"`
	Duplicate bool         `json:"duplicate"`
}

type recordFunc func(ctx context.Context, req ledger.Request) (ledger.Result, error)

func (s *Server) health(c echo.Context) error {
	if err := s.app.Store.Ping(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "store unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// refresh runs a foreground pass. A superseded pass falls back to the last
// applied result. That result may predate the pass that superseded this one
// when the newer pass has not applied yet.
func (s *Server) refresh(ctx context.Context) (engine.Result, error) {
	res, err := s.app.Engine.Refresh(ctx, engine.TriggerForeground)
	if err == nil {
		return res, nil
	}
	if engine.IsSuperseded(err) {
		if last, ok := s.app.Engine.Last(); ok {
			return last, nil
		}
	}
	return engine.Result{}, err
}

func (s *Server) getToday(c echo.Context) error {
	res, err := s.refresh(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res.Today)
}

func (s *Server) getNotificationPlan(c echo.Context) error {
	res, err := s.refresh(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res.Notifications)
}

func (s *Server) getLive(c echo.Context) error {
	res, err := s.refresh(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res.Live)
}

func (s *Server) recordIntake(c echo.Context) error {
	return s.record(c, opkey.ActionIntake, s.app.Ledger.RecordIntake)
}

func (s *Server) recordPurchase(c echo.Context) error {
	return s.record(c, opkey.ActionPurchase, s.app.Ledger.RecordPurchase)
}

func (s *Server) recordPrescriptionRequest(c echo.Context) error {
	return s.record(c, opkey.ActionPrescriptionRequest, s.app.Ledger.RecordPrescriptionRequest)
}

func (s *Server) recordPrescriptionReceived(c echo.Context) error {
	return s.record(c, opkey.ActionPrescriptionReceived, s.app.Ledger.RecordPrescriptionReceived)
}

// recordStockAdjustment removes quantity units; a negative quantity adds
// them back.
func (s *Server) recordStockAdjustment(c echo.Context) error {
	return s.record(c, opkey.ActionStockAdjustment, s.app.Ledger.RecordStockAdjustment)
}

func (s *Server) record(c echo.Context, action string, fn recordFunc) error {
	var body RecordRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if body.MedicineID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "medicineId is required")
	}
	if body.Quantity < 0 && action != opkey.ActionStockAdjustment {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must not be negative")
	}

	ctx := c.Request().Context()
	opID := body.OperationID
	if opID == "" {
		id, err := s.app.OpKeys.ID(ctx, opkey.Key{
			ActionType: action,
			MedicineID: body.MedicineID,
			PackageID:  body.PackageID,
			Source:     sourceOr(body.Source),
		})
		if err != nil {
			return err
		}
		opID = id
	}

	res, err := fn(ctx, ledger.Request{
		OperationID: opID,
		MedicineID:  body.MedicineID,
		PackageID:   body.PackageID,
		TherapyID:   body.TherapyID,
		Quantity:    body.Quantity,
	})
	if err != nil {
		return err
	}
	return s.respondEvent(c, res)
}

func (s *Server) undo(c echo.Context) error {
	var body UndoRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if body.TargetID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "targetId is required")
	}

	opID := body.OperationID
	if opID == "" {
		opID = opkey.UndoID(body.TargetID, sourceOr(body.Source))
	}
	res, err := s.app.Ledger.Undo(c.Request().Context(), body.TargetID, opID)
	if err != nil {
		return err
	}
	return s.respondEvent(c, res)
}

func (s *Server) liveTaken(c echo.Context) error {
	var body TakenRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
		}
	}

	ctx := c.Request().Context()
	primary, err := s.app.Live.Primary(ctx)
	if err != nil {
		return err
	}
	if body.TherapyID != "" && body.TherapyID != primary.TherapyID {
		return echo.NewHTTPError(http.StatusConflict, "dose is no longer on the live surface")
	}
	if body.ScheduledAt != nil && !body.ScheduledAt.Equal(primary.ScheduledAt) {
		return echo.NewHTTPError(http.StatusConflict, "dose is no longer on the live surface")
	}

	res, err := s.app.Live.MarkTaken(ctx, primary)
	if err != nil {
		return err
	}
	return s.respondEvent(c, res)
}

func (s *Server) liveSnooze(c echo.Context) error {
	var body SnoozeRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
		}
	}
	if body.Minutes < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "minutes must not be negative")
	}
	minutes := body.Minutes
	if minutes == 0 {
		minutes = s.app.Config.SnoozeMinutes
	}

	ctx := c.Request().Context()
	primary, err := s.app.Live.Primary(ctx)
	if err != nil {
		return err
	}
	req, err := s.app.Live.RemindLater(ctx, primary, time.Duration(minutes)*time.Minute)
	if err != nil {
		return err
	}
	s.app.Engine.Enqueue(engine.TriggerAction)
	return c.JSON(http.StatusOK, req)
}

// respondEvent answers 201 for a new event and 200 for a replay, and queues
// a refresh when something changed.
func (s *Server) respondEvent(c echo.Context, res ledger.Result) error {
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	} else {
		s.app.Engine.Enqueue(engine.TriggerAction)
	}
	return c.JSON(status, EventResponse{Event: res.Event, Duplicate: res.Duplicate})
}

func sourceOr(source string) string {
	if source == "" {
		return SourceHTTP
	}
	return source
}
