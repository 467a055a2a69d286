// Package httpapi exposes the intent and widget actions over HTTP.
//
// Every write goes through the operation-key registry, so the same gesture
// submitted twice within the TTL (a double tap, or a widget and an intent
// racing) records a single ledger event. Callers may also pass their own
// operation id.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/app"
)

// Server is the HTTP entry point.
type Server struct {
	app    *app.App
	echo   *echo.Echo
	logger zerolog.Logger
}

// New builds the echo instance and registers every route.
func New(a *app.App, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(Recovery(logger))
	e.Use(RequestID())
	e.Use(Logger(logger))

	s := &Server{app: a, echo: e, logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)

	api := s.echo.Group("/api/v1")
	api.GET("/today", s.getToday)
	api.GET("/notifications/plan", s.getNotificationPlan)
	api.POST("/intakes", s.recordIntake)
	api.POST("/purchases", s.recordPurchase)
	api.POST("/prescriptions/requests", s.recordPrescriptionRequest)
	api.POST("/prescriptions/received", s.recordPrescriptionReceived)
	api.POST("/adjustments", s.recordStockAdjustment)
	api.POST("/undo", s.undo)
	api.GET("/live", s.getLive)
	api.POST("/live/taken", s.liveTaken)
	api.POST("/live/snooze", s.liveSnooze)
}

// Handler returns the root handler, for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting server")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")
	return s.echo.Shutdown(ctx)
}
