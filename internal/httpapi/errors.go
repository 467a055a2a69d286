package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/ledger"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/live"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
)

// ErrorBody is the JSON shape of every failure.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure with a stable code.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusFor maps a ledger error code to an HTTP status.
func StatusFor(code ledger.ErrorCode) int {
	switch code {
	case ledger.ErrCodeInvalid:
		return http.StatusBadRequest
	case ledger.ErrCodeNotFound:
		return http.StatusNotFound
	case ledger.ErrCodeAlreadyReversed, ledger.ErrCodeConflict:
		return http.StatusConflict
	case ledger.ErrCodeNotUndoable:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func classify(err error) (int, ErrorDetail) {
	var le *ledger.Error
	if errors.As(err, &le) {
		return StatusFor(le.Code), ErrorDetail{Code: string(le.Code), Message: le.Message}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, ErrorDetail{Code: httpCode(he.Code), Message: fmt.Sprint(he.Message)}
	}

	if errors.Is(err, live.ErrNothingDue) {
		return http.StatusNotFound, ErrorDetail{Code: "NOTHING_DUE", Message: err.Error()}
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, ErrorDetail{Code: string(ledger.ErrCodeNotFound), Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorDetail{Code: "INTERNAL", Message: "internal server error"}
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(ledger.ErrCodeInvalid)
	case http.StatusNotFound:
		return string(ledger.ErrCodeNotFound)
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	}
	return "INTERNAL"
}

func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, detail := classify(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Msg("request failed")
		}
		if werr := c.JSON(status, ErrorBody{Error: detail}); werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
