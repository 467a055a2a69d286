package engine

import (
	"errors"
	"fmt"
)

// RefreshError is a structured failure of one refresh pass.
type RefreshError struct {
	// Code identifies the error category.
	Code RefreshErrorCode

	// Message is a human-readable description.
	Message string

	// Generation is the pass that failed.
	Generation int64

	// Stage names the step that failed (load, today, notify, live, apply).
	Stage string

	// Err is the underlying cause, if any.
	Err error
}

// RefreshErrorCode categorizes refresh errors.
type RefreshErrorCode string

const (
	// ErrCodeSuperseded indicates a newer pass started before this one
	// could apply its result.
	ErrCodeSuperseded RefreshErrorCode = "SUPERSEDED"

	// ErrCodeLoadFailed indicates the snapshot could not be read.
	ErrCodeLoadFailed RefreshErrorCode = "LOAD_FAILED"

	// ErrCodeComputeFailed indicates a planner could not finish.
	ErrCodeComputeFailed RefreshErrorCode = "COMPUTE_FAILED"

	// ErrCodeApplyFailed indicates a computed plan could not be materialized.
	ErrCodeApplyFailed RefreshErrorCode = "APPLY_FAILED"
)

// Error implements the error interface.
func (e *RefreshError) Error() string {
	msg := fmt.Sprintf("%s: %s (generation=%d)", e.Code, e.Message, e.Generation)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s (generation=%d, stage=%s)", e.Code, e.Message, e.Generation, e.Stage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *RefreshError) Unwrap() error {
	return e.Err
}

// IsSuperseded returns true if the pass was dropped for a newer one.
// Uses errors.As to handle wrapped errors.
func IsSuperseded(err error) bool {
	var re *RefreshError
	if errors.As(err, &re) {
		return re.Code == ErrCodeSuperseded
	}
	return false
}

func newSupersededError(gen, latest int64) *RefreshError {
	return &RefreshError{
		Code:       ErrCodeSuperseded,
		Message:    fmt.Sprintf("generation %d superseded by %d", gen, latest),
		Generation: gen,
	}
}

func newStageError(code RefreshErrorCode, gen int64, stage string, err error) *RefreshError {
	return &RefreshError{
		Code:       code,
		Message:    stage + " failed",
		Generation: gen,
		Stage:      stage,
		Err:        err,
	}
}
