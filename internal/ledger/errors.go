package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors. Error values unwrap to the sentinel matching their code,
// so errors.Is(err, ErrNotFound) works on wrapped ledger errors.
var (
	ErrNotFound        = errors.New("operation not found")
	ErrAlreadyReversed = errors.New("operation already reversed")
	ErrNotUndoable     = errors.New("operation kind cannot be undone")
	ErrConflict        = errors.New("operation id reused for a different action")
	ErrInvalid         = errors.New("invalid ledger request")
)

// ErrorCode categorizes ledger errors.
type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyReversed ErrorCode = "ALREADY_REVERSED"
	ErrCodeNotUndoable     ErrorCode = "NOT_UNDOABLE"
	ErrCodeConflict        ErrorCode = "OPERATION_CONFLICT"
	ErrCodeInvalid         ErrorCode = "INVALID_REQUEST"
)

// Error is a ledger failure with structured fields for callers that map
// failures to exit codes or HTTP statuses.
type Error struct {
	Code        ErrorCode
	Message     string
	OperationID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.OperationID != "" {
		return fmt.Sprintf("%s: %s (operation=%s)", e.Code, e.Message, e.OperationID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps the code to its sentinel.
func (e *Error) Unwrap() error {
	switch e.Code {
	case ErrCodeNotFound:
		return ErrNotFound
	case ErrCodeAlreadyReversed:
		return ErrAlreadyReversed
	case ErrCodeNotUndoable:
		return ErrNotUndoable
	case ErrCodeConflict:
		return ErrConflict
	case ErrCodeInvalid:
		return ErrInvalid
	}
	return nil
}

func newError(code ErrorCode, operationID, format string, args ...any) *Error {
	return &Error{Code: code, OperationID: operationID, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a ledger not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyReversed reports whether err is an already-reversed error.
func IsAlreadyReversed(err error) bool {
	return errors.Is(err, ErrAlreadyReversed)
}

// IsClientError reports whether err was caused by the request rather than
// by storage.
func IsClientError(err error) bool {
	var le *Error
	return errors.As(err, &le)
}
