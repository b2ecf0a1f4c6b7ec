package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"

	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeRoomNotFound           Code = "ROOM_NOT_FOUND"
	CodeReservationNotFound    Code = "RESERVATION_NOT_FOUND"
	CodeDateOutOfRange         Code = "DATE_OUT_OF_RANGE"
	CodeBedNotFound            Code = "BED_NOT_FOUND"
	CodeReconciliationConflict Code = "RECONCILIATION_CONFLICT"
)

// Metadata describes how a code surfaces at the HTTP boundary.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable  = true
	final      = false
	showDetail = true
	hideDetail = false
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, final, "validation failed", showDetail},
	CodeUnauthorized:  {http.StatusUnauthorized, final, "authentication required", hideDetail},
	CodeForbidden:     {http.StatusForbidden, final, "access denied", hideDetail},
	CodeNotFound:      {http.StatusNotFound, final, "resource not found", hideDetail},
	CodeConflict:      {http.StatusConflict, final, "conflict detected", hideDetail},
	CodeStateConflict: {http.StatusUnprocessableEntity, final, "state transition disallowed", showDetail},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", hideDetail},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "dependency unavailable", showDetail},
	CodeIdempotency:   {http.StatusConflict, final, "idempotency key reused", hideDetail},

	CodeInvalidTransition:      {http.StatusUnprocessableEntity, final, "reservation status transition not permitted", showDetail},
	CodeRoomNotFound:           {http.StatusNotFound, final, "room not found", hideDetail},
	CodeReservationNotFound:    {http.StatusNotFound, final, "reservation not found", hideDetail},
	CodeDateOutOfRange:         {http.StatusBadRequest, final, "move-in date outside booking window", showDetail},
	CodeBedNotFound:            {http.StatusNotFound, final, "bed not found", hideDetail},
	CodeReconciliationConflict: {http.StatusConflict, retryable, "room capacity changed concurrently", showDetail},
}

// MetadataFor falls back to the internal error metadata for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error carried from services to the HTTP layer.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether the error's code is marked retryable.
func IsRetryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.code).Retryable
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
