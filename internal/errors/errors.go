// Package errors provides the structured error taxonomy of spec.md §7:
// protocol violations, history misses, integrity anomalies, determinism
// violations, and unrecoverable conditions.
package errors

import "errors"

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Protocol violation: reject the single event/message, log at warning,
	// continue.
	CodeEventOutOfWindow    Code = "EVENT_OUT_OF_WINDOW"
	CodeEngineIDMismatch    Code = "ENGINE_ID_MISMATCH"
	CodeForbiddenEventKind  Code = "FORBIDDEN_EVENT_KIND"
	CodeEntityIDMismatch    Code = "ENTITY_ID_MISMATCH"
	CodeMalformedWireFrame  Code = "MALFORMED_WIRE_FRAME"
	CodeUnknownPlayer       Code = "UNKNOWN_PLAYER"

	// History miss: fail the call with a descriptive error.
	CodeStepTooOld     Code = "STEP_TOO_OLD"
	CodeHashUnknown    Code = "HASH_UNKNOWN_STEP"

	// Integrity anomaly: log, best-effort, never panics.
	CodeDuplicateEntityID   Code = "DUPLICATE_ENTITY_ID"
	CodeRemoveMissingEntity Code = "REMOVE_MISSING_ENTITY"
	CodeSystemForMissingEntity Code = "SYSTEM_FOR_MISSING_ENTITY"
	CodeReservedEntityID    Code = "RESERVED_ENTITY_ID"

	// Determinism violation detected via hash comparison.
	CodeHashMismatch Code = "HASH_MISMATCH"

	// Unrecoverable: abort the current tick, log, continue next cycle.
	CodeEventInPast         Code = "EVENT_IN_PAST"
	CodeEntityIterationBug  Code = "ENTITY_ITERATION_INCONSISTENCY"
)

// Category groups codes into the five buckets of spec.md §7, which governs
// how a caller is expected to react (reject-and-continue, fail-the-call,
// log-and-best-effort, resync, or abort-the-tick).
type Category int

const (
	CategoryUnknown Category = iota
	CategoryProtocolViolation
	CategoryHistoryMiss
	CategoryIntegrityAnomaly
	CategoryDeterminismViolation
	CategoryUnrecoverable
)

func (c Code) Category() Category {
	switch c {
	case CodeEventOutOfWindow, CodeEngineIDMismatch, CodeForbiddenEventKind, CodeEntityIDMismatch, CodeMalformedWireFrame, CodeUnknownPlayer:
		return CategoryProtocolViolation
	case CodeStepTooOld, CodeHashUnknown:
		return CategoryHistoryMiss
	case CodeDuplicateEntityID, CodeRemoveMissingEntity, CodeSystemForMissingEntity, CodeReservedEntityID:
		return CategoryIntegrityAnomaly
	case CodeHashMismatch:
		return CategoryDeterminismViolation
	case CodeEventInPast, CodeEntityIterationBug:
		return CategoryUnrecoverable
	default:
		return CategoryUnknown
	}
}

// Error is the domain error type with structured metadata, adapted from the
// teacher's internal/platform/errors.Error — the gRPC status conversion is
// dropped (this module has no gRPC surface) in favor of Category, above.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates a domain error carrying structured context.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// GetCode extracts the error code from any error, CodeUnknown if none.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks whether err carries the given code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
