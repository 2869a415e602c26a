package schedule

import "errors"

// Terminal error kinds surfaced to callers. Everything leaving this package
// wraps one of these or a not-found sentinel; raw storage errors never escape.
var (
	// ErrValidation marks malformed input that should have been rejected at
	// the boundary (non-positive duration, zero ids).
	ErrValidation = errors.New("invalid scheduling request")

	// ErrNotAvailable marks a request for a time no availability window
	// covers, a disallowed date, or an exhausted auto-fill horizon.
	ErrNotAvailable = errors.New("no availability for the requested criteria")

	// ErrConflict marks an overlap with an existing occupying appointment,
	// whether detected by the pre-commit check or by the storage constraint.
	ErrConflict = errors.New("slot conflicts with an existing appointment")
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)
