package scheduling

import "errors"

// Booking failures. All of them are recoverable by picking another date or
// session; none indicate a broken process.
var (
	ErrDateNotBookable     = errors.New("date is outside the booking window")
	ErrNoSessionAvailable  = errors.New("no session available on this date")
	ErrSessionFull         = errors.New("session is full")
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrFeeConfigMissing    = errors.New("no fee configuration for doctor and clinic")
	ErrAllocationConflict  = errors.New("allocation conflict: retries exhausted")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidInput        = errors.New("invalid input")
)

// Store-level optimistic concurrency signals; never returned to callers.
var (
	errTallyConflict  = errors.New("session tally changed")
	errStatusConflict = errors.New("appointment status changed")
)
