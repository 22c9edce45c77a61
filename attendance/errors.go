/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch with errors.Is/errors.As; the HTTP layer maps these
  to status codes.

ERROR CATEGORIES:
  1. Validation errors - precondition failures detected from the loaded
     log before any write (AlreadyClockedIn, NotClockedIn)
  2. Concurrency errors - a second operation for the same user while one
     is in flight
  3. Store errors - missing records and persistence failures

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP statuses
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyClockedIn is returned by ClockIn when today's log already
	// has an open segment. The operation leaves the log unchanged.
	ErrAlreadyClockedIn = errors.New("already clocked in")

	// ErrNotClockedIn is returned by ClockOut when there is no log for
	// today or its last segment is already closed.
	ErrNotClockedIn = errors.New("not clocked in")

	// ErrClockOutBeforeIn is returned by ClockOut when the clock-out
	// timestamp precedes the open segment's clock-in. Accepting it would
	// fold a negative duration into the day total.
	ErrClockOutBeforeIn = errors.New("clock-out before clock-in")

	// ErrOperationInFlight is returned when a clock operation for the same
	// user is still waiting on its persistence round trip. The engine
	// enforces single-flight per user so correctness does not depend on
	// the caller disabling its controls.
	ErrOperationInFlight = errors.New("clock operation already in flight")

	// ErrLogNotFound is returned by stores when no log exists for the
	// requested (user, date). For ClockIn this is a normal signal to
	// create the day's log.
	ErrLogNotFound = errors.New("attendance log not found")

	// ErrScheduleNotFound is returned by stores when a user has no
	// schedule configured. The engine falls back to defaults.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrInvalidLog is returned when a record violates the one-open-segment
	// invariant.
	ErrInvalidLog = errors.New("invalid attendance log")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ClockStateError reports a precondition failure with the state that caused it.
type ClockStateError struct {
	UserID  string
	LogDate string
	OpenAt  string // RFC3339 time-in of the offending open segment, if any
	Op      string // "clock-in" or "clock-out"
}

func (e *ClockStateError) Error() string {
	if e.Op == "clock-in" {
		return fmt.Sprintf("%s %s: already clocked in since %s", e.UserID, e.LogDate, e.OpenAt)
	}
	return fmt.Sprintf("%s %s: not clocked in", e.UserID, e.LogDate)
}

func (e *ClockStateError) Unwrap() error {
	if e.Op == "clock-in" {
		return ErrAlreadyClockedIn
	}
	return ErrNotClockedIn
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's state or
// input rather than a persistence failure. Safe to retry after the user
// changes state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadyClockedIn) ||
		errors.Is(err, ErrNotClockedIn) ||
		errors.Is(err, ErrClockOutBeforeIn) ||
		errors.Is(err, ErrOperationInFlight)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLogNotFound) ||
		errors.Is(err, ErrScheduleNotFound)
}
