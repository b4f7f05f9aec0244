/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is/errors.As; the HTTP layer uses the
  category helpers at the bottom to pick status codes.

ERROR CATEGORIES:
  1. Client errors - Bad ranges, unavailable dates, illegal transitions
  2. Lookup errors - Unknown room types or reservations
  3. Store errors  - Transient persistence failures

SEE ALSO:
  - ledger.go: Returns capacity errors
  - lifecycle.go: Returns transition errors
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned for a malformed date range (end not
	// strictly after start, or missing dates).
	ErrInvalidRange = errors.New("invalid date range")

	// ErrInsufficientCapacity is returned when a debit would take some
	// date in the range below zero. The whole debit is refused.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrInvalidTransition is returned when a lifecycle transition is
	// attempted from a non-matching status. State and ledger are untouched.
	ErrInvalidTransition = errors.New("invalid reservation transition")

	// ErrRoomTypeNotFound is returned when a referenced room type doesn't exist.
	ErrRoomTypeNotFound = errors.New("room type not found")

	// ErrReservationNotFound is returned when a referenced reservation doesn't exist.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrNotAllowed is returned when the requester is neither the booking
	// user nor the owning owner.
	ErrNotAllowed = errors.New("requester not allowed")

	// ErrStoreUnavailable is returned for transient persistence failures.
	// Sweep and webhook paths retry on their next invocation.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError reports the offending range boundaries.
type InvalidRangeError struct {
	Start Date
	End   Date
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: end %s must be after start %s", e.End, e.Start)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// InsufficientCapacityError names the first date in the range that could
// not cover the requested amount.
type InsufficientCapacityError struct {
	RoomTypeID RoomTypeID
	Date       Date
	Requested  int
	Available  int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("room type %s not available on %s: requested %d, available %d",
		e.RoomTypeID, e.Date, e.Requested, e.Available)
}

func (e *InsufficientCapacityError) Unwrap() error { return ErrInsufficientCapacity }

// InvalidTransitionError reports the reservation's actual status at the
// time a transition was refused.
type InvalidTransitionError struct {
	ReservationID ReservationID
	Current       ReservationStatus
	Attempted     ReservationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("reservation %s: cannot transition %s -> %s",
		e.ReservationID, e.Current, e.Attempted)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or a request that lost a race, rather than an engine failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotAllowed)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoomTypeNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsRetryable returns true if the error might succeed on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
