/*
Package booking provides the core reservation and availability engine.

PURPOSE:
  This package contains the types and algorithms for selling date-ranged
  room inventory without overselling it. Capacity is tracked per room type
  per calendar date; a reservation holds one unit of capacity on every
  date of its half-open range while it is alive.

KEY CONCEPTS IN THIS FILE (types.go):
  - Date/DateRange: Day-granularity calendar values (half-open ranges)
  - RoomType: A sellable inventory category with authoritative capacity
  - Reservation: A booking attempt and its lifecycle status
  - DayAvailability: One ledger reading (date, remaining units)

DESIGN PRINCIPLES:
  1. Day granularity: All capacity accounting is per calendar date, UTC
  2. Half-open ranges: [start, end) so back-to-back stays never collide
  3. Precision: Uses decimal.Decimal for payment amounts
  4. Type safety: Strong typing for IDs prevents mixing identifiers

SEE ALSO:
  - ledger.go: Availability debit/credit primitives
  - lifecycle.go: Reservation state machine
  - store.go: Persistence ports
*/
package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DATE - Day-granularity calendar value
// =============================================================================

// Date is a calendar day with no time component. All dates are UTC.
type Date struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) AddDays(n int) Date     { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) IsZero() bool           { return d.Time.IsZero() }
func (d Date) String() string         { return d.Time.Format(dateLayout) }

// =============================================================================
// DATE RANGE - Half-open [Start, End)
// =============================================================================

// DateRange is a half-open span of calendar days. A reservation for
// [2024-06-01, 2024-06-03) occupies the nights of June 1 and June 2.
type DateRange struct {
	Start Date
	End   Date
}

func NewDateRange(start, end Date) DateRange {
	return DateRange{Start: start, End: end}
}

// Validate rejects ranges where End is not strictly after Start.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() || !r.End.After(r.Start) {
		return &InvalidRangeError{Start: r.Start, End: r.End}
	}
	return nil
}

// Nights returns the number of dates in the range.
func (r DateRange) Nights() int {
	return int(r.End.Time.Sub(r.Start.Time).Hours() / 24)
}

// Dates enumerates every date in the range, in order.
func (r DateRange) Dates() []Date {
	n := r.Nights()
	if n <= 0 {
		return nil
	}
	dates := make([]Date, n)
	for i := 0; i < n; i++ {
		dates[i] = r.Start.AddDays(i)
	}
	return dates
}

func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && d.Before(r.End)
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + ")"
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RoomTypeID string
type ReservationID string
type PropertyID string
type UserID string

// =============================================================================
// ROOM TYPE - Capacity catalog entry
// =============================================================================

// RoomType is a sellable inventory category within a property.
// TotalQuantity is the authoritative capacity: no date may ever have more
// than TotalQuantity units available, and that is exactly the invariant
// the reconciler repairs when owner edits leave old ledger rows behind.
type RoomType struct {
	ID            RoomTypeID
	PropertyID    PropertyID
	OwnerID       UserID
	Name          string
	TotalQuantity int
	NightlyRate   decimal.Decimal
	CreatedAt     time.Time
}

// =============================================================================
// AVAILABILITY - Per-date remaining capacity
// =============================================================================

// DayAvailability is one ledger reading: remaining units on a date.
type DayAvailability struct {
	Date      Date
	Available int
}

// OversoldEntry is a ledger row whose recorded availability exceeds the
// room type's authoritative capacity. Produced by the reconciler scan.
type OversoldEntry struct {
	RoomTypeID    RoomTypeID
	Date          Date
	Available     int
	TotalQuantity int
}

// =============================================================================
// RESERVATION - A booking and its lifecycle status
// =============================================================================

type ReservationStatus string

const (
	StatusPendingPayment   ReservationStatus = "PENDING_PAYMENT"
	StatusPaymentSubmitted ReservationStatus = "PAYMENT_SUBMITTED"
	StatusConfirmed        ReservationStatus = "CONFIRMED"
	StatusRejected         ReservationStatus = "REJECTED"
	StatusExpired          ReservationStatus = "EXPIRED"
	StatusCancelled        ReservationStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// HoldsCapacity reports whether a reservation in this status occupies
// ledger units. CONFIRMED keeps its hold through to completion; the three
// other terminal states have credited their range back.
func (s ReservationStatus) HoldsCapacity() bool {
	switch s {
	case StatusPendingPayment, StatusPaymentSubmitted, StatusConfirmed:
		return true
	}
	return false
}

// Reservation is a booking spanning Range against one room type.
// Rows are never deleted: terminal states are kept for audit.
type Reservation struct {
	ID         ReservationID
	UserID     UserID
	RoomTypeID RoomTypeID
	PropertyID PropertyID
	Range      DateRange
	Status     ReservationStatus

	PaymentAmount   decimal.Decimal
	CreatedAt       time.Time
	PaymentDeadline time.Time

	// Terminal timestamps, set exactly once.
	ConfirmedAt *time.Time
	CancelledAt *time.Time
}

// =============================================================================
// PAYMENT PROOF - Evidence attached by the guest
// =============================================================================

// PaymentProof is a file reference attached to a reservation when the
// guest uploads payment evidence. It has no ledger effect by itself.
type PaymentProof struct {
	ID            string
	ReservationID ReservationID
	FileRef       string
	UploadedAt    time.Time
}

// =============================================================================
// PAYMENT EVENTS - Verified gateway callbacks
// =============================================================================

type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "success"
	PaymentFailed    PaymentOutcome = "failure"
)

// PaymentEvent is a gateway callback whose signature has already been
// verified upstream. ExternalPaymentID is the redelivery idempotency key.
type PaymentEvent struct {
	ExternalPaymentID string
	ReservationID     ReservationID
	Outcome           PaymentOutcome
}

// WebhookEvent is the stored record of a processed payment event.
type WebhookEvent struct {
	ExternalPaymentID string
	ReservationID     ReservationID
	Outcome           PaymentOutcome
	ProcessedAt       time.Time
}

// =============================================================================
// CORRECTION - Reconciliation audit record
// =============================================================================

// Correction records one downward clamp applied by the reconciler.
type Correction struct {
	ID          string
	RoomTypeID  RoomTypeID
	Date        Date
	From        int
	To          int
	CorrectedAt time.Time
}
