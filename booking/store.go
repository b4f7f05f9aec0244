/*
store.go - Persistence ports for the booking engine

PURPOSE:
  Defines the interface between the engine and the database. All ledger
  mutation goes through these methods; no collaborator writes availability
  counts directly. Different implementations can use SQLite or in-memory
  storage.

KEY INTERFACES:
  CapacityCatalog: Read path for authoritative room-type capacity
  Store:           Full persistence surface (ledger, reservations, events)
  TxStore:         Store plus atomic multi-write transactions

ATOMICITY CONTRACT:
  TryDebit checks every date in the range before decrementing any of them;
  a partial debit is never observable. TransitionReservation performs its
  status check and write under the same isolation, so transitions on one
  reservation are totally ordered. Composite operations (create a
  reservation, process a webhook) run inside WithTx.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - booking/store/memory.go: In-memory for testing
*/
package booking

import (
	"context"
	"time"
)

// CapacityCatalog is the read-only source of truth for how many sellable
// units a room type has in total, independent of date.
type CapacityCatalog interface {
	// TotalQuantity returns the authoritative capacity for a room type.
	TotalQuantity(ctx context.Context, id RoomTypeID) (int, error)
}

// Store is the full persistence surface of the engine.
type Store interface {
	CapacityCatalog

	// ---- Capacity catalog ----

	// SaveRoomType inserts or updates a room type definition.
	SaveRoomType(ctx context.Context, rt RoomType) error

	// GetRoomType returns a room type, or ErrRoomTypeNotFound.
	GetRoomType(ctx context.Context, id RoomTypeID) (*RoomType, error)

	// UpdateRoomTypeQuantity changes authoritative capacity. Existing
	// availability rows are NOT rewritten; reconciliation repairs them.
	UpdateRoomTypeQuantity(ctx context.Context, id RoomTypeID, quantity int) error

	// ---- Availability ledger ----

	// GetAvailability returns the remaining units for one date, lazily
	// creating the entry at the room type's total quantity if absent.
	GetAvailability(ctx context.Context, id RoomTypeID, date Date) (int, error)

	// GetAvailabilityRange returns one reading per date in the half-open
	// range, in order. Pure read apart from lazy initialization.
	GetAvailabilityRange(ctx context.Context, id RoomTypeID, rng DateRange) ([]DayAvailability, error)

	// TryDebit atomically decrements every date in the range by amount,
	// or fails with an InsufficientCapacityError touching nothing.
	TryDebit(ctx context.Context, id RoomTypeID, rng DateRange, amount int) error

	// Credit increments every date in the range by amount, capped at the
	// room type's total quantity. Returns the dates that were clamped.
	Credit(ctx context.Context, id RoomTypeID, rng DateRange, amount int) ([]Date, error)

	// ListOversold returns every availability row whose count exceeds the
	// room type's authoritative capacity.
	ListOversold(ctx context.Context) ([]OversoldEntry, error)

	// ClampAvailability lowers one row to max if it currently exceeds max.
	// Returns true if a write happened. Never raises a count.
	ClampAvailability(ctx context.Context, id RoomTypeID, date Date, max int) (bool, error)

	// ---- Reservations ----

	// SaveReservation persists a new reservation row.
	SaveReservation(ctx context.Context, res Reservation) error

	// GetReservation returns a reservation, or ErrReservationNotFound.
	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)

	// ListReservationsByUser returns a user's reservations, newest first.
	ListReservationsByUser(ctx context.Context, userID UserID) ([]Reservation, error)

	// TransitionReservation moves a reservation to a new status if and
	// only if its current status is one of from. The check and the write
	// are a single isolated operation; on a mismatch it returns an
	// InvalidTransitionError and writes nothing. Terminal timestamps are
	// stamped with at.
	TransitionReservation(ctx context.Context, id ReservationID, from []ReservationStatus, to ReservationStatus, at time.Time) (*Reservation, error)

	// FindOverdue returns reservations in one of the given statuses whose
	// payment deadline is before now.
	FindOverdue(ctx context.Context, now time.Time, statuses []ReservationStatus) ([]Reservation, error)

	// ---- Payment proofs ----

	SavePaymentProof(ctx context.Context, proof PaymentProof) error
	GetPaymentProof(ctx context.Context, id ReservationID) (*PaymentProof, error)

	// ---- Webhook events ----

	// RecordWebhookEvent stores a processed payment event. If the external
	// payment id was already recorded it returns (true, nil) and writes
	// nothing, which is what makes redelivery a no-op.
	RecordWebhookEvent(ctx context.Context, ev WebhookEvent) (alreadyProcessed bool, err error)

	// ---- Reconciliation audit ----

	SaveCorrection(ctx context.Context, c Correction) error
	ListCorrections(ctx context.Context) ([]Correction, error)
}

// TxStore wraps Store with transaction support. Use this when multiple
// writes must commit or roll back together (reservation creation, release
// transitions, webhook processing).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. The Store passed to fn is
	// bound to that transaction. If fn returns an error the transaction
	// is rolled back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
