/*
ledger.go - Availability Ledger

PURPOSE:
  The Ledger is the per-(room type, date) counter of currently-free units.
  Every entry is derived from the capacity catalog minus active holds, and
  every mutation goes through the two primitives here.

CRITICAL INVARIANTS:
  1. 0 <= availableCount <= RoomType.TotalQuantity (I-free <= capacity)
  2. TryDebit is all-or-nothing across the whole date range: if any date
     lacks capacity, no date is modified
  3. Credit never pushes a count above total quantity; an attempt to do so
     is clamped and logged as an anomaly

WHY ALL-OR-NOTHING?
  Two concurrent bookings racing for the last unit on one overlapping date
  must resolve to exactly one winner. A debit that had already decremented
  day 1 before discovering day 2 is full would leave phantom holds that no
  reservation owns. The Store implementations serialize overlapping debits
  and commit the multi-date update as a unit.

SEE ALSO:
  - store.go: TryDebit/Credit contracts
  - reconcile.go: Repairs entries that drifted above capacity
*/
package booking

import (
	"context"
	"log"
)

// =============================================================================
// LEDGER - Availability reads and capacity holds
// =============================================================================

// Ledger exposes availability accounting on top of a Store. It owns range
// validation and anomaly logging; the atomicity itself lives in the Store.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetAvailability returns remaining units for a single date, lazily
// initializing the entry to the room type's total quantity.
func (l *Ledger) GetAvailability(ctx context.Context, id RoomTypeID, date Date) (int, error) {
	return l.store.GetAvailability(ctx, id, date)
}

// GetAvailabilityRange returns one (date, availableCount) reading per date
// in the half-open range, in order. Used to render booking calendars.
func (l *Ledger) GetAvailabilityRange(ctx context.Context, id RoomTypeID, rng DateRange) ([]DayAvailability, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return l.store.GetAvailabilityRange(ctx, id, rng)
}

// TryDebit places a capacity hold of amount units on every date in the
// range. Either every date is decremented or none is.
func (l *Ledger) TryDebit(ctx context.Context, id RoomTypeID, rng DateRange, amount int) error {
	if err := rng.Validate(); err != nil {
		return err
	}
	return l.store.TryDebit(ctx, id, rng, amount)
}

// Credit releases a capacity hold of amount units on every date in the
// range. Counts are capped at total quantity; a clamped credit means the
// books had already drifted, so it is logged rather than compounded.
func (l *Ledger) Credit(ctx context.Context, id RoomTypeID, rng DateRange, amount int) error {
	if err := rng.Validate(); err != nil {
		return err
	}
	clamped, err := l.store.Credit(ctx, id, rng, amount)
	if err != nil {
		return err
	}
	for _, d := range clamped {
		log.Printf("[Ledger] anomaly: credit for room type %s on %s clamped at capacity", id, d)
	}
	return nil
}

// creditIn is the same release, bound to a transactional store view.
// Shared by the lifecycle controller and the webhook adapter so the
// status write and the credit commit together.
func creditIn(ctx context.Context, s Store, id RoomTypeID, rng DateRange, amount int) error {
	clamped, err := s.Credit(ctx, id, rng, amount)
	if err != nil {
		return err
	}
	for _, d := range clamped {
		log.Printf("[Ledger] anomaly: credit for room type %s on %s clamped at capacity", id, d)
	}
	return nil
}
