/*
lifecycle.go - Reservation lifecycle controller

PURPOSE:
  Enforces the reservation state machine and orchestrates ledger debits
  and credits on each transition.

STATE MACHINE:
  PENDING_PAYMENT ──▶ PAYMENT_SUBMITTED ──▶ CONFIRMED (terminal)
        │                    │        └────▶ REJECTED  (terminal, credit back)
        │                    └─────────────▶ CANCELLED (terminal, credit back)
        ├──────────────────────────────────▶ CANCELLED (terminal, credit back)
        └──────────────────────────────────▶ EXPIRED   (terminal, credit back)

LEDGER EFFECTS:
  create:   debit 1 unit per date in the range (all-or-nothing)
  submit:   none (capacity already held)
  confirm:  none (capacity stays held through the stay)
  reject/cancel/expire: credit the full range back

EXACTLY-ONCE:
  Every transition conditions on the reservation's current status under
  the same isolation as the write. A transition from a non-matching status
  fails with InvalidTransitionError and leaves state and ledger untouched,
  which is what makes the sweeper and webhook redelivery idempotent.

CREATION ATOMICITY:
  The debit and the reservation row commit as one unit. If persisting the
  row fails after a successful debit, the debit is compensated with a
  credit before the error is returned, so the ledger never reflects a
  phantom booking.

SEE ALSO:
  - sweeper.go: Drives the EXPIRED transition on a schedule
  - webhook.go: Drives CONFIRMED/REJECTED from verified gateway events
*/
package booking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultGraceWindow is how long a guest has to pay before the sweeper
// may expire a PENDING_PAYMENT reservation.
const DefaultGraceWindow = 24 * time.Hour

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller is the only component allowed to move reservations between
// states. All its writes go through the injected TxStore.
type Controller struct {
	store       TxStore
	grace       time.Duration
	sweepStates []ReservationStatus
	now         func() time.Time
}

type ControllerOption func(*Controller)

// WithGraceWindow overrides the payment deadline window.
func WithGraceWindow(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSweepSubmitted makes PAYMENT_SUBMITTED reservations expirable too.
// By default only PENDING_PAYMENT is sweep-eligible.
func WithSweepSubmitted() ControllerOption {
	return func(c *Controller) {
		c.sweepStates = []ReservationStatus{StatusPendingPayment, StatusPaymentSubmitted}
	}
}

func NewController(store TxStore, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:       store,
		grace:       DefaultGraceWindow,
		sweepStates: []ReservationStatus{StatusPendingPayment},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SweepStates returns the statuses the expiry sweeper may act on.
func (c *Controller) SweepStates() []ReservationStatus {
	return c.sweepStates
}

// =============================================================================
// CREATE -> PENDING_PAYMENT
// =============================================================================

// CreateInput is a user-initiated booking request.
type CreateInput struct {
	UserID     UserID
	RoomTypeID RoomTypeID
	Range      DateRange
}

// Create admits or rejects a booking request. On success the returned
// reservation is PENDING_PAYMENT and holds one unit of capacity on every
// date in its range.
func (c *Controller) Create(ctx context.Context, in CreateInput) (*Reservation, error) {
	if err := in.Range.Validate(); err != nil {
		return nil, err
	}

	rt, err := c.store.GetRoomType(ctx, in.RoomTypeID)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	res := Reservation{
		ID:              ReservationID(uuid.NewString()),
		UserID:          in.UserID,
		RoomTypeID:      rt.ID,
		PropertyID:      rt.PropertyID,
		Range:           in.Range,
		Status:          StatusPendingPayment,
		PaymentAmount:   rt.NightlyRate.Mul(decimal.NewFromInt(int64(in.Range.Nights()))),
		CreatedAt:       now,
		PaymentDeadline: now.Add(c.grace),
	}

	err = c.store.WithTx(ctx, func(s Store) error {
		if err := s.TryDebit(ctx, res.RoomTypeID, res.Range, 1); err != nil {
			return err
		}
		if err := s.SaveReservation(ctx, res); err != nil {
			// Compensate the hold before surfacing the failure. Under a
			// real transaction the rollback covers this as well; either
			// way the ledger never keeps a debit without a row.
			if cerr := creditIn(ctx, s, res.RoomTypeID, res.Range, 1); cerr != nil {
				log.Printf("[Lifecycle] compensating credit failed for %s %s: %v",
					res.RoomTypeID, res.Range, cerr)
			}
			return fmt.Errorf("persist reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// =============================================================================
// PENDING_PAYMENT -> PAYMENT_SUBMITTED
// =============================================================================

// SubmitPaymentProof attaches payment evidence and marks the reservation
// PAYMENT_SUBMITTED. No ledger effect: capacity is already held. Fails if
// the reservation is past its payment deadline.
func (c *Controller) SubmitPaymentProof(ctx context.Context, id ReservationID, fileRef string) (*Reservation, error) {
	now := c.now().UTC()
	var updated *Reservation

	err := c.store.WithTx(ctx, func(s Store) error {
		res, err := s.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if res.Status != StatusPendingPayment || now.After(res.PaymentDeadline) {
			return &InvalidTransitionError{
				ReservationID: id,
				Current:       res.Status,
				Attempted:     StatusPaymentSubmitted,
			}
		}

		updated, err = s.TransitionReservation(ctx, id,
			[]ReservationStatus{StatusPendingPayment}, StatusPaymentSubmitted, now)
		if err != nil {
			return err
		}

		return s.SavePaymentProof(ctx, PaymentProof{
			ID:            uuid.NewString(),
			ReservationID: id,
			FileRef:       fileRef,
			UploadedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// PAYMENT_SUBMITTED -> CONFIRMED / REJECTED
// =============================================================================

// Confirm finalizes a paid reservation. Capacity remains held through to
// completion, so there is no ledger effect. The caller identity must be
// pre-authorized as the owning owner (or the trusted webhook adapter).
func (c *Controller) Confirm(ctx context.Context, id ReservationID) (*Reservation, error) {
	now := c.now().UTC()
	var updated *Reservation
	err := c.store.WithTx(ctx, func(s Store) error {
		var err error
		updated, err = confirmIn(ctx, s, id, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Reject refuses a submitted payment and credits the range back.
func (c *Controller) Reject(ctx context.Context, id ReservationID) (*Reservation, error) {
	now := c.now().UTC()
	var updated *Reservation
	err := c.store.WithTx(ctx, func(s Store) error {
		var err error
		updated, err = releaseIn(ctx, s, id,
			[]ReservationStatus{StatusPaymentSubmitted}, StatusRejected, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// PENDING_PAYMENT / PAYMENT_SUBMITTED -> CANCELLED
// =============================================================================

// Cancel releases a not-yet-confirmed reservation. The requester must be
// the booking user or the room type's owner.
func (c *Controller) Cancel(ctx context.Context, id ReservationID, requester UserID) (*Reservation, error) {
	now := c.now().UTC()
	var updated *Reservation

	err := c.store.WithTx(ctx, func(s Store) error {
		res, err := s.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		rt, err := s.GetRoomType(ctx, res.RoomTypeID)
		if err != nil {
			return err
		}
		if requester != res.UserID && requester != rt.OwnerID {
			return ErrNotAllowed
		}

		updated, err = releaseIn(ctx, s, id,
			[]ReservationStatus{StatusPendingPayment, StatusPaymentSubmitted}, StatusCancelled, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// PENDING_PAYMENT -> EXPIRED
// =============================================================================

// Expire forces an overdue reservation through the EXPIRED transition and
// credits its range back. Safe to call repeatedly: the status precondition
// re-checks under the store's isolation, so a second call is refused with
// InvalidTransitionError and has no effect.
func (c *Controller) Expire(ctx context.Context, id ReservationID, now time.Time) (*Reservation, error) {
	var updated *Reservation
	err := c.store.WithTx(ctx, func(s Store) error {
		res, err := s.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if !now.After(res.PaymentDeadline) {
			return &InvalidTransitionError{
				ReservationID: id,
				Current:       res.Status,
				Attempted:     StatusExpired,
			}
		}

		updated, err = releaseIn(ctx, s, id, c.sweepStates, StatusExpired, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns a reservation by id.
func (c *Controller) Get(ctx context.Context, id ReservationID) (*Reservation, error) {
	return c.store.GetReservation(ctx, id)
}

// ListByUser returns a user's reservations, newest first.
func (c *Controller) ListByUser(ctx context.Context, userID UserID) ([]Reservation, error) {
	return c.store.ListReservationsByUser(ctx, userID)
}

// =============================================================================
// TRANSITION HELPERS - Shared with the webhook adapter
// =============================================================================

// confirmIn applies PAYMENT_SUBMITTED -> CONFIRMED on a store view.
func confirmIn(ctx context.Context, s Store, id ReservationID, at time.Time) (*Reservation, error) {
	return s.TransitionReservation(ctx, id,
		[]ReservationStatus{StatusPaymentSubmitted}, StatusConfirmed, at)
}

// releaseIn applies a capacity-releasing transition on a store view: the
// conditional status write and the credit of the full range commit
// together.
func releaseIn(ctx context.Context, s Store, id ReservationID, from []ReservationStatus, to ReservationStatus, at time.Time) (*Reservation, error) {
	res, err := s.TransitionReservation(ctx, id, from, to, at)
	if err != nil {
		return nil, err
	}
	if err := creditIn(ctx, s, res.RoomTypeID, res.Range, 1); err != nil {
		return nil, err
	}
	return res, nil
}
