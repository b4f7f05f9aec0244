package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/store/sqlite"
)

var _ booking.TxStore = (*sqlite.Store)(nil)

// =============================================================================
// TEST SETUP
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRoomType(t *testing.T, s *sqlite.Store, quantity int) {
	require.NoError(t, s.SaveRoomType(context.Background(), booking.RoomType{
		ID:            "rt-1",
		PropertyID:    "prop-1",
		OwnerID:       "owner-1",
		Name:          "Garden Suite",
		TotalQuantity: quantity,
		NightlyRate:   decimal.RequireFromString("149.50"),
	}))
}

func mustRange(t *testing.T, start, end string) booking.DateRange {
	s, err := booking.ParseDate(start)
	require.NoError(t, err)
	e, err := booking.ParseDate(end)
	require.NoError(t, err)
	return booking.NewDateRange(s, e)
}

func sampleReservation(t *testing.T, id string, status booking.ReservationStatus, deadline time.Time) booking.Reservation {
	return booking.Reservation{
		ID:              booking.ReservationID(id),
		UserID:          "guest-1",
		RoomTypeID:      "rt-1",
		PropertyID:      "prop-1",
		Range:           mustRange(t, "2026-10-01", "2026-10-03"),
		Status:          status,
		PaymentAmount:   decimal.RequireFromString("299.00"),
		CreatedAt:       time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		PaymentDeadline: deadline,
	}
}

// =============================================================================
// ROOM TYPES
// =============================================================================

func TestSQLite_RoomType_RoundTrip(t *testing.T) {
	s := newStore(t)
	seedRoomType(t, s, 4)
	ctx := context.Background()

	rt, err := s.GetRoomType(ctx, "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "Garden Suite", rt.Name)
	assert.Equal(t, 4, rt.TotalQuantity)
	assert.True(t, rt.NightlyRate.Equal(decimal.RequireFromString("149.50")))
	assert.Equal(t, booking.UserID("owner-1"), rt.OwnerID)

	_, err = s.GetRoomType(ctx, "missing")
	assert.ErrorIs(t, err, booking.ErrRoomTypeNotFound)
}

func TestSQLite_UpdateQuantity_LeavesLedgerRows(t *testing.T) {
	s := newStore(t)
	seedRoomType(t, s, 5)
	ctx := context.Background()
	d := mustRange(t, "2026-10-01", "2026-10-02").Start

	// Materialize a row at the old capacity, then shrink the room type.
	count, err := s.GetAvailability(ctx, "rt-1", d)
	require.NoError(t, err)
	require.Equal(t, 5, count)

	require.NoError(t, s.UpdateRoomTypeQuantity(ctx, "rt-1", 3))

	count, err = s.GetAvailability(ctx, "rt-1", d)
	require.NoError(t, err)
	assert.Equal(t, 5, count, "existing rows are repaired by reconciliation, not rewritten")

	oversold, err := s.ListOversold(ctx)
	require.NoError(t, err)
	require.Len(t, oversold, 1)
	assert.Equal(t, 5, oversold[0].Available)
	assert.Equal(t, 3, oversold[0].TotalQuantity)

	assert.ErrorIs(t, s.UpdateRoomTypeQuantity(ctx, "missing", 3), booking.ErrRoomTypeNotFound)
}

func TestSQLite_ClampAvailability_Conditional(t *testing.T) {
	s := newStore(t)
	seedRoomType(t, s, 5)
	ctx := context.Background()
	d := mustRange(t, "2026-10-01", "2026-10-02").Start

	_, err := s.GetAvailability(ctx, "rt-1", d)
	require.NoError(t, err)
	require.NoError(t, s.UpdateRoomTypeQuantity(ctx, "rt-1", 3))

	applied, err := s.ClampAvailability(ctx, "rt-1", d, 3)
	require.NoError(t, err)
	assert.True(t, applied)

	// Already repaired: the conditional write does nothing.
	applied, err = s.ClampAvailability(ctx, "rt-1", d, 3)
	require.NoError(t, err)
	assert.False(t, applied)

	count, err := s.GetAvailability(ctx, "rt-1", d)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func TestSQLite_Reservation_RoundTrip(t *testing.T) {
	s := newStore(t)
	seedRoomType(t, s, 2)
	ctx := context.Background()

	deadline := time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC)
	res := sampleReservation(t, "res-1", booking.StatusPendingPayment, deadline)
	require.NoError(t, s.SaveReservation(ctx, res))

	loaded, err := s.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, res.UserID, loaded.UserID)
	assert.Equal(t, "2026-10-01", loaded.Range.Start.String())
	assert.Equal(t, "2026-10-03", loaded.Range.End.String())
	assert.True(t, loaded.PaymentAmount.Equal(res.PaymentAmount))
	assert.True(t, loaded.PaymentDeadline.Equal(deadline))
	assert.Nil(t, loaded.ConfirmedAt)
	assert.Nil(t, loaded.CancelledAt)

	_, err = s.GetReservation(ctx, "missing")
	assert.ErrorIs(t, err, booking.ErrReservationNotFound)
}

func TestSQLite_Transition_ConditionalOnStatus(t *testing.T) {
	s := newStore(t)
	seedRoomType(t, s, 2)
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC)

	res := sampleReservation(t, "res-1", booking.StatusPaymentSubmitted, now.Add(24*time.Hour))
	require.NoError(t, s.SaveReservation(ctx, res))

	updated, err := s.TransitionReservation(ctx, "res-1",
		[]booking.ReservationStatus{booking.StatusPaymentSubmitted}, booking.StatusConfirmed, now)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, updated.Status)
	require.NotNil(t, updated.ConfirmedAt)
	assert.True(t, updated.ConfirmedAt.Equal(now))

	// Terminal: nothing further is allowed.
	_, err = s.TransitionReservation(ctx, "res-1",
		[]booking.ReservationStatus{booking.StatusPaymentSubmitted}, booking.StatusRejected, now)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	var trErr *booking.InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, booking.StatusConfirmed, trErr.Current)
}

func TestSQLite_FindOverdue_FiltersStatusAndDeadline(t *testing.T) {
	s := newStore(t)
	seedRoomType(t, s, 5)
	ctx := context.Background()
	now := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveReservation(ctx, sampleReservation(t, "overdue-pending", booking.StatusPendingPayment, now.Add(-2*time.Hour))))
	require.NoError(t, s.SaveReservation(ctx, sampleReservation(t, "overdue-submitted", booking.StatusPaymentSubmitted, now.Add(-1*time.Hour))))
	require.NoError(t, s.SaveReservation(ctx, sampleReservation(t, "fresh", booking.StatusPendingPayment, now.Add(time.Hour))))
	require.NoError(t, s.SaveReservation(ctx, sampleReservation(t, "confirmed", booking.StatusConfirmed, now.Add(-3*time.Hour))))

	overdue, err := s.FindOverdue(ctx, now, []booking.ReservationStatus{booking.StatusPendingPayment})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, booking.ReservationID("overdue-pending"), overdue[0].ID)

	overdue, err = s.FindOverdue(ctx, now, []booking.ReservationStatus{
		booking.StatusPendingPayment, booking.StatusPaymentSubmitted,
	})
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	// Oldest deadline first.
	assert.Equal(t, booking.ReservationID("overdue-pending"), overdue[0].ID)
	assert.Equal(t, booking.ReservationID("overdue-submitted"), overdue[1].ID)
}

// =============================================================================
// PAYMENT PROOFS AND WEBHOOK EVENTS
// =============================================================================

func TestSQLite_PaymentProof_LatestUploadWins(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePaymentProof(ctx, booking.PaymentProof{
		ID: "proof-1", ReservationID: "res-1", FileRef: "uploads/a.png",
		UploadedAt: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, s.SavePaymentProof(ctx, booking.PaymentProof{
		ID: "proof-2", ReservationID: "res-1", FileRef: "uploads/b.png",
		UploadedAt: time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC),
	}))

	proof, err := s.GetPaymentProof(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, "proof-2", proof.ID)
	assert.Equal(t, "uploads/b.png", proof.FileRef)

	_, err = s.GetPaymentProof(ctx, "res-2")
	assert.ErrorIs(t, err, booking.ErrReservationNotFound)
}

func TestSQLite_WebhookEvent_DuplicateDetected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ev := booking.WebhookEvent{
		ExternalPaymentID: "pay-1",
		ReservationID:     "res-1",
		Outcome:           booking.PaymentSucceeded,
		ProcessedAt:       time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}

	already, err := s.RecordWebhookEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, already)

	already, err = s.RecordWebhookEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, already)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTx_RollsBackAllWrites(t *testing.T) {
	s := newStore(t)
	seedRoomType(t, s, 2)
	ctx := context.Background()
	r := mustRange(t, "2026-10-01", "2026-10-03")

	err := s.WithTx(ctx, func(tx booking.Store) error {
		if err := tx.TryDebit(ctx, "rt-1", r, 1); err != nil {
			return err
		}
		if err := tx.SaveReservation(ctx, sampleReservation(t, "res-1", booking.StatusPendingPayment, time.Now())); err != nil {
			return err
		}
		if _, err := tx.RecordWebhookEvent(ctx, booking.WebhookEvent{
			ExternalPaymentID: "pay-1", ReservationID: "res-1",
			Outcome: booking.PaymentSucceeded, ProcessedAt: time.Now(),
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	count, err := s.GetAvailability(ctx, "rt-1", r.Start)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = s.GetReservation(ctx, "res-1")
	assert.ErrorIs(t, err, booking.ErrReservationNotFound)

	already, err := s.RecordWebhookEvent(ctx, booking.WebhookEvent{
		ExternalPaymentID: "pay-1", ReservationID: "res-1",
		Outcome: booking.PaymentSucceeded, ProcessedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, already, "rolled-back event id must be usable again")
}

func TestSQLite_Corrections_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	d := mustRange(t, "2026-10-01", "2026-10-02").Start

	c := booking.Correction{
		ID:          "corr-1",
		RoomTypeID:  "rt-1",
		Date:        d,
		From:        5,
		To:          3,
		CorrectedAt: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveCorrection(ctx, c))

	list, err := s.ListCorrections(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "corr-1", list[0].ID)
	assert.Equal(t, 5, list[0].From)
	assert.Equal(t, 3, list[0].To)
	assert.Equal(t, "2026-10-01", list[0].Date.String())
}
