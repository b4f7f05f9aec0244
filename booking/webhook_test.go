package booking_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func submittedReservation(t *testing.T, controller *booking.Controller) *booking.Reservation {
	res := createReservation(t, controller, "guest-1", rng("2026-10-01", "2026-10-03"))
	_, err := controller.SubmitPaymentProof(context.Background(), res.ID, "uploads/a.png")
	require.NoError(t, err)
	return res
}

// =============================================================================
// OUTCOME MAPPING
// =============================================================================

func TestWebhook_Success_ConfirmsReservation(t *testing.T) {
	// GIVEN: A reservation with payment evidence submitted
	// WHEN: The gateway reports a successful payment
	// THEN: The reservation is CONFIRMED and keeps its capacity hold

	controller, store, _ := newTestController(t, 1)
	res := submittedReservation(t, controller)
	adapter := booking.NewWebhookAdapter(store)

	err := adapter.ProcessEvent(context.Background(), booking.PaymentEvent{
		ExternalPaymentID: "pay-100",
		ReservationID:     res.ID,
		Outcome:           booking.PaymentSucceeded,
	})
	require.NoError(t, err)

	current, err := controller.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, current.Status)
	assert.NotNil(t, current.ConfirmedAt)
	assert.Equal(t, 0, availabilityOn(t, store, "2026-10-01"))
}

func TestWebhook_Failure_RejectsAndReleases(t *testing.T) {
	// GIVEN: A reservation with payment evidence submitted
	// WHEN: The gateway reports a failed payment
	// THEN: The reservation is REJECTED and the nights are sellable again

	controller, store, _ := newTestController(t, 1)
	res := submittedReservation(t, controller)
	adapter := booking.NewWebhookAdapter(store)

	err := adapter.ProcessEvent(context.Background(), booking.PaymentEvent{
		ExternalPaymentID: "pay-101",
		ReservationID:     res.ID,
		Outcome:           booking.PaymentFailed,
	})
	require.NoError(t, err)

	current, err := controller.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusRejected, current.Status)
	assert.Equal(t, 1, availabilityOn(t, store, "2026-10-01"))
	assert.Equal(t, 1, availabilityOn(t, store, "2026-10-02"))
}

func TestWebhook_MissingExternalID_Rejected(t *testing.T) {
	_, store, _ := newTestController(t, 1)
	adapter := booking.NewWebhookAdapter(store)

	err := adapter.ProcessEvent(context.Background(), booking.PaymentEvent{
		ReservationID: "res-1",
		Outcome:       booking.PaymentSucceeded,
	})
	assert.Error(t, err)
}

// =============================================================================
// REDELIVERY
// =============================================================================

func TestWebhook_Redelivery_IsNoOp(t *testing.T) {
	// GIVEN: A successful payment event already processed
	// WHEN: The gateway redelivers the same event, and even a contradicting
	//       one under the same external payment id
	// THEN: Nothing changes and no capacity moves

	controller, store, _ := newTestController(t, 1)
	res := submittedReservation(t, controller)
	adapter := booking.NewWebhookAdapter(store)

	ev := booking.PaymentEvent{
		ExternalPaymentID: "pay-200",
		ReservationID:     res.ID,
		Outcome:           booking.PaymentSucceeded,
	}
	require.NoError(t, adapter.ProcessEvent(context.Background(), ev))
	require.NoError(t, adapter.ProcessEvent(context.Background(), ev))

	contradicting := ev
	contradicting.Outcome = booking.PaymentFailed
	require.NoError(t, adapter.ProcessEvent(context.Background(), contradicting))

	current, err := controller.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, current.Status)
	assert.Equal(t, 0, availabilityOn(t, store, "2026-10-01"))
}

func TestWebhook_FailedProcessing_NotRecorded(t *testing.T) {
	// GIVEN: An event arriving before the guest submitted payment evidence
	// WHEN: Processing fails on the transition
	// THEN: The event record rolls back with it, so a later redelivery of
	//       the same event succeeds once the reservation is ready

	controller, store, _ := newTestController(t, 1)
	res := createReservation(t, controller, "guest-1", rng("2026-10-01", "2026-10-03"))
	adapter := booking.NewWebhookAdapter(store)

	ev := booking.PaymentEvent{
		ExternalPaymentID: "pay-300",
		ReservationID:     res.ID,
		Outcome:           booking.PaymentSucceeded,
	}
	err := adapter.ProcessEvent(context.Background(), ev)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	_, err = controller.SubmitPaymentProof(context.Background(), res.ID, "uploads/a.png")
	require.NoError(t, err)

	require.NoError(t, adapter.ProcessEvent(context.Background(), ev))

	current, err := controller.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, current.Status)
}

func TestWebhook_UnknownReservation(t *testing.T) {
	_, store, _ := newTestController(t, 1)
	adapter := booking.NewWebhookAdapter(store)

	err := adapter.ProcessEvent(context.Background(), booking.PaymentEvent{
		ExternalPaymentID: "pay-400",
		ReservationID:     "missing",
		Outcome:           booking.PaymentSucceeded,
	})
	assert.ErrorIs(t, err, booking.ErrReservationNotFound)
}
