package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// EXPIRY SWEEP
// =============================================================================

func TestSweeper_ExpiresOverduePending(t *testing.T) {
	// GIVEN: A pending reservation whose grace window has elapsed
	// WHEN: A sweep runs
	// THEN: The reservation is EXPIRED and its nights are sellable again

	controller, store, clock := newTestController(t, 1)
	res := createReservation(t, controller, "guest-1", rng("2026-10-01", "2026-10-03"))
	sweeper := booking.NewSweeper(store, controller)

	now := clock.Now().Add(25 * time.Hour)
	expired, skipped, err := sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 0, skipped)

	current, err := controller.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusExpired, current.Status)
	assert.NotNil(t, current.CancelledAt)

	assert.Equal(t, 1, availabilityOn(t, store, "2026-10-01"))
	assert.Equal(t, 1, availabilityOn(t, store, "2026-10-02"))
}

func TestSweeper_SecondPass_NothingToDo(t *testing.T) {
	// GIVEN: A sweep already expired the only overdue reservation
	// WHEN: The sweep runs again
	// THEN: It finds nothing and credits nothing twice

	controller, store, clock := newTestController(t, 1)
	createReservation(t, controller, "guest-1", rng("2026-10-01", "2026-10-03"))
	sweeper := booking.NewSweeper(store, controller)

	now := clock.Now().Add(25 * time.Hour)
	_, _, err := sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)

	expired, skipped, err := sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
	assert.Equal(t, 0, skipped)

	assert.Equal(t, 1, availabilityOn(t, store, "2026-10-01"))
}

func TestSweeper_WithinGraceWindow_LeftAlone(t *testing.T) {
	controller, store, clock := newTestController(t, 1)
	res := createReservation(t, controller, "guest-1", rng("2026-10-01", "2026-10-03"))
	sweeper := booking.NewSweeper(store, controller)

	expired, skipped, err := sweeper.SweepOnce(context.Background(), clock.Now().Add(23*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
	assert.Equal(t, 0, skipped)

	current, err := controller.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPendingPayment, current.Status)
}

func TestSweeper_SubmittedPayment_NotSweptByDefault(t *testing.T) {
	// GIVEN: An overdue reservation that has payment evidence attached
	// WHEN: A sweep runs with the default eligibility
	// THEN: The reservation is left for the owner to decide

	controller, store, clock := newTestController(t, 1)
	res := createReservation(t, controller, "guest-1", rng("2026-10-01", "2026-10-03"))
	_, err := controller.SubmitPaymentProof(context.Background(), res.ID, "uploads/a.png")
	require.NoError(t, err)
	sweeper := booking.NewSweeper(store, controller)

	expired, _, err := sweeper.SweepOnce(context.Background(), clock.Now().Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	current, err := controller.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPaymentSubmitted, current.Status)
}

func TestSweeper_SweepSubmittedOption_WidensEligibility(t *testing.T) {
	controller, store, clock := newTestController(t, 1, booking.WithSweepSubmitted())
	res := createReservation(t, controller, "guest-1", rng("2026-10-01", "2026-10-03"))
	_, err := controller.SubmitPaymentProof(context.Background(), res.ID, "uploads/a.png")
	require.NoError(t, err)
	sweeper := booking.NewSweeper(store, controller)

	expired, _, err := sweeper.SweepOnce(context.Background(), clock.Now().Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	current, err := controller.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusExpired, current.Status)
	assert.Equal(t, 1, availabilityOn(t, store, "2026-10-01"))
}

func TestSweeper_StartDisabled_NoLoop(t *testing.T) {
	controller, store, _ := newTestController(t, 1)
	sweeper := booking.NewSweeper(store, controller)
	sweeper.Enabled = false

	sweeper.Start()
	sweeper.Stop() // must not panic or hang
}
