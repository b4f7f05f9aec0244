package booking_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRoomType(t *testing.T, store booking.Store, id string, quantity int) booking.RoomType {
	rt := booking.RoomType{
		ID:            booking.RoomTypeID(id),
		PropertyID:    "prop-1",
		OwnerID:       "owner-1",
		Name:          "Sea View Double",
		TotalQuantity: quantity,
		NightlyRate:   decimal.NewFromInt(120),
	}
	require.NoError(t, store.SaveRoomType(context.Background(), rt))
	return rt
}

func rng(start, end string) booking.DateRange {
	s, err := booking.ParseDate(start)
	if err != nil {
		panic(err)
	}
	e, err := booking.ParseDate(end)
	if err != nil {
		panic(err)
	}
	return booking.NewDateRange(s, e)
}

func date(s string) booking.Date {
	d, err := booking.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// =============================================================================
// LAZY INITIALIZATION
// =============================================================================

func TestLedger_UntouchedDateReadsFullCapacity(t *testing.T) {
	// GIVEN: A room type with 5 units and no bookings
	// WHEN: Reading availability for an arbitrary future date
	// THEN: The full capacity is available

	store := newTestStore(t)
	seedRoomType(t, store, "rt-1", 5)
	ledger := booking.NewLedger(store)

	count, err := ledger.GetAvailability(context.Background(), "rt-1", date("2026-10-01"))
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestLedger_UnknownRoomType_Rejected(t *testing.T) {
	store := newTestStore(t)
	ledger := booking.NewLedger(store)

	_, err := ledger.GetAvailability(context.Background(), "nope", date("2026-10-01"))
	assert.ErrorIs(t, err, booking.ErrRoomTypeNotFound)

	err = ledger.TryDebit(context.Background(), "nope", rng("2026-10-01", "2026-10-03"), 1)
	assert.ErrorIs(t, err, booking.ErrRoomTypeNotFound)
}

func TestLedger_RangeReadings_InOrder(t *testing.T) {
	// GIVEN: A 3-night range
	// WHEN: Reading the range
	// THEN: One reading per date, in calendar order, end date excluded

	store := newTestStore(t)
	seedRoomType(t, store, "rt-1", 2)
	ledger := booking.NewLedger(store)

	days, err := ledger.GetAvailabilityRange(context.Background(), "rt-1", rng("2026-10-01", "2026-10-04"))
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2026-10-01", days[0].Date.String())
	assert.Equal(t, "2026-10-02", days[1].Date.String())
	assert.Equal(t, "2026-10-03", days[2].Date.String())
	for _, d := range days {
		assert.Equal(t, 2, d.Available)
	}
}

func TestLedger_InvalidRange_Rejected(t *testing.T) {
	store := newTestStore(t)
	seedRoomType(t, store, "rt-1", 2)
	ledger := booking.NewLedger(store)
	ctx := context.Background()

	cases := []booking.DateRange{
		rng("2026-10-04", "2026-10-01"), // end before start
		{Start: date("2026-10-01"), End: date("2026-10-01")}, // zero nights
		{},
	}
	for _, r := range cases {
		_, err := ledger.GetAvailabilityRange(ctx, "rt-1", r)
		assert.ErrorIs(t, err, booking.ErrInvalidRange, "range %s", r)

		err = ledger.TryDebit(ctx, "rt-1", r, 1)
		assert.ErrorIs(t, err, booking.ErrInvalidRange, "range %s", r)
	}
}

// =============================================================================
// ALL-OR-NOTHING DEBIT
// =============================================================================

func TestLedger_Debit_AllOrNothing(t *testing.T) {
	// GIVEN: Capacity 1, with the middle night of a 3-night range already sold out
	// WHEN: Debiting the full range
	// THEN: The debit fails naming the full date and no other date is touched

	store := newTestStore(t)
	seedRoomType(t, store, "rt-1", 1)
	ledger := booking.NewLedger(store)
	ctx := context.Background()

	require.NoError(t, ledger.TryDebit(ctx, "rt-1", rng("2026-10-02", "2026-10-03"), 1))

	err := ledger.TryDebit(ctx, "rt-1", rng("2026-10-01", "2026-10-04"), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrInsufficientCapacity)

	var capErr *booking.InsufficientCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "2026-10-02", capErr.Date.String())
	assert.Equal(t, 0, capErr.Available)

	// The flanking dates must be untouched.
	for _, d := range []string{"2026-10-01", "2026-10-03"} {
		count, err := ledger.GetAvailability(ctx, "rt-1", date(d))
		require.NoError(t, err)
		assert.Equal(t, 1, count, "date %s should not have been debited", d)
	}
}

func TestLedger_DebitCredit_RoundTrip(t *testing.T) {
	// GIVEN: A successful 2-night hold
	// WHEN: Crediting the same range back
	// THEN: Every date is back at full capacity

	store := newTestStore(t)
	seedRoomType(t, store, "rt-1", 3)
	ledger := booking.NewLedger(store)
	ctx := context.Background()
	r := rng("2026-10-01", "2026-10-03")

	require.NoError(t, ledger.TryDebit(ctx, "rt-1", r, 1))

	days, err := ledger.GetAvailabilityRange(ctx, "rt-1", r)
	require.NoError(t, err)
	for _, d := range days {
		assert.Equal(t, 2, d.Available)
	}

	require.NoError(t, ledger.Credit(ctx, "rt-1", r, 1))

	days, err = ledger.GetAvailabilityRange(ctx, "rt-1", r)
	require.NoError(t, err)
	for _, d := range days {
		assert.Equal(t, 3, d.Available)
	}
}

func TestLedger_Credit_ClampedAtCapacity(t *testing.T) {
	// GIVEN: A date already at full capacity
	// WHEN: Crediting it again
	// THEN: The count stays at capacity instead of drifting above it

	store := newTestStore(t)
	seedRoomType(t, store, "rt-1", 2)
	ledger := booking.NewLedger(store)
	ctx := context.Background()
	r := rng("2026-10-01", "2026-10-02")

	require.NoError(t, ledger.Credit(ctx, "rt-1", r, 1))

	count, err := ledger.GetAvailability(ctx, "rt-1", date("2026-10-01"))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestLedger_ConcurrentDebits_NeverOversell(t *testing.T) {
	// GIVEN: Capacity 3 on an overlapping date
	// WHEN: 8 debits race for it
	// THEN: Exactly 3 succeed, the rest fail, and the count ends at 0

	store := newTestStore(t)
	seedRoomType(t, store, "rt-1", 3)
	ledger := booking.NewLedger(store)
	ctx := context.Background()
	r := rng("2026-10-01", "2026-10-03")

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.TryDebit(ctx, "rt-1", r, 1)
		}()
	}
	wg.Wait()
	close(results)

	succeeded, failed := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, booking.ErrInsufficientCapacity)
			failed++
		}
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 5, failed)

	for _, d := range r.Dates() {
		count, err := ledger.GetAvailability(ctx, "rt-1", d)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	}
}
