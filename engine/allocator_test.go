package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infas01/pharmacy-pos-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func batch(id string, expiry time.Time, qty int, created time.Time) engine.Batch {
	return engine.Batch{
		ID:          engine.BatchID(id),
		ProductID:   "prod-1",
		BatchNo:     "BN-" + id,
		ExpiryDate:  expiry,
		Quantity:    qty,
		OriginalQty: qty,
		CreatedAt:   created,
	}
}

// =============================================================================
// FEFO ORDER TESTS
// =============================================================================

func TestAllocate_DrawsEarliestExpiryFirst(t *testing.T) {
	// GIVEN: Batch A (5 units, expires Jan 1), batch B (10 units, expires Feb 1)
	// WHEN: Requesting 8 units
	// THEN: 5 drawn from A, 3 from B, in that order

	now := date(2024, time.November, 1)
	batches := []engine.Batch{
		batch("b", date(2025, time.February, 1), 10, now),
		batch("a", date(2025, time.January, 1), 5, now),
	}

	allocs, err := engine.Allocate(batches, 8, engine.DefaultPolicy(), now)
	require.NoError(t, err)

	require.Len(t, allocs, 2)
	assert.Equal(t, engine.BatchID("a"), allocs[0].BatchID)
	assert.Equal(t, 5, allocs[0].Quantity)
	assert.Equal(t, engine.BatchID("b"), allocs[1].BatchID)
	assert.Equal(t, 3, allocs[1].Quantity)
}

func TestAllocate_EqualExpiry_TieBrokenByInsertionOrder(t *testing.T) {
	// GIVEN: Two batches with the same expiry date, inserted in a known order
	// WHEN: Requesting fewer units than the first batch holds
	// THEN: The earlier-inserted batch is drawn, deterministically

	now := date(2024, time.November, 1)
	expiry := date(2025, time.March, 1)
	batches := []engine.Batch{
		batch("second", expiry, 50, now.Add(time.Microsecond)),
		batch("first", expiry, 50, now),
	}

	allocs, err := engine.Allocate(batches, 10, engine.DefaultPolicy(), now)
	require.NoError(t, err)

	require.Len(t, allocs, 1)
	assert.Equal(t, engine.BatchID("first"), allocs[0].BatchID)
	assert.Equal(t, 10, allocs[0].Quantity)
}

func TestAllocate_QuantitiesSumToRequested(t *testing.T) {
	// GIVEN: Several small batches
	// WHEN: Requesting a quantity that spans all of them
	// THEN: The draw plan covers the request exactly, no more, no less

	now := date(2024, time.November, 1)
	batches := []engine.Batch{
		batch("a", date(2025, time.January, 1), 3, now),
		batch("b", date(2025, time.February, 1), 4, now),
		batch("c", date(2025, time.March, 1), 5, now),
	}

	allocs, err := engine.Allocate(batches, 11, engine.DefaultPolicy(), now)
	require.NoError(t, err)

	total := 0
	for _, a := range allocs {
		total += a.Quantity
		assert.Positive(t, a.Quantity)
	}
	assert.Equal(t, 11, total)
}

func TestAllocate_SkipsZeroQuantityBatches(t *testing.T) {
	// GIVEN: A depleted batch with the earliest expiry, plus a live batch
	// WHEN: Requesting units
	// THEN: The depleted batch is inert and never appears in the plan

	now := date(2024, time.November, 1)
	batches := []engine.Batch{
		batch("empty", date(2025, time.January, 1), 0, now),
		batch("live", date(2025, time.June, 1), 10, now),
	}

	allocs, err := engine.Allocate(batches, 4, engine.DefaultPolicy(), now)
	require.NoError(t, err)

	require.Len(t, allocs, 1)
	assert.Equal(t, engine.BatchID("live"), allocs[0].BatchID)
}

// =============================================================================
// SHORTFALL TESTS
// =============================================================================

func TestAllocate_InsufficientStock_ReportsExactShortfall(t *testing.T) {
	// GIVEN: A single batch holding 3 units
	// WHEN: Requesting 5 units
	// THEN: Allocation fails with requested=5, available=3, shortfall=2
	//       and proposes no partial draw

	now := date(2024, time.November, 1)
	batches := []engine.Batch{
		batch("a", date(2025, time.January, 1), 3, now),
	}

	allocs, err := engine.Allocate(batches, 5, engine.DefaultPolicy(), now)
	assert.Nil(t, allocs)
	require.Error(t, err)

	var short *engine.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 5, short.Requested)
	assert.Equal(t, 3, short.Available)
	assert.Equal(t, 2, short.Shortfall)
	assert.True(t, errors.Is(err, engine.ErrInsufficientStock))
}

func TestAllocate_NoBatches_ShortfallEqualsRequest(t *testing.T) {
	// GIVEN: A product with no batches at all
	// WHEN: Requesting 2 units
	// THEN: Shortfall is the full request

	allocs, err := engine.Allocate(nil, 2, engine.DefaultPolicy(), date(2024, time.November, 1))
	assert.Nil(t, allocs)

	var short *engine.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 0, short.Available)
	assert.Equal(t, 2, short.Shortfall)
}

// =============================================================================
// EXPIRED STOCK POLICY TESTS
// =============================================================================

func TestAllocate_ExpiredBatch_SellableByDefault(t *testing.T) {
	// GIVEN: The earliest-expiring batch is already past its date
	// WHEN: Allocating with the default policy
	// THEN: The expired batch is still drawn first

	now := date(2025, time.June, 1)
	batches := []engine.Batch{
		batch("expired", date(2025, time.May, 1), 5, now),
		batch("fresh", date(2026, time.January, 1), 20, now),
	}

	allocs, err := engine.Allocate(batches, 7, engine.DefaultPolicy(), now)
	require.NoError(t, err)

	require.Len(t, allocs, 2)
	assert.Equal(t, engine.BatchID("expired"), allocs[0].BatchID)
	assert.Equal(t, 5, allocs[0].Quantity)
	assert.Equal(t, engine.BatchID("fresh"), allocs[1].BatchID)
	assert.Equal(t, 2, allocs[1].Quantity)
}

func TestAllocate_ExpiredBatch_SkippedWhenDisallowed(t *testing.T) {
	// GIVEN: An expired batch and a fresh batch
	// WHEN: Allocating with AllowExpired=false
	// THEN: Only the fresh batch is eligible; its stock alone bounds the draw

	now := date(2025, time.June, 1)
	batches := []engine.Batch{
		batch("expired", date(2025, time.May, 1), 5, now),
		batch("fresh", date(2026, time.January, 1), 4, now),
	}
	strict := engine.AllocationPolicy{AllowExpired: false}

	allocs, err := engine.Allocate(batches, 4, strict, now)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, engine.BatchID("fresh"), allocs[0].BatchID)

	// One more unit than the fresh batch holds must fail even though the
	// expired batch could cover it.
	_, err = engine.Allocate(batches, 5, strict, now)
	var short *engine.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 4, short.Available)
	assert.Equal(t, 1, short.Shortfall)
}

// =============================================================================
// INPUT VALIDATION
// =============================================================================

func TestAllocate_NonPositiveRequest_Rejected(t *testing.T) {
	// GIVEN: Stock on hand
	// WHEN: Requesting zero or negative units
	// THEN: Validation error, no allocation attempted

	now := date(2024, time.November, 1)
	batches := []engine.Batch{batch("a", date(2025, time.January, 1), 10, now)}

	for _, qty := range []int{0, -3} {
		_, err := engine.Allocate(batches, qty, engine.DefaultPolicy(), now)
		assert.True(t, errors.Is(err, engine.ErrInvalidInput), "qty=%d", qty)
	}
}

func TestAllocate_DoesNotMutateInput(t *testing.T) {
	// GIVEN: A batch slice in reverse expiry order
	// WHEN: Allocating
	// THEN: The caller's slice is untouched

	now := date(2024, time.November, 1)
	batches := []engine.Batch{
		batch("late", date(2025, time.December, 1), 10, now),
		batch("early", date(2025, time.January, 1), 10, now),
	}

	_, err := engine.Allocate(batches, 15, engine.DefaultPolicy(), now)
	require.NoError(t, err)

	assert.Equal(t, engine.BatchID("late"), batches[0].ID)
	assert.Equal(t, 10, batches[0].Quantity)
	assert.Equal(t, engine.BatchID("early"), batches[1].ID)
	assert.Equal(t, 10, batches[1].Quantity)
}
