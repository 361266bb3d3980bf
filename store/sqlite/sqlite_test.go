package sqlite_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infas01/pharmacy-pos-engine/engine"
	"github.com/infas01/pharmacy-pos-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func utc(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func seedCatalogProduct(t *testing.T, store *sqlite.Store, id, name string, batches ...engine.Batch) {
	t.Helper()
	p := &engine.Product{
		ID:        engine.ProductID(id),
		Name:      name,
		SKU:       "SKU-" + id,
		Unit:      "pcs",
		Active:    true,
		CreatedAt: utc(2025, time.January, 1),
	}
	for i := range batches {
		batches[i].ProductID = p.ID
	}
	require.NoError(t, store.CreateProduct(context.Background(), p, batches))
}

func lot(id, batchNo string, expiry time.Time, qty int, created time.Time) engine.Batch {
	return engine.Batch{
		ID:          engine.BatchID(id),
		BatchNo:     batchNo,
		ExpiryDate:  expiry,
		Quantity:    qty,
		OriginalQty: qty,
		CostPrice:   money("1.00"),
		SalePrice:   money("2.00"),
		CreatedAt:   created,
	}
}

// =============================================================================
// CATALOG ROUND TRIPS
// =============================================================================

func TestStore_CreateAndGetProduct(t *testing.T) {
	// GIVEN: A product with two batches persisted in one intake
	// WHEN: Reading it back
	// THEN: Identity and metadata survive; unknown IDs read as nil, nil

	store := newTestStore(t)
	ctx := context.Background()
	seedCatalogProduct(t, store, "p1", "Paracetamol 500mg",
		lot("b1", "BN-1", utc(2026, time.January, 1), 100, utc(2025, time.January, 1)),
		lot("b2", "BN-2", utc(2026, time.June, 1), 50, utc(2025, time.January, 2)),
	)

	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Paracetamol 500mg", p.Name)
	assert.Equal(t, "SKU-p1", p.SKU)
	assert.True(t, p.Active)

	missing, err := store.GetProduct(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_GetBatches_ReturnsFEFOOrder(t *testing.T) {
	// GIVEN: Batches inserted newest-expiry first, with an expiry tie
	// WHEN: Loading batches for the product
	// THEN: Ordered by expiry ascending, ties by insertion time

	store := newTestStore(t)
	tie := utc(2026, time.March, 1)
	seedCatalogProduct(t, store, "p1", "Omeprazole",
		lot("late", "BN-L", utc(2026, time.December, 1), 10, utc(2025, time.January, 1)),
		lot("tie2", "BN-T2", tie, 10, utc(2025, time.January, 3)),
		lot("tie1", "BN-T1", tie, 10, utc(2025, time.January, 2)),
		lot("early", "BN-E", utc(2026, time.January, 1), 10, utc(2025, time.January, 4)),
	)

	batches, err := store.GetBatches(context.Background(), "p1")
	require.NoError(t, err)

	require.Len(t, batches, 4)
	assert.Equal(t, engine.BatchID("early"), batches[0].ID)
	assert.Equal(t, engine.BatchID("tie1"), batches[1].ID)
	assert.Equal(t, engine.BatchID("tie2"), batches[2].ID)
	assert.Equal(t, engine.BatchID("late"), batches[3].ID)
}

func TestStore_ListProducts_FilterAndStock(t *testing.T) {
	// GIVEN: A small catalog with one inactive product
	// WHEN: Listing with a name filter and with onlyActive
	// THEN: Matches come back with batch-summed stock

	store := newTestStore(t)
	ctx := context.Background()
	seedCatalogProduct(t, store, "p1", "Paracetamol 500mg",
		lot("b1", "BN-1", utc(2026, time.January, 1), 30, utc(2025, time.January, 1)),
		lot("b2", "BN-2", utc(2026, time.June, 1), 70, utc(2025, time.January, 2)),
	)
	seedCatalogProduct(t, store, "p2", "Cetirizine 10mg",
		lot("c1", "BN-3", utc(2026, time.January, 1), 25, utc(2025, time.January, 1)),
	)
	inactive := &engine.Product{
		ID: "p3", Name: "Discontinued", SKU: "OLD-1", Unit: "pcs",
		Active: false, CreatedAt: utc(2025, time.January, 1),
	}
	require.NoError(t, store.CreateProduct(ctx, inactive, nil))

	matches, total, err := store.ListProducts(ctx, engine.ProductFilter{Query: "Paracetamol"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, matches, 1)
	assert.Equal(t, 100, matches[0].Stock)
	assert.Len(t, matches[0].Batches, 2)

	_, total, err = store.ListProducts(ctx, engine.ProductFilter{OnlyActive: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

// =============================================================================
// RESERVE GUARD
// =============================================================================

func TestStore_Reserve_GuardedDecrement(t *testing.T) {
	// GIVEN: A batch of 10 units
	// WHEN: Reserving 4, then attempting 7 more
	// THEN: The first succeeds, the stale second attempt conflicts and
	//       changes nothing

	store := newTestStore(t)
	ctx := context.Background()
	seedCatalogProduct(t, store, "p1", "Paracetamol",
		lot("b1", "BN-1", utc(2026, time.January, 1), 10, utc(2025, time.January, 1)),
	)

	require.NoError(t, store.Reserve(ctx, "p1", "b1", 4))

	err := store.Reserve(ctx, "p1", "b1", 7)
	assert.True(t, errors.Is(err, engine.ErrConcurrencyConflict), "got %v", err)

	batches, err := store.GetBatches(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 6, batches[0].Quantity)
	assert.Equal(t, 10, batches[0].OriginalQty)
}

func TestStore_Reserve_UnknownBatch(t *testing.T) {
	// GIVEN: A product without the referenced batch
	// WHEN: Reserving against it
	// THEN: Batch-not-found, distinct from a stale-quantity conflict

	store := newTestStore(t)
	seedCatalogProduct(t, store, "p1", "Paracetamol")

	err := store.Reserve(context.Background(), "p1", "ghost", 1)
	assert.True(t, errors.Is(err, engine.ErrBatchNotFound))
}

func TestStore_Reserve_NonPositiveQuantity(t *testing.T) {
	// GIVEN: A live batch
	// WHEN: Reserving zero or negative units
	// THEN: Quantity invariant violation, no decrement

	store := newTestStore(t)
	ctx := context.Background()
	seedCatalogProduct(t, store, "p1", "Paracetamol",
		lot("b1", "BN-1", utc(2026, time.January, 1), 10, utc(2025, time.January, 1)),
	)

	for _, qty := range []int{0, -3} {
		err := store.Reserve(ctx, "p1", "b1", qty)
		assert.True(t, errors.Is(err, engine.ErrQuantityInvariant), "qty=%d", qty)
	}
}

// =============================================================================
// TRANSACTIONS AND SEQUENCE
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A reserve and a sequence advance inside a failing transaction
	// WHEN: The transaction function returns an error
	// THEN: Neither the stock nor the counter moved

	store := newTestStore(t)
	ctx := context.Background()
	seedCatalogProduct(t, store, "p1", "Paracetamol",
		lot("b1", "BN-1", utc(2026, time.January, 1), 10, utc(2025, time.January, 1)),
	)

	boom := errors.New("abort")
	err := store.WithTx(ctx, func(s engine.Store) error {
		if err := s.Reserve(ctx, "p1", "b1", 5); err != nil {
			return err
		}
		if _, err := s.NextInvoiceSeq(ctx); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	batches, err := store.GetBatches(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, batches[0].Quantity)

	seq, err := store.NextInvoiceSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq, "counter must not have advanced in the aborted tx")
}

func TestStore_NextInvoiceSeq_Monotonic(t *testing.T) {
	// GIVEN: A fresh store
	// WHEN: Advancing the sequence three times
	// THEN: 1, 2, 3 without gaps

	store := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		seq, err := store.NextInvoiceSeq(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}
}

// =============================================================================
// INVOICE PERSISTENCE AND QUERIES
// =============================================================================

func testInvoice(seq int64, customer string, createdAt time.Time, grandTotal string) *engine.Invoice {
	return &engine.Invoice{
		ID:            engine.FormatInvoiceNo(seq) + "-id",
		Seq:           seq,
		InvoiceNo:     engine.FormatInvoiceNo(seq),
		CustomerName:  customer,
		PaymentMethod: engine.PaymentCash,
		SubTotal:      money(grandTotal),
		Discount:      money("0"),
		Paid:          money(grandTotal),
		GrandTotal:    money(grandTotal),
		CreatedAt:     createdAt,
		Items: []engine.InvoiceItem{
			{
				ProductID: "p1",
				Name:      "Paracetamol",
				SKU:       "SKU-p1",
				Qty:       2,
				UnitPrice: money("2.50"),
				Allocations: []engine.Allocation{
					{BatchID: "b1", BatchNo: "BN-1", Quantity: 2},
				},
			},
		},
	}
}

func TestStore_AppendAndQueryInvoices_RoundTrip(t *testing.T) {
	// GIVEN: A persisted invoice with items and allocations
	// WHEN: Querying the history
	// THEN: Every field, line and batch draw reads back intact

	store := newTestStore(t)
	ctx := context.Background()
	inv := testInvoice(1, "Alice", utc(2025, time.June, 9), "5.00")
	require.NoError(t, store.AppendInvoice(ctx, inv))

	got, total, err := store.QueryInvoices(ctx, engine.InvoiceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)

	read := got[0]
	assert.Equal(t, "INV-000001", read.InvoiceNo)
	assert.Equal(t, "Alice", read.CustomerName)
	assert.True(t, read.GrandTotal.Equal(money("5.00")))
	require.Len(t, read.Items, 1)
	assert.Equal(t, 2, read.Items[0].Qty)
	require.Len(t, read.Items[0].Allocations, 1)
	assert.Equal(t, engine.BatchID("b1"), read.Items[0].Allocations[0].BatchID)
	assert.Equal(t, 2, read.Items[0].Allocations[0].Quantity)
}

func TestStore_QueryInvoices_SearchDateAndPaging(t *testing.T) {
	// GIVEN: Three invoices across three days for two customers
	// WHEN: Filtering by customer, by date range, and paging
	// THEN: Each filter narrows correctly; newest sorts first

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AppendInvoice(ctx, testInvoice(1, "Alice", utc(2025, time.June, 8), "5.00")))
	require.NoError(t, store.AppendInvoice(ctx, testInvoice(2, "Bob", utc(2025, time.June, 9), "7.00")))
	require.NoError(t, store.AppendInvoice(ctx, testInvoice(3, "Alice", utc(2025, time.June, 10), "9.00")))

	byName, total, err := store.QueryInvoices(ctx, engine.InvoiceFilter{Search: "ali"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, byName, 2)
	assert.Equal(t, "INV-000003", byName[0].InvoiceNo, "newest first")

	byNo, total, err := store.QueryInvoices(ctx, engine.InvoiceFilter{Search: "INV-000002"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Bob", byNo[0].CustomerName)

	from := utc(2025, time.June, 9)
	to := utc(2025, time.June, 9)
	inRange, total, err := store.QueryInvoices(ctx, engine.InvoiceFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "INV-000002", inRange[0].InvoiceNo)

	page2, total, err := store.QueryInvoices(ctx, engine.InvoiceFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page2, 1)
	assert.Equal(t, "INV-000001", page2[0].InvoiceNo)
}

// =============================================================================
// STATS QUERIES
// =============================================================================

func TestStore_InvoicesBetween_InclusiveBounds(t *testing.T) {
	// GIVEN: Invoices on June 8, 9 and 10
	// WHEN: Querying [June 9, June 10]
	// THEN: Two headers, bounds inclusive

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AppendInvoice(ctx, testInvoice(1, "", utc(2025, time.June, 8), "5.00")))
	require.NoError(t, store.AppendInvoice(ctx, testInvoice(2, "", utc(2025, time.June, 9), "7.00")))
	require.NoError(t, store.AppendInvoice(ctx, testInvoice(3, "", utc(2025, time.June, 10), "9.00")))

	got, err := store.InvoicesBetween(ctx, utc(2025, time.June, 9), utc(2025, time.June, 10))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "INV-000002", got[0].InvoiceNo)
	assert.Equal(t, "INV-000003", got[1].InvoiceNo)
}

func TestStore_BatchesExpiringBetween_ZeroFromIncludesExpired(t *testing.T) {
	// GIVEN: An already-expired batch, an in-window batch, a depleted batch
	//        and a far-future batch
	// WHEN: Querying with no lower bound up to +30 days
	// THEN: Expired and in-window lots appear, joined with product names,
	//       soonest expiry first

	store := newTestStore(t)
	now := utc(2025, time.June, 10)
	seedCatalogProduct(t, store, "p1", "Amoxicillin",
		lot("past", "AX-114", utc(2025, time.May, 31), 40, utc(2025, time.January, 1)),
		lot("soon", "AX-139", utc(2025, time.June, 25), 20, utc(2025, time.January, 2)),
		lot("empty", "AX-150", utc(2025, time.June, 20), 0, utc(2025, time.January, 3)),
		lot("far", "AX-160", utc(2026, time.June, 1), 30, utc(2025, time.January, 4)),
	)

	got, err := store.BatchesExpiringBetween(context.Background(),
		time.Time{}, now.AddDate(0, 0, 30))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "AX-114", got[0].BatchNo)
	assert.Equal(t, "Amoxicillin", got[0].ProductName)
	assert.Equal(t, "AX-139", got[1].BatchNo)

	// With the lower bound set to now, the expired lot drops out.
	bounded, err := store.BatchesExpiringBetween(context.Background(),
		now, now.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.Equal(t, "AX-139", bounded[0].BatchNo)
}

func TestStore_CountActiveProducts(t *testing.T) {
	// GIVEN: One active and one inactive product
	// WHEN: Counting
	// THEN: One

	store := newTestStore(t)
	ctx := context.Background()
	seedCatalogProduct(t, store, "p1", "Paracetamol")
	inactive := &engine.Product{
		ID: "p2", Name: "Discontinued", SKU: "OLD-1", Unit: "pcs",
		Active: false, CreatedAt: utc(2025, time.January, 1),
	}
	require.NoError(t, store.CreateProduct(ctx, inactive, nil))

	count, err := store.CountActiveProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// END TO END THROUGH THE PROCESSOR
// =============================================================================

func TestStore_CheckoutThroughProcessor_PersistsEverything(t *testing.T) {
	// GIVEN: A SQLite-backed processor and a two-batch product
	// WHEN: Checking out across the batch boundary
	// THEN: Stock, sequence and invoice history all reflect one commit

	store := newTestStore(t)
	ctx := context.Background()
	seedCatalogProduct(t, store, "p1", "Paracetamol",
		lot("b1", "BN-1", utc(2026, time.January, 1), 5, utc(2025, time.January, 1)),
		lot("b2", "BN-2", utc(2026, time.June, 1), 10, utc(2025, time.January, 2)),
	)

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	proc := engine.NewProcessor(store, engine.WithLogger(quiet))

	inv, err := proc.Checkout(ctx, engine.CheckoutRequest{
		Items: []engine.CartLine{{
			ProductID: "p1", Name: "Paracetamol", Qty: 8, Price: money("2.50"),
		}},
		Paid:          money("20.00"),
		PaymentMethod: engine.PaymentCash,
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", inv.InvoiceNo)

	batches, err := store.GetBatches(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, batches[0].Quantity)
	assert.Equal(t, 7, batches[1].Quantity)

	history, total, err := store.QueryInvoices(ctx, engine.InvoiceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, history, 1)
	require.Len(t, history[0].Items, 1)
	assert.Len(t, history[0].Items[0].Allocations, 2)
	assert.True(t, history[0].GrandTotal.Equal(money("20.00")))
}
